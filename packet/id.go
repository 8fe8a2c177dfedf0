package packet

// ID is a packet identifier as used by QOS 1/2 flows. This core does not
// implement acknowledgement bookkeeping itself (see SPEC_FULL.md
// Non-goals); ID exists so the opaque per-session outbound queue has
// somewhere to get identifiers from.
type ID uint16
