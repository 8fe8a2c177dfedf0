// Package validator implements the pluggable connection_validator hook of
// spec.md §6, run once per handshake from C3.
package validator

import (
	"context"

	"github.com/google/uuid"

	"github.com/qingcloudhx/mqttcore/packet"
)

// Context is the mutable record handed to a ConnectionValidator once per
// handshake, spec.md §3's ConnectionValidatorContext.
type Context struct {
	// Connect is the inbound CONNECT packet.
	Connect *packet.ConnectPacket

	// Endpoint is the channel adapter's remote endpoint string.
	Endpoint string

	// SessionItems is populated by the validator; it becomes the fresh
	// Session's scratch space if a new Session is installed.
	SessionItems map[string]any

	// AssignedClientIdentifier is adopted by C3 step 4 when Connect.ClientID
	// is empty and the protocol is v5.
	AssignedClientIdentifier string

	// ReasonCode defaults to Success; a validator may override it to reject
	// the handshake with a specific CONNACK code.
	ReasonCode packet.ConnackCode
}

// NewContext builds a fresh Context for one handshake, per spec.md §4.3
// step 3.
func NewContext(connect *packet.ConnectPacket, endpoint string) *Context {
	return &Context{
		Connect:      connect,
		Endpoint:     endpoint,
		SessionItems: make(map[string]any),
		ReasonCode:   packet.Success,
	}
}

// ConnectionValidator is the pluggable policy hook of spec.md §6. Absent
// configuration is equivalent to DefaultValidator (accept all).
type ConnectionValidator interface {
	Validate(ctx context.Context, vctx *Context) error
}

// DefaultValidator accepts every connection, assigning a fresh client
// identifier when the peer did not present one — spec.md S4, grounded on
// the restored assigned_client_identifier behaviour (SPEC_FULL.md DOMAIN
// STACK: google/uuid).
type DefaultValidator struct{}

var _ ConnectionValidator = DefaultValidator{}

// Validate always accepts, assigning a UUID-derived client id when Connect
// carries none.
func (DefaultValidator) Validate(ctx context.Context, vctx *Context) error {
	if vctx.Connect.ClientID == "" {
		vctx.AssignedClientIdentifier = "gen-" + uuid.NewString()
	}
	vctx.ReasonCode = packet.Success
	return nil
}
