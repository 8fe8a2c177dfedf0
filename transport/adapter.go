package transport

import (
	"context"
	"time"

	"github.com/qingcloudhx/mqttcore/packet"
)

// Adapter is the channel adapter contract spec.md §1 treats as an external
// collaborator: the Connect Handshake (C3) and running Connection only ever
// call these three operations, never touch the framing or transport
// directly.
type Adapter interface {
	// ReceivePacket blocks until a packet arrives, ctx is cancelled, or
	// timeout elapses. A zero timeout means no deadline.
	ReceivePacket(ctx context.Context, timeout time.Duration) (packet.Generic, error)

	// SendPacket writes pkt to the peer within timeout.
	SendPacket(ctx context.Context, pkt packet.Generic, timeout time.Duration) error

	// Disconnect closes the underlying transport within timeout. Idempotent.
	Disconnect(ctx context.Context, timeout time.Duration) error

	// Endpoint returns a string identifying the remote peer, used for
	// logging (spec.md §4.3 step 1).
	Endpoint() string

	// ProtocolVersion returns the MQTT protocol version negotiated by the
	// CONNECT this adapter read, valid only after a successful ReceivePacket
	// of a CONNECT.
	ProtocolVersion() byte
}
