package coreengine

import (
	"context"
	"errors"

	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/session"
)

// ErrUnknownClient is returned by Subscribe/Unsubscribe when client_id
// names no installed Session — spec.md §4.9's "caller error,
// distinct from a dispatch error" (§7 kind (g)).
var ErrUnknownClient = errors.New("coreengine: unknown client id")

// Subscribe forwards filter/qos onto the named client's Session, spec.md
// §4.9. A missing session is a caller error.
func (e *Engine) Subscribe(clientID, filter string, qos packet.QOS) error {
	sess, ok := e.sessions.Get(clientID)
	if !ok {
		return ErrUnknownClient
	}
	sess.Subscribe(filter, qos)
	return nil
}

// Unsubscribe removes filter from the named client's Session, spec.md §4.9.
// A missing session is a caller error.
func (e *Engine) Unsubscribe(clientID, filter string) error {
	sess, ok := e.sessions.Get(clientID)
	if !ok {
		return ErrUnknownClient
	}
	sess.Unsubscribe(filter)
	return nil
}

// DeleteSession is spec.md §4.8's `delete_session`: stop any live
// connection for clientID best-effort, then remove the session entry.
// Idempotent; a missing entry is not an error.
func (e *Engine) DeleteSession(ctx context.Context, clientID string) {
	if conn, ok := e.connections.TryRemove(clientID); ok {
		_ = conn.Stop(ctx, e.opts.DefaultCommunicationTimeout, false)
	}
	e.sessions.TryRemove(clientID)
}

// ListClientIDs returns the client_id of every installed session, for the
// admin shell's `sessions` command (cmd/coremq-shell).
func (e *Engine) ListClientIDs() []string {
	sessions := e.sessions.Snapshot()
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ClientID)
	}
	return ids
}

// ClientStatus is the SPEC_FULL.md §6 addition backing get_client_status.
type ClientStatus struct {
	ClientID        string
	Endpoint        string
	ProtocolVersion byte
	Status          connection.Status
}

// GetClientStatus restores the original broker's client-status
// introspection endpoint (spec.md §6 names it without shaping it).
func (e *Engine) GetClientStatus(clientID string) (ClientStatus, bool) {
	conn, ok := e.connections.Get(clientID)
	if !ok {
		return ClientStatus{}, false
	}
	return ClientStatus{
		ClientID:        conn.ClientID,
		Endpoint:        conn.Endpoint,
		ProtocolVersion: conn.ProtocolVersion,
		Status:          conn.Status(),
	}, true
}

// GetSessionStatus restores the original broker's session-status
// introspection endpoint (spec.md §6 names it without shaping it).
func (e *Engine) GetSessionStatus(clientID string) (session.Status, bool) {
	sess, ok := e.sessions.Get(clientID)
	if !ok {
		return session.Status{}, false
	}
	return sess.Snapshot(), true
}
