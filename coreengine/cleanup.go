package coreengine

import (
	"context"
	"time"

	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/transport"
)

// cleanupDisconnectTimeout bounds the adapter.Disconnect call from the
// Cleanup Path (C7 step 2), spec.md §4.7's "short timeout" — distinct from
// (and no longer than) the handshake's own communication timeout.
func (e *Engine) cleanupDisconnectTimeout() time.Duration {
	if e.opts.DefaultCommunicationTimeout < 5*time.Second {
		return e.opts.DefaultCommunicationTimeout
	}
	return 5 * time.Second
}

// cleanUpClient is the Cleanup Path, C7 of spec.md §4.7. It runs
// unconditionally from handle_attachment's outer defer, and is also the
// implementation behind the admin surface's clean_up_client.
func (e *Engine) cleanUpClient(ctx context.Context, clientID string, adapter transport.Adapter, disconnectType connection.DisconnectType) {
	if clientID != "" && disconnectType != connection.Takeover {
		e.connections.TryRemove(clientID)

		if !e.opts.EnablePersistentSessions {
			if removed, ok := e.sessions.TryRemove(clientID); ok {
				e.dispatchWillIfUngraceful(removed.Will(), clientID, disconnectType)
			}
		} else if disconnectType == connection.Error || disconnectType == connection.Timeout {
			if sess, ok := e.sessions.Get(clientID); ok {
				e.dispatchWillIfUngraceful(sess.Will(), clientID, disconnectType)
			}
		}

		if e.metrics != nil {
			e.metrics.ConnectedClients.Set(float64(e.connections.Len()))
		}
	}

	if err := adapter.Disconnect(ctx, e.cleanupDisconnectTimeout()); err != nil {
		e.log.WithError(err).WithField("client_id", clientID).Warn("fault disconnecting channel adapter during cleanup")
	}

	if clientID != "" {
		e.notifyClientDisconnected(clientID, disconnectType)
	}
}

// CleanUpClient is the admin surface's clean_up_client: it runs the Cleanup
// Path (C7) for clientID over adapter with the given disconnect type.
func (e *Engine) CleanUpClient(ctx context.Context, clientID string, adapter transport.Adapter, disconnectType connection.DisconnectType) {
	e.cleanUpClient(ctx, clientID, adapter, disconnectType)
}

// dispatchWillIfUngraceful restores SPEC_FULL.md §4.3's last-will delivery:
// a stored will is published, server-originated, only when the disconnect
// was not a clean DISCONNECT or a takeover.
func (e *Engine) dispatchWillIfUngraceful(will *packet.Message, clientID string, dt connection.DisconnectType) {
	if will == nil {
		return
	}
	if dt == connection.Normal || dt == connection.Takeover {
		return
	}
	e.DispatchApplicationMessage(will)
}
