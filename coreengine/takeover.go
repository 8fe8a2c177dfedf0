package coreengine

import (
	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/session"
	"github.com/qingcloudhx/mqttcore/transport"
	"github.com/qingcloudhx/mqttcore/validator"
)

// install is the Takeover Coordinator, C4 of spec.md §4.4. It reconciles
// the Session and Connection registries for clientID under the broker-wide
// create_connection_gate, then returns the new Connection, whether a prior
// session was resumed (sessionPresent), and any displaced Connection the
// caller must stop outside the gate.
func (e *Engine) install(connect *packet.ConnectPacket, vctx *validator.Context, clientID string, adapter transport.Adapter) (conn *connection.Connection, sessionPresent bool, evicted *connection.Connection) {
	e.gate.Lock()

	sess, sessionPresent := e.reconcileSession(clientID, connect.CleanSession, vctx)

	sess.SetWill(connect.Will)

	conn = connection.New(clientID, adapter, sess, e.opts.DefaultCommunicationTimeout, e.onPublish)

	prior, hadPrior := e.connections.Replace(clientID, conn)
	if hadPrior {
		evicted = prior
	}

	e.gate.Unlock()

	return conn, sessionPresent, evicted
}

// reconcileSession implements §4.4 step 1: install-fresh, replace-on-clean,
// or reuse-discarding-new-items. Must be called under e.gate.
func (e *Engine) reconcileSession(clientID string, cleanSession bool, vctx *validator.Context) (sess *session.Session, sessionPresent bool) {
	existing, hadExisting := e.sessions.Get(clientID)

	if !hadExisting {
		fresh := session.New(clientID, vctx.SessionItems, e.opts.SessionQueueSize)
		e.sessions.Replace(clientID, fresh)
		return fresh, false
	}

	if cleanSession {
		fresh := session.New(clientID, vctx.SessionItems, e.opts.SessionQueueSize)
		e.sessions.Replace(clientID, fresh)
		return fresh, false
	}

	existing.MarkTakeover()
	return existing, true
}
