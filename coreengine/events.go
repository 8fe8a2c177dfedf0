package coreengine

import (
	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/packet"
)

// Events are the three best-effort notifications spec.md names
// (client_connected, client_disconnected, application_message_received)
// without shaping further. Telemetry sinks are an external collaborator
// (spec.md §1), so the default sink is the engine's own structured logger;
// a caller wanting a richer sink can set Options.Logger's hooks the normal
// logrus way, or wrap Engine and poll GetClientStatus/GetSessionStatus.

// notifyClientConnected fires once a handshake installs a connection.
func (e *Engine) notifyClientConnected(clientID, endpoint string) {
	e.log.WithFields(map[string]any{
		"client_id": clientID,
		"endpoint":  endpoint,
		"event":     "client_connected",
	}).Info("client connected")
}

// notifyClientDisconnected fires from the Cleanup Path (C7 step 3).
func (e *Engine) notifyClientDisconnected(clientID string, dt connection.DisconnectType) {
	e.log.WithFields(map[string]any{
		"client_id":       clientID,
		"disconnect_type": dt.String(),
		"event":           "client_disconnected",
	}).Info("client disconnected")
}

// notifyApplicationMessageReceived fires from the Dispatch Loop (C6 step 3),
// best-effort: a logging fault here must never abort dispatch.
func (e *Engine) notifyApplicationMessageReceived(senderID string, msg *packet.Message) {
	defer func() { _ = recover() }()

	e.log.WithFields(map[string]any{
		"client_id": senderID,
		"topic":     msg.Topic,
		"event":     "application_message_received",
	}).Debug("application message received")
}
