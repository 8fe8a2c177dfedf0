package coreengine

import (
	"context"
	"errors"
	"time"

	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/transport"
	"github.com/qingcloudhx/mqttcore/validator"
)

// HandleClientConnection is the Connect Handshake (C3), spec.md §4.3's
// `handle_attachment`. It reads exactly one first packet, validates it, and
// on success installs a session+connection (C4) and runs the connection to
// completion. Cleanup (C7) always runs before this returns.
func (e *Engine) HandleClientConnection(ctx context.Context, adapter transport.Adapter) {
	var (
		clientID string
		dt       = connection.Normal
	)

	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("endpoint", adapter.Endpoint()).Errorf("panic in handle_attachment: %v", r)
		}
		e.cleanUpClient(ctx, clientID, adapter, dt)
	}()

	pkt, err := adapter.ReceivePacket(ctx, e.opts.DefaultCommunicationTimeout)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		e.log.WithField("endpoint", adapter.Endpoint()).Warn("timed out waiting for first packet")
		return
	}

	connect, ok := pkt.(*packet.ConnectPacket)
	if !ok {
		e.log.WithField("endpoint", adapter.Endpoint()).Warn("[MQTT-3.1.0-1] first packet was not CONNECT")
		return
	}

	vctx := validator.NewContext(connect, adapter.Endpoint())
	if e.opts.Validator != nil {
		if err := e.opts.Validator.Validate(ctx, vctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			e.log.WithError(err).WithField("endpoint", adapter.Endpoint()).Error("connection validator fault")
			vctx.ReasonCode = packet.ErrServerUnavailableCode
		}
	}

	id := connect.ClientID
	if id == "" && connect.ProtocolVersion == 5 {
		id = vctx.AssignedClientIdentifier
	}
	if id == "" {
		vctx.ReasonCode = packet.ClientIdentifierNotValid
	}

	if vctx.ReasonCode != packet.Success {
		ack := packet.NewConnackPacket()
		ack.ReturnCode = vctx.ReasonCode
		if err := adapter.SendPacket(ctx, ack, e.opts.DefaultCommunicationTimeout); err != nil {
			e.log.WithError(err).WithField("endpoint", adapter.Endpoint()).Warn("failed to send reject CONNACK")
		}
		return
	}

	clientID = id

	conn, sessionPresent, evicted := e.install(connect, vctx, id, adapter)
	if e.metrics != nil {
		e.metrics.ConnectedClients.Set(float64(e.connections.Len()))
	}

	ack := packet.NewConnackPacket()
	ack.ReturnCode = packet.Success
	ack.SessionPresent = sessionPresent
	if err := adapter.SendPacket(ctx, ack, e.opts.DefaultCommunicationTimeout); err != nil {
		e.log.WithError(err).WithField("client_id", clientID).Warn("failed to send accept CONNACK")
		dt = connection.Error
		return
	}

	e.notifyClientConnected(clientID, adapter.Endpoint())

	if evicted != nil {
		go e.evictWithRetry(ctx, evicted)
	}

	dt, _ = conn.Run(ctx)
}

// evictWithRetry stops a takeover-displaced connection, retrying the
// adapter disconnect per SPEC_FULL.md §4.4's eviction backoff before giving
// up. This happens strictly after the gate in install has released, never
// blocking an unrelated client_id's handshake.
func (e *Engine) evictWithRetry(ctx context.Context, evicted *connection.Connection) {
	b := evictionBackoff()

	for attempt := 0; attempt < 3; attempt++ {
		err := evicted.Stop(ctx, e.opts.DefaultCommunicationTimeout, true)
		if err == nil {
			return
		}

		e.log.WithError(err).WithField("client_id", evicted.ClientID).Warn("takeover eviction attempt failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.Duration()):
		}
	}
}
