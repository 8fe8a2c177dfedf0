package transport

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qingcloudhx/mqttcore/packet"
)

// WebSocketAdapter is an Adapter over a gorilla/websocket connection
// (ws:// and wss:// URLs). Each MQTT packet is sent as a single binary
// frame, which is how MQTT-over-WebSocket sub-protocol implementations
// typically frame the stream.
type WebSocketAdapter struct {
	conn     *websocket.Conn
	endpoint string
	version  byte
}

var _ Adapter = (*WebSocketAdapter)(nil)

// NewWebSocketAdapter wraps an established websocket connection.
func NewWebSocketAdapter(conn *websocket.Conn) *WebSocketAdapter {
	return &WebSocketAdapter{
		conn:     conn,
		endpoint: conn.RemoteAddr().String(),
	}
}

// Endpoint returns the remote address.
func (a *WebSocketAdapter) Endpoint() string {
	return a.endpoint
}

// ProtocolVersion returns the negotiated MQTT protocol version.
func (a *WebSocketAdapter) ProtocolVersion() byte {
	return a.version
}

// ReceivePacket reads one binary frame and decodes it as a single packet.
func (a *WebSocketAdapter) ReceivePacket(ctx context.Context, timeout time.Duration) (packet.Generic, error) {
	if timeout > 0 {
		_ = a.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = a.conn.SetReadDeadline(time.Time{})
	}

	mtype, data, err := a.conn.ReadMessage()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &Error{Code: NetworkError, Err: ErrReadTimeout}
		}
		return nil, &Error{Code: NetworkError, Err: err}
	}

	if mtype != websocket.BinaryMessage {
		return nil, &Error{Code: DetectionError, Err: ErrDetectionOverflow}
	}

	if len(data) < 1 {
		return nil, &Error{Code: DetectionError, Err: ErrDetectionOverflow}
	}

	mt := packet.DetectType(data[0])
	if !mt.Valid() {
		return nil, &Error{Code: DetectionError, Err: ErrDetectionOverflow}
	}

	pkt, err := packet.New(mt)
	if err != nil {
		return nil, &Error{Code: DetectionError, Err: err}
	}

	if _, err := pkt.Decode(data); err != nil {
		return nil, &Error{Code: DecodeError, Err: err}
	}

	if cp, ok := pkt.(*packet.ConnectPacket); ok {
		a.version = cp.ProtocolVersion
	}

	return pkt, nil
}

// SendPacket encodes pkt into a single binary frame.
func (a *WebSocketAdapter) SendPacket(ctx context.Context, pkt packet.Generic, timeout time.Duration) error {
	if timeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(timeout))
	} else {
		_ = a.conn.SetWriteDeadline(time.Time{})
	}

	buf := make([]byte, pkt.Len())
	n, err := pkt.Encode(buf)
	if err != nil {
		return &Error{Code: EncodeError, Err: err}
	}

	if err := a.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
		return &Error{Code: NetworkError, Err: err}
	}

	return nil
}

// Disconnect closes the websocket connection, sending a close frame first
// on a best-effort basis.
func (a *WebSocketAdapter) Disconnect(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	_ = a.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	return a.conn.Close()
}
