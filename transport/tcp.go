package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/juju/ratelimit"

	"github.com/qingcloudhx/mqttcore/packet"
)

// DefaultReadRate is the default inbound byte rate allowed per TCPAdapter
// before reads start blocking. Bounds how fast a single slow or abusive
// client can push bytes at the Connect Handshake / Connection run loop.
const DefaultReadRate = 1 << 20 // 1 MiB/s

// TCPAdapter is an Adapter over a plain net.Conn (tcp:// URLs).
type TCPAdapter struct {
	conn     net.Conn
	reader   *bufio.Reader
	bucket   *ratelimit.Bucket
	endpoint string
	version  byte
}

var _ Adapter = (*TCPAdapter)(nil)

// NewTCPAdapter wraps conn. readRate bounds sustained inbound bytes/sec; a
// zero readRate disables limiting.
func NewTCPAdapter(conn net.Conn, readRate int64) *TCPAdapter {
	a := &TCPAdapter{
		conn:     conn,
		endpoint: conn.RemoteAddr().String(),
	}

	var r io.Reader = conn
	if readRate > 0 {
		a.bucket = ratelimit.NewBucketWithRate(float64(readRate), readRate)
		r = ratelimit.Reader(conn, a.bucket)
	}

	a.reader = bufio.NewReaderSize(r, 1024)

	return a
}

// Endpoint returns the remote address.
func (a *TCPAdapter) Endpoint() string {
	return a.endpoint
}

// ProtocolVersion returns the negotiated protocol version.
func (a *TCPAdapter) ProtocolVersion() byte {
	return a.version
}

// ReceivePacket reads and decodes exactly one packet.
func (a *TCPAdapter) ReceivePacket(ctx context.Context, timeout time.Duration) (packet.Generic, error) {
	if timeout > 0 {
		_ = a.conn.SetReadDeadline(time.Now().Add(timeout))
		defer a.conn.SetReadDeadline(time.Time{})
	}

	header, err := a.peekHeader()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &Error{Code: NetworkError, Err: ErrReadTimeout}
		}
		return nil, &Error{Code: NetworkError, Err: err}
	}

	mt := packet.DetectType(header[0])
	if !mt.Valid() {
		return nil, &Error{Code: DetectionError, Err: ErrDetectionOverflow}
	}

	total := headerTotalLen(header)

	buf := make([]byte, total)
	if _, err := io.ReadFull(a.reader, buf); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &Error{Code: NetworkError, Err: ErrReadTimeout}
		}
		return nil, &Error{Code: NetworkError, Err: err}
	}

	pkt, err := packet.New(mt)
	if err != nil {
		return nil, &Error{Code: DetectionError, Err: err}
	}

	if _, err := pkt.Decode(buf); err != nil {
		return nil, &Error{Code: DecodeError, Err: err}
	}

	if cp, ok := pkt.(*packet.ConnectPacket); ok {
		a.version = cp.ProtocolVersion
	}

	return pkt, nil
}

// peekHeader returns the full fixed header (type/flags byte plus the
// variable length remaining-length bytes) without consuming it from the
// underlying reader.
func (a *TCPAdapter) peekHeader() ([]byte, error) {
	for n := 2; n <= 5; n++ {
		b, err := a.reader.Peek(n)
		if err != nil {
			if n == 2 {
				return nil, err
			}
			// keep growing unless the peer simply hasn't sent more yet
			continue
		}

		if b[n-1]&0x80 == 0 {
			cp := make([]byte, n)
			copy(cp, b)
			return cp, nil
		}
	}

	return nil, ErrDetectionOverflow
}

// headerTotalLen decodes the remaining length encoded in header (as
// returned by peekHeader) and returns the total packet length including the
// fixed header.
func headerTotalLen(header []byte) int {
	rl := 0
	multiplier := 1

	for i := 1; i < len(header); i++ {
		rl += int(header[i]&0x7f) * multiplier
		multiplier *= 128
	}

	return len(header) + rl
}

// SendPacket encodes and writes pkt.
func (a *TCPAdapter) SendPacket(ctx context.Context, pkt packet.Generic, timeout time.Duration) error {
	if timeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer a.conn.SetWriteDeadline(time.Time{})
	}

	buf := make([]byte, pkt.Len())
	n, err := pkt.Encode(buf)
	if err != nil {
		return &Error{Code: EncodeError, Err: err}
	}

	if _, err := a.conn.Write(buf[:n]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &Error{Code: NetworkError, Err: ErrCommunicationTimeout}
		}
		return &Error{Code: NetworkError, Err: err}
	}

	return nil
}

// Disconnect closes the underlying connection.
func (a *TCPAdapter) Disconnect(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		_ = a.conn.SetDeadline(time.Now().Add(timeout))
	}

	return a.conn.Close()
}
