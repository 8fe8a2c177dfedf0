// Package connection implements the Connection Registry (C2) of spec.md
// §4.2 and the Connection entity itself: one live network attachment bound
// to a channel adapter and a Session.
package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/registry"
	"github.com/qingcloudhx/mqttcore/session"
	"github.com/qingcloudhx/mqttcore/transport"
)

// Status is a Connection's lifecycle state, exposed by get_client_status
// (SPEC_FULL.md §6 addition).
type Status int32

const (
	// Connecting is set from construction until the run loop starts.
	Connecting Status = iota
	// Running is set once the connection's packet loop is active.
	Running
	// Closing is set once Stop has been called but teardown is in flight.
	Closing
	// Closed is the terminal state.
	Closed
)

// String renders the status for logging and get_client_status.
func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// DisconnectType classifies why a Connection's cleanup path ran, as
// consumed by client_disconnected notifications (spec.md §4.7).
type DisconnectType int

const (
	// Normal means the peer sent a DISCONNECT.
	Normal DisconnectType = iota
	// Error means the connection's run loop or adapter faulted.
	Error
	// Timeout means the peer stopped responding within
	// default_communication_timeout.
	Timeout
	// Takeover means a new Connection for the same client_id evicted this
	// one (spec.md §4.4/§4.7).
	Takeover
)

func (dt DisconnectType) String() string {
	switch dt {
	case Normal:
		return "normal"
	case Error:
		return "error"
	case Timeout:
		return "timeout"
	case Takeover:
		return "takeover"
	}
	return "unknown"
}

// PublishSink receives a Message read off this Connection's adapter, to be
// handed to the shared Dispatch Queue (C5). The sender is the Connection
// itself, per spec.md §3's EnqueuedMessage shape.
type PublishSink func(msg *packet.Message, sender *Connection)

// Connection is one live network attachment, spec.md §3.
type Connection struct {
	ClientID        string
	Adapter         transport.Adapter
	Session         *session.Session
	Endpoint        string
	ProtocolVersion byte

	status atomic.Int32

	publishSink PublishSink
	readTimeout time.Duration

	stopOnce     chan struct{}
	stopOnceGate sync.Once // guards closing stopOnce against concurrent Stop calls
	stopErr      chan error
	runResult    chan error
	killType     atomic.Value // DisconnectType, set just before stopOnce fires
}

// New constructs a Connection bound to sess, ready to Run.
func New(clientID string, adapter transport.Adapter, sess *session.Session, readTimeout time.Duration, sink PublishSink) *Connection {
	c := &Connection{
		ClientID:    clientID,
		Adapter:     adapter,
		Session:     sess,
		Endpoint:    adapter.Endpoint(),
		readTimeout: readTimeout,
		publishSink: sink,
		stopOnce:    make(chan struct{}),
		stopErr:     make(chan error, 1),
		runResult:   make(chan error, 1),
	}
	c.status.Store(int32(Connecting))
	return c
}

// Status returns the connection's current lifecycle state.
func (c *Connection) Status() Status {
	return Status(c.status.Load())
}

// Run drains the adapter for inbound packets and the session's outbox for
// outbound ones until Stop is called or the adapter faults. It returns the
// DisconnectType cleanup should use and the fault that caused the exit (nil
// for a graceful DISCONNECT or a caller-initiated Stop).
func (c *Connection) Run(ctx context.Context) (DisconnectType, error) {
	c.status.Store(int32(Running))
	defer c.status.Store(int32(Closed))

	readerDone := make(chan struct{})
	var readErr error
	var readType DisconnectType

	go func() {
		defer close(readerDone)
		readType, readErr = c.readLoop(ctx)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx, readerDone)
	}()

	var dt DisconnectType
	var err error
	select {
	case <-readerDone:
		dt, err = readType, readErr
	case <-c.stopOnce:
		if v, ok := c.killType.Load().(DisconnectType); ok {
			dt = v
		} else {
			dt = Normal
		}
	}

	<-writerDone

	return dt, err
}

func (c *Connection) readLoop(ctx context.Context) (DisconnectType, error) {
	for {
		select {
		case <-c.stopOnce:
			return Normal, nil
		default:
		}

		pkt, err := c.Adapter.ReceivePacket(ctx, c.readTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrReadTimeout) {
				return Timeout, err
			}
			return Error, err
		}

		switch p := pkt.(type) {
		case *packet.DisconnectPacket:
			return Normal, nil
		case *packet.PublishPacket:
			if c.publishSink != nil {
				msg := p.Message
				c.publishSink(&msg, c)
			}
		}
	}
}

func (c *Connection) writeLoop(ctx context.Context, readerDone <-chan struct{}) {
	for {
		select {
		case <-c.stopOnce:
			return
		case <-readerDone:
			return
		case msg, ok := <-c.Session.Outbox():
			if !ok {
				return
			}

			pub := packet.NewPublishPacket()
			pub.Message = *msg

			_ = c.Adapter.SendPacket(ctx, pub, c.readTimeout)
		}
	}
}

// Stop signals the run loop to exit and disconnects the adapter. isTakeover
// marks the resulting DisconnectType as Takeover rather than Normal, per
// spec.md §4.4 step 3 / §4.7.
func (c *Connection) Stop(ctx context.Context, timeout time.Duration, isTakeover bool) error {
	c.status.Store(int32(Closing))

	dt := Normal
	if isTakeover {
		dt = Takeover
	}
	c.killType.Store(dt)

	c.stopOnceGate.Do(func() {
		close(c.stopOnce)
	})

	return c.Adapter.Disconnect(ctx, timeout)
}

// Registry is the Connection Registry, C2 of spec.md §4.2.
type Registry struct {
	reg *registry.Registry[*Connection]
}

// NewRegistry creates an empty Connection Registry.
func NewRegistry() *Registry {
	return &Registry{reg: registry.New[*Connection]()}
}

// Replace installs newConn unconditionally, returning whatever connection
// previously occupied clientID — the `existing_connection` of spec.md
// §4.4 step 2.
func (r *Registry) Replace(clientID string, newConn *Connection) (*Connection, bool) {
	return r.reg.Replace(clientID, newConn)
}

// TryRemove removes and returns the Connection for clientID, if any.
func (r *Registry) TryRemove(clientID string) (*Connection, bool) {
	return r.reg.TryRemove(clientID)
}

// Get returns the Connection for clientID without mutating the registry.
func (r *Registry) Get(clientID string) (*Connection, bool) {
	return r.reg.Get(clientID)
}

// Snapshot returns every Connection present at some point during the call.
func (r *Registry) Snapshot() []*Connection {
	return r.reg.Snapshot()
}

// Len returns the approximate number of live connections.
func (r *Registry) Len() int {
	return r.reg.Len()
}
