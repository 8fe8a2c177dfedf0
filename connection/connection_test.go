package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/session"
)

// fakeAdapter is an in-memory transport.Adapter for exercising Connection's
// run loop without a real socket.
type fakeAdapter struct {
	mu      sync.Mutex
	inbox   chan packet.Generic
	sent    []packet.Generic
	closed  bool
	version byte
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{inbox: make(chan packet.Generic, 16)}
}

func (a *fakeAdapter) ReceivePacket(ctx context.Context, timeout time.Duration) (packet.Generic, error) {
	select {
	case pkt, ok := <-a.inbox:
		if !ok {
			return nil, &disconnectedError{}
		}
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *fakeAdapter) SendPacket(ctx context.Context, pkt packet.Generic, timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, pkt)
	return nil
}

func (a *fakeAdapter) Disconnect(ctx context.Context, timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.inbox)
	}
	return nil
}

func (a *fakeAdapter) Endpoint() string      { return "fake://test" }
func (a *fakeAdapter) ProtocolVersion() byte { return a.version }
func (a *fakeAdapter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

type disconnectedError struct{}

func (e *disconnectedError) Error() string { return "adapter closed" }

func TestConnectionForwardsPublishToSink(t *testing.T) {
	adapter := newFakeAdapter()
	sess := session.New("alice", nil, 4)

	received := make(chan *packet.Message, 1)
	sink := func(msg *packet.Message, sender *Connection) {
		received <- msg
	}

	conn := New("alice", adapter, sess, 0, sink)

	pub := packet.NewPublishPacket()
	pub.Message = packet.Message{Topic: "t", Payload: []byte("hi")}
	adapter.inbox <- pub

	done := make(chan struct{})
	go func() {
		conn.Run(context.Background())
		close(done)
	}()

	select {
	case msg := <-received:
		assert.Equal(t, "t", msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("publish sink never invoked")
	}

	_ = conn.Stop(context.Background(), time.Second, false)
	<-done
}

func TestConnectionWriteLoopDeliversSessionOutbox(t *testing.T) {
	adapter := newFakeAdapter()
	sess := session.New("bob", nil, 4)
	sess.Subscribe("news", packet.QOSAtMostOnce)

	conn := New("bob", adapter, sess, 0, nil)

	done := make(chan struct{})
	go func() {
		conn.Run(context.Background())
		close(done)
	}()

	subscribed, delivered := sess.Enqueue(&packet.Message{Topic: "news", Payload: []byte("x")}, "publisher", false)
	require.True(t, subscribed)
	require.True(t, delivered)

	require.Eventually(t, func() bool {
		return adapter.sentCount() == 1
	}, time.Second, time.Millisecond)

	_ = conn.Stop(context.Background(), time.Second, false)
	<-done
}

func TestConnectionStopReportsTakeover(t *testing.T) {
	adapter := newFakeAdapter()
	sess := session.New("carol", nil, 4)
	conn := New("carol", adapter, sess, 0, nil)

	dtCh := make(chan DisconnectType, 1)
	go func() {
		dt, _ := conn.Run(context.Background())
		dtCh <- dt
	}()

	require.Eventually(t, func() bool {
		return conn.Status() == Running
	}, time.Second, time.Millisecond)

	_ = conn.Stop(context.Background(), time.Second, true)

	select {
	case dt := <-dtCh:
		assert.Equal(t, Takeover, dt)
	case <-time.After(time.Second):
		t.Fatal("Run never returned")
	}

	assert.Equal(t, Closed, conn.Status())
}

func TestRegistryReplaceReturnsPrevious(t *testing.T) {
	r := NewRegistry()

	first := New("dan", newFakeAdapter(), session.New("dan", nil, 4), 0, nil)
	r.Replace("dan", first)

	second := New("dan", newFakeAdapter(), session.New("dan", nil, 4), 0, nil)
	prev, had := r.Replace("dan", second)

	require.True(t, had)
	assert.Same(t, first, prev)

	got, ok := r.Get("dan")
	require.True(t, ok)
	assert.Same(t, second, got)
}
