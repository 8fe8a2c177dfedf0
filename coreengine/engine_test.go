package coreengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/dispatch"
	"github.com/qingcloudhx/mqttcore/interceptor"
	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/session"
	"github.com/qingcloudhx/mqttcore/validator"
)

// newSessionFactory returns a Registry.GetOrInstall factory constructing a
// fresh Session with no seeded items.
func newSessionFactory(clientID string, queueSize int) func() *session.Session {
	return func() *session.Session { return session.New(clientID, nil, queueSize) }
}

// enqueued builds an EnqueuedMessage for a direct dispatchOne call.
func enqueued(msg *packet.Message, sender *connection.Connection) dispatch.EnqueuedMessage {
	return dispatch.EnqueuedMessage{Message: msg, Sender: sender}
}

// fakeAdapter is an in-memory transport.Adapter, the same shape as
// connection_test.go's, duplicated here because the two packages must not
// share unexported test helpers.
type fakeAdapter struct {
	mu       sync.Mutex
	inbox    chan packet.Generic
	sent     []packet.Generic
	closed   bool
	endpoint string
	version  byte
}

func newFakeAdapter(endpoint string) *fakeAdapter {
	return &fakeAdapter{inbox: make(chan packet.Generic, 16), endpoint: endpoint}
}

func (a *fakeAdapter) ReceivePacket(ctx context.Context, timeout time.Duration) (packet.Generic, error) {
	select {
	case pkt, ok := <-a.inbox:
		if !ok {
			return nil, errAdapterClosed
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

func (a *fakeAdapter) Endpoint() string      { return a.endpoint }
func (a *fakeAdapter) ProtocolVersion() byte { return a.version }

func (a *fakeAdapter) lastConnack() *packet.ConnackPacket {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.sent) - 1; i >= 0; i-- {
		if ack, ok := a.sent[i].(*packet.ConnackPacket); ok {
			return ack
		}
	}
	return nil
}

type adapterClosedError struct{}

func (adapterClosedError) Error() string { return "fake adapter closed" }

var errAdapterClosed = adapterClosedError{}

func testEngine(opts Options) *Engine {
	if opts.SessionQueueSize == 0 {
		opts.SessionQueueSize = 4
	}
	if opts.DefaultCommunicationTimeout == 0 {
		opts.DefaultCommunicationTimeout = time.Second
	}
	return New(opts)
}

func connectPacket(clientID string, clean bool) *packet.ConnectPacket {
	c := packet.NewConnectPacket()
	c.ClientID = clientID
	c.CleanSession = clean
	return c
}

// --- S1: clean-session reconnect discards prior subscriptions ---

func TestCleanSessionReconnectReplacesSession(t *testing.T) {
	e := testEngine(Options{})

	adapter1 := newFakeAdapter("a1")
	conn1, _, evicted := e.install(connectPacket("alice", false), validator.NewContext(connectPacket("alice", false), "a1"), "alice", adapter1)
	require.Nil(t, evicted)
	conn1.Session.Subscribe("t/#", packet.QOSAtMostOnce)

	first, ok := e.sessions.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 1, first.SubscriptionCount())

	adapter2 := newFakeAdapter("a2")
	_, sessionPresent, evicted2 := e.install(connectPacket("alice", true), validator.NewContext(connectPacket("alice", true), "a2"), "alice", adapter2)
	require.NotNil(t, evicted2)
	assert.Same(t, conn1, evicted2)
	assert.False(t, sessionPresent)

	second, ok := e.sessions.Get("alice")
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, 0, second.SubscriptionCount())
}

// --- S2: takeover evicts the prior connection, preserves the session ---

func TestTakeoverEvictsPriorConnectionPreservesSession(t *testing.T) {
	e := testEngine(Options{})

	adapter1 := newFakeAdapter("bob-1")
	conn1, _, evicted := e.install(connectPacket("bob", false), validator.NewContext(connectPacket("bob", false), "bob-1"), "bob", adapter1)
	require.Nil(t, evicted)

	adapter2 := newFakeAdapter("bob-2")
	conn2, sessionPresent, evicted2 := e.install(connectPacket("bob", false), validator.NewContext(connectPacket("bob", false), "bob-2"), "bob", adapter2)
	require.NotNil(t, evicted2)
	assert.Same(t, conn1, evicted2)
	assert.True(t, sessionPresent)
	assert.Same(t, conn1.Session, conn2.Session)

	got, ok := e.connections.Get("bob")
	require.True(t, ok)
	assert.Same(t, conn2, got)

	sess, ok := e.sessions.Get("bob")
	require.True(t, ok)
	assert.Same(t, conn1.Session, sess)
}

func TestHandleClientConnectionTakeoverRunsEvictedCleanupAsTakeover(t *testing.T) {
	e := testEngine(Options{})
	ctx := context.Background()

	adapter1 := newFakeAdapter("carol-1")
	adapter1.inbox <- connectPacket("carol", false)

	firstDone := make(chan struct{})
	go func() {
		e.HandleClientConnection(ctx, adapter1)
		close(firstDone)
	}()

	require.Eventually(t, func() bool {
		_, ok := e.GetClientStatus("carol")
		return ok
	}, time.Second, time.Millisecond)

	adapter2 := newFakeAdapter("carol-2")
	adapter2.inbox <- connectPacket("carol", false)

	secondDone := make(chan struct{})
	go func() {
		e.HandleClientConnection(ctx, adapter2)
		close(secondDone)
	}()

	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("evicted connection's handle_attachment never returned")
	}

	status, ok := e.GetClientStatus("carol")
	require.True(t, ok)
	assert.Equal(t, "carol-2", status.Endpoint)

	adapter2.inbox <- packet.NewDisconnectPacket()
	<-secondDone
}

// --- S3: validator rejection sends CONNACK, installs nothing ---

func TestValidatorRejectSendsConnackNoInstall(t *testing.T) {
	rejecting := validator.ConnectionValidator(rejectingValidator{})
	e := testEngine(Options{Validator: rejecting})

	adapter := newFakeAdapter("x")
	adapter.inbox <- connectPacket("x", false)

	e.HandleClientConnection(context.Background(), adapter)

	ack := adapter.lastConnack()
	require.NotNil(t, ack)
	assert.Equal(t, packet.NotAuthorized, ack.ReturnCode)

	_, ok := e.sessions.Get("x")
	assert.False(t, ok)
	_, ok = e.connections.Get("x")
	assert.False(t, ok)
}

type rejectingValidator struct{}

func (rejectingValidator) Validate(ctx context.Context, vctx *validator.Context) error {
	vctx.ReasonCode = packet.NotAuthorized
	return nil
}

// --- S4: v5 CONNECT with empty client id adopts the assigned identifier ---

func TestV5EmptyClientIDAdoptsAssignedIdentifier(t *testing.T) {
	assigning := validator.ConnectionValidator(assigningValidator{id: "gen-7"})
	e := testEngine(Options{Validator: assigning, EnablePersistentSessions: true})

	adapter := newFakeAdapter("y")
	connect := packet.NewConnectPacket()
	connect.ProtocolVersion = 5
	connect.ClientID = ""
	adapter.inbox <- connect
	adapter.inbox <- packet.NewDisconnectPacket()

	e.HandleClientConnection(context.Background(), adapter)

	ack := adapter.lastConnack()
	require.NotNil(t, ack)
	assert.Equal(t, packet.Success, ack.ReturnCode)

	_, ok := e.sessions.Get("gen-7")
	assert.True(t, ok)
}

type assigningValidator struct{ id string }

func (v assigningValidator) Validate(ctx context.Context, vctx *validator.Context) error {
	vctx.AssignedClientIdentifier = v.id
	return nil
}

// --- S5: fan-out + retain; undelivered interceptor not invoked when someone is subscribed ---

func TestFanOutAndRetainOnlyAfterAcceptance(t *testing.T) {
	e := testEngine(Options{})

	a, _ := e.sessions.GetOrInstall("a", newSessionFactory("a", e.opts.SessionQueueSize))
	a.Subscribe("news", packet.QOSAtMostOnce)
	e.sessions.GetOrInstall("b", newSessionFactory("b", e.opts.SessionQueueSize))

	undeliveredCalls := 0
	e.opts.UndeliveredInterceptor = interceptor.UndeliveredMessageInterceptorFunc(func(ctx context.Context, ictx *interceptor.Context) error {
		undeliveredCalls++
		return nil
	})

	msg := &packet.Message{Topic: "news", Payload: []byte("hi"), Retain: true}
	e.dispatchOne(context.Background(), enqueued(msg, nil))

	assert.Equal(t, 1, e.retained.Len())
	assert.Equal(t, 0, undeliveredCalls)

	bSess, _ := e.sessions.Get("b")
	subscribed, _ := bSess.Enqueue(&packet.Message{Topic: "news"}, "server", false)
	assert.False(t, subscribed)
}

// --- S6: zero subscribers invokes the undelivered interceptor exactly once ---

func TestZeroDeliveryInvokesUndeliveredInterceptor(t *testing.T) {
	e := testEngine(Options{ClientID: "broker"})

	var gotSender string
	e.opts.UndeliveredInterceptor = interceptor.UndeliveredMessageInterceptorFunc(func(ctx context.Context, ictx *interceptor.Context) error {
		gotSender = ictx.SenderClientID
		return nil
	})

	fake := connection.New("c", newFakeAdapter("c"), newSessionFactory("c", 4)(), 0, nil)
	e.dispatchOne(context.Background(), enqueued(&packet.Message{Topic: "orphan"}, fake))

	assert.Equal(t, "c", gotSender)
}

// --- Interceptor veto: no delivery, no retain ---

func TestInterceptorVetoDropsMessageBeforeRetain(t *testing.T) {
	e := testEngine(Options{})
	e.sessions.GetOrInstall("a", newSessionFactory("a", 4))
	sess, _ := e.sessions.Get("a")
	sess.Subscribe("news", packet.QOSAtMostOnce)

	e.opts.AppInterceptor = interceptor.ApplicationMessageInterceptorFunc(func(ctx context.Context, ictx *interceptor.Context) error {
		ictx.AcceptPublish = false
		return nil
	})

	e.dispatchOne(context.Background(), enqueued(&packet.Message{Topic: "news", Retain: true}, nil))

	assert.Equal(t, 0, e.retained.Len())
	fill := sess.FillStatus()
	assert.Equal(t, float64(0), fill)
}

// --- Subscribe/Unsubscribe admin surface: unknown client id is a caller error ---

func TestSubscribeUnknownClientIsCallerError(t *testing.T) {
	e := testEngine(Options{})
	err := e.Subscribe("ghost", "a/b", packet.QOSAtMostOnce)
	assert.ErrorIs(t, err, ErrUnknownClient)
}

// --- End to end: Start/Stop drives the real dispatch loop off the queue ---

func TestEngineDispatchesServerOriginatedMessageEndToEnd(t *testing.T) {
	e := testEngine(Options{ClientID: "server"})
	e.sessions.GetOrInstall("sub", newSessionFactory("sub", 4))
	sess, _ := e.sessions.Get("sub")
	sess.Subscribe("alerts", packet.QOSAtMostOnce)

	e.Start()
	defer e.Stop()

	e.DispatchApplicationMessage(&packet.Message{Topic: "alerts", Payload: []byte("fire")})

	require.Eventually(t, func() bool {
		select {
		case msg := <-sess.Outbox():
			return msg.Topic == "alerts"
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
