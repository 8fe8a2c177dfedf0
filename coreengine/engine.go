// Package coreengine wires the Session Registry, Connection Registry,
// Dispatch Queue and the pluggable policy hooks into the Client & Session
// Coordination Core: the Connect Handshake (C3), Takeover Coordinator (C4),
// Dispatch Loop (C6) and Cleanup Path (C7).
package coreengine

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/dispatch"
	"github.com/qingcloudhx/mqttcore/interceptor"
	"github.com/qingcloudhx/mqttcore/metrics"
	"github.com/qingcloudhx/mqttcore/retained"
	"github.com/qingcloudhx/mqttcore/session"
	"github.com/qingcloudhx/mqttcore/validator"
)

// DefaultCommunicationTimeout bounds packet read, send and disconnect calls
// when Options.DefaultCommunicationTimeout is zero.
const DefaultCommunicationTimeout = 30 * time.Second

// Options configures an Engine. Every pluggable hook is optional; spec.md
// §6 describes the behaviour when each is absent.
type Options struct {
	// ClientID is the sender id attributed to server-originated publishes
	// (spec.md §6: "client_id").
	ClientID string

	// DefaultCommunicationTimeout bounds packet read/send/disconnect.
	DefaultCommunicationTimeout time.Duration

	// EnablePersistentSessions, when false, deletes a client's session on
	// any non-takeover disconnect (spec.md §4.7 step 1).
	EnablePersistentSessions bool

	// SessionQueueSize bounds each Session's outbound queue.
	SessionQueueSize int

	// Validator runs once per handshake (spec.md §4.3 step 3). Nil means
	// validator.DefaultValidator.
	Validator validator.ConnectionValidator

	// AppInterceptor runs on every dispatched message (spec.md §4.6 step 2).
	AppInterceptor interceptor.ApplicationMessageInterceptor

	// UndeliveredInterceptor runs when a dispatch found zero subscribers
	// (spec.md §4.6 step 6).
	UndeliveredInterceptor interceptor.UndeliveredMessageInterceptor

	// MetricsRegisterer receives the engine's Prometheus collectors. Nil
	// disables metrics registration.
	MetricsRegisterer prometheus.Registerer

	// Logger is the structured logger every warning/error path writes
	// through (SPEC_FULL.md Ambient Stack). Nil uses logrus.StandardLogger.
	Logger *logrus.Logger
}

// Engine is the Client & Session Coordination Core.
type Engine struct {
	opts Options
	log  *logrus.Logger

	sessions    *session.Registry
	connections *connection.Registry
	queue       *dispatch.Queue
	retained    *retained.Store
	metrics     *metrics.Registry

	gate sync.Mutex // create_connection_gate, spec.md §4.4

	serverItemsMu sync.Mutex
	serverItems   map[string]any // ServerSessionItems, spec.md §3

	t tomb.Tomb
}

// evictionBackoff returns a fresh jpillora/backoff schedule for retrying a
// takeover eviction's Disconnect call, SPEC_FULL.md §4.4's eviction
// backoff.
func evictionBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    20 * time.Millisecond,
		Max:    1 * time.Second,
		Factor: 2,
	}
}

// New constructs an Engine. Call Start to begin the dispatch loop.
func New(opts Options) *Engine {
	if opts.DefaultCommunicationTimeout <= 0 {
		opts.DefaultCommunicationTimeout = DefaultCommunicationTimeout
	}
	if opts.Validator == nil {
		opts.Validator = validator.DefaultValidator{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	e := &Engine{
		opts:        opts,
		log:         opts.Logger,
		sessions:    session.NewRegistry(),
		connections: connection.NewRegistry(),
		queue:       dispatch.New(),
		retained:    retained.NewStore(),
		serverItems: make(map[string]any),
	}

	if opts.MetricsRegisterer != nil {
		e.metrics = metrics.NewRegistry(opts.MetricsRegisterer)
	}

	return e
}

// Start launches the dispatch loop (C6) under tomb supervision.
func (e *Engine) Start() {
	e.t.Go(func() error {
		e.dispatchLoop(e.dyingContext())
		return nil
	})
}

// dyingContext returns a context cancelled when the engine's tomb starts
// dying, the bridge between tomb.v2 and the context-shaped Dequeue/Adapter
// contracts.
func (e *Engine) dyingContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-e.t.Dying()
		cancel()
	}()
	return ctx
}

// Stop cancels the dispatch loop, closes the dispatch queue, and stops
// every live connection, then awaits completion (spec.md §5
// "Cancellation").
func (e *Engine) Stop() error {
	e.queue.Close()
	e.t.Kill(nil)

	var wg sync.WaitGroup
	for _, conn := range e.connections.Snapshot() {
		wg.Add(1)
		go func(c *connection.Connection) {
			defer wg.Done()
			_ = c.Stop(context.Background(), e.opts.DefaultCommunicationTimeout, false)
		}(conn)
	}
	wg.Wait()

	return e.t.Wait()
}

// serverSessionItems returns the process-wide ServerSessionItems map used
// for server-originated dispatch cycles.
func (e *Engine) serverSessionItems() map[string]any {
	e.serverItemsMu.Lock()
	defer e.serverItemsMu.Unlock()
	return e.serverItems
}
