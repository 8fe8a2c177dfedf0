// Package metrics wires the dispatch loop's observational counters into
// Prometheus, per SPEC_FULL.md §4.6. Nothing here affects control flow: a
// metrics.Registry that is never read still leaves the broker correct.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the dispatch loop and connection
// registry report against.
type Registry struct {
	// DispatchQueueDepth is sampled on each dequeue (C6 step 1).
	DispatchQueueDepth prometheus.Gauge

	// MessagesIntercepted counts every message that reached interception
	// (C6 step 2), regardless of outcome.
	MessagesIntercepted prometheus.Counter

	// MessagesDropped counts messages dropped before fan-out, labeled by
	// reason ("interceptor_veto", "nil_message").
	MessagesDropped *prometheus.CounterVec

	// MessagesRetained counts messages handed to the retained store
	// (C6 step 4).
	MessagesRetained prometheus.Counter

	// FanoutDeliveries counts individual session enqueue calls that
	// reported subscribed=true (C6 step 5).
	FanoutDeliveries prometheus.Counter

	// UndeliveredMessages counts dispatch cycles where the subscribed
	// count was zero (C6 step 6).
	UndeliveredMessages prometheus.Counter

	// ConnectedClients gauges the live Connection Registry size.
	ConnectedClients prometheus.Gauge
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		DispatchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mqttcore",
			Name:      "dispatch_queue_depth",
			Help:      "Number of EnqueuedMessage items waiting in the dispatch queue.",
		}),
		MessagesIntercepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttcore",
			Name:      "messages_intercepted_total",
			Help:      "Messages that reached the application message interceptor.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mqttcore",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped before fan-out, by reason.",
		}, []string{"reason"}),
		MessagesRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttcore",
			Name:      "messages_retained_total",
			Help:      "Messages handed to the retained message store.",
		}),
		FanoutDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttcore",
			Name:      "fanout_deliveries_total",
			Help:      "Session enqueue calls that reported subscribed=true.",
		}),
		UndeliveredMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttcore",
			Name:      "undelivered_messages_total",
			Help:      "Dispatch cycles where zero sessions were subscribed.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mqttcore",
			Name:      "connected_clients",
			Help:      "Live entries in the Connection Registry.",
		}),
	}

	reg.MustRegister(
		m.DispatchQueueDepth,
		m.MessagesIntercepted,
		m.MessagesDropped,
		m.MessagesRetained,
		m.FanoutDeliveries,
		m.UndeliveredMessages,
		m.ConnectedClients,
	)

	return m
}
