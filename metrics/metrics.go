// Package metrics exposes the runtime's Prometheus instrumentation: reactor
// lifecycle counters, dispatch throughput, and step-lock turn timing. All
// metrics are registered on an injected *prometheus.Registry so tests can
// run many independent registries in parallel, mirroring the way the
// broker itself is injected rather than global (reactor.NewBroker).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the runtime touches.
type Metrics struct {
	ReactorsSpawned   prometheus.Counter
	ReactorsActive    prometheus.Gauge
	MessagesDispatched prometheus.Counter
	TurnsCompleted    prometheus.Counter
	TurnTimeouts      prometheus.Counter
}

// New registers and returns a fresh Metrics on reg. Passing a nil reg
// returns a Metrics backed by an unregistered, private registry, which is
// convenient for tests that don't care about scraping.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		ReactorsSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorium",
			Name:      "reactors_spawned_total",
			Help:      "Total number of reactors spawned on this broker.",
		}),
		ReactorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorium",
			Name:      "reactors_active",
			Help:      "Number of reactors currently registered on this broker.",
		}),
		MessagesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorium",
			Name:      "messages_dispatched_total",
			Help:      "Total number of messages dispatched through the broker.",
		}),
		TurnsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorium",
			Name:      "turns_completed_total",
			Help:      "Total number of step-lock turns completed.",
		}),
		TurnTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorium",
			Name:      "turn_timeouts_total",
			Help:      "Total number of player slots dropped due to turn timeout.",
		}),
	}

	reg.MustRegister(
		m.ReactorsSpawned,
		m.ReactorsActive,
		m.MessagesDispatched,
		m.TurnsCompleted,
		m.TurnTimeouts,
	)

	return m
}

// Noop returns a Metrics whose collectors are registered only on a fresh
// private registry that nothing scrapes, for call sites that don't want
// to think about a registry at all.
func Noop() *Metrics {
	return New(prometheus.NewRegistry())
}
