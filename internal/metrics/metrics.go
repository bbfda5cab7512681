// Package metrics defines the Prometheus collectors for the hat server. All
// collectors are registered on an injected registry so tests can build
// isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "phrasehat"

// Prune reasons used as the "reason" label of ClientsPruned.
const (
	ReasonClosed   = "closed"
	ReasonFull     = "full"
	ReasonRemoved  = "removed"
	ReasonShutdown = "shutdown"
)

// Metrics holds the collectors shared by the hub, the recorder and the HTTP layer.
type Metrics struct {
	StreamClients   prometheus.Gauge
	StreamsOpened   *prometheus.CounterVec
	ClientsPruned   *prometheus.CounterVec
	Broadcasts      prometheus.Counter
	Deliveries      prometheus.Counter
	PhrasesRecorded prometheus.Counter
	HatSize         prometheus.Gauge

	HTTP *HTTPMetrics

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them on reg. When reg is also a
// Gatherer it backs Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Number of subscriptions currently held by the registry.",
		}),
		StreamsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_opened_total",
			Help:      "Total streaming connections opened, by transport.",
		}, []string{"transport"}),
		ClientsPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_pruned_total",
			Help:      "Total subscriptions removed from the registry, by reason.",
		}, []string{"reason"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total broadcast passes over the registry.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total snapshots queued to subscribers.",
		}),
		PhrasesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phrases_recorded_total",
			Help:      "Total phrases appended to the hat.",
		}),
		HatSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hat_size",
			Help:      "Number of phrases currently in the hat.",
		}),
	}

	reg.MustRegister(
		m.StreamClients,
		m.StreamsOpened,
		m.ClientsPruned,
		m.Broadcasts,
		m.Deliveries,
		m.PhrasesRecorded,
		m.HatSize,
	)
	m.HTTP = NewHTTPMetrics(reg)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
