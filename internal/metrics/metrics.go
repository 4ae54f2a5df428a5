// Package metrics exposes Prometheus collectors for the dispatch pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaharia-lab/verimail/internal/eventbus"
)

const namespace = "verimail"

// Metrics holds the collectors updated by the dispatcher.
type Metrics struct {
	registry     *prometheus.Registry
	messages     *prometheus.CounterVec
	batches      prometheus.Counter
	sendDuration *prometheus.HistogramVec
	pruned       prometheus.Counter
}

// New creates the collectors on a private registry, alongside the standard
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Channel messages processed, by final stage and status.",
		}, []string{"stage", "status"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches handed to the dispatcher.",
		}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time spent in the mail transport per message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "result"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_log_pruned_rows_total",
			Help:      "Delivery log rows removed by the retention job.",
		}),
	}
	reg.MustRegister(
		m.messages,
		m.batches,
		m.sendDuration,
		m.pruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveMessage counts one processed message.
func (m *Metrics) ObserveMessage(stage, status string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(stage, status).Inc()
}

// ObserveBatch counts one batch.
func (m *Metrics) ObserveBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// ObserveSend records a transport call.
func (m *Metrics) ObserveSend(transport string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sendDuration.WithLabelValues(transport, result).Observe(d.Seconds())
}

// ObservePruned counts rows removed by the retention job.
func (m *Metrics) ObservePruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

// HandleEvent is an eventbus listener that turns bus events into metrics.
// Dispatch outcomes are counted by the dispatcher itself, so only
// housekeeping events are handled here.
func (m *Metrics) HandleEvent(e eventbus.Event) {
	if e.Type != eventbus.DeliveryLogPruned {
		return
	}
	n, err := strconv.ParseInt(e.Payload[eventbus.KeyRemoved], 10, 64)
	if err != nil {
		return
	}
	m.ObservePruned(n)
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
