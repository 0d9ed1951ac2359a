// Package metrics exposes pipeline counters via Prometheus. The registry is
// explicitly constructed and carried by handle, never global.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

type Metrics struct {
	registry *prometheus.Registry

	polls       *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	pushes      *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aimonitor_entity_polls_total",
			Help: "Entity polls executed, by tier.",
		}, []string{"tier"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aimonitor_decisions_total",
			Help: "Pipeline decisions, by stage and outcome.",
		}, []string{"stage", "decision"}),
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aimonitor_pushes_total",
			Help: "Notification sends, by result.",
		}, []string{"result"}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aimonitor_fetch_errors_total",
			Help: "Upstream fetch failures, by source.",
		}, []string{"source"}),
	}
}

func (m *Metrics) EntityPolled(tier domain.Tier) {
	m.polls.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) Decision(stage, decision string) {
	m.decisions.WithLabelValues(stage, decision).Inc()
}

func (m *Metrics) Push(ok bool) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.pushes.WithLabelValues(result).Inc()
}

func (m *Metrics) FetchError(source string) {
	m.fetchErrors.WithLabelValues(source).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
