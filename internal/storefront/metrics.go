package storefront

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts catalog sync activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Ops        *prometheus.CounterVec
	Optimistic *prometheus.CounterVec
	Refetches  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_catalog_ops_total",
				Help: "Catalog operations by op and outcome.",
			},
			[]string{"op", "outcome"},
		),
		Optimistic: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_optimistic_writes_total",
				Help: "Local writes applied before the server confirmed them.",
			},
			[]string{"op"},
		),
		Refetches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "storefront_recovery_refetches_total",
				Help: "Full catalog reloads triggered by a failed write.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Ops, m.Optimistic, m.Refetches)
	}
	return m
}

func (m *Metrics) op(name string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Ops.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) optimistic(name string) {
	if m == nil {
		return
	}
	m.Optimistic.WithLabelValues(name).Inc()
}

func (m *Metrics) refetch() {
	if m == nil {
		return
	}
	m.Refetches.Inc()
}
