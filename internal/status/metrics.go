package status

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"karmabot/internal/domain"
	"karmabot/internal/pacing"
)

// Metrics records outcomes and pacing decisions as Prometheus series on a
// private registry.
type Metrics struct {
	reg *prometheus.Registry

	actions *prometheus.CounterVec
	cycles  *prometheus.CounterVec
	delays  *prometheus.HistogramVec

	lastCycle atomic.Int64 // unix nanos
}

func NewMetrics(q QuotaSource) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "karmabot",
			Name:      "actions_total",
			Help:      "Action attempts by kind, status and skip reason. Comment cycles count once per community.",
		}, []string{"kind", "status", "reason"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "karmabot",
			Name:      "cycles_total",
			Help:      "Completed cycles by overall status.",
		}, []string{"status"}),
		delays: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "karmabot",
			Name:      "pacing_delay_seconds",
			Help:      "Chosen pauses between cycles.",
			Buckets:   []float64{60, 300, 600, 1200, 1800, 3600, 14400, 21600, 28800},
		}, []string{"regime"}),
	}
	m.reg.MustRegister(
		m.actions, m.cycles, m.delays,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if q != nil {
		m.reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "karmabot",
				Name:      "daily_actions",
				Help:      "Action attempts granted today.",
			}, func() float64 { return float64(q.Snapshot().DailyCount) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "karmabot",
				Name:      "max_daily_actions",
				Help:      "Configured daily action limit.",
			}, func() float64 { return float64(q.Snapshot().MaxDailyActions) }),
		)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) RecordOutcome(_ context.Context, o domain.Outcome) {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	m.lastCycle.Store(at.UnixNano())
	m.cycles.WithLabelValues(string(o.Status)).Inc()

	units := o.Children
	if len(units) == 0 {
		units = []domain.Outcome{o}
	}
	for _, u := range units {
		kind := u.Kind
		if kind == "" {
			kind = o.Kind
		}
		m.actions.WithLabelValues(string(kind), string(u.Status), string(u.Reason)).Inc()
	}
}

func (m *Metrics) ObserveDelay(d pacing.Delay) {
	m.delays.WithLabelValues(string(d.Regime)).Observe(d.Duration.Seconds())
}

// LastCycle returns when the last cycle was recorded (zero if none).
func (m *Metrics) LastCycle() time.Time {
	n := m.lastCycle.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
