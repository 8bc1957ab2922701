package controller

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tair/product-console/internal/catalog/domain"
)

// Metrics is shared by every controller of the process. A nil *Metrics records nothing.
type Metrics struct {
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	actionSummary  *prometheus.SummaryVec
	eventsTotal    *prometheus.CounterVec
	confirmations  *prometheus.CounterVec
	exportRows     prometheus.Histogram
}

// NewMetrics creates and registers the controller metrics on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "product_console_actions_total",
				Help: "Total number of product console actions",
			},
			[]string{"action", "result"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "product_console_action_duration_seconds",
				Help:    "Duration of product console actions in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),
		// Summary metric for percentile calculation (p50, p90, p95, p99)
		actionSummary: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name: "product_console_action_duration_summary",
				Help: "Summary of action durations with percentiles",
				Objectives: map[float64]float64{
					0.5:  0.05,
					0.9:  0.01,
					0.95: 0.01,
					0.99: 0.001,
				},
				MaxAge: 10 * time.Minute,
			},
			[]string{"action"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "product_console_push_events_total",
				Help: "Push events by kind and what happened to them",
			},
			[]string{"event", "outcome"},
		),
		confirmations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "product_console_confirmations_total",
				Help: "Products confirmed or reopened for editing",
			},
			[]string{"direction"},
		),
		exportRows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "product_console_export_rows",
				Help:    "Number of product rows per export file",
				Buckets: prometheus.ExponentialBuckets(1, 4, 6),
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.actionsTotal, m.actionDuration, m.actionSummary,
		m.eventsTotal, m.confirmations, m.exportRows,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register controller metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeAction(action string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(domain.KindOf(err))
	}
	elapsed := time.Since(start).Seconds()
	m.actionsTotal.WithLabelValues(action, result).Inc()
	m.actionDuration.WithLabelValues(action).Observe(elapsed)
	m.actionSummary.WithLabelValues(action).Observe(elapsed)
}

func (m *Metrics) observeEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) observeConfirmation(confirmed bool) {
	if m == nil {
		return
	}
	direction := "confirmed"
	if !confirmed {
		direction = "reopened"
	}
	m.confirmations.WithLabelValues(direction).Inc()
}

func (m *Metrics) observeExport(rows int) {
	if m == nil {
		return
	}
	m.exportRows.Observe(float64(rows))
}
