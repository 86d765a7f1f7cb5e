package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconcilePasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flotta_reconcile_passes_total",
		Help: "Total number of reconciliation passes run.",
	})

	SourceRecordsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flotta_source_records_read_total",
		Help: "Total source records fetched, labelled by collection key.",
	}, []string{"collection"})

	TimelineEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flotta_timeline_events_total",
		Help: "Total timeline events emitted across all aggregations.",
	})

	AlertCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flotta_alert_candidates_total",
		Help: "Total alert candidates generated, labelled by rule.",
	}, []string{"rule"})

	VisibleAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flotta_visible_alerts",
		Help: "Alerts currently visible after lifecycle filtering.",
	})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flotta_reconcile_duration_ms",
		Help:    "Reconciliation pass duration in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
