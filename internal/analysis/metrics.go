package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects engine counters
type Metrics struct {
	readings      *prometheus.CounterVec
	lateReadings  *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	ruleErrors    *prometheus.CounterVec
	notifyErrors  prometheus.Counter
	alertsDropped *prometheus.CounterVec
	windowSize    *prometheus.GaugeVec
}

// NewMetrics registers the engine metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const namespace = "roomwatch"

	return &Metrics{
		readings: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_total",
				Help:      "Total number of readings processed by device",
			},
			[]string{"device_id"},
		),
		lateReadings: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "late_readings_total",
				Help:      "Readings that arrived older than the newest stored reading",
			},
			[]string{"device_id"},
		),
		alerts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of alerts raised by device and kind",
			},
			[]string{"device_id", "kind"},
		),
		ruleErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_errors_total",
				Help:      "Rule evaluations that failed or were skipped",
			},
			[]string{"rule"},
		),
		notifyErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notify_errors_total",
				Help:      "Alerts the notifier failed to deliver",
			},
		),
		alertsDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_dropped_total",
				Help:      "Alerts dropped because the notifier queue was full",
			},
			[]string{"kind"},
		),
		windowSize: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "window_readings",
				Help:      "Readings currently retained per device and window",
			},
			[]string{"device_id", "window"},
		),
	}
}
