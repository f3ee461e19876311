package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	faultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultgate",
			Name:      "faults_total",
			Help:      "Fault occurrences submitted to the aggregator, partitioned by severity.",
		},
		[]string{"severity"},
	)

	suppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultgate",
			Name:      "faults_suppressed_total",
			Help:      "Fault occurrences folded into an open buffer window.",
		},
	)

	alertsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultgate",
			Name:      "alerts_emitted_total",
			Help:      "Alerts drained to a notification sink.",
		},
	)

	sweepEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultgate",
			Name:      "buffer_evictions_total",
			Help:      "Buffer entries evicted after their window elapsed.",
		},
	)

	rejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultgate",
			Name:      "faults_rejected_total",
			Help:      "Fault payloads rejected during parsing or validation.",
		},
	)

	analyzeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultgate",
			Name:      "analyze_seconds",
			Help:      "Device frequency analysis latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	analyzeLinesScanned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultgate",
			Name:      "analyze_lines_scanned",
			Help:      "Log lines read per device frequency analysis run.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		},
	)
)

// Register attaches faultgate collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		faultsTotal,
		suppressedTotal,
		alertsEmittedTotal,
		sweepEvictionsTotal,
		rejectedTotal,
		analyzeDurationSeconds,
		analyzeLinesScanned,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFault records one submitted occurrence and whether it was folded.
func ObserveFault(severity string, suppressed bool) {
	faultsTotal.WithLabelValues(severity).Inc()
	if suppressed {
		suppressedTotal.Inc()
	}
}

// ObserveRejected records a rejected fault payload.
func ObserveRejected() {
	rejectedTotal.Inc()
}

// AddAlertsEmitted records drained alerts.
func AddAlertsEmitted(n int) {
	if n > 0 {
		alertsEmittedTotal.Add(float64(n))
	}
}

// AddSweepEvictions records expired buffer entries removed by a sweep.
func AddSweepEvictions(n int) {
	if n > 0 {
		sweepEvictionsTotal.Add(float64(n))
	}
}

// ObserveAnalyze records one analysis run.
func ObserveAnalyze(duration time.Duration, linesScanned int) {
	if duration < 0 {
		duration = 0
	}
	analyzeDurationSeconds.Observe(duration.Seconds())
	analyzeLinesScanned.Observe(float64(linesScanned))
}
