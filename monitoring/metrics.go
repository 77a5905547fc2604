package monitoring

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	paymentAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_attempts_total",
			Help: "Payment submission attempts by terminal outcome",
		},
		[]string{"outcome", "category"},
	)

	submissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_submission_duration_seconds",
			Help:    "Duration of the remote payment submit call",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"status"},
	)

	openAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_open_attempts_total",
			Help: "Attempts currently in flight or left pending",
		},
	)

	redemptionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_checks_total",
			Help: "Redemption eligibility checks by result",
		},
		[]string{"eligible"},
	)
)

// ObserveAttemptOutcome counts one terminal (or pending) attempt outcome.
func ObserveAttemptOutcome(outcome, category string) {
	paymentAttempts.WithLabelValues(outcome, category).Inc()
}

// ObserveSubmission records the latency of one remote submit call.
func ObserveSubmission(status string, d time.Duration) {
	submissionDuration.WithLabelValues(status).Observe(d.Seconds())
}

func AttemptOpened() {
	openAttempts.Inc()
}

func AttemptClosed() {
	openAttempts.Dec()
}

// ObserveRedemptionCheck counts one eligibility check.
func ObserveRedemptionCheck(eligible bool) {
	label := "no"
	if eligible {
		label = "yes"
	}
	redemptionChecks.WithLabelValues(label).Inc()
}

// StartMetricsServer exposes /metrics on its own port.
func StartMetricsServer(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()
}
