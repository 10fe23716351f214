// Package metrics exposes Prometheus collectors for the booking assistant.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonbot"

var (
	once sync.Once

	messagesHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Count of user messages by resolved intent.",
		},
		[]string{"intent"},
	)

	commitOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commit_total",
			Help:      "Count of booking commit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancelled_total",
			Help:      "Count of appointments cancelled by users.",
		},
	)

	sessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Count of sessions cleared by the inactivity timer.",
		},
	)

	pendingTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_timers_pending",
			Help:      "Current number of scheduled inactivity timers.",
		},
	)

	configReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salon_config_reloads_total",
			Help:      "Count of salon config reloads by outcome.",
		},
		[]string{"outcome"},
	)

	nluDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nlu_extract_duration_seconds",
			Help:      "Time spent in NLU extraction.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10},
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(messagesHandled, commitOutcomes, bookingCancelled, sessionsExpired, pendingTimers, configReloads, nluDuration)
	})
}

func IncMessage(intent string) {
	messagesHandled.WithLabelValues(intent).Inc()
}

// IncCommit records a commit outcome: "confirmed", a failure kind, or "error".
func IncCommit(outcome string) {
	commitOutcomes.WithLabelValues(outcome).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncSessionExpired() {
	sessionsExpired.Inc()
}

func SetPendingTimers(n int) {
	pendingTimers.Set(float64(n))
}

// IncConfigReload records a salon config reload as "applied" or "rejected".
func IncConfigReload(outcome string) {
	configReloads.WithLabelValues(outcome).Inc()
}

// ObserveNLU records an extraction duration with result "ok", "timeout" or "error".
func ObserveNLU(result string, d time.Duration) {
	nluDuration.WithLabelValues(result).Observe(d.Seconds())
}
