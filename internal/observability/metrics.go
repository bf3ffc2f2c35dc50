package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stays_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_quotes_total",
			Help: "Quotes served by outcome",
		},
		[]string{"result"},
	)

	CommitConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_commit_conflicts_total",
			Help: "Commits rejected because a concurrent reservation won the range",
		},
	)

	OutboxLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stays_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	CompletedReservations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_reservations_completed_total",
			Help: "Reservations marked completed by the completion sweep",
		},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			DBTxDuration,
			DBTxRetries,
			QuotesTotal,
			CommitConflicts,
			OutboxLag,
			RabbitPublishRetries,
			RateLimitExceeded,
			CompletedReservations,
		)
	})
}
