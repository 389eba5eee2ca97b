package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cardKeysCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardkeys_created_total",
			Help: "Card keys minted, by key type.",
		},
		[]string{"type"},
	)

	cardKeysBound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardkeys_bound_total",
			Help: "Card keys successfully bound to users, by key type.",
		},
		[]string{"type"},
	)

	cardKeysExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cardkeys_expired_total",
			Help: "Unused card keys transitioned to expired by the sweep.",
		},
	)

	cardKeysDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cardkeys_deleted_total",
			Help: "Unused card keys hard-deleted by admins.",
		},
	)

	bindLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardkey_bind_latency_ms",
			Help:    "Card key bind latency distribution in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

func init() {
	register(cardKeysCreated, cardKeysBound, cardKeysExpired, cardKeysDeleted, bindLatency)
}

func AddCardKeysCreated(keyType string, n int) {
	cardKeysCreated.WithLabelValues(keyType).Add(float64(n))
}

func IncCardKeysBound(keyType string) {
	cardKeysBound.WithLabelValues(keyType).Inc()
}

func AddCardKeysExpired(n int) {
	cardKeysExpired.Add(float64(n))
}

func IncCardKeysDeleted() {
	cardKeysDeleted.Inc()
}

func ObserveBindLatency(d time.Duration) {
	bindLatency.Observe(float64(d.Milliseconds()))
}
