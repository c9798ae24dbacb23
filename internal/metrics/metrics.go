// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwipesTotal counts recorded swipe decisions by decision.
	SwipesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_swipes_total",
		Help: "Total swipe decisions recorded",
	}, []string{"decision"})

	// MatchesTotal counts newly created connections.
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campus_matches_total",
		Help: "Total mutual-like connections created",
	})

	// MessagesSent counts persisted messages by kind (direct, group).
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_messages_sent_total",
		Help: "Total messages persisted",
	}, []string{"kind"})

	// SendRejected counts sends rejected before persistence, by reason.
	SendRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_send_rejected_total",
		Help: "Total sends rejected during validation",
	}, []string{"kind", "reason"})

	// BroadcastFailures counts persisted messages whose live fan-out failed.
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campus_broadcast_failures_total",
		Help: "Total broadcast failures after a successful persist",
	})

	LiveEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_live_events_dropped_total",
		Help: "Total live events dropped on a full or closed outbox",
	}, []string{"reason"})

	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campus_live_connections",
		Help: "Number of registered live connections",
	})

	RecommendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campus_recommend_latency_seconds",
		Help:    "Recommendation computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// ObserveSince records the time elapsed since start on h. Use with defer.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
