package chatsync

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's prometheus collectors.
type Metrics struct {
	Sends           *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	MarkReadFailed  prometheus.Counter
	PendingMessages prometheus.Gauge
	ReactionToggles *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Message sends by outcome",
		}, []string{"outcome"}), // "confirmed", "failed", "skipped"
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_refresh_total",
			Help: "Conversation list refreshes by outcome",
		}, []string{"outcome"}), // "applied", "unchanged", "stale", "failed"
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatsync_refresh_duration_seconds",
			Help:    "Time taken to fetch the conversation list",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MarkReadFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_mark_read_failures_total",
			Help: "Mark-as-read calls that failed after the local unread count was zeroed",
		}),
		PendingMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_pending_messages",
			Help: "Optimistic messages awaiting server confirmation",
		}),
		ReactionToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_reaction_toggles_total",
			Help: "Local reaction toggles by resulting action",
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sends, m.Refreshes, m.RefreshDuration, m.MarkReadFailed, m.PendingMessages, m.ReactionToggles)
	}
	return m
}
