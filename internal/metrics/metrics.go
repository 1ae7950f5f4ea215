package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/playroomlabs/partyhost/internal/engine/events"
)

// Metrics holds the Prometheus collectors for the host process.
type Metrics struct {
	MatchesStarted   prometheus.Counter
	MatchesCompleted prometheus.Counter
	MatchesAbandoned *prometheus.CounterVec
	BlocksStarted    *prometheus.CounterVec
	PlaysSelected    *prometheus.CounterVec
	MatchSeconds     prometheus.Histogram
	NarrationSeconds prometheus.Counter
	SystemErrors     *prometheus.CounterVec
}

// New registers the collectors on a registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MatchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "partyhost_matches_started_total",
			Help: "Matches started.",
		}),
		MatchesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "partyhost_matches_completed_total",
			Help: "Matches that ran their full pattern.",
		}),
		MatchesAbandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "partyhost_matches_abandoned_total",
			Help: "Matches ended before completion, by reason.",
		}, []string{"reason"}),
		BlocksStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "partyhost_blocks_started_total",
			Help: "Pattern blocks started, by block type.",
		}, []string{"block_type"}),
		PlaysSelected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "partyhost_plays_selected_total",
			Help: "Plays selected, by round type.",
		}, []string{"round_type"}),
		MatchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "partyhost_match_duration_seconds",
			Help:    "Wall clock duration of completed matches.",
			Buckets: prometheus.ExponentialBuckets(60, 2, 8),
		}),
		NarrationSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "partyhost_narration_seconds_total",
			Help: "Seconds spent performing scripts.",
		}),
		SystemErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "partyhost_system_errors_total",
			Help: "Errors surfaced on the system error topic, by component.",
		}, []string{"component"}),
	}
}

// Observe subscribes the collectors to the engine event feed.
func (m *Metrics) Observe(bus *events.Bus) {
	bus.Subscribe(events.TopicMatchStarted, func(events.Event) {
		m.MatchesStarted.Inc()
	})
	bus.Subscribe(events.TopicMatchCompleted, func(ev events.Event) {
		m.MatchesCompleted.Inc()
		if e, ok := ev.(events.MatchCompleted); ok {
			m.MatchSeconds.Observe(e.ElapsedSeconds)
		}
	})
	bus.Subscribe(events.TopicMatchAbandoned, func(ev events.Event) {
		if e, ok := ev.(events.MatchAbandoned); ok {
			m.MatchesAbandoned.WithLabelValues(e.Reason).Inc()
		}
	})
	bus.Subscribe(events.TopicBlockStarted, func(ev events.Event) {
		if e, ok := ev.(events.BlockStarted); ok {
			m.BlocksStarted.WithLabelValues(e.BlockType).Inc()
		}
	})
	bus.Subscribe(events.TopicPlaySelected, func(ev events.Event) {
		if e, ok := ev.(events.PlaySelected); ok {
			m.PlaysSelected.WithLabelValues(e.RoundType).Inc()
		}
	})
	bus.Subscribe(events.TopicPerformanceCompleted, func(ev events.Event) {
		if e, ok := ev.(events.PerformanceCompleted); ok {
			m.NarrationSeconds.Add(e.DurationSeconds)
		}
	})
	bus.Subscribe(events.TopicSystemError, func(ev events.Event) {
		if e, ok := ev.(events.SystemError); ok {
			m.SystemErrors.WithLabelValues(e.Component).Inc()
		}
	})
}
