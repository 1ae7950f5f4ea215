package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/playroomlabs/partyhost/internal/engine/events"
)

func TestObserveCountsEngineEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bus := events.NewBus(zerolog.Nop())
	m.Observe(bus)

	bus.Publish(events.MatchStarted{})
	bus.Publish(events.BlockStarted{BlockType: "round"})
	bus.Publish(events.BlockStarted{BlockType: "round"})
	bus.Publish(events.BlockStarted{BlockType: "relax"})
	bus.Publish(events.PlaySelected{RoundType: "duel"})
	bus.Publish(events.PerformanceCompleted{DurationSeconds: 12.5})
	bus.Publish(events.MatchCompleted{ElapsedSeconds: 540})
	bus.Publish(events.MatchAbandoned{Reason: "insufficient_players"})
	bus.Publish(events.SystemError{Component: "performer"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchesStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchesCompleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlocksStarted.WithLabelValues("round")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksStarted.WithLabelValues("relax")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaysSelected.WithLabelValues("duel")))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.NarrationSeconds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchesAbandoned.WithLabelValues("insufficient_players")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SystemErrors.WithLabelValues("performer")))
}
