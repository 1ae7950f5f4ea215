package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playroomlabs/partyhost/internal/checkpoint"
	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/internal/engine/match"
	"github.com/playroomlabs/partyhost/internal/engine/pattern"
	"github.com/playroomlabs/partyhost/pkg/http/ws"
)

type silentSpeaker struct{}

func (silentSpeaker) Speak(ctx context.Context, _ string) error { return ctx.Err() }
func (silentSpeaker) Cancel()                                   {}

func newTestManager(t *testing.T, names ...string) *Manager {
	t.Helper()
	m := NewManager(Options{
		Speaker:     silentSpeaker{},
		Checkpoints: checkpoint.NewMemoryStore(),
		Seed:        42,
		Logger:      zerolog.Nop(),
	})
	for _, n := range names {
		_, err := m.AddPlayer(n, "")
		require.NoError(t, err)
	}
	t.Cleanup(m.Close)
	return m
}

func fastConfig() match.Config {
	return match.Config{
		RoundCount:      3,
		DifficultyCurve: "steady",
		DifficultyLevel: 3,
		PauseMultiplier: 0.001,
	}
}

func TestManagerRunsMatchToCompletion(t *testing.T) {
	m := newTestManager(t, "Alice", "Bob", "Carol")

	matchID, err := m.StartMatch(fastConfig(), pattern.Preferences{PatternID: "sprint_3"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, matchID)

	require.Eventually(t, func() bool {
		return m.Status().MatchStatus == "completed"
	}, 10*time.Second, 10*time.Millisecond)

	st := m.Status()
	require.NotNil(t, st.MatchID)
	assert.Equal(t, matchID, *st.MatchID)
	assert.Equal(t, 3, st.TotalRounds)
	assert.Equal(t, 3, st.ActivePlayers)
	assert.NoError(t, m.RunError())
}

func TestManagerRejectsConcurrentMatches(t *testing.T) {
	m := newTestManager(t, "Alice", "Bob")

	_, err := m.StartMatch(fastConfig(), pattern.Preferences{PatternID: "sprint_3"})
	require.NoError(t, err)

	_, err = m.StartMatch(fastConfig(), pattern.Preferences{})
	assert.ErrorIs(t, err, ErrMatchRunning)
}

func TestManagerStatusWhileIdle(t *testing.T) {
	m := newTestManager(t, "Alice")

	st := m.Status()
	assert.Equal(t, "idle", st.MatchStatus)
	assert.Nil(t, st.MatchID)
	assert.Equal(t, 1, st.ActivePlayers)
	assert.Equal(t, "Alice", st.Players[0].Name)
}

type slowSpeaker struct{ delay time.Duration }

func (s slowSpeaker) Speak(ctx context.Context, _ string) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
func (slowSpeaker) Cancel() {}

func TestManagerPauseAndResume(t *testing.T) {
	m := NewManager(Options{
		Speaker:     slowSpeaker{delay: 20 * time.Millisecond},
		Checkpoints: checkpoint.NewMemoryStore(),
		Seed:        42,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(m.Close)
	for _, n := range []string{"Alice", "Bob", "Carol"} {
		_, err := m.AddPlayer(n, "")
		require.NoError(t, err)
	}

	_, err := m.StartMatch(fastConfig(), pattern.Preferences{PatternID: "sprint_3"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Pause() == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "paused", m.Status().MatchStatus)

	require.NoError(t, m.Resume())
	require.Eventually(t, func() bool {
		return m.Status().MatchStatus == "completed"
	}, 10*time.Second, 10*time.Millisecond)
}

func TestManagerRestoreRequiresCheckpoint(t *testing.T) {
	m := newTestManager(t, "Alice", "Bob")

	err := m.RestoreMatch(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorContains(t, err, "load checkpoint")
}

type captureHub struct {
	mu   sync.Mutex
	msgs []ws.Message
}

func (c *captureHub) Broadcast(msg ws.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func TestBridgeForwardsEngineEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	hub := &captureHub{}
	unsub := BridgeEvents(bus, hub, zerolog.Nop())

	bus.Publish(events.BlockStarted{Index: 2, BlockType: "round", Detail: "duel/armWrestling"})

	require.Len(t, hub.msgs, 1)
	assert.Equal(t, ws.TypeEvent, hub.msgs[0].Type)

	var p ws.EventPayload
	require.NoError(t, json.Unmarshal(hub.msgs[0].Payload, &p))
	assert.Equal(t, "block:started", p.Topic)

	var data map[string]any
	require.NoError(t, json.Unmarshal(p.Data, &data))
	assert.Equal(t, "duel/armWrestling", data["detail"])

	unsub()
	bus.Publish(events.BlockStarted{Index: 3, BlockType: "round"})
	assert.Len(t, hub.msgs, 1)
}
