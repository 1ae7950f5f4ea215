package orchestrator

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playroomlabs/partyhost/internal/checkpoint"
	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/internal/engine/match"
	"github.com/playroomlabs/partyhost/internal/engine/pattern"
	"github.com/playroomlabs/partyhost/internal/engine/perform"
	"github.com/playroomlabs/partyhost/internal/engine/play"
	"github.com/playroomlabs/partyhost/internal/engine/roster"
	"github.com/playroomlabs/partyhost/internal/engine/script"
	"github.com/playroomlabs/partyhost/internal/engine/settings"
	"github.com/playroomlabs/partyhost/internal/engine/state"
	"github.com/playroomlabs/partyhost/internal/engine/variety"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	hook   func(utterance string)
}

func (s *fakeSpeaker) Speak(ctx context.Context, utterance string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, utterance)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(utterance)
	}
	return ctx.Err()
}

func (s *fakeSpeaker) Cancel() {}

func (s *fakeSpeaker) count(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.spoken {
		if strings.Contains(u, substr) {
			n++
		}
	}
	return n
}

type engine struct {
	bus      *events.Bus
	store    *state.Store
	settings *settings.Settings
	tracker  *match.Tracker
	roster   *roster.Registry
	variety  *variety.Enforcer
	cps      *checkpoint.MemoryStore
	speaker  *fakeSpeaker
	orch     *Orchestrator
}

func newEngine(t *testing.T, seed int64, names ...string) *engine {
	t.Helper()
	logger := zerolog.Nop()

	bus := events.NewBus(logger)
	s := settings.New(nil)
	store := state.NewStore(logger)
	tracker := match.NewTracker(logger)
	reg := roster.NewRegistry(bus, roster.DefaultWeights(), logger)
	rng := rand.New(rand.NewSource(seed))
	lib := pattern.NewLibrary(bus, rng, s.Int("patterns.maxConsecutiveRounds", 4), logger)
	enf := variety.NewEnforcer(s, logger)
	sel := play.NewSelector(s, reg, enf, bus, rng, logger)
	asm := script.NewAssembler(logger)
	speaker := &fakeSpeaker{}
	perf := perform.NewPerformer(speaker, s, bus, logger)
	cps := checkpoint.NewMemoryStore()

	orch := New(Deps{
		Bus:         bus,
		Store:       store,
		Settings:    s,
		Tracker:     tracker,
		Roster:      reg,
		Library:     lib,
		Variety:     enf,
		Selector:    sel,
		Assembler:   asm,
		Performer:   perf,
		Checkpoints: cps,
		Rng:         rng,
		Logger:      logger,
	})

	for _, n := range names {
		_, err := reg.AddPlayer(n, "")
		require.NoError(t, err)
	}

	return &engine{
		bus: bus, store: store, settings: s, tracker: tracker,
		roster: reg, variety: enf, cps: cps, speaker: speaker, orch: orch,
	}
}

func fastConfig(patternID string) match.Config {
	return match.Config{
		RoundCount:      3,
		DifficultyCurve: "steady",
		DifficultyLevel: 3,
		PauseMultiplier: 0.001,
		PatternID:       patternID,
	}
}

func TestFullMatchRunsToCompletion(t *testing.T) {
	e := newEngine(t, 1, "Alice", "Bob", "Carol", "Dave")

	var topics []string
	e.bus.SubscribeAll(func(ev events.Event) { topics = append(topics, ev.Topic()) })

	require.NoError(t, e.orch.StartMatch(fastConfig("breather_3"), pattern.Preferences{PatternID: "breather_3"}))
	require.NoError(t, e.orch.Run(context.Background()))

	assert.Equal(t, match.StatusCompleted, e.tracker.Status())
	assert.Equal(t, 3, e.tracker.CurrentRoundNumber())
	assert.InDelta(t, 100, e.tracker.Progress(), 0.001)

	// breather_3: C R RX R R C
	history := e.tracker.RecentHistory(10)
	require.Len(t, history, 6)
	assert.Equal(t, match.BlockCeremony, history[0].Type)
	assert.Equal(t, match.BlockRelax, history[2].Type)
	assert.Equal(t, match.BlockCeremony, history[5].Type)
	assert.Contains(t, e.settings.Strings("relaxActivities"), history[2].Detail)

	counts := map[string]int{}
	for _, topic := range topics {
		counts[topic]++
	}
	assert.Equal(t, 6, counts[events.TopicBlockStarted])
	assert.Equal(t, 6, counts[events.TopicBlockCompleted])
	assert.Equal(t, 3, counts[events.TopicPlaySelected])
	assert.Equal(t, 1, counts[events.TopicPatternComplete])
	assert.Equal(t, 1, counts[events.TopicMatchCompleted])
	assert.Zero(t, counts[events.TopicSystemError])

	// Mirrored state reflects the finished match.
	status, ok := e.store.Get("match.status")
	require.True(t, ok)
	assert.Equal(t, "completed", status)
	progress, _ := e.store.Get("match.progress")
	assert.InDelta(t, 100.0, progress.(float64), 0.001)

	// Autosaved checkpoint covers the whole run.
	cp, err := e.cps.Load(context.Background(), e.tracker.MatchID())
	require.NoError(t, err)
	assert.Equal(t, match.StatusCompleted, cp.Match.Status)
	assert.Equal(t, 6, cp.CursorIndex)
	assert.Len(t, cp.Players.Players, 4)
}

func TestRunWithoutStartFails(t *testing.T) {
	e := newEngine(t, 2, "Alice", "Bob")
	assert.ErrorIs(t, e.orch.Run(context.Background()), ErrNotStarted)
}

func TestPauseDiscardsBlockAndResumeReselects(t *testing.T) {
	e := newEngine(t, 4, "Alice", "Bob", "Carol")

	var once sync.Once
	e.speaker.hook = func(u string) {
		if strings.Contains(u, "Round 2 of 3") {
			once.Do(func() {
				if err := e.orch.Pause(); err != nil {
					t.Errorf("pause: %v", err)
				}
			})
		}
	}

	require.NoError(t, e.orch.StartMatch(fastConfig("sprint_3"), pattern.Preferences{PatternID: "sprint_3"}))

	errCh := make(chan error, 1)
	go func() { errCh <- e.orch.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return e.tracker.Status() == match.StatusPaused
	}, 5*time.Second, time.Millisecond)

	// The interrupted round never completed: only the opening ceremony and
	// round 1 are in history.
	assert.Len(t, e.tracker.RecentHistory(10), 2)
	assert.Equal(t, 1, e.tracker.CurrentRoundNumber())

	require.NoError(t, e.orch.Resume())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish after resume")
	}

	assert.Equal(t, match.StatusCompleted, e.tracker.Status())
	assert.Len(t, e.tracker.RecentHistory(10), 5)
	// Round 2 was selected twice: once interrupted, once after resume.
	assert.Equal(t, 2, e.speaker.count("Round 2 of 3"))
}

func TestPlayerRemovalBelowFloorAbandonsMatch(t *testing.T) {
	e := newEngine(t, 5, "Alice", "Bob")

	require.NoError(t, e.orch.StartMatch(fastConfig("sprint_3"), pattern.Preferences{PatternID: "sprint_3"}))

	bob := e.roster.ActivePlayers()[1]
	require.NoError(t, e.roster.RemovePlayer(bob.ID))

	assert.Equal(t, match.StatusAbandoned, e.tracker.Status())
	snap, ok := e.tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "insufficient_players", snap.AbandonReason)

	// The loop notices the abandoned match and exits cleanly.
	require.NoError(t, e.orch.Run(context.Background()))
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	e := newEngine(t, 6, "Alice", "Bob", "Carol", "Dave")
	require.NoError(t, e.orch.StartMatch(fastConfig("sprint_3"), pattern.Preferences{PatternID: "sprint_3"}))
	require.NoError(t, e.orch.Run(context.Background()))

	cp, err := e.cps.Load(context.Background(), e.tracker.MatchID())
	require.NoError(t, err)

	fresh := newEngine(t, 7, "Alice", "Bob", "Carol", "Dave")
	require.NoError(t, fresh.orch.Restore(cp))

	assert.Equal(t, e.tracker.MatchID(), fresh.tracker.MatchID())
	assert.Equal(t, e.tracker.CurrentRoundNumber(), fresh.tracker.CurrentRoundNumber())
	assert.Equal(t, e.tracker.Status(), fresh.tracker.Status())
	assert.InDelta(t, e.tracker.Progress(), fresh.tracker.Progress(), 0.001)
}

func TestRelaxSelectionRecordsCompletedRoundCount(t *testing.T) {
	e := newEngine(t, 13, "Alice", "Bob", "Carol")
	require.NoError(t, e.orch.StartMatch(fastConfig("breather_3"), pattern.Preferences{PatternID: "breather_3"}))
	require.NoError(t, e.orch.Run(context.Background()))

	// breather_3 relaxes after the first round.
	snap := e.variety.Export()
	found := false
	for key, records := range snap.History {
		if !strings.HasPrefix(key, "relax:") {
			continue
		}
		found = true
		require.Len(t, records, 1)
		assert.Equal(t, 1, records[0].Round)
	}
	assert.True(t, found, "relax selection was never recorded")
}

func TestRunAfterRestoringSetupCheckpointRefuses(t *testing.T) {
	e := newEngine(t, 14, "Alice", "Bob")
	seq := []match.BlockType{
		match.BlockCeremony, match.BlockRound, match.BlockRound, match.BlockRound, match.BlockCeremony,
	}
	e.tracker.InitializeMatch(fastConfig("sprint_3"))
	require.NoError(t, e.tracker.SetPattern(seq, "sprint_3"))

	cp, err := e.orch.Checkpoint()
	require.NoError(t, err)
	require.Equal(t, match.StatusSetup, cp.Match.Status)

	fresh := newEngine(t, 15, "Alice", "Bob")
	require.NoError(t, fresh.orch.Restore(cp))

	// A match that never started has nothing to run; the loop must stop
	// instead of spinning through the gate.
	err = fresh.orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestRestoreRejectsVersionMismatch(t *testing.T) {
	e := newEngine(t, 8, "Alice", "Bob")
	err := e.orch.Restore(checkpoint.Checkpoint{Version: "999"})
	assert.ErrorContains(t, err, "version mismatch")
}

func TestRestoredLiveMatchComesBackPaused(t *testing.T) {
	e := newEngine(t, 9, "Alice", "Bob", "Carol")
	require.NoError(t, e.orch.StartMatch(fastConfig("sprint_3"), pattern.Preferences{PatternID: "sprint_3"}))

	// Snapshot the match right after start, before any block ran.
	cp, err := e.orch.Checkpoint()
	require.NoError(t, err)

	fresh := newEngine(t, 10, "Alice", "Bob", "Carol")
	require.NoError(t, fresh.orch.Restore(cp))
	assert.Equal(t, match.StatusPaused, fresh.tracker.Status())

	// Resume and run the whole match from the restored cursor.
	errCh := make(chan error, 1)
	go func() { errCh <- fresh.orch.Run(context.Background()) }()
	require.NoError(t, fresh.orch.Resume())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("restored match did not run to completion")
	}
	assert.Equal(t, match.StatusCompleted, fresh.tracker.Status())
	assert.Len(t, fresh.tracker.RecentHistory(10), 5)
}
