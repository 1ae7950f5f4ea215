package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/checkpoint"
	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/internal/engine/match"
	"github.com/playroomlabs/partyhost/internal/engine/orchestrator"
	"github.com/playroomlabs/partyhost/internal/engine/pattern"
	"github.com/playroomlabs/partyhost/internal/engine/perform"
	"github.com/playroomlabs/partyhost/internal/engine/play"
	"github.com/playroomlabs/partyhost/internal/engine/roster"
	"github.com/playroomlabs/partyhost/internal/engine/script"
	"github.com/playroomlabs/partyhost/internal/engine/settings"
	"github.com/playroomlabs/partyhost/internal/engine/state"
	"github.com/playroomlabs/partyhost/internal/engine/variety"
)

// ErrMatchRunning is returned when a new match would collide with a live one.
var ErrMatchRunning = errors.New("a match is already running")

// Options configures a session manager.
type Options struct {
	Speaker     perform.Speaker
	Checkpoints checkpoint.Store
	Overrides   map[string]any
	Seed        int64
	Logger      zerolog.Logger
}

// Manager owns the engine for one party room. The roster survives between
// matches; matches run one at a time on a background goroutine.
type Manager struct {
	bus         *events.Bus
	store       *state.Store
	settings    *settings.Settings
	tracker     *match.Tracker
	roster      *roster.Registry
	orch        *orchestrator.Orchestrator
	checkpoints checkpoint.Store
	logger      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewManager wires the full engine and returns it idle.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	bus := events.NewBus(logger)
	s := settings.New(opts.Overrides)
	store := state.NewStore(logger)
	tracker := match.NewTracker(logger)
	reg := roster.NewRegistry(bus, roster.DefaultWeights(), logger)
	rng := rand.New(rand.NewSource(seed))
	lib := pattern.NewLibrary(bus, rng, s.Int("patterns.maxConsecutiveRounds", 4), logger)
	enf := variety.NewEnforcer(s, logger)
	sel := play.NewSelector(s, reg, enf, bus, rng, logger)
	asm := script.NewAssembler(logger)
	perf := perform.NewPerformer(opts.Speaker, s, bus, logger)

	orch := orchestrator.New(orchestrator.Deps{
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
		Checkpoints: opts.Checkpoints,
		Rng:         rng,
		Logger:      logger,
	})

	return &Manager{
		bus:         bus,
		store:       store,
		settings:    s,
		tracker:     tracker,
		roster:      reg,
		orch:        orch,
		checkpoints: opts.Checkpoints,
		logger:      logger.With().Str("component", "session_manager").Logger(),
	}
}

// Bus exposes the engine event feed for bridges and observers.
func (m *Manager) Bus() *events.Bus { return m.bus }

// Roster exposes the player registry.
func (m *Manager) Roster() *roster.Registry { return m.roster }

// Settings exposes the live configuration tree.
func (m *Manager) Settings() *settings.Settings { return m.settings }

// StartMatch starts a match and launches its run loop.
func (m *Manager) StartMatch(cfg match.Config, prefs pattern.Preferences) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		select {
		case <-m.done:
		default:
			return uuid.Nil, ErrMatchRunning
		}
	}

	if err := m.orch.StartMatch(cfg, prefs); err != nil {
		return uuid.Nil, fmt.Errorf("start match: %w", err)
	}
	m.launchLocked()
	return m.tracker.MatchID(), nil
}

// RestoreMatch loads a checkpoint by match id and resumes hosting it. A
// live match comes back paused and needs an explicit Resume.
func (m *Manager) RestoreMatch(ctx context.Context, matchID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		select {
		case <-m.done:
		default:
			return ErrMatchRunning
		}
	}
	if m.checkpoints == nil {
		return errors.New("no checkpoint store configured")
	}

	cp, err := m.checkpoints.Load(ctx, matchID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if err := m.orch.Restore(cp); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	if st := m.tracker.Status(); st == match.StatusPaused || st == match.StatusInProgress {
		m.launchLocked()
	}
	return nil
}

func (m *Manager) launchLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		err := m.orch.Run(ctx)
		m.mu.Lock()
		m.runErr = err
		m.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Msg("match run loop failed")
			return
		}
		m.logger.Info().Msg("match run loop finished")
	}()
}

// Pause suspends the live match.
func (m *Manager) Pause() error { return m.orch.Pause() }

// Resume continues a paused match.
func (m *Manager) Resume() error { return m.orch.Resume() }

// End abandons the live match with a reason.
func (m *Manager) End(reason string) error { return m.orch.End(reason) }

// RunError reports how the last run loop exited.
func (m *Manager) RunError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runErr
}

// AddPlayer registers a player into the room.
func (m *Manager) AddPlayer(name, teamID string) (roster.Player, error) {
	return m.roster.AddPlayer(name, teamID)
}

// RemovePlayer drops a player from the room.
func (m *Manager) RemovePlayer(id uuid.UUID) error {
	return m.roster.RemovePlayer(id)
}

// SetPlayerStatus changes a player's availability.
func (m *Manager) SetPlayerStatus(id uuid.UUID, status roster.Status) error {
	return m.roster.SetStatus(id, status)
}

// Status summarizes the room and any live match for the control API.
type Status struct {
	MatchID       *uuid.UUID `json:"match_id,omitempty"`
	MatchStatus   string     `json:"match_status"`
	Round         int        `json:"round"`
	TotalRounds   int        `json:"total_rounds"`
	Progress      float64    `json:"progress"`
	Visualization string     `json:"visualization,omitempty"`
	ActivePlayers int        `json:"active_players"`
	Players       []Player   `json:"players"`
}

// Player is the API-facing view of a roster entry.
type Player struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	TeamID string    `json:"team_id,omitempty"`
	Status string    `json:"status"`
}

// Status reports the current room and match state.
func (m *Manager) Status() Status {
	st := Status{
		MatchStatus:   "idle",
		ActivePlayers: m.roster.ActiveCount(),
	}
	for _, p := range m.roster.ActivePlayers() {
		st.Players = append(st.Players, Player{
			ID: p.ID, Name: p.Name, TeamID: p.TeamID, Status: string(p.Status),
		})
	}
	if snap, ok := m.tracker.Snapshot(); ok {
		id := snap.ID
		st.MatchID = &id
		st.MatchStatus = string(snap.Status)
		st.Round = m.tracker.CurrentRoundNumber()
		st.TotalRounds = m.tracker.TotalRounds()
		st.Progress = m.tracker.Progress()
		st.Visualization = m.orch.Visualization()
	}
	return st
}

// Close stops any live run loop and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
