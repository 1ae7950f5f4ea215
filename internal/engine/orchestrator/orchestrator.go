// Package orchestrator is the top-level match coordinator: it selects the
// pattern, drives the block-processing loop, and exposes pause, resume
// and end controls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

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

var (
	ErrNotStarted     = errors.New("match not started")
	ErrAlreadyRunning = errors.New("a match is already running")
)

// MinimumPlayers below which a running match cannot continue.
const MinimumPlayers = 2

// Deps collects every collaborator the orchestrator drives. All are
// required except Checkpoints, which disables autosave when nil.
type Deps struct {
	Bus         *events.Bus
	Store       *state.Store
	Settings    *settings.Settings
	Tracker     *match.Tracker
	Roster      *roster.Registry
	Library     *pattern.Library
	Variety     *variety.Enforcer
	Selector    *play.Selector
	Assembler   *script.Assembler
	Performer   *perform.Performer
	Checkpoints checkpoint.Store
	Rng         *rand.Rand
	Logger      zerolog.Logger
}

// Orchestrator runs one match at a time. The block loop lives in Run and
// processes blocks strictly one after another; control methods only flip
// flags and interrupt narration, they never process blocks themselves.
type Orchestrator struct {
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	cursor   *pattern.Cursor
	selected *pattern.Pattern
	paused   bool
	resumeCh chan struct{}
	running  bool
}

func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "orchestrator").Logger(),
	}
	deps.Bus.Subscribe(events.TopicPlayerRemoved, func(events.Event) {
		o.checkPlayerFloor()
	})
	deps.Bus.Subscribe(events.TopicPlayerStatusChanged, func(events.Event) {
		o.checkPlayerFloor()
	})
	return o
}

// StartMatch initializes the match, picks its pattern and moves it to
// IN_PROGRESS. Run must be called afterwards to process blocks.
func (o *Orchestrator) StartMatch(cfg match.Config, prefs pattern.Preferences) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrAlreadyRunning
	}

	matchID := o.deps.Tracker.InitializeMatch(cfg)
	o.deps.Bus.Publish(events.MatchInitialized{MatchID: matchID, RoundCount: cfg.RoundCount})

	p := o.deps.Library.Select(cfg.RoundCount, prefs)
	if err := o.deps.Tracker.SetPattern(p.Sequence, p.ID); err != nil {
		return fmt.Errorf("set pattern: %w", err)
	}
	if err := o.deps.Tracker.StartMatch(); err != nil {
		return fmt.Errorf("start match: %w", err)
	}

	o.selected = p
	o.cursor = pattern.NewCursor(p, o.logger)
	o.paused = false

	started := time.Now()
	if snap, ok := o.deps.Tracker.Snapshot(); ok {
		started = snap.StartedAt
	}
	o.deps.Bus.Publish(events.MatchStarted{MatchID: matchID, StartedAt: started})
	o.logger.Info().Stringer("match_id", matchID).Str("pattern", p.ID).Msg("match started")
	return nil
}

// Run drives the block loop until the pattern is exhausted, the match is
// ended, or ctx is cancelled. Selection errors halt the loop without
// retry: an automatic retry after a failed selection desyncs the cursor
// from the tracker, so recovery is an explicit operator action.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.cursor == nil {
		o.mu.Unlock()
		return ErrNotStarted
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	for {
		if err := o.awaitResume(ctx); err != nil {
			return err
		}

		switch o.deps.Tracker.Status() {
		case match.StatusCompleted, match.StatusAbandoned:
			return nil
		case match.StatusInProgress:
		case match.StatusPaused:
			continue // paused again between gate and here
		default:
			// SETUP or an unknown status cannot make progress and would
			// spin through the gate forever.
			return ErrNotStarted
		}

		blockCtx, ok := o.nextBlock()
		if !ok {
			// The tracker auto-completed on the final block; the cursor
			// agreeing is the normal end of a match.
			o.deps.Bus.Publish(events.PatternComplete{PatternID: o.patternID()})
			if snap, ok := o.deps.Tracker.Snapshot(); ok {
				o.deps.Bus.Publish(events.MatchCompleted{
					MatchID:        snap.ID,
					RoundsPlayed:   o.deps.Tracker.CurrentRoundNumber(),
					ElapsedSeconds: snap.ElapsedSeconds,
				})
			}
			o.mirrorState()
			o.saveCheckpoint(ctx)
			return nil
		}

		if err := o.processBlock(ctx, blockCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if o.isPaused() {
				continue // interrupted by pause; block was cancelled
			}
			if o.deps.Tracker.Status() == match.StatusAbandoned {
				// End interrupted the narration; not a failure.
				return nil
			}
			o.deps.Bus.Publish(events.SystemError{Component: "orchestrator", Message: err.Error()})
			o.logger.Error().Err(err).Msg("block processing failed, match stalled")
			return err
		}
	}
}

// processBlock selects content for one block, narrates it and records the
// completion.
func (o *Orchestrator) processBlock(ctx context.Context, blockCtx pattern.Context) error {
	o.deps.Bus.Publish(events.SelectionStarted{Index: blockCtx.Index, BlockType: string(blockCtx.BlockType)})

	var (
		scripts []string
		detail  string
		payload any
		planned float64
		err     error
	)
	switch blockCtx.BlockType {
	case match.BlockCeremony:
		scripts, detail = o.prepareCeremony(blockCtx)
	case match.BlockRelax:
		scripts, detail = o.prepareRelax(blockCtx)
	case match.BlockRound:
		var p *play.Play
		p, err = o.prepareRound(blockCtx)
		if err != nil {
			return fmt.Errorf("select play for round %d: %w", blockCtx.RoundNumber, err)
		}
		scripts = p.Scripts
		detail = p.RoundType + "/" + p.Variant
		payload = p
		planned = float64(p.DurationSeconds)
	}

	o.deps.Bus.Publish(events.SelectionCompleted{Index: blockCtx.Index, BlockType: string(blockCtx.BlockType), Detail: detail})

	if _, err := o.deps.Tracker.StartBlock(blockCtx.BlockType, detail, payload, planned); err != nil {
		return fmt.Errorf("start block %d: %w", blockCtx.Index, err)
	}
	o.cursorConfirm(blockCtx.Index)
	o.deps.Bus.Publish(events.BlockStarted{Index: blockCtx.Index, BlockType: string(blockCtx.BlockType), Detail: detail})

	multiplier := 1.0
	if snap, ok := o.deps.Tracker.Snapshot(); ok && snap.Config.PauseMultiplier > 0 {
		multiplier = snap.Config.PauseMultiplier
	}
	if err := o.deps.Performer.Perform(ctx, scripts, multiplier); err != nil {
		// Pause or shutdown interrupted narration; the block never
		// completed, so it is discarded and re-selected on resume.
		o.deps.Tracker.CancelBlock()
		o.resyncCursor()
		return fmt.Errorf("perform block %d: %w", blockCtx.Index, err)
	}

	block, err := o.deps.Tracker.CompleteBlock()
	if err != nil {
		return fmt.Errorf("complete block %d: %w", blockCtx.Index, err)
	}
	o.deps.Bus.Publish(events.BlockCompleted{
		Index:           block.Index,
		BlockType:       string(block.Type),
		DurationSeconds: block.ActualSeconds,
	})

	o.mirrorState()
	o.saveCheckpoint(ctx)
	return nil
}

func (o *Orchestrator) prepareCeremony(blockCtx pattern.Context) ([]string, string) {
	kind := match.CeremonyClosing
	if blockCtx.IsFirstBlock {
		kind = match.CeremonyOpening
	}
	var elapsed float64
	if snap, ok := o.deps.Tracker.Snapshot(); ok && !snap.StartedAt.IsZero() {
		elapsed = time.Since(snap.StartedAt).Seconds()
	}
	return o.deps.Assembler.AssembleCeremony(kind, blockCtx.TotalRounds, elapsed), kind
}

// prepareRelax picks a calm activity, variety-weighted so the same
// breather never dominates.
func (o *Orchestrator) prepareRelax(blockCtx pattern.Context) ([]string, string) {
	// RoundNumber is zero for relax blocks; recency bookkeeping wants the
	// rounds completed so far.
	vctx := variety.Context{Round: o.deps.Tracker.CurrentRoundNumber(), Label: "relax"}
	activities := o.deps.Settings.Strings("relaxActivities")

	candidates := make([]play.Candidate[string], 0, len(activities))
	for _, id := range activities {
		w := o.deps.Variety.AdjustWeight("relax:"+id, 1.0, vctx)
		candidates = append(candidates, play.Candidate[string]{Item: id, Weight: w})
	}
	activity, ok := play.Pick(o.deps.Rng, candidates)
	if !ok {
		activity = "stretching"
	}
	o.deps.Variety.RecordSelection("relax:"+activity, vctx)

	return o.deps.Assembler.AssembleRelax(activity), activity
}

func (o *Orchestrator) prepareRound(blockCtx pattern.Context) (*play.Play, error) {
	// Everyone still waiting gets a little more deserving each round.
	o.deps.Roster.IncrementRoundsSinceSelected()

	target := o.deps.Tracker.DifficultyTarget(blockCtx.RoundNumber)
	p, err := o.deps.Selector.SelectPlay(play.Context{
		RoundNumber:      blockCtx.RoundNumber,
		TotalRounds:      blockCtx.TotalRounds,
		TargetDifficulty: target,
		RoundsSinceRelax: blockCtx.RoundsSinceRelax,
		ProgressPercent:  blockCtx.ProgressPercent,
	})
	if err != nil {
		return nil, err
	}
	p.Scripts = o.deps.Assembler.AssembleForPlay(p)
	return p, nil
}

// Pause halts the loop before the next block and interrupts narration.
// The in-flight block is discarded; resume re-selects it from scratch.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	o.paused = true
	o.resumeCh = make(chan struct{})
	o.mu.Unlock()

	if err := o.deps.Tracker.Pause(); err != nil {
		o.mu.Lock()
		o.paused = false
		if o.resumeCh != nil {
			close(o.resumeCh)
			o.resumeCh = nil
		}
		o.mu.Unlock()
		return err
	}

	o.deps.Performer.Interrupt()
	o.deps.Bus.Publish(events.MatchPaused{MatchID: o.deps.Tracker.MatchID()})
	return nil
}

// Resume lets the loop continue from the first unprocessed block.
func (o *Orchestrator) Resume() error {
	if err := o.deps.Tracker.Resume(); err != nil {
		return err
	}
	o.mu.Lock()
	o.paused = false
	if o.resumeCh != nil {
		close(o.resumeCh)
		o.resumeCh = nil
	}
	o.mu.Unlock()

	o.deps.Bus.Publish(events.MatchResumed{MatchID: o.deps.Tracker.MatchID()})
	return nil
}

// End abandons the match with the given reason and stops the loop.
func (o *Orchestrator) End(reason string) error {
	if err := o.deps.Tracker.AbandonMatch(reason); err != nil {
		return err
	}
	o.deps.Performer.Interrupt()

	o.mu.Lock()
	if o.resumeCh != nil {
		close(o.resumeCh)
		o.resumeCh = nil
	}
	o.paused = false
	o.mu.Unlock()

	o.deps.Bus.Publish(events.MatchAbandoned{MatchID: o.deps.Tracker.MatchID(), Reason: reason})
	return nil
}

// Checkpoint snapshots the whole engine. Taken between blocks, so no
// in-flight play is serialized.
func (o *Orchestrator) Checkpoint() (checkpoint.Checkpoint, error) {
	matchState, ok := o.deps.Tracker.CreateCheckpoint()
	if !ok {
		return checkpoint.Checkpoint{}, ErrNotStarted
	}
	o.mu.Lock()
	cursorIndex := 0
	if o.cursor != nil {
		cursorIndex = o.cursor.Position()
	}
	o.mu.Unlock()

	return checkpoint.Checkpoint{
		Version:     checkpoint.Version,
		SavedAt:     time.Now(),
		CursorIndex: cursorIndex,
		PatternID:   o.patternID(),
		Match:       matchState,
		Players:     o.deps.Roster.CreateSnapshot(),
		Variety:     o.deps.Variety.Export(),
		Settings:    o.deps.Settings.Snapshot(),
	}, nil
}

// Restore replaces all engine state from a checkpoint.
func (o *Orchestrator) Restore(cp checkpoint.Checkpoint) error {
	if cp.Version != checkpoint.Version {
		return fmt.Errorf("checkpoint version mismatch: %q", cp.Version)
	}
	if err := o.deps.Tracker.RestoreFromCheckpoint(cp.Match); err != nil {
		return fmt.Errorf("restore match: %w", err)
	}
	o.deps.Roster.RestoreSnapshot(cp.Players)
	o.deps.Variety.Import(cp.Variety)

	rounds := 0
	for _, bt := range cp.Match.Pattern {
		if bt == match.BlockRound {
			rounds++
		}
	}
	p := &pattern.Pattern{
		ID:         cp.PatternID,
		Sequence:   append([]match.BlockType(nil), cp.Match.Pattern...),
		RoundCount: rounds,
	}

	// A live match comes back PAUSED: narration cannot pick up without an
	// operator confirming players are ready. Finished matches restore
	// as-is for inspection.
	status := o.deps.Tracker.Status()
	live := status == match.StatusInProgress || status == match.StatusPaused

	o.mu.Lock()
	o.selected = p
	o.cursor = pattern.NewCursor(p, o.logger)
	o.cursor.SkipToIndex(len(cp.Match.History))
	o.paused = live
	if live {
		o.resumeCh = make(chan struct{})
	} else {
		o.resumeCh = nil
	}
	o.mu.Unlock()

	if status == match.StatusInProgress {
		if err := o.deps.Tracker.Pause(); err != nil {
			o.logger.Warn().Err(err).Msg("pause after restore")
		}
	}

	o.deps.Bus.Publish(events.StateRestored{
		MatchID:    cp.Match.ID,
		PatternID:  cp.PatternID,
		RoundCount: rounds,
		StartedAt:  cp.Match.StartedAt,
	})
	o.logger.Info().Stringer("match_id", cp.Match.ID).Int("cursor", len(cp.Match.History)).Msg("state restored")
	return nil
}

// checkPlayerFloor abandons a running match that no longer has enough
// active players to select anything.
func (o *Orchestrator) checkPlayerFloor() {
	status := o.deps.Tracker.Status()
	if status != match.StatusInProgress && status != match.StatusPaused {
		return
	}
	if o.deps.Roster.ActiveCount() >= MinimumPlayers {
		return
	}
	o.logger.Warn().Int("active", o.deps.Roster.ActiveCount()).Msg("too few players, abandoning match")
	if err := o.End("insufficient_players"); err != nil {
		o.logger.Error().Err(err).Msg("abandon on player floor")
	}
}

// awaitResume blocks while paused. Returns ctx.Err on cancellation.
func (o *Orchestrator) awaitResume(ctx context.Context) error {
	for {
		o.mu.Lock()
		paused := o.paused
		ch := o.resumeCh
		o.mu.Unlock()
		if !paused {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (o *Orchestrator) nextBlock() (pattern.Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cursor.Next()
}

func (o *Orchestrator) cursorConfirm(index int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cursor.ConfirmBlockStart(index)
}

// resyncCursor steps the cursor back to the first block missing from
// history, after a cancelled block left it one ahead.
func (o *Orchestrator) resyncCursor() {
	snap, ok := o.deps.Tracker.Snapshot()
	if !ok {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cursor.SkipToIndex(len(snap.History))
}

func (o *Orchestrator) isPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) patternID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selected == nil {
		return ""
	}
	return o.selected.ID
}

// Visualization renders the pattern with the cursor position for status
// displays. Empty before a match starts.
func (o *Orchestrator) Visualization() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cursor == nil {
		return ""
	}
	return o.cursor.Visualization()
}

// mirrorState publishes the headline match facts into the shared state
// store in one atomic batch.
func (o *Orchestrator) mirrorState() {
	if o.deps.Store == nil {
		return
	}
	snap, ok := o.deps.Tracker.Snapshot()
	if !ok {
		return
	}
	o.deps.Store.Begin().
		Set("match.id", snap.ID.String()).
		Set("match.status", string(snap.Status)).
		Set("match.round", o.deps.Tracker.CurrentRoundNumber()).
		Set("match.totalRounds", o.deps.Tracker.TotalRounds()).
		Set("match.blockIndex", snap.CurrentBlockIndex).
		Set("match.progress", o.deps.Tracker.Progress()).
		Set("players.activeCount", o.deps.Roster.ActiveCount()).
		Commit()
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context) {
	if o.deps.Checkpoints == nil {
		return
	}
	cp, err := o.Checkpoint()
	if err != nil {
		return
	}
	if err := o.deps.Checkpoints.Save(ctx, cp); err != nil {
		o.logger.Warn().Err(err).Msg("checkpoint save failed")
	}
}
