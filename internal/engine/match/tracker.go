package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoMatch        = errors.New("no match initialized")
	ErrAlreadyStarted = errors.New("match already started")
	ErrNoPattern      = errors.New("match has no pattern")
	ErrNoActiveBlock  = errors.New("no block in progress")
	ErrBlockActive    = errors.New("a block is already in progress")
)

// Listener receives tracker lifecycle notifications. This is the tracker's
// own observer list, separate from the engine-wide event bus: components
// that only care about match state subscribe here without polling.
type Listener func(event string, m *Match)

// Tracker owns the match ledger. All mutation goes through its methods;
// other components read via accessors and never touch the Match directly.
type Tracker struct {
	mu        sync.Mutex
	m         *Match
	listeners []Listener
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTracker creates a tracker with no match.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger: logger.With().Str("component", "match_tracker").Logger(),
		now:    time.Now,
	}
}

// Subscribe registers a listener for lifecycle notifications.
func (t *Tracker) Subscribe(fn Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// InitializeMatch creates a fresh match in SETUP and returns its id.
func (t *Tracker) InitializeMatch(cfg Config) uuid.UUID {
	t.mu.Lock()
	t.m = &Match{
		ID:                uuid.New(),
		Config:            cfg,
		Status:            StatusSetup,
		CurrentBlockIndex: -1,
	}
	m := t.m
	t.mu.Unlock()

	t.notify("match_initialized", m)
	return m.ID
}

// SetPattern attaches the block-type sequence. The sequence is copied and
// immutable once the match leaves SETUP.
func (t *Tracker) SetPattern(sequence []BlockType, patternID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.m == nil {
		return ErrNoMatch
	}
	if t.m.Status != StatusSetup {
		return ErrAlreadyStarted
	}
	t.m.Pattern = append([]BlockType(nil), sequence...)
	t.m.Config.PatternID = patternID
	return nil
}

// StartMatch moves SETUP -> IN_PROGRESS. Requires a non-empty pattern.
func (t *Tracker) StartMatch() error {
	t.mu.Lock()
	if t.m == nil {
		t.mu.Unlock()
		return ErrNoMatch
	}
	if t.m.Status != StatusSetup {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(t.m.Pattern) == 0 {
		t.mu.Unlock()
		return ErrNoPattern
	}
	t.m.Status = StatusInProgress
	t.m.StartedAt = t.now()
	m := t.m
	t.mu.Unlock()

	t.notify("match_started", m)
	return nil
}

// Pause moves IN_PROGRESS -> PAUSED.
func (t *Tracker) Pause() error {
	t.mu.Lock()
	if t.m == nil || t.m.Status != StatusInProgress {
		t.mu.Unlock()
		return fmt.Errorf("pause: match is not in progress")
	}
	t.m.Status = StatusPaused
	m := t.m
	t.mu.Unlock()

	t.notify("match_paused", m)
	return nil
}

// Resume moves PAUSED -> IN_PROGRESS.
func (t *Tracker) Resume() error {
	t.mu.Lock()
	if t.m == nil || t.m.Status != StatusPaused {
		t.mu.Unlock()
		return fmt.Errorf("resume: match is not paused")
	}
	t.m.Status = StatusInProgress
	m := t.m
	t.mu.Unlock()

	t.notify("match_resumed", m)
	return nil
}

// CompleteMatch marks the match COMPLETED.
func (t *Tracker) CompleteMatch() error {
	t.mu.Lock()
	if t.m == nil {
		t.mu.Unlock()
		return ErrNoMatch
	}
	t.finishLocked(StatusCompleted, "")
	m := t.m
	t.mu.Unlock()

	t.notify("match_completed", m)
	return nil
}

// AbandonMatch ends the match with an explicit reason.
func (t *Tracker) AbandonMatch(reason string) error {
	t.mu.Lock()
	if t.m == nil {
		t.mu.Unlock()
		return ErrNoMatch
	}
	t.finishLocked(StatusAbandoned, reason)
	m := t.m
	t.mu.Unlock()

	t.notify("match_abandoned", m)
	return nil
}

func (t *Tracker) finishLocked(status Status, reason string) {
	t.m.Status = status
	t.m.AbandonReason = reason
	t.m.Current = nil
	if !t.m.StartedAt.IsZero() {
		t.m.ElapsedSeconds = t.now().Sub(t.m.StartedAt).Seconds()
	}
}

// StartBlock opens the next block. Only one block may be in progress.
func (t *Tracker) StartBlock(bt BlockType, detail string, payload any, plannedSeconds float64) (*Block, error) {
	t.mu.Lock()
	if t.m == nil {
		t.mu.Unlock()
		return nil, ErrNoMatch
	}
	if t.m.Status != StatusInProgress {
		t.mu.Unlock()
		return nil, fmt.Errorf("start block: match status is %s", t.m.Status)
	}
	if t.m.Current != nil {
		t.mu.Unlock()
		return nil, ErrBlockActive
	}

	block := &Block{
		Type:           bt,
		Index:          len(t.m.History),
		StartedAt:      t.now(),
		PlannedSeconds: plannedSeconds,
		Detail:         detail,
		Payload:        payload,
	}
	t.m.Current = block
	t.m.CurrentBlockIndex = block.Index
	m := t.m
	t.mu.Unlock()

	t.notify("block_started", m)
	return block, nil
}

// CompleteBlock finalizes the in-progress block, appends it to history and
// auto-completes the match when the pattern is exhausted.
func (t *Tracker) CompleteBlock() (*Block, error) {
	t.mu.Lock()
	if t.m == nil {
		t.mu.Unlock()
		return nil, ErrNoMatch
	}
	if t.m.Current == nil {
		t.mu.Unlock()
		return nil, ErrNoActiveBlock
	}

	block := t.m.Current
	block.ActualSeconds = t.now().Sub(block.StartedAt).Seconds()
	t.m.History = append(t.m.History, *block)
	t.m.Current = nil
	t.m.CurrentBlockIndex = len(t.m.History) - 1
	t.m.ElapsedSeconds = t.now().Sub(t.m.StartedAt).Seconds()

	last := len(t.m.History) == len(t.m.Pattern)
	m := t.m
	t.mu.Unlock()

	t.notify("block_completed", m)
	if last {
		if err := t.CompleteMatch(); err != nil {
			t.logger.Warn().Err(err).Msg("auto-complete after final block failed")
		}
	}
	return block, nil
}

// CancelBlock discards the in-progress block without recording it. Used
// when a pause interrupts narration: the abandoned block is re-selected
// from scratch on resume.
func (t *Tracker) CancelBlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil || t.m.Current == nil {
		return
	}
	t.m.Current = nil
	t.m.CurrentBlockIndex = len(t.m.History) - 1
}

// MatchID returns the current match id.
func (t *Tracker) MatchID() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return uuid.Nil
	}
	return t.m.ID
}

// Status returns the current lifecycle status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return ""
	}
	return t.m.Status
}

// CurrentRoundNumber counts completed ROUND blocks.
func (t *Tracker) CurrentRoundNumber() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return 0
	}
	n := 0
	for _, b := range t.m.History {
		if b.Type == BlockRound {
			n++
		}
	}
	return n
}

// TotalRounds counts ROUND blocks in the pattern.
func (t *Tracker) TotalRounds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return 0
	}
	n := 0
	for _, b := range t.m.Pattern {
		if b == BlockRound {
			n++
		}
	}
	return n
}

// RecentHistory returns up to n most recent completed blocks, oldest first.
func (t *Tracker) RecentHistory(n int) []Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil || n <= 0 {
		return nil
	}
	h := t.m.History
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]Block(nil), h...)
}

// TimeSinceLastBlockOfType returns how long ago a block of the given type
// completed. The second return is false when none has.
func (t *Tracker) TimeSinceLastBlockOfType(bt BlockType) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return 0, false
	}
	for i := len(t.m.History) - 1; i >= 0; i-- {
		b := t.m.History[i]
		if b.Type == bt {
			end := b.StartedAt.Add(time.Duration(b.ActualSeconds * float64(time.Second)))
			return t.now().Sub(end), true
		}
	}
	return 0, false
}

// Progress returns percent of the pattern completed, 0-100, by block
// count. The block cursor reports its own position-based percentage;
// the two are intentionally separate metrics.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil || len(t.m.Pattern) == 0 {
		return 0
	}
	return float64(len(t.m.History)) / float64(len(t.m.Pattern)) * 100
}

// DifficultyTarget returns the 1-5 target for the next round, from the
// match's named curve and difficulty level.
func (t *Tracker) DifficultyTarget(round int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return 3
	}
	return curveTarget(t.m.Config.DifficultyCurve, t.m.Config.DifficultyLevel, round)
}

// Snapshot returns a deep read-only copy of the match for queries that
// need several fields consistently.
func (t *Tracker) Snapshot() (*Match, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return nil, false
	}
	snap := *t.m
	snap.Pattern = append([]BlockType(nil), t.m.Pattern...)
	snap.History = append([]Block(nil), t.m.History...)
	if t.m.Current != nil {
		cur := *t.m.Current
		snap.Current = &cur
	}
	return &snap, true
}

func (t *Tracker) notify(event string, m *Match) {
	t.mu.Lock()
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error().Str("event", event).Interface("panic", r).Msg("tracker listener panicked")
				}
			}()
			fn(event, m)
		}()
	}
}
