package variety

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/settings"
)

// Record is one recorded use of a selectable item.
type Record struct {
	At      time.Time `json:"at"`
	Round   int       `json:"round"`
	Context string    `json:"context"`
}

// Context carries the selection-time facts the enforcer needs.
type Context struct {
	Round int
	Label string
}

// Enforcer adjusts selection weights to discourage recently used and
// overused items and emergent repetition. Pure bookkeeping: no I/O.
type Enforcer struct {
	mu           sync.Mutex
	history      map[string][]Record
	detector     *Detector
	historyCap   int
	assumedRound time.Duration
	penalties    []float64
	minWeight    float64
	logger       zerolog.Logger
	now          func() time.Time
}

// NewEnforcer reads its tuning from the settings table.
func NewEnforcer(s *settings.Settings, logger zerolog.Logger) *Enforcer {
	penalties := s.Floats("variety.recencyPenalties")
	if len(penalties) == 0 {
		penalties = []float64{0.2, 0.5, 0.8, 1.0}
	}
	return &Enforcer{
		history:      make(map[string][]Record),
		detector:     NewDetector(s.Int("variety.sequenceCap", 10)),
		historyCap:   s.Int("variety.historyCap", 5),
		assumedRound: time.Duration(s.Float("variety.assumedRoundSeconds", 90) * float64(time.Second)),
		penalties:    penalties,
		minWeight:    s.Float("variety.minWeight", 0.1),
		logger:       logger.With().Str("component", "variety").Logger(),
		now:          time.Now,
	}
}

// AdjustWeight multiplies recency, pattern and diversity factors into the
// base weight. The result is floored above zero so no item is ever fully
// suppressed.
func (e *Enforcer) AdjustWeight(itemID string, base float64, ctx Context) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := base
	w *= e.recencyFactor(itemID)
	w *= e.patternFactor(itemID)
	w *= e.diversityFactor(itemID)

	if w < e.minWeight {
		w = e.minWeight
	}
	return w
}

// RecordSelection pushes a timestamped history entry and feeds the
// detector's raw sequence.
func (e *Enforcer) RecordSelection(itemID string, ctx Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := append(e.history[itemID], Record{At: e.now(), Round: ctx.Round, Context: ctx.Label})
	if len(records) > e.historyCap {
		records = records[len(records)-e.historyCap:]
	}
	e.history[itemID] = records
	e.detector.Record(itemID)
}

// recencyFactor converts the elapsed time since the item's latest use into
// an estimated rounds-since and indexes the penalty table. Items past the
// table return 1.0.
func (e *Enforcer) recencyFactor(itemID string) float64 {
	records := e.history[itemID]
	if len(records) == 0 {
		return 1.0
	}
	last := records[len(records)-1]
	elapsed := e.now().Sub(last.At)
	roundsSince := int(elapsed / e.assumedRound)
	if roundsSince >= len(e.penalties) {
		return 1.0
	}
	return e.penalties[roundsSince]
}

func (e *Enforcer) patternFactor(itemID string) float64 {
	if e.detector.WouldCreatePattern(itemID) {
		return 0.3
	}
	if e.detector.WouldBreakPattern(itemID) {
		return 1.5
	}
	return 1.0
}

// diversityFactor compares the item's total usage against the mean across
// all tracked items.
func (e *Enforcer) diversityFactor(itemID string) float64 {
	if len(e.history) == 0 {
		return 2.0
	}
	total := 0
	for _, records := range e.history {
		total += len(records)
	}
	mean := float64(total) / float64(len(e.history))
	uses := float64(len(e.history[itemID]))

	switch {
	case uses == 0:
		return 2.0
	case uses < mean*0.5:
		return 1.5
	case uses > mean*1.5:
		return 0.7
	default:
		return 1.0
	}
}

// Snapshot serializes the per-item history and the detector state.
type Snapshot struct {
	History  map[string][]Record `json:"history"`
	Detector DetectorSnapshot    `json:"detector"`
}

// Export copies the enforcer state for checkpointing.
func (e *Enforcer) Export() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make(map[string][]Record, len(e.history))
	for k, v := range e.history {
		history[k] = append([]Record(nil), v...)
	}
	return Snapshot{History: history, Detector: e.detector.snapshot()}
}

// Import replaces the enforcer state wholesale.
func (e *Enforcer) Import(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = make(map[string][]Record, len(snap.History))
	for k, v := range snap.History {
		e.history[k] = append([]Record(nil), v...)
	}
	e.detector.restore(snap.Detector)
}
