package pattern

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/internal/engine/match"
)

// Pattern is the predetermined block-type sequence for a match.
type Pattern struct {
	ID                 string
	Sequence           []match.BlockType
	RoundCount         int
	Adjusted           bool
	OriginalRoundCount int
}

// Pacing preference names accepted by Select.
const (
	PacingGentle     = "gentle"
	PacingIntense    = "intense"
	PacingConsistent = "consistent"
)

// Preferences narrow the candidate set. An explicit PatternID wins when it
// exists; both filters fall back rather than fail.
type Preferences struct {
	Pacing    string
	PatternID string
}

type template struct {
	id       string
	sequence []match.BlockType
}

// Library holds the registered block sequences and selects one per match.
// Selection never fails outright: missing round counts borrow the nearest
// registered pattern, and filters that empty the candidate set are dropped.
type Library struct {
	byRoundCount         map[int][]template
	rng                  *rand.Rand
	bus                  *events.Bus
	logger               zerolog.Logger
	maxConsecutiveRounds int
}

// NewLibrary creates a library pre-loaded with the built-in sequences.
func NewLibrary(bus *events.Bus, rng *rand.Rand, maxConsecutiveRounds int, logger zerolog.Logger) *Library {
	if maxConsecutiveRounds <= 0 {
		maxConsecutiveRounds = 4
	}
	l := &Library{
		byRoundCount:         make(map[int][]template),
		rng:                  rng,
		bus:                  bus,
		logger:               logger.With().Str("component", "pattern_library").Logger(),
		maxConsecutiveRounds: maxConsecutiveRounds,
	}
	l.registerBuiltins()
	return l
}

const (
	c  = match.BlockCeremony
	r  = match.BlockRound
	rx = match.BlockRelax
)

func (l *Library) registerBuiltins() {
	l.Register("sprint_3", []match.BlockType{c, r, r, r, c})
	l.Register("breather_3", []match.BlockType{c, r, rx, r, r, c})

	l.Register("classic_5", []match.BlockType{c, r, r, rx, r, r, r, c})
	l.Register("gentle_5", []match.BlockType{c, r, rx, r, r, rx, r, r, c})
	l.Register("intense_5", []match.BlockType{c, r, r, r, r, r, c})

	l.Register("classic_7", []match.BlockType{c, r, r, rx, r, r, rx, r, r, r, c})
	l.Register("gentle_7", []match.BlockType{c, r, rx, r, r, rx, r, r, rx, r, r, c})

	l.Register("marathon_10", []match.BlockType{c, r, r, r, rx, r, r, r, rx, r, r, r, rx, r, c})
	l.Register("steady_10", []match.BlockType{c, r, r, rx, r, r, rx, r, r, rx, r, r, rx, r, r, c})
}

// Register adds a candidate sequence, keyed by its round-block count.
func (l *Library) Register(id string, sequence []match.BlockType) {
	rounds := countRounds(sequence)
	l.byRoundCount[rounds] = append(l.byRoundCount[rounds], template{
		id:       id,
		sequence: append([]match.BlockType(nil), sequence...),
	})
}

// Select picks a pattern for the requested round count. Structural rule
// violations are logged, never fatal.
func (l *Library) Select(roundCount int, prefs Preferences) *Pattern {
	candidates, exact := l.candidatesFor(roundCount)

	if prefs.PatternID != "" {
		for _, t := range candidates {
			if t.id == prefs.PatternID {
				return l.finish(t, roundCount, exact)
			}
		}
		l.logger.Warn().Str("pattern_id", prefs.PatternID).Msg("requested pattern not found, selecting randomly")
	}

	filtered := l.filterByPacing(candidates, prefs.Pacing)
	if len(filtered) == 0 {
		// A preference must never make selection fail.
		filtered = candidates
	}

	chosen := filtered[l.rng.Intn(len(filtered))]
	return l.finish(chosen, roundCount, exact)
}

func (l *Library) finish(t template, roundCount int, exact bool) *Pattern {
	p := &Pattern{
		ID:                 t.id,
		Sequence:           append([]match.BlockType(nil), t.sequence...),
		RoundCount:         roundCount,
		OriginalRoundCount: countRounds(t.sequence),
	}
	if !exact {
		p.Sequence = adjustRounds(p.Sequence, roundCount)
		p.Adjusted = true
	}
	l.validate(p)

	if l.bus != nil {
		seq := make([]string, len(p.Sequence))
		for i, bt := range p.Sequence {
			seq[i] = string(bt)
		}
		l.bus.Publish(events.PatternSelected{
			PatternID:  p.ID,
			Sequence:   seq,
			RoundCount: p.RoundCount,
			Adjusted:   p.Adjusted,
		})
	}
	return p
}

// candidatesFor returns the templates registered for roundCount, or the
// nearest registered count's templates when none exist.
func (l *Library) candidatesFor(roundCount int) ([]template, bool) {
	if ts, ok := l.byRoundCount[roundCount]; ok && len(ts) > 0 {
		return ts, true
	}

	counts := make([]int, 0, len(l.byRoundCount))
	for count := range l.byRoundCount {
		counts = append(counts, count)
	}
	sort.Ints(counts)

	nearest := counts[0]
	for _, count := range counts {
		if abs(count-roundCount) < abs(nearest-roundCount) {
			nearest = count
		}
	}
	l.logger.Info().
		Int("requested", roundCount).
		Int("nearest", nearest).
		Msg("no pattern for round count, adjusting nearest")
	return l.byRoundCount[nearest], false
}

// adjustRounds stretches or shrinks the round blocks adjacent to the
// closing ceremony until the round count matches the request.
func adjustRounds(sequence []match.BlockType, target int) []match.BlockType {
	seq := append([]match.BlockType(nil), sequence...)
	for countRounds(seq) < target {
		insertAt := len(seq) - 1 // just before the closing ceremony
		seq = append(seq[:insertAt], append([]match.BlockType{match.BlockRound}, seq[insertAt:]...)...)
	}
	for countRounds(seq) > target {
		removed := false
		for i := len(seq) - 2; i >= 0; i-- {
			if seq[i] == match.BlockRound {
				seq = append(seq[:i], seq[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			break
		}
	}
	return seq
}

func (l *Library) filterByPacing(candidates []template, pacing string) []template {
	if pacing == "" {
		return candidates
	}
	var out []template
	for _, t := range candidates {
		if matchesPacing(t.sequence, pacing) {
			out = append(out, t)
		}
	}
	return out
}

func matchesPacing(sequence []match.BlockType, pacing string) bool {
	rounds := countRounds(sequence)
	relaxes := 0
	for _, bt := range sequence {
		if bt == match.BlockRelax {
			relaxes++
		}
	}
	if rounds == 0 {
		return false
	}
	ratio := float64(relaxes) / float64(rounds)

	switch pacing {
	case PacingGentle:
		return ratio >= 0.2
	case PacingIntense:
		return ratio <= 0.3
	case PacingConsistent:
		return roundSpacingVariance(sequence) <= 0.75
	default:
		return true
	}
}

// roundSpacingVariance measures how evenly rounds are spread through the
// sequence: the variance of gaps between consecutive round indexes.
func roundSpacingVariance(sequence []match.BlockType) float64 {
	var indexes []int
	for i, bt := range sequence {
		if bt == match.BlockRound {
			indexes = append(indexes, i)
		}
	}
	if len(indexes) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(indexes)-1)
	sum := 0.0
	for i := 1; i < len(indexes); i++ {
		gap := float64(indexes[i] - indexes[i-1])
		gaps = append(gaps, gap)
		sum += gap
	}
	mean := sum / float64(len(gaps))
	variance := 0.0
	for _, gap := range gaps {
		variance += (gap - mean) * (gap - mean)
	}
	return variance / float64(len(gaps))
}

// validate logs structural rule violations. Selection proceeds anyway:
// a playable-if-odd pattern beats a failed match start.
func (l *Library) validate(p *Pattern) {
	seq := p.Sequence
	if len(seq) < 2 {
		l.logger.Warn().Str("pattern_id", p.ID).Msg("pattern too short")
		return
	}
	if seq[0] != match.BlockCeremony {
		l.logger.Warn().Str("pattern_id", p.ID).Msg("pattern does not open with a ceremony")
	}
	if seq[len(seq)-1] != match.BlockCeremony {
		l.logger.Warn().Str("pattern_id", p.ID).Msg("pattern does not close with a ceremony")
	}
	if seq[len(seq)-2] == match.BlockRelax {
		l.logger.Warn().Str("pattern_id", p.ID).Msg("pattern ends on a relax before the closing ceremony")
	}
	run := 0
	for _, bt := range seq {
		if bt == match.BlockRound {
			run++
			if run > l.maxConsecutiveRounds {
				l.logger.Warn().
					Str("pattern_id", p.ID).
					Int("max", l.maxConsecutiveRounds).
					Msg("pattern exceeds max consecutive rounds")
				break
			}
		} else {
			run = 0
		}
	}
	if got := countRounds(seq); got != p.RoundCount {
		l.logger.Warn().
			Str("pattern_id", p.ID).
			Int("want", p.RoundCount).
			Int("got", got).
			Msg("pattern round count mismatch")
	}
}

func countRounds(sequence []match.BlockType) int {
	n := 0
	for _, bt := range sequence {
		if bt == match.BlockRound {
			n++
		}
	}
	return n
}

func abs(n int) int {
	return int(math.Abs(float64(n)))
}
