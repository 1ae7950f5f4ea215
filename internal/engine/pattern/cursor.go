package pattern

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/match"
)

// Context describes the block at a cursor position with enough surrounding
// information for selection and narration to act on it.
type Context struct {
	Index            int
	BlockType        match.BlockType
	RoundNumber      int // 1-based among round blocks, 0 for non-rounds
	TotalRounds      int
	RoundsSinceRelax int
	RelaxOrdinal     int // 1-based among relax blocks, 0 for non-relax
	IsFirstBlock     bool
	IsLastBlock      bool
	NextBlockType    match.BlockType // empty on the last block
	ProgressPercent  float64
	Phase            string // early, mid, late (thirds of the sequence)
}

// Cursor walks a pattern's sequence. Next is an idempotent peek; the
// position only advances when the tracker confirms a block actually
// started, so a failed or paused block is re-offered.
type Cursor struct {
	pattern *Pattern
	pos     int
	logger  zerolog.Logger
}

func NewCursor(p *Pattern, logger zerolog.Logger) *Cursor {
	return &Cursor{
		pattern: p,
		logger:  logger.With().Str("component", "pattern_cursor").Logger(),
	}
}

// Next returns the context for the upcoming block without advancing.
// ok is false once the sequence is exhausted.
func (c *Cursor) Next() (Context, bool) {
	if c.pos >= len(c.pattern.Sequence) {
		return Context{}, false
	}
	return c.contextAt(c.pos), true
}

// ConfirmBlockStart advances past the block at index. A mismatch with the
// current position is logged and the cursor resyncs to index+1.
func (c *Cursor) ConfirmBlockStart(index int) {
	if index != c.pos {
		c.logger.Warn().
			Int("expected", c.pos).
			Int("confirmed", index).
			Msg("cursor out of sync with started block")
	}
	c.pos = index + 1
}

// SkipToIndex repositions the cursor, clamped to the sequence bounds.
// Used when restoring a match from a checkpoint.
func (c *Cursor) SkipToIndex(index int) {
	if index < 0 {
		index = 0
	}
	if index > len(c.pattern.Sequence) {
		index = len(c.pattern.Sequence)
	}
	c.pos = index
}

// Done reports whether every block has been confirmed.
func (c *Cursor) Done() bool {
	return c.pos >= len(c.pattern.Sequence)
}

// Position returns the index of the next unconfirmed block.
func (c *Cursor) Position() int {
	return c.pos
}

// Progress is the percentage of blocks confirmed so far.
func (c *Cursor) Progress() float64 {
	if len(c.pattern.Sequence) == 0 {
		return 0
	}
	return float64(c.pos) / float64(len(c.pattern.Sequence)) * 100
}

// Context returns the enriched context for an arbitrary index.
func (c *Cursor) Context(index int) Context {
	return c.contextAt(index)
}

func (c *Cursor) contextAt(index int) Context {
	seq := c.pattern.Sequence
	ctx := Context{
		Index:           index,
		BlockType:       seq[index],
		TotalRounds:     c.pattern.RoundCount,
		IsFirstBlock:    index == 0,
		IsLastBlock:     index == len(seq)-1,
		ProgressPercent: float64(index) / float64(len(seq)) * 100,
	}
	if index+1 < len(seq) {
		ctx.NextBlockType = seq[index+1]
	}

	switch {
	case ctx.ProgressPercent < 100.0/3:
		ctx.Phase = "early"
	case ctx.ProgressPercent >= 200.0/3:
		ctx.Phase = "late"
	default:
		ctx.Phase = "mid"
	}

	switch seq[index] {
	case match.BlockRound:
		n := 0
		for i := 0; i <= index; i++ {
			if seq[i] == match.BlockRound {
				n++
			}
		}
		ctx.RoundNumber = n
	case match.BlockRelax:
		n := 0
		for i := 0; i <= index; i++ {
			if seq[i] == match.BlockRelax {
				n++
			}
		}
		ctx.RelaxOrdinal = n
	}

	// Rounds played since the last relax (or since the start when the
	// pattern has no relax yet).
	since := 0
	for i := index - 1; i >= 0; i-- {
		if seq[i] == match.BlockRelax {
			break
		}
		if seq[i] == match.BlockRound {
			since++
		}
	}
	ctx.RoundsSinceRelax = since

	return ctx
}

// Visualization renders the sequence as a compact marker string, the
// confirmed prefix lowercased: "c r r |RX R R R C" with the cursor bar.
func (c *Cursor) Visualization() string {
	marks := map[match.BlockType]string{
		match.BlockCeremony: "C",
		match.BlockRound:    "R",
		match.BlockRelax:    "RX",
	}
	var b strings.Builder
	for i, bt := range c.pattern.Sequence {
		if i == c.pos {
			b.WriteString("|")
		} else if i > 0 {
			b.WriteString(" ")
		}
		m := marks[bt]
		if i < c.pos {
			m = strings.ToLower(m)
		}
		b.WriteString(m)
	}
	if c.pos == len(c.pattern.Sequence) {
		b.WriteString("|")
	}
	return b.String()
}
