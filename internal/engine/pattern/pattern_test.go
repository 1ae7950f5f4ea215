package pattern

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/internal/engine/match"
)

func testLibrary(bus *events.Bus) *Library {
	return NewLibrary(bus, rand.New(rand.NewSource(1)), 4, zerolog.Nop())
}

func TestSelectExplicitPatternID(t *testing.T) {
	l := testLibrary(nil)

	p := l.Select(5, Preferences{PatternID: "classic_5"})

	require.NotNil(t, p)
	assert.Equal(t, "classic_5", p.ID)
	assert.False(t, p.Adjusted)
	assert.Equal(t, []match.BlockType{
		match.BlockCeremony,
		match.BlockRound, match.BlockRound,
		match.BlockRelax,
		match.BlockRound, match.BlockRound, match.BlockRound,
		match.BlockCeremony,
	}, p.Sequence)
}

func TestSelectUnknownIDFallsBackToRandom(t *testing.T) {
	l := testLibrary(nil)

	p := l.Select(5, Preferences{PatternID: "does_not_exist"})

	require.NotNil(t, p)
	assert.Equal(t, 5, countRounds(p.Sequence))
}

func TestSelectPublishesEvent(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var got events.PatternSelected
	bus.Subscribe(events.TopicPatternSelected, func(e events.Event) {
		got = e.(events.PatternSelected)
	})

	l := testLibrary(bus)
	p := l.Select(7, Preferences{})

	assert.Equal(t, p.ID, got.PatternID)
	assert.Equal(t, 7, got.RoundCount)
	assert.Len(t, got.Sequence, len(p.Sequence))
}

func TestSelectAdjustsNearestRoundCountUp(t *testing.T) {
	l := testLibrary(nil)

	p := l.Select(4, Preferences{})

	require.NotNil(t, p)
	assert.True(t, p.Adjusted)
	assert.Equal(t, 4, countRounds(p.Sequence))
	// Rounds are inserted directly before the closing ceremony.
	seq := p.Sequence
	assert.Equal(t, match.BlockCeremony, seq[len(seq)-1])
	assert.Equal(t, match.BlockRound, seq[len(seq)-2])
}

func TestSelectAdjustsNearestRoundCountDown(t *testing.T) {
	l := testLibrary(nil)

	p := l.Select(9, Preferences{})

	require.NotNil(t, p)
	assert.True(t, p.Adjusted)
	assert.Equal(t, 9, countRounds(p.Sequence))
	assert.Equal(t, match.BlockCeremony, p.Sequence[0])
	assert.Equal(t, match.BlockCeremony, p.Sequence[len(p.Sequence)-1])
}

func TestSelectPacingFilterFallsBackWhenEmpty(t *testing.T) {
	l := testLibrary(nil)

	// A pacing preference must never make selection fail outright.
	for i := 0; i < 20; i++ {
		p := l.Select(3, Preferences{Pacing: PacingGentle})
		require.NotNil(t, p)
		assert.Equal(t, 3, countRounds(p.Sequence))
	}
}

func TestSelectGentlePrefersRelaxHeavy(t *testing.T) {
	l := testLibrary(nil)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p := l.Select(5, Preferences{Pacing: PacingGentle})
		seen[p.ID] = true
	}
	assert.True(t, seen["gentle_5"])
	assert.True(t, seen["classic_5"], "a 0.2 relax-to-round ratio is exactly the gentle floor")
	assert.False(t, seen["intense_5"], "intense_5 has no relax blocks")
}

func TestSelectIntenseAllowsModerateRelaxRatio(t *testing.T) {
	l := testLibrary(nil)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p := l.Select(5, Preferences{Pacing: PacingIntense})
		seen[p.ID] = true
	}
	assert.True(t, seen["intense_5"])
	assert.True(t, seen["classic_5"], "a 0.2 relax-to-round ratio is within the intense ceiling")
	assert.False(t, seen["gentle_5"], "gentle_5 relax ratio is above the intense ceiling")
}

func TestCursorPeekAndConfirm(t *testing.T) {
	l := testLibrary(nil)
	p := l.Select(5, Preferences{PatternID: "classic_5"})
	cur := NewCursor(p, zerolog.Nop())

	first, ok := cur.Next()
	require.True(t, ok)
	assert.Equal(t, match.BlockCeremony, first.BlockType)
	assert.True(t, first.IsFirstBlock)

	// Peeking again returns the same block.
	again, ok := cur.Next()
	require.True(t, ok)
	assert.Equal(t, first.Index, again.Index)

	cur.ConfirmBlockStart(0)
	second, ok := cur.Next()
	require.True(t, ok)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, match.BlockRound, second.BlockType)
	assert.Equal(t, 1, second.RoundNumber)
}

func TestCursorExhaustion(t *testing.T) {
	l := testLibrary(nil)
	p := l.Select(3, Preferences{PatternID: "sprint_3"})
	cur := NewCursor(p, zerolog.Nop())

	for i := 0; i < len(p.Sequence); i++ {
		_, ok := cur.Next()
		require.True(t, ok)
		cur.ConfirmBlockStart(i)
	}

	_, ok := cur.Next()
	assert.False(t, ok)
	assert.True(t, cur.Done())
	assert.InDelta(t, 100, cur.Progress(), 0.001)
}

func TestCursorContextRoundsSinceRelax(t *testing.T) {
	l := testLibrary(nil)
	p := l.Select(5, Preferences{PatternID: "classic_5"})
	cur := NewCursor(p, zerolog.Nop())

	// classic_5: C R R RX R R R C
	ctx := cur.Context(4) // first round after the relax
	assert.Equal(t, match.BlockRound, ctx.BlockType)
	assert.Equal(t, 3, ctx.RoundNumber)
	assert.Equal(t, 0, ctx.RoundsSinceRelax)

	ctx = cur.Context(6) // third round after the relax
	assert.Equal(t, 5, ctx.RoundNumber)
	assert.Equal(t, 2, ctx.RoundsSinceRelax)

	ctx = cur.Context(2) // before any relax, two rounds played
	assert.Equal(t, 1, ctx.RoundsSinceRelax)

	ctx = cur.Context(3)
	assert.Equal(t, match.BlockRelax, ctx.BlockType)
	assert.Equal(t, 1, ctx.RelaxOrdinal)

	ctx = cur.Context(7)
	assert.True(t, ctx.IsLastBlock)
	assert.Equal(t, match.BlockType(""), ctx.NextBlockType)
	assert.Equal(t, "late", ctx.Phase)

	assert.Equal(t, "early", cur.Context(0).Phase)
}

func TestCursorSkipToIndexClamps(t *testing.T) {
	l := testLibrary(nil)
	p := l.Select(5, Preferences{PatternID: "classic_5"})
	cur := NewCursor(p, zerolog.Nop())

	cur.SkipToIndex(4)
	assert.Equal(t, 4, cur.Position())

	cur.SkipToIndex(-3)
	assert.Equal(t, 0, cur.Position())

	cur.SkipToIndex(99)
	assert.True(t, cur.Done())
}

func TestCursorConfirmMismatchResyncs(t *testing.T) {
	l := testLibrary(nil)
	p := l.Select(5, Preferences{PatternID: "classic_5"})
	cur := NewCursor(p, zerolog.Nop())

	cur.ConfirmBlockStart(2)
	assert.Equal(t, 3, cur.Position())
}

func TestVisualization(t *testing.T) {
	l := testLibrary(nil)
	p := l.Select(3, Preferences{PatternID: "sprint_3"})
	cur := NewCursor(p, zerolog.Nop())

	assert.Equal(t, "|C R R R C", cur.Visualization())

	cur.ConfirmBlockStart(0)
	cur.ConfirmBlockStart(1)
	assert.Equal(t, "c r|R R C", cur.Visualization())
}
