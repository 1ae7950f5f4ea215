package script

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playroomlabs/partyhost/internal/engine/play"
	"github.com/playroomlabs/partyhost/internal/engine/roster"
)

func player(name string) roster.Player {
	return roster.Player{ID: uuid.New(), Name: name}
}

func TestAssembleDuelPlay(t *testing.T) {
	a := NewAssembler(zerolog.Nop())
	p := &play.Play{
		RoundNumber:     2,
		RoundType:       "duel",
		Variant:         "quickdraw",
		SubVariant:      "normal",
		DurationSeconds: 43,
		Roles: map[string][]roster.Player{
			play.RolePlayer1: {player("Alice")},
			play.RolePlayer2: {player("Bob")},
		},
		Hints: play.PerformanceHints{RoundNumber: 2, TotalRounds: 5},
	}

	lines := a.AssembleForPlay(p)
	require.NotEmpty(t, lines)

	joined := strings.Join(lines, " ")
	assert.Contains(t, joined, "Alice versus Bob")
	assert.Contains(t, joined, "Round 2 of 5")
	assert.Contains(t, joined, "43 seconds")
	assert.Contains(t, joined, "[medium]", "pause markers pass through untouched")
	assert.NotContains(t, joined, "{", "every token must be substituted")
}

func TestAssembleFinalRoundSuspense(t *testing.T) {
	a := NewAssembler(zerolog.Nop())
	p := &play.Play{
		RoundNumber:     5,
		RoundType:       "freeForAll",
		Variant:         "statues",
		SubVariant:      "normal",
		DurationSeconds: 50,
		Roles: map[string][]roster.Player{
			play.RoleEveryone: {player("A"), player("B"), player("C")},
		},
		Hints: play.PerformanceHints{RoundNumber: 5, TotalRounds: 5, Suspense: true},
	}

	lines := a.AssembleForPlay(p)
	last := lines[len(lines)-1]
	assert.Contains(t, last, "final round")
	assert.Contains(t, last, "[dramatic]")
}

func TestAssembleModifierAndSubVariantLines(t *testing.T) {
	a := NewAssembler(zerolog.Nop())
	p := &play.Play{
		RoundNumber:     1,
		RoundType:       "freeForAll",
		Variant:         "floorIsLava",
		SubVariant:      "crabWalk",
		Modifier:        "silent",
		DurationSeconds: 50,
		Roles: map[string][]roster.Player{
			play.RoleEveryone: {player("A"), player("B"), player("C")},
		},
		Hints: play.PerformanceHints{RoundNumber: 1, TotalRounds: 3},
	}

	joined := strings.Join(a.AssembleForPlay(p), " ")
	assert.Contains(t, joined, "Crab walk")
	assert.Contains(t, joined, "Total silence")
}

func TestAssembleTeamAnnouncesRosters(t *testing.T) {
	a := NewAssembler(zerolog.Nop())
	p := &play.Play{
		RoundNumber:     1,
		RoundType:       "team",
		Variant:         "tugOfWar",
		SubVariant:      "normal",
		DurationSeconds: 60,
		Roles: map[string][]roster.Player{
			"red":  {player("Alice"), player("Bob")},
			"blue": {player("Carol"), player("Dave")},
		},
		Hints: play.PerformanceHints{RoundNumber: 1, TotalRounds: 5},
	}

	joined := strings.Join(a.AssembleForPlay(p), " ")
	assert.Contains(t, joined, "Team blue: Carol and Dave.")
	assert.Contains(t, joined, "Team red: Alice and Bob.")
	assert.Contains(t, joined, "tug of war")
}

func TestAssembleAsymmetricAnnouncesRoles(t *testing.T) {
	a := NewAssembler(zerolog.Nop())
	p := &play.Play{
		RoundNumber:     1,
		RoundType:       "asymmetric",
		Variant:         "infection",
		SubVariant:      "normal",
		DurationSeconds: 60,
		Roles: map[string][]roster.Player{
			"infected":  {player("Mallory")},
			"survivors": {player("Alice"), player("Bob"), player("Carol")},
		},
		Hints: play.PerformanceHints{RoundNumber: 1, TotalRounds: 5},
	}

	joined := strings.Join(a.AssembleForPlay(p), " ")
	assert.Contains(t, joined, "The infected: Mallory.")
	assert.Contains(t, joined, "The survivors: Alice, Bob and Carol.")
}

func TestAssembleCeremonies(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	opening := strings.Join(a.AssembleCeremony("opening", 5, 0), " ")
	assert.Contains(t, opening, "Welcome")
	assert.Contains(t, opening, "5 rounds")

	closing := strings.Join(a.AssembleCeremony("closing", 5, 752), " ")
	assert.Contains(t, closing, "5 rounds in 12 minutes")
}

func TestAssembleRelax(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	lines := a.AssembleRelax("breathing")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Deep breath in")

	lines = a.AssembleRelax("shadowBoxing")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shadowBoxing")
}

func TestUnknownTokenLeftInPlace(t *testing.T) {
	a := NewAssembler(zerolog.Nop())
	out := a.fill("Hello {nobody}", map[string]string{"somebody": "x"})
	assert.Equal(t, "Hello {nobody}", out)
}

func TestJoinNames(t *testing.T) {
	assert.Equal(t, "", joinNames(nil))
	assert.Equal(t, "Alice", joinNames([]string{"Alice"}))
	assert.Equal(t, "Alice and Bob", joinNames([]string{"Alice", "Bob"}))
	assert.Equal(t, "Alice, Bob and Carol", joinNames([]string{"Alice", "Bob", "Carol"}))
}
