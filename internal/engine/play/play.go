package play

import "github.com/playroomlabs/partyhost/internal/engine/roster"

// Role names shared across round types.
const (
	RolePlayer1  = "player1"
	RolePlayer2  = "player2"
	RoleEveryone = "everyone"
	RoleTeamA    = "teamA"
	RoleTeamB    = "teamB"
)

// PerformanceHints travel with a play so the narrator can shade delivery
// without re-deriving match context.
type PerformanceHints struct {
	TargetDifficulty int
	RoundNumber      int
	TotalRounds      int
	Suspense         bool
}

// Play is one fully-specified round activity. It is assembled fresh for
// every round block, immutable once handed to the performer, and never
// reused.
type Play struct {
	RoundNumber     int
	RoundType       string
	Variant         string
	SubVariant      string
	Modifier        string // empty when no modifier was rolled
	Roles           map[string][]roster.Player
	DurationSeconds int
	Difficulty      int
	Scripts         []string
	Hints           PerformanceHints
}

// Participants returns every assigned player across all roles.
func (p *Play) Participants() []roster.Player {
	var out []roster.Player
	for _, players := range p.Roles {
		out = append(out, players...)
	}
	return out
}

// PlayerNames returns the display names of every participant.
func (p *Play) PlayerNames() []string {
	parts := p.Participants()
	names := make([]string, len(parts))
	for i, pl := range parts {
		names[i] = pl.Name
	}
	return names
}
