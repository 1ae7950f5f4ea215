package play

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/internal/engine/roster"
	"github.com/playroomlabs/partyhost/internal/engine/settings"
	"github.com/playroomlabs/partyhost/internal/engine/variety"
)

var (
	// ErrNoEligibleRoundType means every round type was filtered out by
	// player-count eligibility. That is a configuration problem the
	// selector cannot recover from.
	ErrNoEligibleRoundType = errors.New("no eligible round type for current player count")

	// ErrNoVariants means the chosen round type has an empty variant list.
	ErrNoVariants = errors.New("round type has no variants configured")

	// ErrNotEnoughPlayers means role assignment could not be satisfied.
	ErrNotEnoughPlayers = errors.New("not enough active players for role assignment")
)

// Context carries everything a single selection needs to know about the
// match around it.
type Context struct {
	RoundNumber      int
	TotalRounds      int
	TargetDifficulty int
	RoundsSinceRelax int
	ProgressPercent  float64
}

// Selector cascades weighted choices (round type, variant, sub-variant,
// modifier, players, duration) into one play. Every random draw goes
// through Pick with the injected rng.
type Selector struct {
	settings *settings.Settings
	roster   *roster.Registry
	variety  *variety.Enforcer
	bus      *events.Bus
	rng      *rand.Rand
	logger   zerolog.Logger
}

func NewSelector(
	s *settings.Settings,
	reg *roster.Registry,
	enf *variety.Enforcer,
	bus *events.Bus,
	rng *rand.Rand,
	logger zerolog.Logger,
) *Selector {
	return &Selector{
		settings: s,
		roster:   reg,
		variety:  enf,
		bus:      bus,
		rng:      rng,
		logger:   logger.With().Str("component", "play_selector").Logger(),
	}
}

// SelectPlay builds the play for one round block. Errors are fatal to the
// selection attempt; the caller decides what the match does next.
func (sel *Selector) SelectPlay(ctx Context) (*Play, error) {
	active := sel.roster.ActivePlayers()
	vctx := variety.Context{Round: ctx.RoundNumber, Label: "round"}

	roundType, err := sel.pickRoundType(len(active), vctx)
	if err != nil {
		return nil, err
	}

	variant, variantDiff, err := sel.pickVariant(roundType, vctx)
	if err != nil {
		return nil, err
	}

	subVariant, subDiff := sel.pickSubVariant(ctx.TargetDifficulty, vctx)
	modifier, modDiff := sel.pickModifier(ctx.TargetDifficulty, subDiff, vctx)

	difficulty := clampDifficulty(1 + variantDiff + subDiff + modDiff)

	roles, err := sel.assignPlayers(roundType, variant, active)
	if err != nil {
		return nil, fmt.Errorf("assign players for %s: %w", roundType, err)
	}

	duration := sel.computeDuration(roundType, difficulty, ctx.ProgressPercent)

	p := &Play{
		RoundNumber:     ctx.RoundNumber,
		RoundType:       roundType,
		Variant:         variant,
		SubVariant:      subVariant,
		Modifier:        modifier,
		Roles:           roles,
		DurationSeconds: duration,
		Difficulty:      difficulty,
		Hints: PerformanceHints{
			TargetDifficulty: ctx.TargetDifficulty,
			RoundNumber:      ctx.RoundNumber,
			TotalRounds:      ctx.TotalRounds,
			Suspense:         ctx.RoundNumber == ctx.TotalRounds,
		},
	}

	sel.recordSideEffects(p, ctx)

	if sel.bus != nil {
		sel.bus.Publish(events.PlaySelected{
			RoundNumber: p.RoundNumber,
			RoundType:   p.RoundType,
			Variant:     p.Variant,
			SubVariant:  p.SubVariant,
			Modifier:    p.Modifier,
			Difficulty:  p.Difficulty,
			Duration:    p.DurationSeconds,
			PlayerNames: p.PlayerNames(),
		})
	}

	sel.logger.Info().
		Int("round", p.RoundNumber).
		Str("round_type", p.RoundType).
		Str("variant", p.Variant).
		Str("sub_variant", p.SubVariant).
		Str("modifier", p.Modifier).
		Int("difficulty", p.Difficulty).
		Int("duration_s", p.DurationSeconds).
		Msg("play selected")

	return p, nil
}

// pickRoundType filters by player-count eligibility, scales base weights
// by the group-size bucket, then adjusts for variety.
func (sel *Selector) pickRoundType(activeCount int, vctx variety.Context) (string, error) {
	types := sel.settings.Section("roundTypes")
	smallMax := sel.settings.Int("playerCounts.smallMax", 6)
	largeMin := sel.settings.Int("playerCounts.largeMin", 20)

	bucket := ""
	switch {
	case activeCount <= smallMax:
		bucket = "small"
	case activeCount >= largeMin:
		bucket = "large"
	}

	ids := make([]string, 0, len(types))
	for id := range types {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic candidate order for seeded draws

	var candidates []Candidate[string]
	for _, id := range ids {
		prefix := "roundTypes." + id
		minPlayers := sel.settings.Int(prefix+".minPlayers", 2)
		maxPlayers := sel.settings.Int(prefix+".maxPlayers", 0)
		if activeCount < minPlayers {
			continue
		}
		if maxPlayers > 0 && activeCount > maxPlayers {
			continue
		}

		w := sel.settings.Float(prefix+".weight", 1.0)
		if bucket != "" {
			w *= sel.settings.Float("playerCounts."+bucket+"."+id, 1.0)
		}
		w = sel.variety.AdjustWeight(id, w, vctx)
		candidates = append(candidates, Candidate[string]{Item: id, Weight: w})
	}
	if len(candidates) == 0 {
		return "", ErrNoEligibleRoundType
	}

	chosen, _ := Pick(sel.rng, candidates)
	return chosen, nil
}

func (sel *Selector) pickVariant(roundType string, vctx variety.Context) (string, int, error) {
	variants := sel.settings.List("roundTypes." + roundType + ".variants")
	if len(variants) == 0 {
		return "", 0, fmt.Errorf("%w: %s", ErrNoVariants, roundType)
	}

	type entry struct {
		id   string
		diff int
	}
	var candidates []Candidate[entry]
	for _, v := range variants {
		id, _ := v["id"].(string)
		if id == "" {
			continue
		}
		e := entry{id: id, diff: intValue(v["difficulty"])}
		w := sel.variety.AdjustWeight(id, 1.0, vctx)
		candidates = append(candidates, Candidate[entry]{Item: e, Weight: w})
	}
	if len(candidates) == 0 {
		return "", 0, fmt.Errorf("%w: %s", ErrNoVariants, roundType)
	}

	chosen, _ := Pick(sel.rng, candidates)
	return chosen.id, chosen.diff, nil
}

// pickSubVariant filters the universal movement list down to entries whose
// intrinsic difficulty fits under the target, then draws variety-adjusted.
func (sel *Selector) pickSubVariant(target int, vctx variety.Context) (string, int) {
	limit := target - 1
	if limit > 2 {
		limit = 2
	}
	if limit < 0 {
		limit = 0
	}

	type entry struct {
		id   string
		diff int
	}
	var candidates []Candidate[entry]
	for _, v := range sel.settings.List("subVariants") {
		id, _ := v["id"].(string)
		diff := intValue(v["difficulty"])
		if id == "" || diff > limit {
			continue
		}
		w := sel.variety.AdjustWeight(id, 1.0, vctx)
		candidates = append(candidates, Candidate[entry]{Item: entry{id, diff}, Weight: w})
	}
	if len(candidates) == 0 {
		// "normal" is always a legal fallback.
		return "normal", 0
	}
	chosen, _ := Pick(sel.rng, candidates)
	return chosen.id, chosen.diff
}

// pickModifier rolls whether a modifier applies at all, then draws one
// from the options that fit the remaining difficulty budget and are not
// excluded for accessibility.
func (sel *Selector) pickModifier(target, subVariantDiff int, vctx variety.Context) (string, int) {
	base := sel.settings.Float("modifiers.baseProbability", 0.35)
	prob := base * float64(target) / 3.0
	if sel.rng.Float64() >= prob {
		return "", 0
	}

	excluded := make(map[string]bool)
	for _, id := range sel.settings.Strings("modifiers.excluded") {
		excluded[id] = true
	}
	budget := 5 - subVariantDiff - 1

	type entry struct {
		id   string
		diff int
	}
	var candidates []Candidate[entry]
	for _, v := range sel.settings.List("modifiers.options") {
		id, _ := v["id"].(string)
		diff := intValue(v["difficulty"])
		if id == "" || excluded[id] || diff > budget {
			continue
		}
		w := sel.variety.AdjustWeight(id, 1.0, vctx)
		candidates = append(candidates, Candidate[entry]{Item: entry{id, diff}, Weight: w})
	}
	if len(candidates) == 0 {
		return "", 0
	}
	chosen, _ := Pick(sel.rng, candidates)
	return chosen.id, chosen.diff
}

// assignPlayers maps players to roles according to the round type.
func (sel *Selector) assignPlayers(roundType, variant string, active []roster.Player) (map[string][]roster.Player, error) {
	switch roundType {
	case "duel":
		return sel.assignDuel(active)
	case "team":
		return sel.assignTeams(active)
	case "asymmetric":
		return sel.assignAsymmetric(variant, active)
	default: // freeForAll and anything unrecognized plays everyone
		return map[string][]roster.Player{RoleEveryone: append([]roster.Player(nil), active...)}, nil
	}
}

// assignDuel picks player1 by fairness weight, then player2 from the rest
// with a penalty for recent partners and a bonus for cross-team pairings.
// Repeats are discouraged, never forbidden.
func (sel *Selector) assignDuel(active []roster.Player) (map[string][]roster.Player, error) {
	if len(active) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	weights := sel.roster.SelectionWeights(playerIDs(active))

	first := make([]Candidate[roster.Player], 0, len(active))
	for _, p := range active {
		first = append(first, Candidate[roster.Player]{Item: p, Weight: weights[p.ID]})
	}
	p1, _ := Pick(sel.rng, first)

	partnerPenalty := sel.settings.Float("fairness.partnerPenalty", 0.5)
	crossTeamBonus := sel.settings.Float("fairness.crossTeamBonus", 1.2)

	second := make([]Candidate[roster.Player], 0, len(active)-1)
	for _, p := range active {
		if p.ID == p1.ID {
			continue
		}
		w := weights[p.ID]
		var mods []WeightModifier
		if sel.roster.WereRecentPartners(p1.ID, p.ID) {
			mods = append(mods, WeightModifier{Factor: partnerPenalty, Reason: "recent_partner"})
		}
		if p.TeamID != "" && p1.TeamID != "" && p.TeamID != p1.TeamID {
			mods = append(mods, WeightModifier{Factor: crossTeamBonus, Reason: "cross_team"})
		}
		w, _ = ApplyWeightModifiers(w, mods)
		second = append(second, Candidate[roster.Player]{Item: p, Weight: w})
	}
	p2, _ := Pick(sel.rng, second)

	return map[string][]roster.Player{
		RolePlayer1: {p1},
		RolePlayer2: {p2},
	}, nil
}

// assignTeams splits the active players across detected teams, or bisects
// evenly when fewer than two teams exist. Oversized teams field a fair
// subset drawn by selection weight.
func (sel *Selector) assignTeams(active []roster.Player) (map[string][]roster.Player, error) {
	if len(active) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	teamCap := sel.settings.Int("fairness.teamCap", 5)

	byTeam := make(map[string][]roster.Player)
	for _, p := range active {
		if p.TeamID != "" {
			byTeam[p.TeamID] = append(byTeam[p.TeamID], p)
		}
	}

	roles := make(map[string][]roster.Player)
	if len(byTeam) < 2 {
		a, b := sel.bisect(active)
		roles[RoleTeamA] = a
		roles[RoleTeamB] = b
	} else {
		for teamID, members := range byTeam {
			roles[teamID] = members
		}
	}

	for role, members := range roles {
		if len(members) > teamCap {
			roles[role] = sel.weightedSubset(members, teamCap)
		}
	}
	return roles, nil
}

// bisect deals players alternately into two sides after a weighted shuffle
// so the stronger fairness claims spread across both.
func (sel *Selector) bisect(active []roster.Player) (a, b []roster.Player) {
	shuffled := sel.weightedSubset(active, len(active))
	for i, p := range shuffled {
		if i%2 == 0 {
			a = append(a, p)
		} else {
			b = append(b, p)
		}
	}
	return a, b
}

// weightedSubset draws n players without replacement by selection weight.
func (sel *Selector) weightedSubset(pool []roster.Player, n int) []roster.Player {
	weights := sel.roster.SelectionWeights(playerIDs(pool))
	remaining := append([]roster.Player(nil), pool...)
	out := make([]roster.Player, 0, n)

	for len(out) < n && len(remaining) > 0 {
		candidates := make([]Candidate[int], 0, len(remaining))
		for i, p := range remaining {
			candidates = append(candidates, Candidate[int]{Item: i, Weight: weights[p.ID]})
		}
		idx, _ := Pick(sel.rng, candidates)
		out = append(out, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return out
}

// roleSlot is one entry of an asymmetric role template. Count 0 marks the
// 'rest' sentinel that absorbs whoever remains.
type roleSlot struct {
	role  string
	count int
}

var asymmetricTemplates = map[string][]roleSlot{
	"infection": {{role: "infected", count: 1}, {role: "survivors"}},
	"guardians": {{role: "guardians", count: 2}, {role: "runners"}},
	"heist":     {{role: "guards", count: 2}, {role: "thieves"}},
}

var defaultAsymmetricTemplate = []roleSlot{{role: "leader", count: 1}, {role: "crowd"}}

// assignAsymmetric fills exact-count roles by weighted draw without
// replacement; the rest role takes everyone left, so templates scale to
// any player count.
func (sel *Selector) assignAsymmetric(variant string, active []roster.Player) (map[string][]roster.Player, error) {
	tmpl, ok := asymmetricTemplates[variant]
	if !ok {
		tmpl = defaultAsymmetricTemplate
	}

	exact := 0
	for _, slot := range tmpl {
		exact += slot.count
	}
	if len(active) < exact+1 {
		return nil, ErrNotEnoughPlayers
	}

	remaining := append([]roster.Player(nil), active...)
	roles := make(map[string][]roster.Player)
	var restRole string

	for _, slot := range tmpl {
		if slot.count == 0 {
			restRole = slot.role
			continue
		}
		picked := sel.weightedSubset(remaining, slot.count)
		roles[slot.role] = picked
		remaining = without(remaining, picked)
	}
	if restRole != "" {
		roles[restRole] = remaining
	}
	return roles, nil
}

// computeDuration scales the round type's base duration by difficulty
// bucket and match progress, rounded to the nearest second.
func (sel *Selector) computeDuration(roundType string, difficulty int, progressPercent float64) int {
	base := sel.settings.Float("roundTypes."+roundType+".baseDurationSeconds", 45.0)

	bucket := "medium"
	switch {
	case difficulty <= 2:
		bucket = "easy"
	case difficulty >= 4:
		bucket = "hard"
	}
	diffMult := sel.settings.Float("timing.multipliers.difficulty."+bucket, 1.0)

	phase := "mid"
	switch {
	case progressPercent < 33:
		phase = "early"
	case progressPercent > 66:
		phase = "late"
	}
	progMult := sel.settings.Float("timing.multipliers.progress."+phase, 1.0)

	return int(math.Round(base * diffMult * progMult))
}

// recordSideEffects updates the variety history (round type and variant
// independently) and the per-player selection ledgers.
func (sel *Selector) recordSideEffects(p *Play, ctx Context) {
	vctx := variety.Context{Round: ctx.RoundNumber, Label: p.RoundType}
	sel.variety.RecordSelection(p.RoundType, vctx)
	sel.variety.RecordSelection(p.Variant, vctx)

	participants := p.Participants()
	ids := playerIDs(participants)
	for _, player := range participants {
		partners := make([]uuid.UUID, 0, len(ids)-1)
		for _, id := range ids {
			if id != player.ID {
				partners = append(partners, id)
			}
		}
		if err := sel.roster.RecordSelection(player.ID, ctx.RoundNumber, p.Variant, partners); err != nil {
			sel.logger.Warn().Err(err).Str("player", player.Name).Msg("record selection")
		}
	}
}

func playerIDs(players []roster.Player) []uuid.UUID {
	ids := make([]uuid.UUID, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}

func without(pool, picked []roster.Player) []roster.Player {
	drop := make(map[uuid.UUID]bool, len(picked))
	for _, p := range picked {
		drop[p.ID] = true
	}
	out := pool[:0]
	for _, p := range pool {
		if !drop[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func clampDifficulty(d int) int {
	if d < 1 {
		return 1
	}
	if d > 5 {
		return 5
	}
	return d
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
