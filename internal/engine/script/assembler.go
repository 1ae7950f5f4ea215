// Package script turns selected plays into narration lines. Templates
// carry two kinds of inline markup: {token} placeholders substituted at
// assembly time, and [pauseName] markers the performer converts into
// theatrical silences.
package script

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/play"
	"github.com/playroomlabs/partyhost/internal/engine/roster"
)

var tokenRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Assembler fills narration templates for every block kind.
type Assembler struct {
	logger zerolog.Logger
}

func NewAssembler(logger zerolog.Logger) *Assembler {
	return &Assembler{logger: logger.With().Str("component", "script_assembler").Logger()}
}

var roundIntros = map[string]string{
	"duel":       "Round {roundNumber} of {totalRounds}! [short] {player1} versus {player2}. [beat] The game is {variant}.",
	"team":       "Round {roundNumber} of {totalRounds}! [short] Teams, take your sides. [beat] The game is {variant}.",
	"freeForAll": "Round {roundNumber} of {totalRounds}! [short] Everybody in! [beat] The game is {variant}.",
	"asymmetric": "Round {roundNumber} of {totalRounds}! [short] Listen closely for your roles. [beat] The game is {variant}.",
}

var variantRules = map[string]string{
	"race":         "First to the far wall and back wins. [beat] Stay on your feet.",
	"balance":      "Hold your pose. [beat] The first to wobble loses.",
	"mirror":       "Copy your opponent exactly. [beat] Hesitate and you're out.",
	"quickdraw":    "Hands at your sides. [medium] Move only on the signal.",
	"relay":        "Tag your teammate before the next leg begins.",
	"tugOfWar":     "Pull together. [beat] First team over the line loses.",
	"chainTag":     "Tagged players join the chain. [beat] Last one free wins.",
	"statues":      "When the music stops, freeze. [medium] Movers are out.",
	"simonClassic": "Do exactly what the host says. [beat] Only when the host says so.",
	"floorIsLava":  "Feet off the floor when you hear lava. [beat] Last one up wins.",
	"infection":    "One of you is infected. [medium] A tag spreads it. Survive.",
	"guardians":    "Guardians protect the treasure. [beat] Runners, steal it.",
	"heist":        "Guards patrol. [beat] Thieves, reach the vault without being tagged.",
}

var subVariantLines = map[string]string{
	"backwards":  "And this time, everyone moves backwards.",
	"hop":        "One leg only. [beat] Hop to it.",
	"slowMotion": "The whole round is in slow motion. [beat] No rushing.",
	"crabWalk":   "Hands and feet, belly up. [beat] Crab walk only.",
}

var modifierLines = map[string]string{
	"oneHand":      "Keep one hand behind your back the whole time.",
	"silent":       "Not a sound from anyone. [beat] Total silence.",
	"eyesClosed":   "Eyes closed. [medium] Trust your ears.",
	"holdingHands": "Partners hold hands. [beat] Let go and you're out.",
}

var relaxLines = map[string]string{
	"stretching":  "Time to breathe. [short] Everyone stretch it out. [long] Reach up high. [long] And relax.",
	"breathing":   "Stand still. [short] Deep breath in. [long] And out. [long] Twice more.",
	"waterBreak":  "Water break! [short] Grab a drink, you've earned it.",
	"storyCircle": "Gather round. [short] One sentence each. What was the best moment so far?",
}

// AssembleForPlay produces the ordered narration lines for a round block.
func (a *Assembler) AssembleForPlay(p *play.Play) []string {
	tokens := a.playTokens(p)

	var lines []string
	intro, ok := roundIntros[p.RoundType]
	if !ok {
		intro = "Round {roundNumber} of {totalRounds}! [beat] The game is {variant}."
	}
	lines = append(lines, a.fill(intro, tokens))

	if cast := a.castLine(p); cast != "" {
		lines = append(lines, a.fill(cast, tokens))
	}

	if rules, ok := variantRules[p.Variant]; ok {
		lines = append(lines, a.fill(rules, tokens))
	}
	if line, ok := subVariantLines[p.SubVariant]; ok {
		lines = append(lines, a.fill(line, tokens))
	}
	if p.Modifier != "" {
		if line, ok := modifierLines[p.Modifier]; ok {
			lines = append(lines, a.fill(line, tokens))
		}
	}

	start := "You have {duration} seconds. [short] Ready? [medium] Go!"
	if p.Hints.Suspense {
		start = "The final round. [dramatic] {duration} seconds. [short] Ready? [long] Go!"
	}
	lines = append(lines, a.fill(start, tokens))

	return lines
}

// AssembleCeremony produces opening or closing narration. Stats only
// appear on the closing side.
func (a *Assembler) AssembleCeremony(kind string, totalRounds int, elapsedSeconds float64) []string {
	switch kind {
	case "closing":
		tokens := map[string]string{
			"totalRounds": fmt.Sprintf("%d", totalRounds),
			"minutes":     fmt.Sprintf("%d", int(elapsedSeconds)/60),
		}
		return []string{
			a.fill("And that [beat] is the game! [dramatic] {totalRounds} rounds in {minutes} minutes.", tokens),
			"Give yourselves a hand. [long] Until next time!",
		}
	default:
		tokens := map[string]string{"totalRounds": fmt.Sprintf("%d", totalRounds)}
		return []string{
			"Welcome, players! [short] The party is about to begin.",
			a.fill("{totalRounds} rounds stand between you and glory. [medium] Let's play!", tokens),
		}
	}
}

// AssembleRelax produces the narration for a relax block.
func (a *Assembler) AssembleRelax(activity string) []string {
	if line, ok := relaxLines[activity]; ok {
		return []string{line}
	}
	return []string{a.fill("Take it easy for a moment. [short] Time for {activity}.",
		map[string]string{"activity": activity})}
}

// castLine announces who plays whom, shaped by the round type.
func (a *Assembler) castLine(p *play.Play) string {
	switch p.RoundType {
	case "duel":
		return "" // the intro already names both players
	case "freeForAll":
		return "Everyone plays. [beat] No teams, no mercy."
	case "team":
		return "{teams}"
	default:
		return "{roles}"
	}
}

func (a *Assembler) playTokens(p *play.Play) map[string]string {
	tokens := map[string]string{
		"roundNumber": fmt.Sprintf("%d", p.RoundNumber),
		"totalRounds": fmt.Sprintf("%d", p.Hints.TotalRounds),
		"variant":     humanize(p.Variant),
		"subVariant":  humanize(p.SubVariant),
		"modifier":    humanize(p.Modifier),
		"duration":    fmt.Sprintf("%d", p.DurationSeconds),
		"players":     joinNames(names(p.Roles[play.RoleEveryone])),
	}
	if d := p.Roles[play.RolePlayer1]; len(d) == 1 {
		tokens["player1"] = d[0].Name
	}
	if d := p.Roles[play.RolePlayer2]; len(d) == 1 {
		tokens["player2"] = d[0].Name
	}
	tokens["teams"] = a.teamAnnouncement(p)
	tokens["roles"] = a.roleAnnouncement(p)
	return tokens
}

func (a *Assembler) teamAnnouncement(p *play.Play) string {
	roleNames := sortedRoles(p)
	parts := make([]string, 0, len(roleNames))
	for _, role := range roleNames {
		parts = append(parts, fmt.Sprintf("Team %s: %s.", humanize(role), joinNames(names(p.Roles[role]))))
	}
	return strings.Join(parts, " [beat] ")
}

func (a *Assembler) roleAnnouncement(p *play.Play) string {
	roleNames := sortedRoles(p)
	parts := make([]string, 0, len(roleNames))
	for _, role := range roleNames {
		parts = append(parts, fmt.Sprintf("The %s: %s.", humanize(role), joinNames(names(p.Roles[role]))))
	}
	return strings.Join(parts, " [beat] ")
}

func sortedRoles(p *play.Play) []string {
	roleNames := make([]string, 0, len(p.Roles))
	for role := range p.Roles {
		roleNames = append(roleNames, role)
	}
	sort.Strings(roleNames)
	return roleNames
}

// fill substitutes {token} placeholders. Unknown tokens are left in place
// and logged so a bad template is audible in development, not silent.
func (a *Assembler) fill(template string, tokens map[string]string) string {
	return tokenRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if val, ok := tokens[key]; ok {
			return val
		}
		a.logger.Warn().Str("token", key).Str("template", template).Msg("unresolved script token")
		return m
	})
}

func names(players []roster.Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.Name
	}
	return out
}

// joinNames renders "Alice", "Alice and Bob", or "Alice, Bob and Carol".
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// humanize splits a camelCase identifier into spoken words: "tugOfWar"
// becomes "tug of war".
func humanize(id string) string {
	if id == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range id {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
