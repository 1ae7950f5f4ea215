package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/events"
)

var (
	ErrNameTaken      = errors.New("player name already in use")
	ErrPlayerNotFound = errors.New("player not found")
)

// Status of a player within the roster.
type Status string

const (
	StatusActive   Status = "active"
	StatusBreak    Status = "break"
	StatusDeparted Status = "departed"
)

const (
	recentActivityCap = 5
	recentPartnerCap  = 5
)

// Stats is the per-player selection ledger.
type Stats struct {
	TimesSelected       int         `json:"times_selected"`
	LastSelectedRound   int         `json:"last_selected_round"`
	RoundsSinceSelected int         `json:"rounds_since_selected"`
	RecentActivities    []string    `json:"recent_activities"`
	RecentPartners      []uuid.UUID `json:"recent_partners"`
}

// Player is one roster entry. Players are never deleted; removal flips the
// status to DEPARTED and keeps the history.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	TeamID   string    `json:"team_id"`
	Status   Status    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
	Stats    Stats     `json:"stats"`
}

// Weights tuning for fairness selection.
type Weights struct {
	BoostThreshold int     // rounds waited before the hard boost kicks in
	BoostFactor    float64 // multiplier applied past the threshold
	RampPerRound   float64 // smooth ramp per waited round
}

// DefaultWeights returns the production fairness tuning.
func DefaultWeights() Weights {
	return Weights{BoostThreshold: 5, BoostFactor: 2.0, RampPerRound: 0.1}
}

// Registry tracks the active players and their selection history.
type Registry struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*Player
	order   []uuid.UUID
	weights Weights
	bus     *events.Bus
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRegistry creates a registry. The bus may be nil in tests.
func NewRegistry(bus *events.Bus, weights Weights, logger zerolog.Logger) *Registry {
	if weights.BoostFactor == 0 {
		weights = DefaultWeights()
	}
	return &Registry{
		players: make(map[uuid.UUID]*Player),
		weights: weights,
		bus:     bus,
		logger:  logger.With().Str("component", "roster").Logger(),
		now:     time.Now,
	}
}

// AddPlayer registers a player. Names must be unique among non-departed
// players, case-insensitively.
func (r *Registry) AddPlayer(name, teamID string) (Player, error) {
	r.mu.Lock()
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		r.mu.Unlock()
		return Player{}, fmt.Errorf("player name must not be empty")
	}
	for _, p := range r.players {
		if p.Status != StatusDeparted && strings.ToLower(p.Name) == lowered {
			r.mu.Unlock()
			return Player{}, fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
	}

	player := &Player{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(name),
		TeamID:   teamID,
		Status:   StatusActive,
		JoinedAt: r.now(),
	}
	r.players[player.ID] = player
	r.order = append(r.order, player.ID)
	out := *player
	r.mu.Unlock()

	r.publish(events.PlayerAdded{PlayerID: out.ID, Name: out.Name, TeamID: out.TeamID})
	return out, nil
}

// RemovePlayer soft-removes a player: status flips to DEPARTED and all
// history is retained.
func (r *Registry) RemovePlayer(id uuid.UUID) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	p.Status = StatusDeparted
	name := p.Name
	r.mu.Unlock()

	r.publish(events.PlayerRemoved{PlayerID: id, Name: name})
	return nil
}

// SetStatus moves a player between ACTIVE and BREAK.
func (r *Registry) SetStatus(id uuid.UUID, status Status) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	if p.Status == StatusDeparted {
		r.mu.Unlock()
		return fmt.Errorf("set status: player %s departed", p.Name)
	}
	p.Status = status
	r.mu.Unlock()

	r.publish(events.PlayerStatusChanged{PlayerID: id, Status: string(status)})
	return nil
}

// Player returns a copy of the entry.
func (r *Registry) Player(id uuid.UUID) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// ActivePlayers returns copies of all ACTIVE players in join order.
func (r *Registry) ActivePlayers() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Player, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; p.Status == StatusActive {
			out = append(out, *p)
		}
	}
	return out
}

// ActiveCount returns the number of ACTIVE players.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.players {
		if p.Status == StatusActive {
			n++
		}
	}
	return n
}

// Teams groups ACTIVE player ids by team id, join order preserved.
func (r *Registry) Teams() map[string][]uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	teams := make(map[string][]uuid.UUID)
	for _, id := range r.order {
		if p := r.players[id]; p.Status == StatusActive {
			teams[p.TeamID] = append(teams[p.TeamID], id)
		}
	}
	return teams
}

// RecordSelection updates the chosen player's ledger after a play names
// them: selection count, waiting counter reset, and the recent activity
// and partner ring buffers.
func (r *Registry) RecordSelection(id uuid.UUID, round int, activityID string, partners []uuid.UUID) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	p.Stats.TimesSelected++
	p.Stats.LastSelectedRound = round
	p.Stats.RoundsSinceSelected = 0
	p.Stats.RecentActivities = pushCapped(p.Stats.RecentActivities, activityID, recentActivityCap)
	for _, partner := range partners {
		if partner == id {
			continue
		}
		p.Stats.RecentPartners = pushCapped(p.Stats.RecentPartners, partner, recentPartnerCap)
	}
	r.mu.Unlock()

	r.publish(events.PlayerSelected{PlayerID: id, Round: round, ActivityID: activityID})
	return nil
}

// IncrementRoundsSinceSelected sweeps all ACTIVE players once per round.
func (r *Registry) IncrementRoundsSinceSelected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.Status == StatusActive {
			p.Stats.RoundsSinceSelected++
		}
	}
}

// SelectionWeights returns fairness weights for the given ids (all ACTIVE
// players when ids is nil). Base 1.0, boosted hard past the waiting
// threshold, with a smooth ramp layered underneath.
func (r *Registry) SelectionWeights(ids []uuid.UUID) map[uuid.UUID]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ids == nil {
		for _, id := range r.order {
			if r.players[id].Status == StatusActive {
				ids = append(ids, id)
			}
		}
	}

	out := make(map[uuid.UUID]float64, len(ids))
	for _, id := range ids {
		p, ok := r.players[id]
		if !ok {
			continue
		}
		w := 1.0
		if p.Stats.RoundsSinceSelected >= r.weights.BoostThreshold {
			w *= r.weights.BoostFactor
		}
		w *= 1 + r.weights.RampPerRound*float64(p.Stats.RoundsSinceSelected)
		out[id] = w
	}
	return out
}

// WereRecentPartners reports whether either player's partner ring buffer
// names the other.
func (r *Registry) WereRecentPartners(a, b uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.partnerRecorded(a, b) || r.partnerRecorded(b, a)
}

func (r *Registry) partnerRecorded(owner, other uuid.UUID) bool {
	p, ok := r.players[owner]
	if !ok {
		return false
	}
	for _, id := range p.Stats.RecentPartners {
		if id == other {
			return true
		}
	}
	return false
}

// BalanceSuggestion is an advisory team move. The registry never performs
// the move itself: it cannot force physical players to switch sides.
type BalanceSuggestion struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	FromTeam string    `json:"from_team"`
	ToTeam   string    `json:"to_team"`
}

// SuggestTeamBalance returns a move that would narrow the largest team-size
// gap, or nil when teams are already balanced within one player.
func (r *Registry) SuggestTeamBalance() *BalanceSuggestion {
	teams := r.Teams()
	if len(teams) < 2 {
		return nil
	}

	names := make([]string, 0, len(teams))
	for name := range teams {
		names = append(names, name)
	}
	sort.Strings(names)

	largest, smallest := names[0], names[0]
	for _, name := range names {
		if len(teams[name]) > len(teams[largest]) {
			largest = name
		}
		if len(teams[name]) < len(teams[smallest]) {
			smallest = name
		}
	}
	if len(teams[largest])-len(teams[smallest]) <= 1 {
		return nil
	}

	// Move the most recently joined member of the largest team.
	candidates := teams[largest]
	moved := candidates[len(candidates)-1]
	p, _ := r.Player(moved)
	return &BalanceSuggestion{
		PlayerID: moved,
		Name:     p.Name,
		FromTeam: largest,
		ToTeam:   smallest,
	}
}

// Snapshot serializes the roster field by field for checkpoints.
type Snapshot struct {
	Players []Player    `json:"players"`
	Order   []uuid.UUID `json:"order"`
}

// CreateSnapshot copies the full roster.
func (r *Registry) CreateSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		Players: make([]Player, 0, len(r.order)),
		Order:   append([]uuid.UUID(nil), r.order...),
	}
	for _, id := range r.order {
		p := *r.players[id]
		p.Stats.RecentActivities = append([]string(nil), p.Stats.RecentActivities...)
		p.Stats.RecentPartners = append([]uuid.UUID(nil), p.Stats.RecentPartners...)
		snap.Players = append(snap.Players, p)
	}
	return snap
}

// RestoreSnapshot replaces the roster wholesale.
func (r *Registry) RestoreSnapshot(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = make(map[uuid.UUID]*Player, len(snap.Players))
	r.order = append([]uuid.UUID(nil), snap.Order...)
	for i := range snap.Players {
		p := snap.Players[i]
		r.players[p.ID] = &p
	}
}

func (r *Registry) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

func pushCapped[T any](buf []T, v T, capacity int) []T {
	buf = append(buf, v)
	if len(buf) > capacity {
		buf = buf[len(buf)-capacity:]
	}
	return buf
}
