package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic constants for every event the engine publishes.
const (
	TopicMatchInitialized = "match:initialized"
	TopicMatchStarted     = "match:started"
	TopicMatchCompleted   = "match:completed"
	TopicMatchAbandoned   = "match:abandoned"
	TopicMatchPaused      = "match:paused"
	TopicMatchResumed     = "match:resumed"

	TopicBlockStarted       = "block:started"
	TopicBlockCompleted     = "block:completed"
	TopicSelectionStarted   = "block:selection:started"
	TopicSelectionCompleted = "block:selection:completed"

	TopicPatternSelected = "pattern:selected"
	TopicPatternComplete = "pattern:complete"

	TopicPlaySelected = "play:selected"

	TopicPerformanceStarted   = "performance:started"
	TopicPerformanceCompleted = "performance:completed"
	TopicScriptStarted        = "script:started"
	TopicScriptCompleted      = "script:completed"

	TopicPlayerAdded         = "player:added"
	TopicPlayerRemoved       = "player:removed"
	TopicPlayerStatusChanged = "player:status:changed"
	TopicPlayerSelected      = "player:selected"

	TopicStateRestored = "state:restored"
	TopicConfigLoaded  = "config:loaded"
	TopicConfigUpdated = "config:updated"
	TopicSystemError   = "system:error"
	TopicSystemReady   = "system:ready"
)

// Event is implemented by one payload struct per topic, so handlers can
// switch on the concrete type instead of trusting a loose payload shape.
type Event interface {
	Topic() string
}

type MatchInitialized struct {
	MatchID    uuid.UUID `json:"match_id"`
	RoundCount int       `json:"round_count"`
}

func (MatchInitialized) Topic() string { return TopicMatchInitialized }

type MatchStarted struct {
	MatchID   uuid.UUID `json:"match_id"`
	StartedAt time.Time `json:"started_at"`
}

func (MatchStarted) Topic() string { return TopicMatchStarted }

type MatchCompleted struct {
	MatchID        uuid.UUID `json:"match_id"`
	RoundsPlayed   int       `json:"rounds_played"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}

func (MatchCompleted) Topic() string { return TopicMatchCompleted }

type MatchAbandoned struct {
	MatchID uuid.UUID `json:"match_id"`
	Reason  string    `json:"reason"`
}

func (MatchAbandoned) Topic() string { return TopicMatchAbandoned }

type MatchPaused struct {
	MatchID uuid.UUID `json:"match_id"`
}

func (MatchPaused) Topic() string { return TopicMatchPaused }

type MatchResumed struct {
	MatchID uuid.UUID `json:"match_id"`
}

func (MatchResumed) Topic() string { return TopicMatchResumed }

type BlockStarted struct {
	Index     int    `json:"index"`
	BlockType string `json:"block_type"`
	Detail    string `json:"detail,omitempty"`
}

func (BlockStarted) Topic() string { return TopicBlockStarted }

type BlockCompleted struct {
	Index           int     `json:"index"`
	BlockType       string  `json:"block_type"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (BlockCompleted) Topic() string { return TopicBlockCompleted }

type SelectionStarted struct {
	Index     int    `json:"index"`
	BlockType string `json:"block_type"`
}

func (SelectionStarted) Topic() string { return TopicSelectionStarted }

type SelectionCompleted struct {
	Index     int    `json:"index"`
	BlockType string `json:"block_type"`
	Detail    string `json:"detail,omitempty"`
}

func (SelectionCompleted) Topic() string { return TopicSelectionCompleted }

type PatternSelected struct {
	PatternID  string   `json:"pattern_id"`
	Sequence   []string `json:"sequence"`
	RoundCount int      `json:"round_count"`
	Adjusted   bool     `json:"adjusted"`
}

func (PatternSelected) Topic() string { return TopicPatternSelected }

type PatternComplete struct {
	PatternID string `json:"pattern_id"`
}

func (PatternComplete) Topic() string { return TopicPatternComplete }

type PlaySelected struct {
	RoundNumber int      `json:"round_number"`
	RoundType   string   `json:"round_type"`
	Variant     string   `json:"variant"`
	SubVariant  string   `json:"sub_variant"`
	Modifier    string   `json:"modifier,omitempty"`
	Difficulty  int      `json:"difficulty"`
	Duration    int      `json:"duration_seconds"`
	PlayerNames []string `json:"player_names"`
}

func (PlaySelected) Topic() string { return TopicPlaySelected }

type PerformanceStarted struct {
	ScriptCount int `json:"script_count"`
}

func (PerformanceStarted) Topic() string { return TopicPerformanceStarted }

type PerformanceCompleted struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Interrupted     bool    `json:"interrupted"`
}

func (PerformanceCompleted) Topic() string { return TopicPerformanceCompleted }

type ScriptStarted struct {
	Index int `json:"index"`
}

func (ScriptStarted) Topic() string { return TopicScriptStarted }

type ScriptCompleted struct {
	Index int `json:"index"`
}

func (ScriptCompleted) Topic() string { return TopicScriptCompleted }

type PlayerAdded struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	TeamID   string    `json:"team_id,omitempty"`
}

func (PlayerAdded) Topic() string { return TopicPlayerAdded }

type PlayerRemoved struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
}

func (PlayerRemoved) Topic() string { return TopicPlayerRemoved }

type PlayerStatusChanged struct {
	PlayerID uuid.UUID `json:"player_id"`
	Status   string    `json:"status"`
}

func (PlayerStatusChanged) Topic() string { return TopicPlayerStatusChanged }

type PlayerSelected struct {
	PlayerID   uuid.UUID `json:"player_id"`
	Round      int       `json:"round"`
	ActivityID string    `json:"activity_id"`
}

func (PlayerSelected) Topic() string { return TopicPlayerSelected }

type StateRestored struct {
	MatchID    uuid.UUID `json:"match_id"`
	PatternID  string    `json:"pattern_id"`
	RoundCount int       `json:"round_count"`
	StartedAt  time.Time `json:"started_at"`
}

func (StateRestored) Topic() string { return TopicStateRestored }

type ConfigLoaded struct{}

func (ConfigLoaded) Topic() string { return TopicConfigLoaded }

type ConfigUpdated struct {
	Path string `json:"path"`
}

func (ConfigUpdated) Topic() string { return TopicConfigUpdated }

type SystemError struct {
	Component string `json:"component"`
	Message   string `json:"message"`
}

func (SystemError) Topic() string { return TopicSystemError }

type SystemReady struct{}

func (SystemReady) Topic() string { return TopicSystemReady }
