package match

import (
	"time"

	"github.com/google/uuid"
)

// BlockType identifies one segment kind of a match.
type BlockType string

const (
	BlockCeremony BlockType = "ceremony"
	BlockRound    BlockType = "round"
	BlockRelax    BlockType = "relax"
)

// Status lifecycle states for a match.
type Status string

const (
	StatusSetup      Status = "setup"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Ceremony kinds carried as the block detail for ceremony blocks.
const (
	CeremonyOpening = "opening"
	CeremonyClosing = "closing"
)

// Config holds the per-match settings chosen at initialization.
type Config struct {
	RoundCount      int     `json:"round_count"`
	DifficultyCurve string  `json:"difficulty_curve"`
	DifficultyLevel int     `json:"difficulty_level"`
	PauseMultiplier float64 `json:"pause_multiplier"`
	PatternID       string  `json:"pattern_id"`
}

// Block is one segment of a match. Detail is a short label (ceremony kind,
// relax activity, or "roundType/variant" for rounds); Payload carries the
// full play for round blocks and is not serialized into checkpoints.
type Block struct {
	Type           BlockType `json:"type"`
	Index          int       `json:"index"`
	StartedAt      time.Time `json:"started_at"`
	PlannedSeconds float64   `json:"planned_seconds"`
	ActualSeconds  float64   `json:"actual_seconds"`
	Detail         string    `json:"detail"`
	Payload        any       `json:"-"`
}

// Match is the full session ledger, owned exclusively by the Tracker.
type Match struct {
	ID                uuid.UUID
	StartedAt         time.Time
	Config            Config
	Status            Status
	AbandonReason     string
	CurrentBlockIndex int
	ElapsedSeconds    float64
	Pattern           []BlockType
	History           []Block
	Current           *Block
}
