// Package checkpoint bundles every engine snapshot into one restorable
// unit and defines where such units are kept.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/playroomlabs/partyhost/internal/engine/match"
	"github.com/playroomlabs/partyhost/internal/engine/roster"
	"github.com/playroomlabs/partyhost/internal/engine/variety"
)

// ErrNotFound is returned by Load when no checkpoint exists for the match.
var ErrNotFound = errors.New("checkpoint not found")

// Version tags the envelope as a whole; the match sub-state carries its
// own tag which the tracker checks on restore.
const Version = "1"

// Checkpoint is a full engine snapshot, taken between blocks so no
// in-flight play needs serializing.
type Checkpoint struct {
	Version     string                `json:"version"`
	SavedAt     time.Time             `json:"saved_at"`
	CursorIndex int                   `json:"cursor_index"`
	PatternID   string                `json:"pattern_id"`
	Match       match.CheckpointState `json:"match"`
	Players     roster.Snapshot       `json:"players"`
	Variety     variety.Snapshot      `json:"variety"`
	Settings    map[string]any        `json:"settings"`
}

// Store persists checkpoints keyed by match id.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, matchID uuid.UUID) (Checkpoint, error)
	Delete(ctx context.Context, matchID uuid.UUID) error
}
