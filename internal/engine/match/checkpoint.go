package match

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckpointVersion tags serialized tracker state. Restores check it
// loosely: a mismatch is logged and refused, never a panic.
const CheckpointVersion = "1"

// CheckpointState is the explicit field-by-field serialization of a match.
// Round payloads are not carried; finalized blocks keep only their detail
// label, which is all the restore-time queries need.
type CheckpointState struct {
	Version           string      `json:"version"`
	ID                uuid.UUID   `json:"id"`
	StartedAt         time.Time   `json:"started_at"`
	Config            Config      `json:"config"`
	Status            Status      `json:"status"`
	AbandonReason     string      `json:"abandon_reason,omitempty"`
	CurrentBlockIndex int         `json:"current_block_index"`
	ElapsedSeconds    float64     `json:"elapsed_seconds"`
	Pattern           []BlockType `json:"pattern"`
	History           []Block     `json:"history"`
}

// CreateCheckpoint serializes the live match. Returns false when no match
// is initialized.
func (t *Tracker) CreateCheckpoint() (CheckpointState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		return CheckpointState{}, false
	}
	return CheckpointState{
		Version:           CheckpointVersion,
		ID:                t.m.ID,
		StartedAt:         t.m.StartedAt,
		Config:            t.m.Config,
		Status:            t.m.Status,
		AbandonReason:     t.m.AbandonReason,
		CurrentBlockIndex: t.m.CurrentBlockIndex,
		ElapsedSeconds:    t.m.ElapsedSeconds,
		Pattern:           append([]BlockType(nil), t.m.Pattern...),
		History:           append([]Block(nil), t.m.History...),
	}, true
}

// RestoreFromCheckpoint replaces the live match wholesale. An in-progress
// block is never checkpointed, so the restored match has no current block.
func (t *Tracker) RestoreFromCheckpoint(cp CheckpointState) error {
	if cp.Version != CheckpointVersion {
		t.logger.Warn().
			Str("checkpoint_version", cp.Version).
			Str("expected", CheckpointVersion).
			Msg("checkpoint version mismatch, restore refused")
		return fmt.Errorf("checkpoint version mismatch: %q", cp.Version)
	}

	t.mu.Lock()
	t.m = &Match{
		ID:                cp.ID,
		StartedAt:         cp.StartedAt,
		Config:            cp.Config,
		Status:            cp.Status,
		AbandonReason:     cp.AbandonReason,
		CurrentBlockIndex: cp.CurrentBlockIndex,
		ElapsedSeconds:    cp.ElapsedSeconds,
		Pattern:           append([]BlockType(nil), cp.Pattern...),
		History:           append([]Block(nil), cp.History...),
	}
	m := t.m
	t.mu.Unlock()

	t.notify("state_restored", m)
	return nil
}
