package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// MatchRecord is the persisted summary of one match.
type MatchRecord struct {
	ID             uuid.UUID `json:"id"`
	PatternID      string    `json:"pattern_id"`
	RoundCount     int       `json:"round_count"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	RoundsPlayed   int       `json:"rounds_played"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// PlayRecord is one selected round within a match.
type PlayRecord struct {
	MatchID         uuid.UUID `json:"match_id"`
	RoundNumber     int       `json:"round_number"`
	RoundType       string    `json:"round_type"`
	Variant         string    `json:"variant"`
	SubVariant      string    `json:"sub_variant"`
	Modifier        string    `json:"modifier,omitempty"`
	Difficulty      int       `json:"difficulty"`
	DurationSeconds int       `json:"duration_seconds"`
	PlayerNames     []string  `json:"player_names"`
}

// Repository persists finished matches and their plays to Postgres.
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepository constructs a new archive repository.
func NewRepository(pool *pgxpool.Pool, logger zerolog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With().Str("component", "archive_repository").Logger(),
	}
}

// SaveMatch writes a finished match and all of its plays in one transaction.
func (r *Repository) SaveMatch(ctx context.Context, rec MatchRecord, plays []PlayRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO matches (id, pattern_id, round_count, status, reason, rounds_played, elapsed_seconds, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			rounds_played = EXCLUDED.rounds_played,
			elapsed_seconds = EXCLUDED.elapsed_seconds,
			ended_at = EXCLUDED.ended_at`,
		rec.ID, rec.PatternID, rec.RoundCount, rec.Status, rec.Reason,
		rec.RoundsPlayed, rec.ElapsedSeconds, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	for _, p := range plays {
		_, err = tx.Exec(ctx, `
			INSERT INTO plays (match_id, round_number, round_type, variant, sub_variant, modifier, difficulty, duration_seconds, player_names)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.ID, p.RoundNumber, p.RoundType, p.Variant, p.SubVariant,
			p.Modifier, p.Difficulty, p.DurationSeconds, p.PlayerNames,
		)
		if err != nil {
			return fmt.Errorf("insert play round %d: %w", p.RoundNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// GetMatch fetches one archived match by id.
func (r *Repository) GetMatch(ctx context.Context, id uuid.UUID) (MatchRecord, error) {
	var rec MatchRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, pattern_id, round_count, status, reason, rounds_played, elapsed_seconds, started_at, ended_at
		FROM matches WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.PatternID, &rec.RoundCount, &rec.Status, &rec.Reason,
		&rec.RoundsPlayed, &rec.ElapsedSeconds, &rec.StartedAt, &rec.EndedAt)
	if err != nil {
		return MatchRecord{}, fmt.Errorf("get match %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the most recently ended matches, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, pattern_id, round_count, status, reason, rounds_played, elapsed_seconds, started_at, ended_at
		FROM matches ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		if err := rows.Scan(&rec.ID, &rec.PatternID, &rec.RoundCount, &rec.Status, &rec.Reason,
			&rec.RoundsPlayed, &rec.ElapsedSeconds, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListPlays returns every play recorded for a match in round order.
func (r *Repository) ListPlays(ctx context.Context, matchID uuid.UUID) ([]PlayRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT match_id, round_number, round_type, variant, sub_variant, modifier, difficulty, duration_seconds, player_names
		FROM plays WHERE match_id = $1 ORDER BY round_number`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list plays: %w", err)
	}
	defer rows.Close()

	var out []PlayRecord
	for rows.Next() {
		var p PlayRecord
		if err := rows.Scan(&p.MatchID, &p.RoundNumber, &p.RoundType, &p.Variant, &p.SubVariant,
			&p.Modifier, &p.Difficulty, &p.DurationSeconds, &p.PlayerNames); err != nil {
			return nil, fmt.Errorf("scan play: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
