package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/archive"
	"github.com/playroomlabs/partyhost/internal/config"
	"github.com/playroomlabs/partyhost/internal/engine/match"
	"github.com/playroomlabs/partyhost/internal/engine/pattern"
	"github.com/playroomlabs/partyhost/internal/engine/roster"
	"github.com/playroomlabs/partyhost/internal/logging"
	"github.com/playroomlabs/partyhost/internal/session"
	httperrors "github.com/playroomlabs/partyhost/pkg/http/errors"
)

// ArchiveReader is the read side of the match archive. Nil when no
// database is configured.
type ArchiveReader interface {
	GetMatch(ctx context.Context, id uuid.UUID) (archive.MatchRecord, error)
	ListRecent(ctx context.Context, limit int) ([]archive.MatchRecord, error)
	ListPlays(ctx context.Context, matchID uuid.UUID) ([]archive.PlayRecord, error)
}

type handlers struct {
	sessions *session.Manager
	archive  ArchiveReader
	engine   config.Engine
	logger   zerolog.Logger
}

type startMatchRequest struct {
	RoundCount      int     `json:"round_count"`
	DifficultyCurve string  `json:"difficulty_curve"`
	DifficultyLevel int     `json:"difficulty_level"`
	PauseMultiplier float64 `json:"pause_multiplier"`
	Pacing          string  `json:"pacing"`
	PatternID       string  `json:"pattern_id"`
}

func (h *handlers) startMatch(w http.ResponseWriter, r *http.Request) {
	var req startMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed JSON body")
		return
	}

	cfg := match.Config{
		RoundCount:      req.RoundCount,
		DifficultyCurve: req.DifficultyCurve,
		DifficultyLevel: req.DifficultyLevel,
		PauseMultiplier: req.PauseMultiplier,
		PatternID:       req.PatternID,
	}
	if cfg.RoundCount == 0 {
		cfg.RoundCount = h.engine.DefaultRoundCount
	}
	if cfg.DifficultyCurve == "" {
		cfg.DifficultyCurve = h.engine.DefaultDifficultyCurve
	}
	if cfg.DifficultyLevel == 0 {
		cfg.DifficultyLevel = h.engine.DefaultDifficultyLevel
	}
	if cfg.PauseMultiplier == 0 {
		cfg.PauseMultiplier = h.engine.PauseMultiplier
	}
	if cfg.RoundCount < 1 || cfg.RoundCount > 20 {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "round_count must be between 1 and 20", "round_count")
		return
	}
	if cfg.DifficultyLevel < 1 || cfg.DifficultyLevel > 5 {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "difficulty_level must be between 1 and 5", "difficulty_level")
		return
	}
	if !match.KnownCurve(cfg.DifficultyCurve) {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "difficulty_curve is not a known curve", "difficulty_curve")
		return
	}

	matchID, err := h.sessions.StartMatch(cfg, pattern.Preferences{
		Pacing:    req.Pacing,
		PatternID: req.PatternID,
	})
	if err != nil {
		if errors.Is(err, session.ErrMatchRunning) {
			httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeMatchRunning, "a match is already running")
			return
		}
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("start match failed")
		httperrors.RespondError(w, http.StatusUnprocessableEntity, httperrors.ErrCodeMatchStartFailed, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"match_id": matchID})
}

// matchScoped checks that the {id} path segment names the match this
// process is hosting. Writes the error response when it does not.
func (h *handlers) matchScoped(w http.ResponseWriter, r *http.Request) bool {
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidMatchID, "match id must be a UUID")
		return false
	}
	st := h.sessions.Status()
	if st.MatchID == nil || *st.MatchID != matchID {
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "no such match on this host")
		return false
	}
	return true
}

func (h *handlers) room(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	if !h.matchScoped(w, r) {
		return
	}
	respondJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *handlers) pause(w http.ResponseWriter, r *http.Request) {
	if !h.matchScoped(w, r) {
		return
	}
	if err := h.sessions.Pause(); err != nil {
		httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeInvalidTransition, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	if !h.matchScoped(w, r) {
		return
	}
	if err := h.sessions.Resume(); err != nil {
		httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeInvalidTransition, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.sessions.Status())
}

type endMatchRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) end(w http.ResponseWriter, r *http.Request) {
	if !h.matchScoped(w, r) {
		return
	}
	var req endMatchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "host_ended"
	}
	if err := h.sessions.End(req.Reason); err != nil {
		httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeInvalidTransition, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *handlers) restore(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidMatchID, "match id must be a UUID")
		return
	}
	if err := h.sessions.RestoreMatch(r.Context(), matchID); err != nil {
		if errors.Is(err, session.ErrMatchRunning) {
			httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeMatchRunning, "a match is already running")
			return
		}
		httperrors.RespondNotFound(w, httperrors.ErrCodeCheckpointNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.sessions.Status())
}

type addPlayerRequest struct {
	Name   string `json:"name"`
	TeamID string `json:"team_id"`
}

// addPlayer serves both the room-level route and the match-scoped one;
// the latter carries an {id} segment that must name the live match.
func (h *handlers) addPlayer(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != "" && !h.matchScoped(w, r) {
		return
	}
	var req addPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed JSON body")
		return
	}
	p, err := h.sessions.AddPlayer(req.Name, req.TeamID)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, err.Error(), "name")
		return
	}
	respondJSON(w, http.StatusCreated, session.Player{
		ID: p.ID, Name: p.Name, TeamID: p.TeamID, Status: string(p.Status),
	})
}

func (h *handlers) removePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "player id must be a UUID")
		return
	}
	if err := h.sessions.RemovePlayer(id); err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodePlayerNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) removeMatchPlayer(w http.ResponseWriter, r *http.Request) {
	if !h.matchScoped(w, r) {
		return
	}
	playerID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "player id must be a UUID")
		return
	}
	if err := h.sessions.RemovePlayer(playerID); err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodePlayerNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *handlers) setPlayerStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "player id must be a UUID")
		return
	}
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed JSON body")
		return
	}
	if err := h.sessions.SetPlayerStatus(id, roster.Status(req.Status)); err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, err.Error(), "status")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listArchived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeArchiveDisabled, "match archive is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.archive.ListRecent(r.Context(), limit)
	if err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("archive list failed")
		httperrors.RespondInternalError(w, "failed to list archived matches")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": records})
}

func (h *handlers) getArchived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeArchiveDisabled, "match archive is not configured")
		return
	}
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidMatchID, "match id must be a UUID")
		return
	}
	rec, err := h.archive.GetMatch(r.Context(), matchID)
	if err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "match not found in archive")
		return
	}
	plays, err := h.archive.ListPlays(r.Context(), matchID)
	if err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("archive plays fetch failed")
		httperrors.RespondInternalError(w, "failed to load plays")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"match": rec, "plays": plays})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
