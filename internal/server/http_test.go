package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playroomlabs/partyhost/internal/archive"
	"github.com/playroomlabs/partyhost/internal/checkpoint"
	"github.com/playroomlabs/partyhost/internal/config"
	"github.com/playroomlabs/partyhost/internal/engine/perform"
	"github.com/playroomlabs/partyhost/internal/session"
	"github.com/playroomlabs/partyhost/pkg/http/ws"
)

type quietSpeaker struct{}

func (quietSpeaker) Speak(ctx context.Context, _ string) error { return ctx.Err() }
func (quietSpeaker) Cancel()                                   {}

// blockingSpeaker holds the run loop inside a block until released, so
// tests can observe a live match without racing its completion.
type blockingSpeaker struct{ release chan struct{} }

func (s *blockingSpeaker) Speak(ctx context.Context, _ string) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSpeaker) Cancel() {}

type fakeArchive struct {
	match archive.MatchRecord
	plays []archive.PlayRecord
}

func (f *fakeArchive) GetMatch(_ context.Context, id uuid.UUID) (archive.MatchRecord, error) {
	if id != f.match.ID {
		return archive.MatchRecord{}, assert.AnError
	}
	return f.match, nil
}

func (f *fakeArchive) ListRecent(context.Context, int) ([]archive.MatchRecord, error) {
	return []archive.MatchRecord{f.match}, nil
}

func (f *fakeArchive) ListPlays(context.Context, uuid.UUID) ([]archive.PlayRecord, error) {
	return f.plays, nil
}

func newTestServer(t *testing.T, reader ArchiveReader, names ...string) (*httptest.Server, *session.Manager) {
	return newTestServerWithSpeaker(t, reader, quietSpeaker{}, names...)
}

func newTestServerWithSpeaker(t *testing.T, reader ArchiveReader, speaker perform.Speaker, names ...string) (*httptest.Server, *session.Manager) {
	t.Helper()
	logger := zerolog.Nop()

	mgr := session.NewManager(session.Options{
		Speaker:     speaker,
		Checkpoints: checkpoint.NewMemoryStore(),
		Seed:        7,
		Logger:      logger,
	})
	t.Cleanup(mgr.Close)
	for _, n := range names {
		_, err := mgr.AddPlayer(n, "")
		require.NoError(t, err)
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	hub := ws.NewHub(logger)
	narrator := ws.NewNarratorSpeaker(hub, logger)
	srv := NewHTTPServer(cfg, logger, Deps{
		Sessions: mgr,
		Hub:      hub,
		Speaker:  narrator,
		Gatherer: prometheus.NewRegistry(),
		Archive:  reader,
	})

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, mgr
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode(t, resp)["status"])
}

func TestStartMatchAppliesDefaultsAndConflicts(t *testing.T) {
	speaker := &blockingSpeaker{release: make(chan struct{})}
	ts, mgr := newTestServerWithSpeaker(t, nil, speaker, "Alice", "Bob", "Carol")

	resp := postJSON(t, ts.URL+"/v1/matches", `{"pattern_id":"sprint_3","round_count":3,"pause_multiplier":0.001}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	matchID := decode(t, resp)["match_id"].(string)
	_, err := uuid.Parse(matchID)
	require.NoError(t, err)

	second := postJSON(t, ts.URL+"/v1/matches", `{"round_count":3}`)
	assert.Equal(t, http.StatusConflict, second.StatusCode)
	assert.Equal(t, "match_running", decode(t, second)["error"])

	close(speaker.release)
	require.Eventually(t, func() bool {
		return mgr.Status().MatchStatus == "completed"
	}, 10*time.Second, 10*time.Millisecond)
}

func TestStartMatchValidation(t *testing.T) {
	ts, _ := newTestServer(t, nil, "Alice", "Bob")

	resp := postJSON(t, ts.URL+"/v1/matches", `{"round_count":25}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Equal(t, "round_count", body["field"])

	resp = postJSON(t, ts.URL+"/v1/matches", `{"difficulty_curve":"gradual"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "difficulty_curve", body["field"])

	resp = postJSON(t, ts.URL+"/v1/matches", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlayerEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/v1/players", `{"name":"Dana","team_id":"red"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode(t, resp)
	assert.Equal(t, "Dana", created["name"])
	playerID := created["id"].(string)

	status, err := http.Get(ts.URL + "/v1/room")
	require.NoError(t, err)
	defer status.Body.Close()
	body := decode(t, status)
	assert.Equal(t, "idle", body["match_status"])
	assert.Equal(t, float64(1), body["active_players"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/players/"+playerID, nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
}

func TestPauseUnknownMatchNotFound(t *testing.T) {
	ts, _ := newTestServer(t, nil, "Alice", "Bob")

	resp := postJSON(t, ts.URL+"/v1/matches/"+uuid.NewString()+"/pause", ``)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndMatchFlow(t *testing.T) {
	speaker := &blockingSpeaker{release: make(chan struct{})}
	ts, mgr := newTestServerWithSpeaker(t, nil, speaker, "Alice", "Bob", "Carol")

	resp := postJSON(t, ts.URL+"/v1/matches", `{"pattern_id":"sprint_3","round_count":3,"pause_multiplier":0.001}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	matchID := decode(t, resp)["match_id"].(string)

	status, err := http.Get(ts.URL + "/v1/matches/" + matchID)
	require.NoError(t, err)
	defer status.Body.Close()
	require.Equal(t, http.StatusOK, status.StatusCode)
	body := decode(t, status)
	assert.Equal(t, "in_progress", body["match_status"])
	assert.NotEmpty(t, body["visualization"])

	end := postJSON(t, ts.URL+"/v1/matches/"+matchID+"/end", `{"reason":"party_over"}`)
	require.Equal(t, http.StatusOK, end.StatusCode)

	require.Eventually(t, func() bool {
		return mgr.Status().MatchStatus == "abandoned"
	}, 10*time.Second, 10*time.Millisecond)
}

func TestArchiveEndpoints(t *testing.T) {
	matchID := uuid.New()
	reader := &fakeArchive{
		match: archive.MatchRecord{ID: matchID, PatternID: "classic_5", Status: "completed"},
		plays: []archive.PlayRecord{{MatchID: matchID, RoundNumber: 1, RoundType: "duel"}},
	}
	ts, _ := newTestServer(t, reader)

	resp, err := http.Get(ts.URL + "/v1/archive/matches")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	detail, err := http.Get(ts.URL + "/v1/archive/matches/" + matchID.String())
	require.NoError(t, err)
	defer detail.Body.Close()
	require.Equal(t, http.StatusOK, detail.StatusCode)
	body := decode(t, detail)
	assert.Equal(t, "classic_5", body["match"].(map[string]any)["pattern_id"])

	missing, err := http.Get(ts.URL + "/v1/archive/matches/" + uuid.NewString())
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestArchiveDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/archive/matches")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "archive_disabled", decode(t, resp)["error"])
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/matches", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
