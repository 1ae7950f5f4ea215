package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/config"
	"github.com/playroomlabs/partyhost/internal/logging"
	"github.com/playroomlabs/partyhost/internal/session"
	"github.com/playroomlabs/partyhost/pkg/http/ws"
)

// WSUpgrader handles WebSocket upgrades for narrator and observer clients.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the configured CORS origins
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Deps collects what the HTTP layer needs from the rest of the process.
type Deps struct {
	Sessions *session.Manager
	Hub      *ws.Hub
	Speaker  *ws.NarratorSpeaker
	Gatherer prometheus.Gatherer
	Archive  ArchiveReader
}

// NewHTTPServer wires the control API, health, metrics and the WebSocket
// endpoint.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, deps Deps) *http.Server {
	mux := http.NewServeMux()
	h := &handlers{
		sessions: deps.Sessions,
		archive:  deps.Archive,
		engine:   cfg.Engine,
		logger:   logger.With().Str("component", "http").Logger(),
	}
	wsH := &wsHandler{
		hub:     deps.Hub,
		speaker: deps.Speaker,
		logger:  logger.With().Str("component", "ws_handler").Logger(),
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /v1/room", h.room)

	mux.HandleFunc("POST /v1/matches", h.startMatch)
	mux.HandleFunc("GET /v1/matches/{id}", h.status)
	mux.HandleFunc("POST /v1/matches/{id}/pause", h.pause)
	mux.HandleFunc("POST /v1/matches/{id}/resume", h.resume)
	mux.HandleFunc("POST /v1/matches/{id}/end", h.end)
	mux.HandleFunc("POST /v1/matches/{id}/restore", h.restore)
	mux.HandleFunc("POST /v1/matches/{id}/players", h.addPlayer)
	mux.HandleFunc("DELETE /v1/matches/{id}/players/{pid}", h.removeMatchPlayer)

	mux.HandleFunc("POST /v1/players", h.addPlayer)
	mux.HandleFunc("DELETE /v1/players/{id}", h.removePlayer)
	mux.HandleFunc("PUT /v1/players/{id}/status", h.setPlayerStatus)

	mux.HandleFunc("GET /v1/archive/matches", h.listArchived)
	mux.HandleFunc("GET /v1/archive/matches/{id}", h.getArchived)

	mux.HandleFunc("GET /ws", wsH.serve)

	handler := corsMiddleware(cfg.CORS, requestLogger(logger, mux))

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
}

// requestLogger tags each request with an id, injects the tagged logger
// into the request context and records the outcome.
func requestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.With().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(logging.IntoContext(r.Context(), reqLogger)))

		reqLogger.Debug().
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps WebSocket upgrades working through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func corsMiddleware(cfg config.CORS, next http.Handler) http.Handler {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
