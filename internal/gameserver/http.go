package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
	"github.com/cory-johannsen/rhymeduel/internal/game/room"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	pingTimeout      = 2 * time.Second
)

type healthResponse struct {
	Status       string `json:"status"`
	Rooms        int    `json:"rooms"`
	Participants int    `json:"participants"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter mounts the websocket endpoint, the health check and the match
// history routes.
//
// Precondition: every argument must be non-nil.
func NewRouter(sessions *SessionServer, registry *room.Registry, store archive.Store, logger *zap.Logger) http.Handler {
	h := &routes{registry: registry, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/ws", sessions)
	r.Get("/healthz", h.healthz)
	r.Get("/matches", h.listMatches)
	r.Get("/matches/{id}", h.getMatch)
	return r
}

type routes struct {
	registry *room.Registry
	store    archive.Store
	logger   *zap.Logger
}

func (h *routes) healthz(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	resp := healthResponse{Status: "ok", Rooms: stats.Rooms, Participants: stats.Participants}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check: store unavailable", zap.Error(err))
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *routes) listMatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	matches, err := h.store.ListMatches(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing matches", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "listing matches failed"})
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (h *routes) getMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	match, err := h.store.GetMatch(r.Context(), id)
	if errors.Is(err, archive.ErrMatchNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "match not found"})
		return
	}
	if err != nil {
		h.logger.Error("loading match", zap.String("match_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "loading match failed"})
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
