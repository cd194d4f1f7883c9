package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/app"
	"github.com/shrimpsizemoose/kungsborg/internal/koth"
	"github.com/shrimpsizemoose/kungsborg/internal/metrics"
	"github.com/shrimpsizemoose/kungsborg/internal/scoring"
)

type CoreHandler struct {
	service *app.Service
}

func NewCoreHandler(service *app.Service) *CoreHandler {
	return &CoreHandler{
		service: service,
	}
}

func (h *CoreHandler) observe(r *http.Request, status int, start time.Time) {
	metrics.APIRequestDuration.WithLabelValues(
		r.URL.Path,
		r.Method,
		strconv.Itoa(status),
	).Observe(time.Since(start).Seconds())
}

// capability resolves the caller's team and role before any core call.
// Auth itself lives outside the core; this is the boundary.
func (h *CoreHandler) capability(r *http.Request) (*app.Capability, int, string) {
	teamHeader := r.Header.Get(h.service.Config.API.TeamIDHeader)
	teamID, err := strconv.ParseInt(teamHeader, 10, 64)
	if err != nil || teamID <= 0 {
		return nil, http.StatusUnauthorized, "Invalid team id"
	}

	token := ""
	if header := h.service.Auth.TokenHeader(); header != "" {
		authHeader := r.Header.Get(header)
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}

	actor, err := h.service.Auth.Resolve(r.Context(), teamID, token)
	if err != nil {
		logger.Error.Printf("Capability check failed for team %d: %v", teamID, err)
		return nil, http.StatusUnauthorized, "Unauthorized"
	}
	return actor, 0, ""
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug.Printf("Error encoding response: %v", err)
	}
}

// writeCoreError translates the core's fault taxonomy to HTTP. Conflict
// outcomes never come through here: they are ordinary results.
func writeCoreError(w http.ResponseWriter, err error) int {
	switch {
	case errors.Is(err, scoring.ErrEmptyFlag):
		http.Error(w, "Flag must not be empty", http.StatusBadRequest)
		return http.StatusBadRequest
	case errors.Is(err, scoring.ErrUnknownTeam),
		errors.Is(err, scoring.ErrUnknownChallenge),
		errors.Is(err, scoring.ErrUnknownHint),
		errors.Is(err, koth.ErrUnknownTarget):
		http.Error(w, "Not found", http.StatusNotFound)
		return http.StatusNotFound
	case errors.Is(err, scoring.ErrChallengeUnavailable):
		http.Error(w, "Challenge is not open", http.StatusBadRequest)
		return http.StatusBadRequest
	case errors.Is(err, scoring.ErrStoreUnavailable):
		http.Error(w, "Ledger store unavailable, retry later", http.StatusServiceUnavailable)
		return http.StatusServiceUnavailable
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
}
