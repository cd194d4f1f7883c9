package handlers

import (
	"time"

	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/models"
)

func (h *CoreHandler) HandleListChallenges(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	if _, code, msg := h.capability(r); code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}

	challenges, err := h.service.Store.ListVisibleChallenges(r.Context())
	if err != nil {
		logger.Error.Printf("Failed to list challenges: %v", err)
		status = http.StatusInternalServerError
		http.Error(w, "Failed to fetch challenges", status)
		return
	}

	writeJSON(w, status, map[string]interface{}{
		"challenges": challenges,
	})
}

type submitRequest struct {
	Flag string `json:"flag"`
}

func (h *CoreHandler) HandleSubmitFlag(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	actor, code, msg := h.capability(r)
	if code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}
	if !actor.CanPlay() {
		status = http.StatusForbidden
		http.Error(w, "Capability does not allow submissions", status)
		return
	}

	challengeID, ok := pathID(r, "id")
	if !ok {
		status = http.StatusBadRequest
		http.Error(w, "Invalid challenge id", status)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		http.Error(w, "Invalid request body", status)
		return
	}

	result, err := h.service.Validator.Submit(r.Context(), actor.TeamID, challengeID, req.Flag)
	if err != nil {
		logger.Debug.Printf("Submit by team %d on challenge %d failed: %v", actor.TeamID, challengeID, err)
		status = writeCoreError(w, err)
		return
	}

	writeJSON(w, status, result)
}

// hintView is what players see in listings: text stays hidden until the
// hint is paid for.
type hintView struct {
	ID       int64  `json:"id"`
	Rank     int    `json:"rank"`
	Cost     int    `json:"cost"`
	Unlocked bool   `json:"unlocked"`
	Text     string `json:"text,omitempty"`
}

func (h *CoreHandler) HandleListHints(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	actor, code, msg := h.capability(r)
	if code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}

	challengeID, ok := pathID(r, "id")
	if !ok {
		status = http.StatusBadRequest
		http.Error(w, "Invalid challenge id", status)
		return
	}

	hints, err := h.service.Store.ListChallengeHints(r.Context(), challengeID)
	if err != nil {
		logger.Error.Printf("Failed to list hints for challenge %d: %v", challengeID, err)
		status = http.StatusInternalServerError
		http.Error(w, "Failed to fetch hints", status)
		return
	}

	unlocked, err := h.service.Hints.UnlockedHints(r.Context(), actor.TeamID, challengeID)
	if err != nil {
		logger.Error.Printf("Failed to list unlocks for team %d: %v", actor.TeamID, err)
		status = writeCoreError(w, err)
		return
	}
	paid := make(map[int64]models.Hint, len(unlocked))
	for _, u := range unlocked {
		paid[u.ID] = u
	}

	views := make([]hintView, 0, len(hints))
	for _, hint := range hints {
		view := hintView{
			ID:   hint.ID,
			Rank: hint.Rank,
			Cost: hint.Cost,
		}
		if _, ok := paid[hint.ID]; ok {
			view.Unlocked = true
			view.Text = hint.Text
		}
		views = append(views, view)
	}

	writeJSON(w, status, map[string]interface{}{
		"hints": views,
	})
}

func (h *CoreHandler) HandleUnlockHint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	actor, code, msg := h.capability(r)
	if code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}
	if !actor.CanPlay() {
		status = http.StatusForbidden
		http.Error(w, "Capability does not allow unlocks", status)
		return
	}

	hintID, ok := pathID(r, "id")
	if !ok {
		status = http.StatusBadRequest
		http.Error(w, "Invalid hint id", status)
		return
	}

	result, err := h.service.Hints.Unlock(r.Context(), actor.TeamID, hintID)
	if err != nil {
		logger.Debug.Printf("Unlock of hint %d by team %d failed: %v", hintID, actor.TeamID, err)
		status = writeCoreError(w, err)
		return
	}

	writeJSON(w, status, result)
}
