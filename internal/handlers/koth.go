package handlers

import (
	"time"

	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"
)

type claimRequest struct {
	Proof string `json:"proof"`
}

func (h *CoreHandler) HandleKothClaim(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "Capability does not allow claims", status)
		return
	}

	targetID, ok := pathID(r, "id")
	if !ok {
		status = http.StatusBadRequest
		http.Error(w, "Invalid target id", status)
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		http.Error(w, "Invalid request body", status)
		return
	}

	result, err := h.service.Arbiter.Claim(r.Context(), targetID, actor.TeamID, req.Proof)
	if err != nil {
		logger.Debug.Printf("Claim on target %d by team %d failed: %v", targetID, actor.TeamID, err)
		status = writeCoreError(w, err)
		return
	}

	writeJSON(w, status, result)
}

type kothTargetView struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Host             string `json:"host"`
	Port             *int   `json:"port,omitempty"`
	Status           string `json:"status"`
	AccrualPerMinute int    `json:"accrual_per_minute"`
	OwnerTeamID      int64  `json:"owner_team_id,omitempty"`
}

func (h *CoreHandler) HandleKothTargets(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	if _, code, msg := h.capability(r); code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}

	targets, err := h.service.Store.ListKothTargets(r.Context())
	if err != nil {
		logger.Error.Printf("Failed to list koth targets: %v", err)
		status = http.StatusInternalServerError
		http.Error(w, "Failed to fetch targets", status)
		return
	}

	claims, err := h.service.Store.ListOpenClaims(r.Context())
	if err != nil {
		logger.Error.Printf("Failed to list open claims: %v", err)
		status = http.StatusInternalServerError
		http.Error(w, "Failed to fetch targets", status)
		return
	}
	owners := make(map[int64]int64, len(claims))
	for _, claim := range claims {
		owners[claim.TargetID] = claim.TeamID
	}

	views := make([]kothTargetView, 0, len(targets))
	for _, target := range targets {
		views = append(views, kothTargetView{
			ID:               target.ID,
			Title:            target.Title,
			Host:             target.Host,
			Port:             target.Port,
			Status:           target.Status,
			AccrualPerMinute: target.AccrualPerMinute,
			OwnerTeamID:      owners[target.ID],
		})
	}

	writeJSON(w, status, map[string]interface{}{
		"targets": views,
	})
}
