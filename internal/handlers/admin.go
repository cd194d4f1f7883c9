package handlers

import (
	"errors"
	"time"

	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/scoring"
)

// HandleCloseCompetition freezes KOTH play: every open claim is settled
// with its final accrual and all targets stop accepting claims. Solves
// and hint unlocks are unaffected.
func (h *CoreHandler) HandleCloseCompetition(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	actor, code, msg := h.capability(r)
	if code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}
	if !actor.CanAdminister() {
		status = http.StatusForbidden
		http.Error(w, "Admin capability required", status)
		return
	}

	if err := h.service.Arbiter.CloseAll(r.Context()); err != nil {
		logger.Error.Printf("Failed to close competition: %v", err)
		status = writeCoreError(w, err)
		return
	}

	writeJSON(w, status, map[string]interface{}{
		"status": "closed",
	})
}

// HandleReconcile forces a full sweep comparing cached totals against a
// from-scratch ledger fold. Mismatches are logged, counted and repaired.
func (h *CoreHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	actor, code, msg := h.capability(r)
	if code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}
	if !actor.CanAdminister() {
		status = http.StatusForbidden
		http.Error(w, "Admin capability required", status)
		return
	}

	if err := h.service.Aggregator.ReconcileAll(r.Context()); err != nil {
		if !errors.Is(err, scoring.ErrReconciliationMismatch) {
			status = writeCoreError(w, err)
			return
		}
		logger.Error.Printf("Reconciliation sweep found mismatches: %v", err)
		writeJSON(w, status, map[string]interface{}{
			"status": "repaired",
			"detail": err.Error(),
		})
		return
	}

	writeJSON(w, status, map[string]interface{}{
		"status": "clean",
	})
}
