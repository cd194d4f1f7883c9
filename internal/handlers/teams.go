package handlers

import (
	"errors"
	"strings"
	"time"

	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/models"
)

type registerRequest struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
	Password    string `json:"password"`
}

func (h *CoreHandler) HandleRegisterTeam(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusCreated
	defer func() { h.observe(r, status, start) }()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		http.Error(w, "Invalid request body", status)
		return
	}
	if req.Password == "" {
		status = http.StatusBadRequest
		http.Error(w, "Password must not be empty", status)
		return
	}

	team, token, err := h.service.RegisterTeam(r.Context(), req.Name, req.Affiliation, req.Password)
	if err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			status = http.StatusBadRequest
			http.Error(w, "Invalid team: "+vErrs.Error(), status)
			return
		}
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "UNIQUE") {
			status = http.StatusConflict
			http.Error(w, "Team name already taken", status)
			return
		}
		logger.Error.Printf("Failed to register team %q: %v", req.Name, err)
		status = writeCoreError(w, err)
		return
	}

	// The token shows up exactly once, in this response. With auth
	// disabled it is omitted.
	writeJSON(w, status, registeredView{Team: team, Token: token})
}

type registeredView struct {
	*models.Team
	Token string `json:"token,omitempty"`
}

func (h *CoreHandler) HandleTeamScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	if _, code, msg := h.capability(r); code != 0 {
		status = code
		http.Error(w, msg, status)
		return
	}

	teamID, ok := pathID(r, "id")
	if !ok {
		status = http.StatusBadRequest
		http.Error(w, "Invalid team id", status)
		return
	}

	score, err := h.service.Aggregator.ScoreOf(r.Context(), teamID)
	if err != nil {
		logger.Error.Printf("Failed to fetch score for team %d: %v", teamID, err)
		status = writeCoreError(w, err)
		return
	}

	writeJSON(w, status, map[string]interface{}{
		"team_id": teamID,
		"score":   score,
	})
}
