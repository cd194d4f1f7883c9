package handlers

import (
	"time"

	"net/http"
)

// HandleScoreboard serves the cached ranking. It never folds the ledger
// on the request path: staleness is bounded by the cache's debounce and
// refresh interval.
func (h *CoreHandler) HandleScoreboard(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.observe(r, status, start) }()

	entries := h.service.Leaderboard.RankedTeams()

	writeJSON(w, status, map[string]interface{}{
		"scoreboard": entries,
		"rebuilt_at": h.service.Leaderboard.RebuiltAt().Unix(),
	})
}
