package scoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/metrics"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

// Standing is one team's ranking key: score plus the solve-time
// tie-break. LastSolve is nil for teams with no solves; those rank below
// every team that has at least one.
type Standing struct {
	TeamID    int64  `json:"team_id"`
	Score     int    `json:"score"`
	LastSolve *int64 `json:"last_solve,omitempty"`
}

type teamTotal struct {
	score     int
	lastSolve *int64
}

// Aggregator is the single source of truth for a team's score. It keeps
// an incrementally maintained running total per team and can always be
// checked against the from-scratch ledger fold, which wins on any
// disagreement.
type Aggregator struct {
	store store.LedgerStore

	mu     sync.Mutex
	totals map[int64]*teamTotal
}

func NewAggregator(ledger store.LedgerStore) *Aggregator {
	return &Aggregator{
		store:  ledger,
		totals: make(map[int64]*teamTotal),
	}
}

// Run consumes score-changed events until the channel closes. Deltas only
// apply to teams whose totals are already loaded; a team first seen via
// ScoreOf is seeded from a fold, so nothing is ever counted twice.
func (a *Aggregator) Run(ch <-chan events.ScoreChanged) {
	for ev := range ch {
		a.apply(ev)
	}
}

func (a *Aggregator) apply(ev events.ScoreChanged) {
	a.mu.Lock()
	defer a.mu.Unlock()

	total, ok := a.totals[ev.TeamID]
	if !ok {
		return
	}

	total.score += ev.Delta
	if ev.Kind == events.KindSolve {
		if total.lastSolve == nil || ev.SolvedAt > *total.lastSolve {
			solvedAt := ev.SolvedAt
			total.lastSolve = &solvedAt
		}
	}
}

// ScoreOf returns the authoritative score for one team.
func (a *Aggregator) ScoreOf(ctx context.Context, teamID int64) (int, error) {
	a.mu.Lock()
	if total, ok := a.totals[teamID]; ok {
		score := total.score
		a.mu.Unlock()
		return score, nil
	}
	a.mu.Unlock()

	standing, err := a.Recompute(ctx, teamID)
	if err != nil {
		return 0, err
	}
	return standing.Score, nil
}

// Recompute folds the team's full ledger history and replaces the cached
// running total with the result. Idempotent.
func (a *Aggregator) Recompute(ctx context.Context, teamID int64) (*Standing, error) {
	fold, err := a.store.FetchScoreFold(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if fold == nil {
		return nil, ErrUnknownTeam
	}

	a.mu.Lock()
	a.totals[teamID] = &teamTotal{score: fold.Score(), lastSolve: fold.LastSolve}
	a.mu.Unlock()

	return &Standing{TeamID: teamID, Score: fold.Score(), LastSolve: fold.LastSolve}, nil
}

// Reconcile compares the cached running total against a fresh fold. On a
// mismatch the fold wins, the mismatch is counted and logged, and the
// caller gets ErrReconciliationMismatch; the corrected score is still
// returned.
func (a *Aggregator) Reconcile(ctx context.Context, teamID int64) (int, error) {
	fold, err := a.store.FetchScoreFold(ctx, teamID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if fold == nil {
		return 0, ErrUnknownTeam
	}

	a.mu.Lock()
	cached, loaded := a.totals[teamID]
	mismatch := loaded && cached.score != fold.Score()
	a.totals[teamID] = &teamTotal{score: fold.Score(), lastSolve: fold.LastSolve}
	a.mu.Unlock()

	if mismatch {
		metrics.ReconciliationMismatches.Inc()
		logger.Error.Printf(
			"score reconciliation mismatch for team %d: cached %d, ledger fold %d; fold wins",
			teamID, cached.score, fold.Score(),
		)
		return fold.Score(), fmt.Errorf("%w: team %d cached %d vs fold %d",
			ErrReconciliationMismatch, teamID, cached.score, fold.Score())
	}

	return fold.Score(), nil
}

// ReconcileAll sweeps every team. Mismatches are corrected and counted but
// do not stop the sweep; the first one is reported at the end.
func (a *Aggregator) ReconcileAll(ctx context.Context) error {
	folds, err := a.store.FetchAllScoreFolds(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var firstMismatch error
	for _, fold := range folds {
		a.mu.Lock()
		cached, loaded := a.totals[fold.TeamID]
		mismatch := loaded && cached.score != fold.Score()
		a.totals[fold.TeamID] = &teamTotal{score: fold.Score(), lastSolve: fold.LastSolve}
		a.mu.Unlock()

		if mismatch {
			metrics.ReconciliationMismatches.Inc()
			logger.Error.Printf(
				"score reconciliation mismatch for team %d: cached %d, ledger fold %d; fold wins",
				fold.TeamID, cached.score, fold.Score(),
			)
			if firstMismatch == nil {
				firstMismatch = fmt.Errorf("%w: team %d cached %d vs fold %d",
					ErrReconciliationMismatch, fold.TeamID, cached.score, fold.Score())
			}
		}
	}

	return firstMismatch
}

// AllStandings folds every team's ledger and refreshes the cache along
// the way. This is what the leaderboard rebuild pulls from.
func (a *Aggregator) AllStandings(ctx context.Context) ([]Standing, error) {
	folds, err := a.store.FetchAllScoreFolds(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	standings := make([]Standing, 0, len(folds))
	a.mu.Lock()
	for _, fold := range folds {
		a.totals[fold.TeamID] = &teamTotal{score: fold.Score(), lastSolve: fold.LastSolve}
		standings = append(standings, Standing{
			TeamID:    fold.TeamID,
			Score:     fold.Score(),
			LastSolve: fold.LastSolve,
		})
	}
	a.mu.Unlock()

	return standings, nil
}
