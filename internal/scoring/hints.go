package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/metrics"
	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

type UnlockStatus string

const (
	UnlockDone            UnlockStatus = "unlocked"
	UnlockAlreadyUnlocked UnlockStatus = "already-unlocked"
	UnlockOutOfOrder      UnlockStatus = "out-of-order"
)

type UnlockResult struct {
	Status UnlockStatus `json:"status"`
	// Cost is the deducted amount, set only on a fresh unlock.
	Cost int `json:"cost,omitempty"`
	// Hint carries the revealed text for unlocked and already-unlocked.
	Hint *models.Hint `json:"hint,omitempty"`
}

// HintLedger hands out hints in rank order and deducts each hint's cost
// at most once per team. The deduction and the uniqueness check are one
// conditional insert, so a lost race never charges the loser.
type HintLedger struct {
	store store.LedgerStore
	bus   *events.Bus
	now   func() int64
}

func NewHintLedger(ledger store.LedgerStore, bus *events.Bus) *HintLedger {
	return &HintLedger{
		store: ledger,
		bus:   bus,
		now:   func() int64 { return time.Now().Unix() },
	}
}

func (l *HintLedger) Unlock(ctx context.Context, teamID, hintID int64) (*UnlockResult, error) {
	hint, err := l.store.GetHint(ctx, hintID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if hint == nil {
		return nil, ErrUnknownHint
	}

	team, err := l.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if team == nil {
		return nil, ErrUnknownTeam
	}

	ok, err := l.lowerRanksUnlocked(ctx, teamID, hint)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.HintUnlocksTotal.WithLabelValues(string(UnlockOutOfOrder)).Inc()
		return &UnlockResult{Status: UnlockOutOfOrder}, nil
	}

	unlock := &models.HintUnlock{
		TeamID:     teamID,
		HintID:     hintID,
		Cost:       hint.Cost,
		UnlockedAt: l.now(),
	}
	inserted, err := l.store.InsertHintUnlock(ctx, unlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !inserted {
		metrics.HintUnlocksTotal.WithLabelValues(string(UnlockAlreadyUnlocked)).Inc()
		return &UnlockResult{Status: UnlockAlreadyUnlocked, Hint: hint}, nil
	}

	logger.Info.Printf("team %d unlocked hint %d for challenge %d, cost %d", teamID, hintID, hint.ChallengeID, hint.Cost)
	metrics.HintUnlocksTotal.WithLabelValues(string(UnlockDone)).Inc()

	l.bus.Publish(events.ScoreChanged{
		Kind:   events.KindHint,
		TeamID: teamID,
		Delta:  -hint.Cost,
		At:     unlock.UnlockedAt,
	})

	return &UnlockResult{Status: UnlockDone, Cost: hint.Cost, Hint: hint}, nil
}

// UnlockedHints returns the hints the team has already paid for on a
// challenge, in rank order.
func (l *HintLedger) UnlockedHints(ctx context.Context, teamID, challengeID int64) ([]models.Hint, error) {
	hints, err := l.store.ListChallengeHints(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	unlocks, err := l.store.ListTeamUnlocksForChallenge(ctx, teamID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	paid := make(map[int64]bool, len(unlocks))
	for _, u := range unlocks {
		paid[u.HintID] = true
	}

	var out []models.Hint
	for _, h := range hints {
		if paid[h.ID] {
			out = append(out, h)
		}
	}
	return out, nil
}

func (l *HintLedger) lowerRanksUnlocked(ctx context.Context, teamID int64, hint *models.Hint) (bool, error) {
	hints, err := l.store.ListChallengeHints(ctx, hint.ChallengeID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	unlocks, err := l.store.ListTeamUnlocksForChallenge(ctx, teamID, hint.ChallengeID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	paid := make(map[int64]bool, len(unlocks))
	for _, u := range unlocks {
		paid[u.HintID] = true
	}

	for _, h := range hints {
		if h.Rank < hint.Rank && !paid[h.ID] {
			return false, nil
		}
	}
	return true, nil
}
