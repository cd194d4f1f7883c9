package koth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/metrics"
	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/scoring"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

var ErrUnknownTarget = errors.New("unknown koth target")

type ClaimStatus string

const (
	ClaimTaken        ClaimStatus = "claimed"
	ClaimAlreadyOwner ClaimStatus = "already-owner"
	ClaimRejected     ClaimStatus = "rejected"
)

type ClaimResult struct {
	Status ClaimStatus `json:"status"`
	// OwnerTeamID is the owner after the call: the caller on success, the
	// team that beat them on a lost race.
	OwnerTeamID int64  `json:"owner_team_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// CaptureRule decides whether a takeover attempt against a held target is
// admissible. The default requires a fresh compromise proof.
type CaptureRule func(target *models.KothTarget, proof string) bool

func RequireProof(_ *models.KothTarget, proof string) bool {
	return proof != ""
}

// Arbiter resolves concurrent claim attempts on KOTH targets into a
// strict single-owner history. It never takes locks: the partial unique
// index on open claims and the compare-and-swap close are the only
// arbitration, scoped per target so unrelated targets never contend.
type Arbiter struct {
	store  store.LedgerStore
	bus    *events.Bus
	rule   CaptureRule
	closed atomic.Bool
	now    func() int64
}

func NewArbiter(ledger store.LedgerStore, bus *events.Bus, rule CaptureRule) *Arbiter {
	if rule == nil {
		rule = RequireProof
	}
	return &Arbiter{
		store: ledger,
		bus:   bus,
		rule:  rule,
		now:   func() int64 { return time.Now().Unix() },
	}
}

func (a *Arbiter) Claim(ctx context.Context, targetID, teamID int64, proof string) (*ClaimResult, error) {
	if a.closed.Load() {
		metrics.KothClaimsTotal.WithLabelValues(string(ClaimRejected)).Inc()
		return &ClaimResult{Status: ClaimRejected, Reason: "competition is over"}, nil
	}

	target, err := a.store.GetKothTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}
	if target == nil {
		return nil, ErrUnknownTarget
	}
	if target.Status != models.KothStatusOpen {
		metrics.KothClaimsTotal.WithLabelValues(string(ClaimRejected)).Inc()
		return &ClaimResult{Status: ClaimRejected, Reason: "target is closed"}, nil
	}

	current, err := a.store.GetOpenClaim(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}

	if current == nil {
		return a.claimUnowned(ctx, target, teamID)
	}

	if current.TeamID == teamID {
		metrics.KothClaimsTotal.WithLabelValues(string(ClaimAlreadyOwner)).Inc()
		return &ClaimResult{Status: ClaimAlreadyOwner, OwnerTeamID: teamID}, nil
	}

	if !a.rule(target, proof) {
		metrics.KothClaimsTotal.WithLabelValues(string(ClaimRejected)).Inc()
		return &ClaimResult{
			Status:      ClaimRejected,
			OwnerTeamID: current.TeamID,
			Reason:      "capture rule not satisfied",
		}, nil
	}

	now := a.now()

	// CAS on the open claim. Exactly one of N simultaneous challengers
	// closes it; the rest observe the new owner and may retry.
	won, err := a.store.CloseClaim(ctx, current.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}
	if !won {
		return a.lostRace(ctx, targetID)
	}

	if err := a.credit(ctx, target, current, now, true); err != nil {
		return nil, err
	}

	return a.claimUnowned(ctx, target, teamID)
}

// claimUnowned races the single-owner index on an apparently unowned
// target. Losing the insert is not an error, just a lost race.
func (a *Arbiter) claimUnowned(ctx context.Context, target *models.KothTarget, teamID int64) (*ClaimResult, error) {
	claim := &models.KothClaim{
		TargetID:  target.ID,
		TeamID:    teamID,
		ClaimedAt: a.now(),
	}
	inserted, err := a.store.OpenClaim(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}
	if !inserted {
		return a.lostRace(ctx, target.ID)
	}

	logger.Info.Printf("team %d now owns koth target %d", teamID, target.ID)
	metrics.KothClaimsTotal.WithLabelValues(string(ClaimTaken)).Inc()
	return &ClaimResult{Status: ClaimTaken, OwnerTeamID: teamID}, nil
}

func (a *Arbiter) lostRace(ctx context.Context, targetID int64) (*ClaimResult, error) {
	winner, err := a.store.GetOpenClaim(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}

	result := &ClaimResult{Status: ClaimRejected, Reason: "lost claim race, retry"}
	if winner != nil {
		result.OwnerTeamID = winner.TeamID
	}
	metrics.KothClaimsTotal.WithLabelValues(string(ClaimRejected)).Inc()
	return result, nil
}

// AccrueOpen credits every open claim for the whole minutes held since
// the last credit, leaving the sub-minute remainder for the next sweep or
// the final close. Ownership is untouched. Closed targets are skipped, so
// a claim that slipped past CloseAll never earns another point.
func (a *Arbiter) AccrueOpen(ctx context.Context) error {
	if a.closed.Load() {
		return nil
	}

	claims, err := a.store.ListOpenClaims(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}

	now := a.now()
	for _, claim := range claims {
		target, err := a.store.GetKothTarget(ctx, claim.TargetID)
		if err != nil {
			return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
		}
		if target == nil || target.Status != models.KothStatusOpen || target.AccrualPerMinute == 0 {
			continue
		}
		if err := a.credit(ctx, target, &claim, now, false); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll ends the competition: every target stops accepting claims,
// then every open claim is closed with its final accrual. Statuses flip
// first so a claim racing the shutdown cannot slip in behind the
// open-claim listing and keep accruing.
func (a *Arbiter) CloseAll(ctx context.Context) error {
	a.closed.Store(true)

	targets, err := a.store.ListKothTargets(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}
	for _, target := range targets {
		if err := a.store.SetKothTargetStatus(ctx, target.ID, models.KothStatusClosed); err != nil {
			return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
		}
	}

	claims, err := a.store.ListOpenClaims(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
	}

	now := a.now()
	for _, claim := range claims {
		won, err := a.store.CloseClaim(ctx, claim.ID, now)
		if err != nil {
			return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
		}
		if !won {
			continue
		}

		target, err := a.store.GetKothTarget(ctx, claim.TargetID)
		if err != nil {
			return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
		}
		if target == nil {
			continue
		}
		if err := a.credit(ctx, target, &claim, now, true); err != nil {
			return err
		}
	}

	logger.Info.Printf("koth arbiter closed, %d open claims settled", len(claims))
	return nil
}

// credit advances the claim's cumulative accrual by the uncredited part
// of its held span. Terminal credits take the full remainder; periodic
// ones take whole minutes only. The store's compare-and-swap on the
// credited seconds settles a credit racing another sweep: the loser
// re-reads, and can only find less left to pay.
func (a *Arbiter) credit(ctx context.Context, target *models.KothTarget, claim *models.KothClaim, now int64, terminal bool) error {
	held := now - claim.ClaimedAt
	if held <= 0 {
		return nil
	}

	for {
		var credited int64
		var creditedPoints int
		prev, err := a.store.GetClaimCredit(ctx, claim.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
		}
		if prev != nil {
			credited = prev.HeldSeconds
			creditedPoints = prev.Points
		}

		span := held - credited
		if span <= 0 {
			return nil
		}

		var points int
		var creditSeconds int64
		if terminal {
			creditSeconds = span
			points = int(span * int64(target.AccrualPerMinute) / 60)
		} else {
			minutes := span / 60
			creditSeconds = minutes * 60
			points = int(minutes) * target.AccrualPerMinute
		}
		if creditSeconds == 0 {
			return nil
		}

		accrual := &models.KothAccrual{
			ClaimID:     claim.ID,
			TargetID:    target.ID,
			TeamID:      claim.TeamID,
			Points:      creditedPoints + points,
			HeldSeconds: credited + creditSeconds,
			AccruedAt:   now,
		}
		won, err := a.store.CreditClaim(ctx, accrual, credited)
		if err != nil {
			return fmt.Errorf("%w: %v", scoring.ErrStoreUnavailable, err)
		}
		if won {
			if points != 0 {
				a.bus.Publish(events.ScoreChanged{
					Kind:   events.KindAccrual,
					TeamID: claim.TeamID,
					Delta:  points,
					At:     now,
				})
			}
			return nil
		}
		if !terminal {
			// A rival sweep paid first; the next one picks up the rest.
			return nil
		}
		// The terminal credit must land: the claim is already closed, so
		// the rival that won can only have been a periodic sweep, and the
		// credited span strictly grew. Re-read and pay what is left.
	}
}
