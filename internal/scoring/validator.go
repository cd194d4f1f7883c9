package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/metrics"
	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

type SubmitStatus string

const (
	SubmitAccepted      SubmitStatus = "accepted"
	SubmitAlreadySolved SubmitStatus = "already-solved"
	SubmitIncorrect     SubmitStatus = "incorrect"
)

type SubmitResult struct {
	Status SubmitStatus `json:"status"`
	// Value is the awarded point snapshot, set only on accepted.
	Value int `json:"value,omitempty"`
}

// Validator checks flag guesses and turns the first correct guess per
// (team, challenge) into an award. The one-award guarantee comes from the
// store's conditional insert, not from a pre-check, so two members of the
// same team racing on the right flag cannot both score.
type Validator struct {
	store store.LedgerStore
	bus   *events.Bus
	now   func() int64
}

func NewValidator(ledger store.LedgerStore, bus *events.Bus) *Validator {
	return &Validator{
		store: ledger,
		bus:   bus,
		now:   func() int64 { return time.Now().Unix() },
	}
}

// NormalizeFlag trims surrounding whitespace and, unless the challenge
// demands exact case, lowercases the guess. Both sides of the comparison
// go through this.
func NormalizeFlag(text string, caseSensitive bool) string {
	text = strings.TrimSpace(text)
	if !caseSensitive {
		text = strings.ToLower(text)
	}
	return text
}

func (v *Validator) Submit(ctx context.Context, teamID, challengeID int64, text string) (*SubmitResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyFlag
	}

	team, err := v.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if team == nil {
		return nil, ErrUnknownTeam
	}

	challenge, err := v.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if challenge == nil {
		return nil, ErrUnknownChallenge
	}
	if !challenge.Visible() {
		return nil, ErrChallengeUnavailable
	}

	guess := NormalizeFlag(text, challenge.CaseSensitive)
	matched := guess == NormalizeFlag(challenge.Flag, challenge.CaseSensitive)
	submittedAt := v.now()

	if !matched {
		if err := v.recordAttempt(ctx, teamID, challengeID, text, false, submittedAt); err != nil {
			return nil, err
		}
		metrics.SubmissionsTotal.WithLabelValues(string(SubmitIncorrect)).Inc()
		return &SubmitResult{Status: SubmitIncorrect}, nil
	}

	award := &models.Award{
		TeamID:      teamID,
		ChallengeID: challengeID,
		Value:       challenge.Value,
		AwardedAt:   submittedAt,
	}
	inserted, err := v.store.InsertAward(ctx, award)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// The award insert decides which attempt gets the one correct row in
	// the log. Repeats after a solve still land there, marked incorrect.
	// If the log write fails here the award stands and the caller sees an
	// error: the awards table is the ledger, the attempt log is analytics,
	// and reconciliation folds over awards only.
	if err := v.recordAttempt(ctx, teamID, challengeID, text, inserted, submittedAt); err != nil {
		return nil, err
	}

	if !inserted {
		metrics.SubmissionsTotal.WithLabelValues(string(SubmitAlreadySolved)).Inc()
		return &SubmitResult{Status: SubmitAlreadySolved}, nil
	}

	logger.Info.Printf("team %d solved challenge %d for %d points", teamID, challengeID, challenge.Value)
	metrics.SubmissionsTotal.WithLabelValues(string(SubmitAccepted)).Inc()

	v.bus.Publish(events.ScoreChanged{
		Kind:     events.KindSolve,
		TeamID:   teamID,
		Delta:    challenge.Value,
		SolvedAt: submittedAt,
		At:       submittedAt,
	})

	return &SubmitResult{Status: SubmitAccepted, Value: challenge.Value}, nil
}

func (v *Validator) recordAttempt(ctx context.Context, teamID, challengeID int64, text string, correct bool, at int64) error {
	sub := &models.Submission{
		TeamID:        teamID,
		ChallengeID:   challengeID,
		SubmittedFlag: strings.TrimSpace(text),
		Correct:       correct,
		SubmittedAt:   at,
	}
	if err := v.store.RecordSubmission(ctx, sub); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
