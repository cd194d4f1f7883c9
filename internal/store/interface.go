package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/kungsborg/internal/models"
)

// LedgerStore is the durable side of the scoring core. All score-relevant
// state lives behind it as append-only rows; the two conditional inserts
// (awards, hint unlocks) and the claim close are the atomic primitives the
// rest of the core builds its race arbitration on.
type LedgerStore interface {
	Close() error
	ApplyMigrations(dir string) error

	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	GetTeamByName(ctx context.Context, name string) (*models.Team, error)
	ListTeams(ctx context.Context) ([]models.Team, error)

	GetChallenge(ctx context.Context, id int64) (*models.Challenge, error)
	ListVisibleChallenges(ctx context.Context) ([]models.Challenge, error)

	RecordSubmission(ctx context.Context, sub *models.Submission) error
	// InsertAward performs an atomic insert-if-absent on (team, challenge).
	// The returned bool is false when another caller got there first.
	InsertAward(ctx context.Context, award *models.Award) (bool, error)
	ListTeamAwards(ctx context.Context, teamID int64) ([]models.Award, error)

	GetHint(ctx context.Context, id int64) (*models.Hint, error)
	ListChallengeHints(ctx context.Context, challengeID int64) ([]models.Hint, error)
	// InsertHintUnlock performs an atomic insert-if-absent on (team, hint).
	InsertHintUnlock(ctx context.Context, unlock *models.HintUnlock) (bool, error)
	ListTeamUnlocksForChallenge(ctx context.Context, teamID, challengeID int64) ([]models.HintUnlock, error)

	GetKothTarget(ctx context.Context, id int64) (*models.KothTarget, error)
	ListKothTargets(ctx context.Context) ([]models.KothTarget, error)
	SetKothTargetStatus(ctx context.Context, id int64, status string) error
	GetOpenClaim(ctx context.Context, targetID int64) (*models.KothClaim, error)
	ListOpenClaims(ctx context.Context) ([]models.KothClaim, error)
	// OpenClaim inserts a claim guarded by the single-owner index,
	// populating claim.ID on success. The returned bool is false when the
	// target already has an open claim.
	OpenClaim(ctx context.Context, claim *models.KothClaim) (bool, error)
	// CloseClaim is the compare-and-swap on ownership: it succeeds only if
	// the claim is still the open one. Exactly one of N concurrent callers
	// observes true.
	CloseClaim(ctx context.Context, claimID, releasedAt int64) (bool, error)
	// GetClaimCredit returns the claim's cumulative credit row, nil when
	// nothing has been credited yet.
	GetClaimCredit(ctx context.Context, claimID int64) (*models.KothAccrual, error)
	// CreditClaim advances a claim's cumulative credit. The write lands
	// only if the seconds already credited still equal fromSeconds, so of
	// N concurrent crediting sweeps exactly one observes true and the rest
	// must re-read before trying again.
	CreditClaim(ctx context.Context, accrual *models.KothAccrual, fromSeconds int64) (bool, error)

	FetchScoreFold(ctx context.Context, teamID int64) (*ScoreFold, error)
	FetchAllScoreFolds(ctx context.Context) ([]ScoreFold, error)
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(fmt.Sprintf("%s/%s", dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

func (s *BaseStore) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	var team models.Team
	query := s.Converter(`
		SELECT id, name, affiliation, password_hash, registered_at
		FROM teams
		WHERE id = ?
	`)

	err := s.DB.GetContext(ctx, &team, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

func (s *BaseStore) GetTeamByName(ctx context.Context, name string) (*models.Team, error) {
	var team models.Team
	query := s.Converter(`
		SELECT id, name, affiliation, password_hash, registered_at
		FROM teams
		WHERE name = ?
	`)

	err := s.DB.GetContext(ctx, &team, query, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team by name: %w", err)
	}
	return &team, nil
}

func (s *BaseStore) ListTeams(ctx context.Context) ([]models.Team, error) {
	var teams []models.Team
	err := s.DB.SelectContext(ctx, &teams, `
		SELECT id, name, affiliation, password_hash, registered_at
		FROM teams
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

func (s *BaseStore) GetChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	var challenge models.Challenge
	query := s.Converter(`
		SELECT id, title, description, COALESCE(category_id, 0) AS category_id,
		       value, flag, case_sensitive, hidden, retired
		FROM challenges
		WHERE id = ?
	`)

	err := s.DB.GetContext(ctx, &challenge, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return &challenge, nil
}

func (s *BaseStore) ListVisibleChallenges(ctx context.Context) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.DB.SelectContext(ctx, &challenges, `
		SELECT id, title, description, COALESCE(category_id, 0) AS category_id,
		       value, flag, case_sensitive, hidden, retired
		FROM challenges
		WHERE NOT hidden AND NOT retired
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	return challenges, nil
}

func (s *BaseStore) RecordSubmission(ctx context.Context, sub *models.Submission) error {
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO submissions (team_id, challenge_id, submitted_flag, correct, submitted_at)
		VALUES (:team_id, :challenge_id, :submitted_flag, :correct, :submitted_at)
	`, sub)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

func (s *BaseStore) InsertAward(ctx context.Context, award *models.Award) (bool, error) {
	res, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO awards (team_id, challenge_id, value, awarded_at)
		VALUES (:team_id, :challenge_id, :value, :awarded_at)
		ON CONFLICT DO NOTHING
	`, award)
	if err != nil {
		return false, fmt.Errorf("failed to insert award: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read award insert result: %w", err)
	}
	return n > 0, nil
}

func (s *BaseStore) ListTeamAwards(ctx context.Context, teamID int64) ([]models.Award, error) {
	var awards []models.Award
	query := s.Converter(`
		SELECT team_id, challenge_id, value, awarded_at
		FROM awards
		WHERE team_id = ?
		ORDER BY awarded_at ASC
	`)

	err := s.DB.SelectContext(ctx, &awards, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	return awards, nil
}

func (s *BaseStore) GetHint(ctx context.Context, id int64) (*models.Hint, error) {
	var hint models.Hint
	query := s.Converter(`
		SELECT id, challenge_id, rank, text, cost
		FROM hints
		WHERE id = ?
	`)

	err := s.DB.GetContext(ctx, &hint, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hint: %w", err)
	}
	return &hint, nil
}

func (s *BaseStore) ListChallengeHints(ctx context.Context, challengeID int64) ([]models.Hint, error) {
	var hints []models.Hint
	query := s.Converter(`
		SELECT id, challenge_id, rank, text, cost
		FROM hints
		WHERE challenge_id = ?
		ORDER BY rank ASC
	`)

	err := s.DB.SelectContext(ctx, &hints, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hints: %w", err)
	}
	return hints, nil
}

func (s *BaseStore) InsertHintUnlock(ctx context.Context, unlock *models.HintUnlock) (bool, error) {
	res, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO hint_unlocks (team_id, hint_id, cost, unlocked_at)
		VALUES (:team_id, :hint_id, :cost, :unlocked_at)
		ON CONFLICT DO NOTHING
	`, unlock)
	if err != nil {
		return false, fmt.Errorf("failed to insert hint unlock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read unlock insert result: %w", err)
	}
	return n > 0, nil
}

func (s *BaseStore) ListTeamUnlocksForChallenge(ctx context.Context, teamID, challengeID int64) ([]models.HintUnlock, error) {
	var unlocks []models.HintUnlock
	query := s.Converter(`
		SELECT hu.team_id, hu.hint_id, hu.cost, hu.unlocked_at
		FROM hint_unlocks hu
		JOIN hints h ON h.id = hu.hint_id
		WHERE hu.team_id = ?
		AND h.challenge_id = ?
		ORDER BY h.rank ASC
	`)

	err := s.DB.SelectContext(ctx, &unlocks, query, teamID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team unlocks: %w", err)
	}
	return unlocks, nil
}

func (s *BaseStore) GetKothTarget(ctx context.Context, id int64) (*models.KothTarget, error) {
	var target models.KothTarget
	query := s.Converter(`
		SELECT id, title, host, port, status, accrual_per_minute
		FROM koth_targets
		WHERE id = ?
	`)

	err := s.DB.GetContext(ctx, &target, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get koth target: %w", err)
	}
	return &target, nil
}

func (s *BaseStore) ListKothTargets(ctx context.Context) ([]models.KothTarget, error) {
	var targets []models.KothTarget
	err := s.DB.SelectContext(ctx, &targets, `
		SELECT id, title, host, port, status, accrual_per_minute
		FROM koth_targets
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list koth targets: %w", err)
	}
	return targets, nil
}

func (s *BaseStore) SetKothTargetStatus(ctx context.Context, id int64, status string) error {
	query := s.Converter(`UPDATE koth_targets SET status = ? WHERE id = ?`)
	if _, err := s.DB.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to set koth target status: %w", err)
	}
	return nil
}

func (s *BaseStore) GetOpenClaim(ctx context.Context, targetID int64) (*models.KothClaim, error) {
	var claim models.KothClaim
	query := s.Converter(`
		SELECT id, target_id, team_id, claimed_at, released_at
		FROM koth_claims
		WHERE target_id = ?
		AND released_at IS NULL
	`)

	err := s.DB.GetContext(ctx, &claim, query, targetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open claim: %w", err)
	}
	return &claim, nil
}

func (s *BaseStore) ListOpenClaims(ctx context.Context) ([]models.KothClaim, error) {
	var claims []models.KothClaim
	err := s.DB.SelectContext(ctx, &claims, `
		SELECT id, target_id, team_id, claimed_at, released_at
		FROM koth_claims
		WHERE released_at IS NULL
		ORDER BY target_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open claims: %w", err)
	}
	return claims, nil
}

func (s *BaseStore) CloseClaim(ctx context.Context, claimID, releasedAt int64) (bool, error) {
	query := s.Converter(`
		UPDATE koth_claims
		SET released_at = ?
		WHERE id = ?
		AND released_at IS NULL
	`)

	res, err := s.DB.ExecContext(ctx, query, releasedAt, claimID)
	if err != nil {
		return false, fmt.Errorf("failed to close claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim close result: %w", err)
	}
	return n > 0, nil
}

func (s *BaseStore) GetClaimCredit(ctx context.Context, claimID int64) (*models.KothAccrual, error) {
	var accrual models.KothAccrual
	query := s.Converter(`
		SELECT claim_id, target_id, team_id, points, held_seconds, accrued_at
		FROM koth_accruals
		WHERE claim_id = ?
	`)

	err := s.DB.GetContext(ctx, &accrual, query, claimID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim credit: %w", err)
	}
	return &accrual, nil
}

func (s *BaseStore) CreditClaim(ctx context.Context, accrual *models.KothAccrual, fromSeconds int64) (bool, error) {
	// The first credit races the primary key, later ones race the
	// held_seconds compare-and-swap. Either way only one writer lands.
	if fromSeconds == 0 {
		res, err := s.DB.NamedExecContext(ctx, `
			INSERT INTO koth_accruals (claim_id, target_id, team_id, points, held_seconds, accrued_at)
			VALUES (:claim_id, :target_id, :team_id, :points, :held_seconds, :accrued_at)
			ON CONFLICT DO NOTHING
		`, accrual)
		if err != nil {
			return false, fmt.Errorf("failed to insert claim credit: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read claim credit result: %w", err)
		}
		return n > 0, nil
	}

	query := s.Converter(`
		UPDATE koth_accruals
		SET points = ?, held_seconds = ?, accrued_at = ?
		WHERE claim_id = ?
		AND held_seconds = ?
	`)

	res, err := s.DB.ExecContext(ctx, query,
		accrual.Points, accrual.HeldSeconds, accrual.AccruedAt, accrual.ClaimID, fromSeconds)
	if err != nil {
		return false, fmt.Errorf("failed to advance claim credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim credit result: %w", err)
	}
	return n > 0, nil
}

func (s *BaseStore) FetchScoreFold(ctx context.Context, teamID int64) (*ScoreFold, error) {
	var fold ScoreFold
	query := s.Converter(`
		SELECT
			t.id AS team_id,
			(SELECT COALESCE(SUM(a.value), 0) FROM awards a WHERE a.team_id = t.id) AS award_points,
			(SELECT COALESCE(SUM(hu.cost), 0) FROM hint_unlocks hu WHERE hu.team_id = t.id) AS hint_costs,
			(SELECT COALESCE(SUM(ka.points), 0) FROM koth_accruals ka WHERE ka.team_id = t.id) AS accrual_points,
			(SELECT MAX(a.awarded_at) FROM awards a WHERE a.team_id = t.id) AS last_solve
		FROM teams t
		WHERE t.id = ?
	`)

	err := s.DB.GetContext(ctx, &fold, query, teamID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch score fold: %w", err)
	}
	return &fold, nil
}
