package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

type PostgresStore struct {
	store.BaseStore
}

func NewPostgresStore(dsn, migrationsDir string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			out := query
			for i := 1; strings.Contains(out, "?"); i++ {
				out = strings.Replace(out, "?", fmt.Sprintf("$%d", i), 1)
			}
			return out
		},
	}}

	if err := s.ApplyMigrations(migrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) ApplyMigrations(dir string) error {
	return s.BaseStore.ApplyMigrations(dir, nil)
}

func (s *PostgresStore) CreateTeam(ctx context.Context, team *models.Team) error {
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO teams (name, affiliation, password_hash, registered_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, team.Name, team.Affiliation, team.PasswordHash, team.RegisteredAt).Scan(&team.ID)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (s *PostgresStore) OpenClaim(ctx context.Context, claim *models.KothClaim) (bool, error) {
	// ON CONFLICT DO NOTHING returns no row when the single-owner index
	// rejects the insert.
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO koth_claims (target_id, team_id, claimed_at, released_at)
		VALUES ($1, $2, $3, NULL)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, claim.TargetID, claim.TeamID, claim.ClaimedAt).Scan(&claim.ID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open claim: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) FetchAllScoreFolds(ctx context.Context) ([]store.ScoreFold, error) {
	query := `
        WITH award_totals AS (
            SELECT
                team_id,
                SUM(value) AS award_points,
                MAX(awarded_at) AS last_solve
            FROM awards
            GROUP BY team_id
        ),
        hint_totals AS (
            SELECT
                team_id,
                SUM(cost) AS hint_costs
            FROM hint_unlocks
            GROUP BY team_id
        ),
        accrual_totals AS (
            SELECT
                team_id,
                SUM(points) AS accrual_points
            FROM koth_accruals
            GROUP BY team_id
        )
        SELECT
            t.id AS team_id,
            COALESCE(aw.award_points, 0) AS award_points,
            COALESCE(ht.hint_costs, 0) AS hint_costs,
            COALESCE(kt.accrual_points, 0) AS accrual_points,
            aw.last_solve AS last_solve
        FROM teams t
        LEFT JOIN award_totals aw ON aw.team_id = t.id
        LEFT JOIN hint_totals ht ON ht.team_id = t.id
        LEFT JOIN accrual_totals kt ON kt.team_id = t.id
        ORDER BY t.id
    `

	var folds []store.ScoreFold
	err := s.DB.SelectContext(ctx, &folds, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch score folds: %w", err)
	}

	return folds, nil
}
