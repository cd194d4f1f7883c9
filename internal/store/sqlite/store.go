// internal/store/sqlite/store.go
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

type SQLiteStore struct {
	store.BaseStore
}

func NewSQLiteStore(dsn, migrationsDir string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			return query
		},
	}}

	if err := s.ApplyMigrations(migrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) ApplyMigrations(dir string) error {
	return s.BaseStore.ApplyMigrations(dir, translateToSQLite)
}

// translateToSQLite converts Postgres SQL to SQLite dialect
func translateToSQLite(sql string) string {
	replacements := map[string]string{
		"BIGSERIAL PRIMARY KEY": "INTEGER PRIMARY KEY AUTOINCREMENT",
		"BIGSERIAL":             "INTEGER",
		"BIGINT":                "INTEGER",
		"BOOLEAN":               "INTEGER",
		"TRUE":                  "1",
		"FALSE":                 "0",
		"now()":                 "CURRENT_TIMESTAMP",
	}
	result := sql
	for from, to := range replacements {
		result = strings.ReplaceAll(result, from, to)
	}
	return result
}

func (s *SQLiteStore) CreateTeam(ctx context.Context, team *models.Team) error {
	res, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO teams (name, affiliation, password_hash, registered_at)
		VALUES (:name, :affiliation, :password_hash, :registered_at)
	`, team)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read created team id: %w", err)
	}
	team.ID = id
	return nil
}

func (s *SQLiteStore) OpenClaim(ctx context.Context, claim *models.KothClaim) (bool, error) {
	res, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO koth_claims (target_id, team_id, claimed_at, released_at)
		VALUES (:target_id, :team_id, :claimed_at, NULL)
		ON CONFLICT DO NOTHING
	`, claim)
	if err != nil {
		return false, fmt.Errorf("failed to open claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim insert result: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read opened claim id: %w", err)
	}
	claim.ID = id
	return true, nil
}

func (s *SQLiteStore) FetchAllScoreFolds(ctx context.Context) ([]store.ScoreFold, error) {
	query := `
		SELECT
			t.id AS team_id,
			COALESCE((SELECT SUM(a.value) FROM awards a WHERE a.team_id = t.id), 0) AS award_points,
			COALESCE((SELECT SUM(hu.cost) FROM hint_unlocks hu WHERE hu.team_id = t.id), 0) AS hint_costs,
			COALESCE((SELECT SUM(ka.points) FROM koth_accruals ka WHERE ka.team_id = t.id), 0) AS accrual_points,
			(SELECT MAX(a.awarded_at) FROM awards a WHERE a.team_id = t.id) AS last_solve
		FROM teams t
		ORDER BY t.id
	`

	var folds []store.ScoreFold
	err := s.DB.SelectContext(ctx, &folds, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch score folds: %w", err)
	}

	return folds, nil
}
