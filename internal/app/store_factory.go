package app

import (
	"strings"

	"github.com/shrimpsizemoose/kungsborg/internal/store"
	"github.com/shrimpsizemoose/kungsborg/internal/store/postgres"
	"github.com/shrimpsizemoose/kungsborg/internal/store/sqlite"
)

func NewStore(dsn, migrationsDir string) (store.LedgerStore, error) {
	dbType := store.DBTypeSQLite
	if strings.HasPrefix(dsn, "postgres") {
		dbType = store.DBTypePostgres
	}

	switch dbType {
	case store.DBTypePostgres:
		return postgres.NewPostgresStore(dsn, migrationsDir)
	default:
		return sqlite.NewSQLiteStore(dsn, migrationsDir)
	}
}
