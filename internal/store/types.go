package store

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

// ScoreFold is the from-scratch ledger fold for one team. It is the
// correctness oracle: the aggregator's incrementally maintained total must
// always agree with Score() computed from a fresh fold.
type ScoreFold struct {
	TeamID        int64  `db:"team_id"`
	AwardPoints   int    `db:"award_points"`
	HintCosts     int    `db:"hint_costs"`
	AccrualPoints int    `db:"accrual_points"`
	LastSolve     *int64 `db:"last_solve"`
}

func (f *ScoreFold) Score() int {
	return f.AwardPoints - f.HintCosts + f.AccrualPoints
}

// HasSolves distinguishes "score 0 with no solves" from "solves that net
// to 0 after hint costs"; only the latter competes on the time tie-break.
func (f *ScoreFold) HasSolves() bool {
	return f.LastSolve != nil
}
