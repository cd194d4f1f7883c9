package models

const (
	KothStatusOpen   = "open"
	KothStatusClosed = "closed"
)

type KothTarget struct {
	ID               int64  `db:"id" json:"id"`
	Title            string `db:"title" json:"title"`
	Host             string `db:"host" json:"host"`
	Port             *int   `db:"port" json:"port,omitempty"`
	Status           string `db:"status" json:"status"`
	AccrualPerMinute int    `db:"accrual_per_minute" json:"accrual_per_minute"`
}

// KothClaim is one ownership span. ReleasedAt is the only field that is
// ever mutated, and it is set exactly once.
type KothClaim struct {
	ID         int64  `db:"id" json:"id"`
	TargetID   int64  `db:"target_id" json:"target_id"`
	TeamID     int64  `db:"team_id" json:"team_id"`
	ClaimedAt  int64  `db:"claimed_at" json:"claimed_at"`
	ReleasedAt *int64 `db:"released_at" json:"released_at,omitempty"`
}

// KothAccrual is a claim's cumulative credit. Points and HeldSeconds
// only ever grow; the store advances them with a compare-and-swap on
// HeldSeconds.
type KothAccrual struct {
	ClaimID     int64 `db:"claim_id" json:"claim_id"`
	TargetID    int64 `db:"target_id" json:"target_id"`
	TeamID      int64 `db:"team_id" json:"team_id"`
	Points      int   `db:"points" json:"points"`
	HeldSeconds int64 `db:"held_seconds" json:"held_seconds"`
	AccruedAt   int64 `db:"accrued_at" json:"accrued_at"`
}
