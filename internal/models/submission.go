package models

// Submission is one attempt, correct or not. Rows are append-only and are
// never updated after creation.
type Submission struct {
	ID            int64  `db:"id" json:"id"`
	TeamID        int64  `db:"team_id" json:"team_id"`
	ChallengeID   int64  `db:"challenge_id" json:"challenge_id"`
	SubmittedFlag string `db:"submitted_flag" json:"submitted_flag"`
	Correct       bool   `db:"correct" json:"correct"`
	SubmittedAt   int64  `db:"submitted_at" json:"submitted_at"`
}

// Award credits a team with a challenge's value. The value is snapshotted
// at solve time, so later edits to the challenge never move old scores.
type Award struct {
	TeamID      int64 `db:"team_id" json:"team_id"`
	ChallengeID int64 `db:"challenge_id" json:"challenge_id"`
	Value       int   `db:"value" json:"value"`
	AwardedAt   int64 `db:"awarded_at" json:"awarded_at"`
}

type HintUnlock struct {
	TeamID     int64 `db:"team_id" json:"team_id"`
	HintID     int64 `db:"hint_id" json:"hint_id"`
	Cost       int   `db:"cost" json:"cost"`
	UnlockedAt int64 `db:"unlocked_at" json:"unlocked_at"`
}
