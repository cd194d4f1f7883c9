package models

import (
	"github.com/go-playground/validator/v10"
)

type Category struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name" validate:"required,max=100"`
	Description string `db:"description" json:"description"`
}

type Challenge struct {
	ID            int64  `db:"id" json:"id"`
	Title         string `db:"title" json:"title" validate:"required,max=200"`
	Description   string `db:"description" json:"description"`
	CategoryID    int64  `db:"category_id" json:"category_id"`
	Value         int    `db:"value" json:"value" validate:"gte=0"`
	Flag          string `db:"flag" json:"-" validate:"required,max=255"`
	CaseSensitive bool   `db:"case_sensitive" json:"case_sensitive"`
	Hidden        bool   `db:"hidden" json:"hidden"`
	Retired       bool   `db:"retired" json:"retired"`
}

type Hint struct {
	ID          int64  `db:"id" json:"id"`
	ChallengeID int64  `db:"challenge_id" json:"challenge_id"`
	Rank        int    `db:"rank" json:"rank" validate:"gte=0"`
	Text        string `db:"text" json:"text"`
	Cost        int    `db:"cost" json:"cost" validate:"gte=0"`
}

// Visible reports whether players may see and submit against the challenge.
func (c *Challenge) Visible() bool {
	return !c.Hidden && !c.Retired
}

func (c *Challenge) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}
