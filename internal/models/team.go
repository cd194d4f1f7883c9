package models

import (
	"github.com/go-playground/validator/v10"
)

type Team struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name" validate:"required,max=100"`
	Affiliation  string `db:"affiliation" json:"affiliation" validate:"max=100"`
	PasswordHash string `db:"password_hash" json:"-"`
	RegisteredAt int64  `db:"registered_at" json:"registered_at"`
}

func (t *Team) Validate() error {
	validate := validator.New()
	return validate.Struct(t)
}
