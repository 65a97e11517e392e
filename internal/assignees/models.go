package assignees

import (
	"errors"
	"time"
)

// Kind distinguishes verifier organisations from drone operators.
type Kind string

const (
	KindNGO   Kind = "ngo"
	KindDrone Kind = "drone"
)

// Valid reports whether k is a known assignee kind.
func (k Kind) Valid() bool {
	return k == KindNGO || k == KindDrone
}

var (
	ErrNotFound = errors.New("assignee not found")
	ErrInactive = errors.New("assignee is inactive")
	ErrInvalid  = errors.New("invalid assignee")
)

// Assignee is an NGO verifier or a drone operator that projects can be handed to
type Assignee struct {
	ID        string    `db:"id" json:"id"`
	Kind      Kind      `db:"kind" json:"kind" binding:"required,oneof=ngo drone"`
	Name      string    `db:"name" json:"name" binding:"required"`
	Region    string    `db:"region" json:"region"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
