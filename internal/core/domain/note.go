package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Note is the string-keyed sample entity. Notes created without an ID get a
// random UUID.
type Note struct {
	ID    string `json:"id" db:"id"`
	Title string `json:"title" db:"title"`
	Body  string `json:"body" db:"body"`
}

// GetID returns the note key.
func (n *Note) GetID() string { return n.ID }

// SetID assigns the note key.
func (n *Note) SetID(id string) { n.ID = id }

// NewNoteID generates a note key.
func NewNoteID() string {
	return uuid.NewString()
}

// Validate checks the note's fields.
func (n *Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}
