package domain

import (
	"time"

	"github.com/google/uuid"
)

// Taxonomy is a term classification registered in the content store.
// Only public taxonomies are eligible for term assignment during an
// import.
type Taxonomy struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Public bool   `json:"public"`
}

// ContentItem is a stored item created from an import draft.
type ContentItem struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Excerpt     string     `json:"excerpt"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
