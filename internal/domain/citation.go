// Package domain provides domain models and business logic for the
// citation importer service.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LookupStatus represents the outcome of a single registry lookup.
// These values are persisted in the session store alongside the record.
type LookupStatus string

const (
	LookupStatusOk             LookupStatus = "ok"
	LookupStatusNotFound       LookupStatus = "not_found"
	LookupStatusTransportError LookupStatus = "transport_error"
)

// Resolved returns true if the lookup produced a usable record.
func (s LookupStatus) Resolved() bool {
	return s == LookupStatusOk
}

// Author represents a single contributor on a bibliographic record.
type Author struct {
	Given  string `json:"given,omitempty"`
	Family string `json:"family,omitempty"`
}

// FullName renders the author as "Given Family", tolerating a missing part.
func (a Author) FullName() string {
	return strings.TrimSpace(a.Given + " " + a.Family)
}

// Record is a normalized bibliographic record as returned by the
// citation registry. It carries only the fields the import pipeline
// consumes; the raw upstream payload is not retained.
type Record struct {
	DOI          string     `json:"doi"`
	URL          string     `json:"url,omitempty"`
	Title        string     `json:"title"`
	Authors      []Author   `json:"authors,omitempty"`
	Source       string     `json:"source,omitempty"`
	Publisher    string     `json:"publisher,omitempty"`
	Volume       string     `json:"volume,omitempty"`
	Issue        string     `json:"issue,omitempty"`
	Pages        string     `json:"pages,omitempty"`
	Type         string     `json:"type,omitempty"`
	ISSN         []string   `json:"issn,omitempty"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
}

// AuthorList renders the contributors as a comma-separated list of full names.
func (r *Record) AuthorList() string {
	names := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		if n := a.FullName(); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

// ResolvedCitation is one entry of a resolved batch: the operator's
// original query plus the lookup outcome. Entries are keyed by a
// composite of the query's position and the resolved DOI so two
// queries resolving to the same DOI never collide.
type ResolvedCitation struct {
	Key         string       `json:"key"`
	Index       int          `json:"index"`
	Query       string       `json:"query"`
	Status      LookupStatus `json:"status"`
	Record      *Record      `json:"record,omitempty"`
	ErrorDetail string       `json:"error_detail,omitempty"`
}

// CitationKey builds the composite result key for a query at the given
// position. The index keeps duplicate identifiers distinct; the DOI part
// is empty when the query did not resolve.
func CitationKey(index int, doi string) string {
	return fmt.Sprintf("%d:%s", index, strings.ToLower(strings.TrimSpace(doi)))
}

// ImportSession identifies one operator-initiated import run. The
// session ID scopes every entry in the session store.
type ImportSession struct {
	ID        uuid.UUID
	ItemType  string
	Total     int
	CreatedAt time.Time
}

// NewImportSession creates a session for a batch of the given size.
func NewImportSession(itemType string, total int) ImportSession {
	return ImportSession{
		ID:        uuid.New(),
		ItemType:  itemType,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
}

// BatchProgress is the state emitted after each resolved query.
type BatchProgress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ItemDraft is the content-item skeleton built from a resolved record.
type ItemDraft struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt"`
	Status  string `json:"status"`
	Date    string `json:"date"`
}

// ImportPayload is the fully mapped form of one citation ready for the
// content store: the draft item, its metadata fields, and the taxonomy
// terms to assign, grouped by taxonomy name.
type ImportPayload struct {
	Draft  ItemDraft           `json:"draft"`
	Fields map[string]string   `json:"fields"`
	Terms  map[string][]string `json:"terms"`
}

// ImportOutcomeStatus classifies the result of importing one citation.
type ImportOutcomeStatus string

const (
	ImportOutcomeCreated ImportOutcomeStatus = "created"
	ImportOutcomeSkipped ImportOutcomeStatus = "skipped"
	ImportOutcomeFailed  ImportOutcomeStatus = "failed"
)

// ImportOutcome records what happened to one selected citation during
// the import step. Message is already privilege-filtered by the caller
// that produced it.
type ImportOutcome struct {
	Key     string              `json:"key"`
	Status  ImportOutcomeStatus `json:"status"`
	ItemID  uuid.UUID           `json:"item_id,omitempty"`
	Title   string              `json:"title,omitempty"`
	Message string              `json:"message,omitempty"`
}
