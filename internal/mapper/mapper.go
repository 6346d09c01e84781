// Package mapper turns resolved bibliographic records into content-store
// import payloads.
package mapper

import (
	"github.com/quillcms/citation-importer/internal/domain"
)

const (
	// itemDateLayout is the content-store timestamp format.
	itemDateLayout = "2006-01-02 15:04:05"

	// StatusPublished is the status assigned to imported items.
	StatusPublished = "published"

	// PubTypeTaxonomy is the taxonomy that receives the work type.
	PubTypeTaxonomy = "pubtype"
)

// DraftHook transforms the item draft before it is handed on. Hooks run
// in registration order and must be pure.
type DraftHook func(draft domain.ItemDraft, record *domain.Record, query string) domain.ItemDraft

// FieldsHook transforms the metadata fields after the draft is final.
type FieldsHook func(fields map[string]string, draft domain.ItemDraft, record *domain.Record) map[string]string

// TermsHook transforms the taxonomy terms after the fields are final.
type TermsHook func(terms map[string][]string, draft domain.ItemDraft, record *domain.Record) map[string][]string

// Mapper builds import payloads from records. The three hook chains are
// applied in a fixed order: draft, then fields, then terms. A zero
// Mapper is usable; hooks are optional extension points.
type Mapper struct {
	DraftHooks []DraftHook
	FieldHooks []FieldsHook
	TermHooks  []TermsHook
}

// New creates a Mapper with no hooks registered.
func New() *Mapper {
	return &Mapper{}
}

// Map builds the import payload for one resolved record. query is the
// operator's original search text and becomes the item excerpt;
// itemType is the content type the item will be created as.
func (m *Mapper) Map(record *domain.Record, query, itemType string) domain.ImportPayload {
	draft := domain.ItemDraft{
		Type:    itemType,
		Title:   sanitizeText(record.Title),
		Content: "",
		Excerpt: sanitizeText(query),
		Status:  StatusPublished,
		Date:    itemDate(record),
	}
	for _, hook := range m.DraftHooks {
		draft = hook(draft, record, query)
	}

	fields := map[string]string{
		"authors":  record.AuthorList(),
		"doi":      record.DOI,
		"url":      record.URL,
		"pub_date": draft.Date,
		"source":   sourceField(record),
	}
	sanitizeFields(fields)
	for _, hook := range m.FieldHooks {
		fields = hook(fields, draft, record)
	}

	terms := map[string][]string{
		PubTypeTaxonomy: {record.Type},
	}
	sanitizeTerms(terms)
	for _, hook := range m.TermHooks {
		terms = hook(terms, draft, record)
	}

	return domain.ImportPayload{
		Draft:  draft,
		Fields: fields,
		Terms:  terms,
	}
}

// itemDate renders the registry creation timestamp in the content-store
// format. Records without one get an empty date and the store falls
// back to the insertion time.
func itemDate(record *domain.Record) string {
	if record.RegisteredAt == nil {
		return ""
	}
	return record.RegisteredAt.Format(itemDateLayout)
}

// sourceField renders the publication source: container title, then
// volume, then issue, each appended only when present.
func sourceField(record *domain.Record) string {
	source := record.Source
	if record.Volume != "" {
		source += ", vol. " + record.Volume
	}
	if record.Issue != "" {
		source += ", issue " + record.Issue
	}
	return source
}
