// Package contentstore persists imported items, their metadata, and
// their taxonomy terms.
package contentstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/quillcms/citation-importer/internal/domain"
)

// Store is the content backend an import writes into.
type Store interface {
	// CreateItem inserts a new item from the draft and returns its ID.
	CreateItem(ctx context.Context, draft domain.ItemDraft) (uuid.UUID, error)

	// AttachMetadata stores a metadata field on an item. When
	// uniqueOnly is set, an existing value under the same key is left
	// untouched and no new row is written.
	AttachMetadata(ctx context.Context, itemID uuid.UUID, key, value string, uniqueOnly bool) error

	// ListTaxonomies returns the registered taxonomies, restricted to
	// public ones when onlyPublic is set.
	ListTaxonomies(ctx context.Context, onlyPublic bool) ([]domain.Taxonomy, error)

	// AssignTerms attaches the given terms to an item under the named
	// taxonomy, creating terms that do not exist yet.
	AssignTerms(ctx context.Context, itemID uuid.UUID, taxonomy string, terms []string) error
}
