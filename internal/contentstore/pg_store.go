package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quillcms/citation-importer/internal/database"
	"github.com/quillcms/citation-importer/internal/domain"
)

// draftDateLayout is the wire format of a draft's publication date.
const draftDateLayout = "2006-01-02 15:04:05"

// pgForeignKeyViolation is the PostgreSQL error code for foreign key
// constraint violations.
const pgForeignKeyViolation = "23503"

// Compile-time interface verification.
var _ Store = (*PgStore)(nil)

// PgStore is a PostgreSQL implementation of Store.
type PgStore struct {
	db database.DBTX
}

// NewPgStore creates a new PostgreSQL content store.
func NewPgStore(db database.DBTX) *PgStore {
	return &PgStore{db: db}
}

// CreateItem inserts a new content item built from the draft.
func (s *PgStore) CreateItem(ctx context.Context, draft domain.ItemDraft) (uuid.UUID, error) {
	if draft.Type == "" {
		return uuid.Nil, domain.NewValidationError("type", "item type is required")
	}
	if draft.Title == "" {
		return uuid.Nil, domain.NewValidationError("title", "item title is required")
	}

	publishedAt, err := parseDraftDate(draft.Date)
	if err != nil {
		return uuid.Nil, domain.NewValidationError("date", err.Error())
	}

	id := uuid.New()
	query := `
		INSERT INTO content_items (id, item_type, title, content, excerpt, status, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`

	err = s.db.QueryRow(ctx, query,
		id, draft.Type, draft.Title, draft.Content, draft.Excerpt, draft.Status, publishedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create content item: %w", err)
	}

	return id, nil
}

// AttachMetadata stores one metadata field on an item. With uniqueOnly
// set, the insert is skipped when the item already carries the key.
func (s *PgStore) AttachMetadata(ctx context.Context, itemID uuid.UUID, key, value string, uniqueOnly bool) error {
	if key == "" {
		return domain.NewValidationError("key", "metadata key is required")
	}

	var query string
	if uniqueOnly {
		query = `
			INSERT INTO item_meta (item_id, meta_key, meta_value)
			SELECT $1, $2, $3
			WHERE NOT EXISTS (
				SELECT 1 FROM item_meta WHERE item_id = $1 AND meta_key = $2
			)`
	} else {
		query = `
			INSERT INTO item_meta (item_id, meta_key, meta_value)
			VALUES ($1, $2, $3)`
	}

	_, err := s.db.Exec(ctx, query, itemID, key, value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return domain.NewNotFoundError("content item", itemID.String())
		}
		return fmt.Errorf("failed to attach metadata: %w", err)
	}

	return nil
}

// ListTaxonomies returns the registered taxonomies ordered by name.
func (s *PgStore) ListTaxonomies(ctx context.Context, onlyPublic bool) ([]domain.Taxonomy, error) {
	query := `
		SELECT name, label, public
		FROM taxonomies`
	if onlyPublic {
		query += `
		WHERE public`
	}
	query += `
		ORDER BY name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxonomies: %w", err)
	}
	defer rows.Close()

	var taxonomies []domain.Taxonomy
	for rows.Next() {
		var tx domain.Taxonomy
		if err := rows.Scan(&tx.Name, &tx.Label, &tx.Public); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy: %w", err)
		}
		taxonomies = append(taxonomies, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate taxonomies: %w", err)
	}

	return taxonomies, nil
}

// AssignTerms attaches terms to an item under the named taxonomy.
// Missing terms are created; assignments that already exist are kept.
func (s *PgStore) AssignTerms(ctx context.Context, itemID uuid.UUID, taxonomy string, terms []string) error {
	if taxonomy == "" {
		return domain.NewValidationError("taxonomy", "taxonomy name is required")
	}
	if len(terms) == 0 {
		return nil
	}

	var name string
	err := s.db.QueryRow(ctx, `SELECT name FROM taxonomies WHERE name = $1`, taxonomy).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("taxonomy", taxonomy)
		}
		return fmt.Errorf("failed to look up taxonomy: %w", err)
	}

	termQuery := `
		INSERT INTO terms (id, taxonomy, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (taxonomy, name) DO UPDATE SET
			name = terms.name
		RETURNING id`
	assignQuery := `
		INSERT INTO item_terms (item_id, term_id)
		VALUES ($1, $2)
		ON CONFLICT (item_id, term_id) DO NOTHING`

	for _, term := range terms {
		if term == "" {
			continue
		}

		var termID uuid.UUID
		if err := s.db.QueryRow(ctx, termQuery, uuid.New(), taxonomy, term).Scan(&termID); err != nil {
			return fmt.Errorf("failed to get or create term %q: %w", term, err)
		}

		if _, err := s.db.Exec(ctx, assignQuery, itemID, termID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return domain.NewNotFoundError("content item", itemID.String())
			}
			return fmt.Errorf("failed to assign term %q: %w", term, err)
		}
	}

	return nil
}

// parseDraftDate parses the draft publication date. An empty date means
// the item is published now.
func parseDraftDate(date string) (time.Time, error) {
	if date == "" {
		return time.Now().UTC(), nil
	}

	parsed, err := time.Parse(draftDateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid publication date %q", date)
	}
	return parsed, nil
}
