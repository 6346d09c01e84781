// Package importer turns resolved citations held in an import session
// into stored content items.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quillcms/citation-importer/internal/contentstore"
	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/mapper"
	"github.com/quillcms/citation-importer/internal/observability"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

// DefaultItemType is the fallback item type when neither the request
// nor the configuration names a usable one.
const DefaultItemType = "publication"

const (
	// skipUnknownKeyMessage reports a selected key that is absent from
	// the session's stored result set.
	skipUnknownKeyMessage = "Could not find selected publication in stored item index."

	// skipUnresolvedMessage reports a selected citation that never
	// resolved to a publication record.
	skipUnresolvedMessage = "Selected citation has no resolved publication record."
)

// Config holds import driver settings.
type Config struct {
	// DefaultItemType receives items whose requested type is unknown.
	DefaultItemType string

	// AllowedItemTypes lists the item types imports may target. An
	// empty list allows any non-empty type.
	AllowedItemTypes []string
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.DefaultItemType == "" {
		c.DefaultItemType = DefaultItemType
	}
}

// Importer drives step three of an import: it reads the resolved
// citations back from the session store, maps each selected one, and
// writes the result into the content store.
type Importer struct {
	sessions sessioncache.Store
	content  contentstore.Store
	mapper   *mapper.Mapper
	metrics  *observability.Metrics
	logger   zerolog.Logger
	config   Config
}

// New creates an import driver. metrics may be nil in tests.
func New(sessions sessioncache.Store, content contentstore.Store, m *mapper.Mapper, metrics *observability.Metrics, logger zerolog.Logger, cfg Config) *Importer {
	cfg.applyDefaults()

	return &Importer{
		sessions: sessions,
		content:  content,
		mapper:   m,
		metrics:  metrics,
		logger:   logger.With().Str("component", "importer").Logger(),
		config:   cfg,
	}
}

// Import creates a content item for each selected citation key and
// returns one outcome per key, in selection order. A key missing from
// the stored result set is skipped, not fatal. Import fails as a whole
// only when the session state cannot be loaded or the taxonomy listing
// fails.
func (im *Importer) Import(ctx context.Context, sessionID string, selectedKeys []string, targetType string) ([]domain.ImportOutcome, error) {
	logger := observability.WithSessionContext(im.logger, sessionID)

	results, originals, storedType, err := im.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	itemType := im.resolveItemType(targetType, storedType)

	public, err := im.publicTaxonomies(ctx)
	if err != nil {
		return nil, err
	}

	admin := observability.AdminFromContext(ctx)
	outcomes := make([]domain.ImportOutcome, 0, len(selectedKeys))

	for _, key := range selectedKeys {
		entry, ok := results[key]
		if !ok {
			logger.Warn().Str("key", key).Msg("selected key not in stored item index")
			im.recordOutcome(domain.ImportOutcomeSkipped)
			outcomes = append(outcomes, domain.ImportOutcome{
				Key:     key,
				Status:  domain.ImportOutcomeSkipped,
				Message: skipUnknownKeyMessage,
			})
			continue
		}
		if entry.Record == nil {
			im.recordOutcome(domain.ImportOutcomeSkipped)
			outcomes = append(outcomes, domain.ImportOutcome{
				Key:     key,
				Status:  domain.ImportOutcomeSkipped,
				Message: skipUnresolvedMessage,
			})
			continue
		}

		query := originals[key]
		if query == "" {
			query = entry.Query
		}

		outcome := im.importOne(ctx, entry, query, itemType, public, admin)
		im.recordOutcome(outcome.Status)
		outcomes = append(outcomes, outcome)
	}

	logger.Info().
		Int("selected", len(selectedKeys)).
		Int("outcomes", len(outcomes)).
		Str("item_type", itemType).
		Msg("import completed")

	return outcomes, nil
}

// importOne maps a resolved citation and writes the item, its metadata
// fields, and its public taxonomy terms.
func (im *Importer) importOne(ctx context.Context, entry domain.ResolvedCitation, query, itemType string, public map[string]bool, admin bool) domain.ImportOutcome {
	payload := im.mapper.Map(entry.Record, query, itemType)

	itemID, err := im.content.CreateItem(ctx, payload.Draft)
	if err != nil {
		im.logger.Error().Err(err).Str("key", entry.Key).Msg("failed to create item")
		return domain.ImportOutcome{
			Key:     entry.Key,
			Status:  domain.ImportOutcomeFailed,
			Title:   payload.Draft.Title,
			Message: failureMessage(err, admin),
		}
	}

	for _, field := range sortedKeys(payload.Fields) {
		value := payload.Fields[field]
		if value == "" {
			continue
		}
		if err := im.content.AttachMetadata(ctx, itemID, field, value, true); err != nil {
			im.logger.Error().Err(err).Str("key", entry.Key).Str("field", field).Msg("failed to attach metadata")
			return domain.ImportOutcome{
				Key:     entry.Key,
				Status:  domain.ImportOutcomeFailed,
				ItemID:  itemID,
				Title:   payload.Draft.Title,
				Message: failureMessage(err, admin),
			}
		}
	}

	for _, taxonomy := range sortedKeys(payload.Terms) {
		if !public[taxonomy] {
			continue
		}
		if err := im.content.AssignTerms(ctx, itemID, taxonomy, payload.Terms[taxonomy]); err != nil {
			im.logger.Error().Err(err).Str("key", entry.Key).Str("taxonomy", taxonomy).Msg("failed to assign terms")
			return domain.ImportOutcome{
				Key:     entry.Key,
				Status:  domain.ImportOutcomeFailed,
				ItemID:  itemID,
				Title:   payload.Draft.Title,
				Message: failureMessage(err, admin),
			}
		}
	}

	return domain.ImportOutcome{
		Key:    entry.Key,
		Status: domain.ImportOutcomeCreated,
		ItemID: itemID,
		Title:  payload.Draft.Title,
	}
}

// loadSession reads the three session entries a batch resolve leaves
// behind. Any missing entry means the session has expired.
func (im *Importer) loadSession(ctx context.Context, sessionID string) (map[string]domain.ResolvedCitation, map[string]string, string, error) {
	searchRaw, err := im.sessions.Get(ctx, sessioncache.SearchKey(sessionID))
	if err != nil {
		return nil, nil, "", sessionLoadError(sessionID, err)
	}
	var results map[string]domain.ResolvedCitation
	if err := json.Unmarshal(searchRaw, &results); err != nil {
		return nil, nil, "", fmt.Errorf("decoding stored item index: %w", err)
	}

	queryRaw, err := im.sessions.Get(ctx, sessioncache.QueryKey(sessionID))
	if err != nil {
		return nil, nil, "", sessionLoadError(sessionID, err)
	}
	var originals map[string]string
	if err := json.Unmarshal(queryRaw, &originals); err != nil {
		return nil, nil, "", fmt.Errorf("decoding stored queries: %w", err)
	}

	typeRaw, err := im.sessions.Get(ctx, sessioncache.TypeKey(sessionID))
	if err != nil {
		return nil, nil, "", sessionLoadError(sessionID, err)
	}
	var storedType string
	if err := json.Unmarshal(typeRaw, &storedType); err != nil {
		return nil, nil, "", fmt.Errorf("decoding stored item type: %w", err)
	}

	return results, originals, storedType, nil
}

// resolveItemType picks the item type for created items: the requested
// type when allowed, then the type the session was started with, then
// the configured default.
func (im *Importer) resolveItemType(targetType, storedType string) string {
	if im.allowed(targetType) {
		return targetType
	}
	if im.allowed(storedType) {
		return storedType
	}
	return im.config.DefaultItemType
}

// allowed reports whether the item type may be targeted by imports.
func (im *Importer) allowed(itemType string) bool {
	if itemType == "" {
		return false
	}
	if len(im.config.AllowedItemTypes) == 0 {
		return true
	}
	for _, t := range im.config.AllowedItemTypes {
		if t == itemType {
			return true
		}
	}
	return false
}

// publicTaxonomies returns the set of taxonomy names eligible for term
// assignment.
func (im *Importer) publicTaxonomies(ctx context.Context) (map[string]bool, error) {
	taxonomies, err := im.content.ListTaxonomies(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing public taxonomies: %w", err)
	}

	public := make(map[string]bool, len(taxonomies))
	for _, tx := range taxonomies {
		public[tx.Name] = true
	}
	return public, nil
}

// recordOutcome updates the per-item import metrics.
func (im *Importer) recordOutcome(status domain.ImportOutcomeStatus) {
	if im.metrics == nil {
		return
	}
	switch status {
	case domain.ImportOutcomeCreated:
		im.metrics.RecordItemImported()
	case domain.ImportOutcomeSkipped:
		im.metrics.RecordItemSkipped()
	case domain.ImportOutcomeFailed:
		im.metrics.RecordItemFailed()
	}
}

// sessionLoadError maps a missing session entry to an expired-session
// error and passes other store failures through.
func sessionLoadError(sessionID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewSessionExpiredError(sessionID)
	}
	return fmt.Errorf("loading session state: %w", err)
}

// failureMessage filters a failure detail by caller privilege.
func failureMessage(err error, admin bool) string {
	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.OperatorMessage(admin)
	}
	if admin {
		return err.Error()
	}
	return "import failed"
}

// sortedKeys returns the map keys in deterministic order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
