package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/observability"
)

const (
	// DefaultBaseURL is the default Crossref REST API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// Crossref's polite pool (with mailto) tolerates this comfortably.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps decoded response bodies.
	maxResponseBytes = 10 << 20

	// doiPrefix is the URL prefix Crossref uses for DOIs.
	doiPrefix = "https://doi.org/"
)

// Config holds configuration for the Crossref client.
type Config struct {
	// BaseURL is the Crossref API base URL.
	// Defaults to https://api.crossref.org
	BaseURL string

	// SiteURL identifies the installation in the User-Agent header.
	SiteURL string

	// MailTo is the contact email for the polite pool.
	// See: https://api.crossref.org/swagger-ui/index.html
	MailTo string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 5 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 5.
	BurstSize int

	// MaxRetries is the maximum retry attempts per request.
	MaxRetries int

	// Metrics counts rate-limit responses; may be nil.
	Metrics *observability.Metrics
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// userAgent builds the polite-pool User-Agent string.
func (c *Config) userAgent() string {
	ua := "CitationImporter/1.0"
	var parts []string
	if c.SiteURL != "" {
		parts = append(parts, c.SiteURL)
	}
	if c.MailTo != "" {
		parts = append(parts, "mailto:"+c.MailTo)
	}
	if len(parts) > 0 {
		ua += " (" + strings.Join(parts, "; ") + ")"
	}
	return ua
}

// Result is the tagged outcome of a single citation lookup.
// Exactly one of Record and Err is set for Ok and TransportError
// respectively; both are nil for NotFound.
type Result struct {
	Status domain.LookupStatus
	Record *domain.Record
	Err    error
}

// Resolver resolves one citation query against a registry.
type Resolver interface {
	Resolve(ctx context.Context, query string) Result
}

// Client looks up citations on the Crossref works API.
type Client struct {
	config     Config
	httpClient *HTTPClient
}

var _ Resolver = (*Client)(nil)

// New creates a new Crossref client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := NewHTTPClient(HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.userAgent(),
		Metrics:    cfg.Metrics,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new Crossref client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Resolve looks up one citation query. It first treats the query as an
// identifier and asks for the work directly; any hit short-circuits the
// search phase. Otherwise it falls back to a first-match relevance
// search. A transport failure during the fallback is reported as a
// transport error carrying the upstream detail.
func (c *Client) Resolve(ctx context.Context, query string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Status: domain.LookupStatusNotFound}
	}

	if work, ok := c.lookupByIdentifier(ctx, query); ok {
		return Result{
			Status: domain.LookupStatusOk,
			Record: workToRecord(work),
		}
	}

	work, err := c.search(ctx, query)
	if err != nil {
		return Result{
			Status: domain.LookupStatusTransportError,
			Err:    err,
		}
	}
	if work == nil {
		return Result{Status: domain.LookupStatusNotFound}
	}

	return Result{
		Status: domain.LookupStatusOk,
		Record: workToRecord(work),
	}
}

// lookupByIdentifier fetches {base}/works/{query}. Any non-200 response
// or transport failure is treated as a miss so the caller can try the
// search endpoint instead.
func (c *Client) lookupByIdentifier(ctx context.Context, query string) (*Work, bool) {
	workURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/works/" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, workURL, nil)
	if err != nil {
		return nil, false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false
	}

	var decoded workResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, false
	}
	if decoded.Message.DOI == "" {
		return nil, false
	}

	return &decoded.Message, true
}

// search fetches the single best match for a free-text query.
// rows=1 returns only the first result; we are feeling lucky.
func (c *Client) search(ctx context.Context, query string) (*Work, error) {
	searchURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/works?rows=1&query=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalAPIError("crossref", 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError("crossref", resp.StatusCode, string(body), nil)
	}

	var decoded searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, domain.NewExternalAPIError("crossref", resp.StatusCode, "decoding response: "+err.Error(), err)
	}

	if len(decoded.Message.Items) == 0 {
		return nil, nil
	}

	return &decoded.Message.Items[0], nil
}

// workToRecord converts a Crossref work to a domain record.
func workToRecord(work *Work) *domain.Record {
	if work == nil {
		return nil
	}

	record := &domain.Record{
		DOI:       normalizeDOI(work.DOI),
		URL:       work.URL,
		Type:      work.Type,
		Publisher: work.Publisher,
		Volume:    work.Volume,
		Issue:     work.Issue,
		Pages:     work.Page,
		ISSN:      work.ISSN,
	}

	if len(work.Title) > 0 {
		record.Title = work.Title[0]
	}
	if len(work.ContainerTitle) > 0 {
		record.Source = work.ContainerTitle[0]
	}

	authors := make([]domain.Author, 0, len(work.Author))
	for _, a := range work.Author {
		authors = append(authors, domain.Author{
			Given:  a.Given,
			Family: a.Family,
		})
	}
	record.Authors = authors

	if work.Created.DateTime != "" {
		if t, err := dateparse.ParseAny(work.Created.DateTime); err == nil {
			utc := t.UTC()
			record.RegisteredAt = &utc
		}
	}

	return record
}

// normalizeDOI strips URL and scheme prefixes from DOIs and returns lowercase.
func normalizeDOI(doi string) string {
	if doi == "" {
		return ""
	}
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}
