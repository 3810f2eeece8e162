package clients

import (
	"context"
	"errors"
	"fmt"

	"product-import-service/internal/models"
)

// Collector defines the remote collector service the adapters delegate
// network retrieval to. Every method returns raw, unnormalized records.
type Collector interface {
	// ScrapeProduct runs the headless product-page scraper for a marketplace URL
	ScrapeProduct(ctx context.Context, source models.SourceType, productURL string, opts CollectOptions) ([]models.RawRecord, error)

	// FetchCatalog reads a listing through the marketplace catalog API
	FetchCatalog(ctx context.Context, source models.SourceType, productURL string, opts CollectOptions) ([]models.RawRecord, error)

	// ExportStore bulk-exports the catalog of a commerce-platform store
	ExportStore(ctx context.Context, domain string, opts CollectOptions) ([]models.RawRecord, error)

	// FetchPage downloads a page for markup extraction
	FetchPage(ctx context.Context, pageURL string) (*Page, error)
}

// CollectOptions are forwarded to the collector with every call
type CollectOptions struct {
	IncludeVariants bool `json:"includeVariants"`
	IncludeReviews  bool `json:"includeReviews"`
	MaxRecords      int  `json:"maxRecords,omitempty"`
}

// Page is a fetched document
type Page struct {
	URL        string `json:"url"`
	FinalURL   string `json:"finalUrl,omitempty"`
	StatusCode int    `json:"status"`
	HTML       string `json:"html"`
}

// ErrCircuitOpen is returned while the collector circuit breaker rejects calls
var ErrCircuitOpen = errors.New("collector circuit breaker is open")

// CollectorError is returned when the collector answers with a failure status
type CollectorError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("collector %s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
}
