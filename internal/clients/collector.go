package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"product-import-service/internal/models"
)

const maxCollectorResponse = 32 << 20

// HTTPCollectorConfig configures the HTTP collector client
type HTTPCollectorConfig struct {
	BaseURL          string
	APIKey           string
	RequestsPerSec   float64
	Timeout          time.Duration
	Retry            *RetryConfig
	BreakerThreshold int
	BreakerReset     time.Duration
}

// HTTPCollector implements Collector against the collector service REST API
type HTTPCollector struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	rateLimiter *rate.Limiter
	retrier     *Retrier
	breaker     *CircuitBreaker
	logger      *logrus.Entry
}

// NewHTTPCollector creates a new collector client
func NewHTTPCollector(cfg HTTPCollectorConfig, logger *logrus.Logger) *HTTPCollector {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	return &HTTPCollector{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		retrier:     NewRetrier(cfg.Retry),
		breaker:     NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset),
		logger:      logger.WithField("component", "collector_client"),
	}
}

type collectRequest struct {
	Source  models.SourceType `json:"source,omitempty"`
	URL     string            `json:"url,omitempty"`
	Domain  string            `json:"domain,omitempty"`
	Options CollectOptions    `json:"options"`
}

type collectResponse struct {
	Products []models.RawRecord `json:"products"`
	Product  models.RawRecord   `json:"product"`
	Error    string             `json:"error,omitempty"`
}

func (r *collectResponse) records() []models.RawRecord {
	if len(r.Products) > 0 {
		return r.Products
	}
	if r.Product != nil {
		return []models.RawRecord{r.Product}
	}
	return []models.RawRecord{}
}

// ScrapeProduct runs the headless product-page scraper
func (c *HTTPCollector) ScrapeProduct(ctx context.Context, source models.SourceType, productURL string, opts CollectOptions) ([]models.RawRecord, error) {
	var resp collectResponse
	if err := c.post(ctx, "scrape", "/v1/scrape", collectRequest{Source: source, URL: productURL, Options: opts}, &resp); err != nil {
		return nil, err
	}
	return resp.records(), nil
}

// FetchCatalog reads a listing through the marketplace catalog API
func (c *HTTPCollector) FetchCatalog(ctx context.Context, source models.SourceType, productURL string, opts CollectOptions) ([]models.RawRecord, error) {
	var resp collectResponse
	if err := c.post(ctx, "catalog", "/v1/catalog", collectRequest{Source: source, URL: productURL, Options: opts}, &resp); err != nil {
		return nil, err
	}
	return resp.records(), nil
}

// ExportStore bulk-exports the catalog of a commerce-platform store
func (c *HTTPCollector) ExportStore(ctx context.Context, domain string, opts CollectOptions) ([]models.RawRecord, error) {
	var resp collectResponse
	if err := c.post(ctx, "export", "/v1/export", collectRequest{Domain: domain, Options: opts}, &resp); err != nil {
		return nil, err
	}
	return resp.records(), nil
}

// FetchPage downloads a page through the collector
func (c *HTTPCollector) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	var page Page
	if err := c.post(ctx, "fetch", "/v1/fetch", collectRequest{URL: pageURL}, &page); err != nil {
		return nil, err
	}
	if page.URL == "" {
		page.URL = pageURL
	}
	return &page, nil
}

// post performs an authenticated, rate limited, retried JSON call
func (c *HTTPCollector) post(ctx context.Context, operation, path string, body interface{}, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("collector %s: base url is not configured", operation)
	}
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode collector %s request: %w", operation, err)
	}

	resp, result := c.retrier.DoHTTP(ctx, func(ctx context.Context) (*http.Response, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return c.httpClient.Do(req)
	})
	if resp == nil {
		c.breaker.RecordFailure()
		c.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempts":  result.Attempts,
		}).WithError(result.LastError).Warn("Collector call failed")
		return fmt.Errorf("collector %s request failed after %d attempts: %w", operation, result.Attempts, result.LastError)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxCollectorResponse))
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("failed to read collector %s response: %w", operation, err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.breaker.RecordFailure()
		}
		return &CollectorError{Operation: operation, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	c.breaker.RecordSuccess()

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse collector %s response: %w", operation, err)
	}

	c.logger.WithFields(logrus.Fields{
		"operation": operation,
		"attempts":  result.Attempts,
		"duration":  result.TotalDuration.String(),
	}).Debug("Collector call completed")
	return nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
