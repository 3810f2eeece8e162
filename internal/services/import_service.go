package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"product-import-service/internal/adapters"
	"product-import-service/internal/capability"
	"product-import-service/internal/idempotency"
	"product-import-service/internal/models"
	"product-import-service/internal/repository"
	"product-import-service/internal/validation"
)

// ErrJobTrackingDisabled is returned by job operations when no job store is configured
var ErrJobTrackingDisabled = errors.New("import job tracking is not configured")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// EventPublisher receives the summary of every computed import
type EventPublisher interface {
	PublishImportCompleted(ctx context.Context, result *models.ImportResult) error
}

// ImportConfig holds the tunables of the import pipeline
type ImportConfig struct {
	ExtractTimeout     time.Duration // single URL imports
	BulkExtractTimeout time.Duration // file and store imports
	NormalizeWorkers   int
	DefaultMaxRecords  int // applied when the request sets none; 0 is unlimited
	Concurrency        *ExtractionConcurrencyConfig
}

// DefaultImportConfig returns production-ready defaults
func DefaultImportConfig() *ImportConfig {
	return &ImportConfig{
		ExtractTimeout:     30 * time.Second,
		BulkExtractTimeout: 5 * time.Minute,
		NormalizeWorkers:   8,
		DefaultMaxRecords:  10000,
		Concurrency:        DefaultConcurrencyConfig(),
	}
}

// ImportService orchestrates imports: it resolves the source adapter,
// extracts raw records, normalizes them in parallel and aggregates the
// result envelope.
type ImportService struct {
	registry  *adapters.Registry
	jobs      repository.JobStore
	guard     *idempotency.Guard
	publisher EventPublisher
	limiter   *SourceSemaphore
	validate  *validator.Validate
	config    *ImportConfig
	logger    *logrus.Entry
}

// NewImportService creates a new import service. jobs, guard and publisher
// are optional.
func NewImportService(
	registry *adapters.Registry,
	jobs repository.JobStore,
	guard *idempotency.Guard,
	publisher EventPublisher,
	cfg *ImportConfig,
	logger *logrus.Logger,
) *ImportService {
	if cfg == nil {
		cfg = DefaultImportConfig()
	}
	if cfg.NormalizeWorkers <= 0 {
		cfg.NormalizeWorkers = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ImportService{
		registry:  registry,
		jobs:      jobs,
		guard:     guard,
		publisher: publisher,
		limiter:   NewSourceSemaphore(cfg.Concurrency),
		validate:  validator.New(),
		config:    cfg,
		logger:    logger.WithField("component", "import_service"),
	}
}

// importRun carries one resolved import through the pipeline
type importRun struct {
	requestID string
	source    models.SourceType
	req       *models.ImportRequest
	key       string
	job       *models.ImportJob
}

// Import runs an import request. Request-level failures are reported in the
// envelope with Success false; per-record failures only appear in
// Metadata.Errors.
func (s *ImportService) Import(ctx context.Context, req *models.ImportRequest) *models.ImportResult {
	start := time.Now()
	requestID := "imp_" + uuid.NewString()

	source, err := s.prepare(req)
	if err != nil {
		s.logger.WithError(err).WithField("request_id", requestID).Warn("Rejected import request")
		return s.fail(newResult(requestID, source), err, start)
	}
	req.Source = source

	run := &importRun{requestID: requestID, source: source, req: req}
	if s.guard == nil {
		return s.execute(ctx, run)
	}

	run.key, err = idempotency.Key(source, req)
	if err != nil {
		return s.fail(newResult(requestID, source), models.NewValidationError("data", err.Error()), start)
	}
	result, cached, err := s.guard.Do(ctx, run.key, func(ctx context.Context) (*models.ImportResult, error) {
		return s.execute(ctx, run), nil
	})
	if err != nil {
		return s.fail(newResult(requestID, source), err, start)
	}
	if cached {
		s.logger.WithFields(logrus.Fields{
			"request_id":        requestID,
			"cached_request_id": result.Metadata.RequestID,
			"source":            source,
		}).Info("Returning cached import result")
	}
	return result
}

// ImportFromURL imports the product or store a URL points at. The source is
// detected from the host.
func (s *ImportService) ImportFromURL(ctx context.Context, productURL string, opts models.ImportOptions) *models.ImportResult {
	opts.AutoDetect = true
	return s.Import(ctx, &models.ImportRequest{URL: productURL, Options: opts})
}

// ImportFromCSV imports an uploaded delimited file. mapping renames source
// columns onto canonical fields.
func (s *ImportService) ImportFromCSV(ctx context.Context, file *models.ImportFile, mapping map[string]string) *models.ImportResult {
	req := &models.ImportRequest{
		Source:  models.SourceCSV,
		File:    file,
		Options: models.ImportOptions{FieldMapping: mapping, Format: adapters.FormatCSV},
	}
	return s.Import(ctx, req)
}

// ImportFromExtension imports data captured by the browser extension on
// pageURL. The records are attributed to markup scraping.
func (s *ImportService) ImportFromExtension(ctx context.Context, pageURL string, data interface{}, opts models.ImportOptions) *models.ImportResult {
	req := &models.ImportRequest{URL: pageURL, Options: opts}
	req.Options.AutoDetect = true
	if data != nil {
		records, err := adapters.RecordsFromData(data)
		if err != nil {
			return s.fail(newResult("imp_"+uuid.NewString(), ""), err, time.Now())
		}
		req.Data = adapters.TagRecords(records, models.ExtractionMarkupScrape)
	}
	return s.Import(ctx, req)
}

// prepare validates the request shape and resolves its source
func (s *ImportService) prepare(req *models.ImportRequest) (models.SourceType, error) {
	if req == nil {
		return "", models.NewValidationError("", "import request is required")
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL != "" && !strings.Contains(req.URL, "://") {
		req.URL = "https://" + req.URL
	}
	if err := s.validate.Struct(req); err != nil {
		return req.Source, validationError(err)
	}
	if !req.HasPayload() {
		return req.Source, models.NewValidationError("url", "one of url, data or file is required")
	}

	switch {
	case req.Source != "":
		if !req.Source.IsValid() {
			return req.Source, &models.UnsupportedSourceError{Source: string(req.Source)}
		}
		return req.Source, nil
	case req.Options.AutoDetect && req.URL != "":
		return adapters.DetectSource(req.URL), nil
	case req.Options.AutoDetect && req.File != nil:
		format := adapters.DetectFormat(req.Options.Format, req.File.Name, req.File.ContentType, req.File.Content, "")
		return models.SourceType(format), nil
	}
	return "", models.NewValidationError("source", "source is required when auto-detection is off or no URL is given")
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return models.NewValidationError(strings.ToLower(fe.Field()), fmt.Sprintf("failed %q validation", fe.Tag()))
	}
	return models.NewValidationError("", err.Error())
}

// execute runs extraction and normalization for a prepared request
func (s *ImportService) execute(ctx context.Context, run *importRun) *models.ImportResult {
	start := time.Now()
	result := newResult(run.requestID, run.source)
	result.Metadata.IdempotencyKey = run.key

	adapter, err := s.registry.Resolve(run.source)
	if err != nil {
		return s.finish(ctx, run, s.fail(result, err, start))
	}

	if run.job == nil && isBulk(run.source) {
		run.job = s.createJob(ctx, run)
	}
	if run.job != nil {
		result.Metadata.JobID = run.job.ID.String()
	}

	records, err := s.extract(ctx, adapter, run)
	if err != nil && len(records) == 0 {
		return s.finish(ctx, run, s.fail(result, err, start))
	}
	if err != nil {
		// Partial extraction keeps the records that arrived
		result.Metadata.Errors = append(result.Metadata.Errors, models.NewRecordError(err))
	}
	if len(records) == 0 {
		err := &models.ExtractionError{Source: run.source, Err: errors.New("no products found in source")}
		return s.finish(ctx, run, s.fail(result, err, start))
	}

	result.Metadata.TotalExtracted = len(records)
	if limit := s.maxRecords(run.req); limit > 0 && len(records) > limit {
		s.logger.WithFields(logrus.Fields{
			"request_id": run.requestID,
			"extracted":  len(records),
			"limit":      limit,
		}).Info("Capping import to max records")
		records = records[:limit]
	}

	opts := adapters.NewNormalizeOptions(run.source, run.req)
	products, recordErrs, err := s.normalizeAll(ctx, adapter, records, opts, run.req.Options.SkipValidation)
	if err != nil {
		return s.finish(ctx, run, s.fail(result, err, start))
	}

	result.Success = true
	result.Products = products
	result.Metadata.Errors = append(result.Metadata.Errors, recordErrs...)
	result.Metadata.TotalImported = len(products)
	result.Metadata.TotalErrors = len(result.Metadata.Errors)
	stamp(result, start)
	return s.finish(ctx, run, result)
}

// extract calls the adapter under the per-family limiter and the request timeout
func (s *ImportService) extract(ctx context.Context, adapter adapters.Adapter, run *importRun) (records []models.RawRecord, err error) {
	release, err := s.limiter.Acquire(ctx, adapter.Name())
	if err != nil {
		return nil, &models.ExtractionError{Source: run.source, Err: err}
	}
	defer release()

	timeout := s.config.ExtractTimeout
	if isBulk(run.source) {
		timeout = s.config.BulkExtractTimeout
	}
	extractCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("adapter", adapter.Name()).Errorf("Extraction panic: %v", r)
			records, err = nil, &models.ExtractionError{Source: run.source, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	records, err = adapter.Extract(extractCtx, run.req)
	if err == nil {
		return records, nil
	}

	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return records, err
	case errors.Is(extractCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return records, &models.ExtractionError{Source: run.source, Err: err}
}

// normalizeAll fans records out over a bounded worker pool. Output order
// follows input order; failing records are reported by index.
func (s *ImportService) normalizeAll(
	ctx context.Context,
	adapter adapters.Adapter,
	records []models.RawRecord,
	opts adapters.NormalizeOptions,
	skipValidation bool,
) ([]models.NormalizedProduct, []models.RecordError, error) {
	products := make([]*models.NormalizedProduct, len(records))
	errs := make([]error, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.NormalizeWorkers)
	for i, raw := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := s.normalizeRecord(adapter, raw, opts, skipValidation)
			if err != nil {
				errs[i] = &models.NormalizationError{Index: i, Err: err}
				return nil
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("normalization interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("normalization interrupted: %w", err)
	}

	out := make([]models.NormalizedProduct, 0, len(records))
	var recordErrs []models.RecordError
	for i := range records {
		if errs[i] != nil {
			recordErrs = append(recordErrs, models.NewRecordError(errs[i]))
			continue
		}
		out = append(out, *products[i])
	}
	return out, recordErrs, nil
}

// normalizeRecord maps, sanitizes and finalizes one record. A panic in the
// adapter fails the record, not the batch.
func (s *ImportService) normalizeRecord(
	adapter adapters.Adapter,
	raw models.RawRecord,
	opts adapters.NormalizeOptions,
	skipValidation bool,
) (p *models.NormalizedProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic during normalization: %v", r)
		}
	}()

	p, err = adapter.Normalize(raw, opts)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("adapter returned no product")
	}

	p = validation.SanitizeProduct(p)
	fallback := capability.CreateAttribution(adapters.RecordKind(raw, models.ExtractionManual), -1)
	if skipValidation {
		return capability.FinalizeUnchecked(p, fallback), nil
	}
	return capability.Finalize(p, fallback), nil
}

func (s *ImportService) maxRecords(req *models.ImportRequest) int {
	if req.Options.MaxRecords > 0 {
		return req.Options.MaxRecords
	}
	return s.config.DefaultMaxRecords
}

// finish completes the job, publishes the import event and logs the outcome
func (s *ImportService) finish(ctx context.Context, run *importRun, result *models.ImportResult) *models.ImportResult {
	ctx = context.WithoutCancel(ctx)

	if run.job != nil && s.jobs != nil {
		status := models.JobStatusCompleted
		message := ""
		if !result.Success {
			status = models.JobStatusFailed
			if result.Error != nil {
				message = result.Error.Message
			}
		}
		failed := failedRecords(result)
		progress := &models.JobProgress{
			TotalItems:      result.Metadata.TotalExtracted,
			ProcessedItems:  result.Metadata.TotalImported + failed,
			SuccessfulItems: result.Metadata.TotalImported,
			FailedItems:     failed,
		}
		if progress.TotalItems > 0 {
			progress.Percentage = float64(progress.ProcessedItems) / float64(progress.TotalItems) * 100
		}
		err := s.jobs.Complete(ctx, run.job.ID, status, progress, message)
		switch {
		case errors.Is(err, repository.ErrJobCancelled):
			s.logger.WithField("job_id", run.job.ID).Info("Import job was cancelled while running, status left unchanged")
		case err != nil:
			s.logger.WithError(err).WithField("job_id", run.job.ID).Warn("Failed to complete import job")
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishImportCompleted(ctx, result); err != nil {
			s.logger.WithError(err).WithField("request_id", run.requestID).Warn("Failed to publish import event")
		}
	}

	fields := logrus.Fields{
		"request_id":  run.requestID,
		"source":      run.source,
		"extracted":   result.Metadata.TotalExtracted,
		"imported":    result.Metadata.TotalImported,
		"errors":      result.Metadata.TotalErrors,
		"duration_ms": result.Metadata.DurationMs,
	}
	if result.Success {
		s.logger.WithFields(fields).Info("Import completed")
	} else {
		s.logger.WithFields(fields).WithField("error_code", result.Error.Code).Warn("Import failed")
	}
	return result
}

func (s *ImportService) fail(result *models.ImportResult, err error, start time.Time) *models.ImportResult {
	result.Success = false
	result.Error = &models.ImportError{Code: models.ErrorCode(err), Message: err.Error()}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) && validationErr.Field != "" {
		result.Error.Details = map[string]interface{}{"field": validationErr.Field}
	}
	var unsupportedErr *models.UnsupportedSourceError
	if errors.As(err, &unsupportedErr) {
		supported := make([]string, 0, len(models.AllSources))
		for _, src := range s.registry.Sources() {
			supported = append(supported, string(src))
		}
		result.Error.Details = map[string]interface{}{"supportedSources": supported}
	}
	stamp(result, start)
	return result
}

// failedRecords counts the errors tied to a record
func failedRecords(result *models.ImportResult) int {
	n := 0
	for _, e := range result.Metadata.Errors {
		if e.Index >= 0 {
			n++
		}
	}
	return n
}

func newResult(requestID string, source models.SourceType) *models.ImportResult {
	return &models.ImportResult{
		Products: []models.NormalizedProduct{},
		Metadata: models.ImportMetadata{
			RequestID: requestID,
			Source:    source,
		},
	}
}

func stamp(result *models.ImportResult, start time.Time) {
	result.Metadata.Duration = time.Since(start)
	result.Metadata.DurationMs = result.Metadata.Duration.Milliseconds()
	result.Metadata.Timestamp = time.Now().UTC()
}

// isBulk reports whether a source imports many records per request
func isBulk(source models.SourceType) bool {
	return source == models.SourceShopify || source.IsFile()
}
