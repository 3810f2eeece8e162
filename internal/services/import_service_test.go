package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"product-import-service/internal/adapters"
	"product-import-service/internal/clients"
	"product-import-service/internal/idempotency"
	"product-import-service/internal/models"
	"product-import-service/internal/repository"
)

// MockCollector is a mock implementation of clients.Collector
type MockCollector struct {
	mock.Mock
}

func (m *MockCollector) ScrapeProduct(ctx context.Context, source models.SourceType, productURL string, opts clients.CollectOptions) ([]models.RawRecord, error) {
	args := m.Called(ctx, source, productURL, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RawRecord), args.Error(1)
}

func (m *MockCollector) FetchCatalog(ctx context.Context, source models.SourceType, productURL string, opts clients.CollectOptions) ([]models.RawRecord, error) {
	args := m.Called(ctx, source, productURL, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RawRecord), args.Error(1)
}

func (m *MockCollector) ExportStore(ctx context.Context, domain string, opts clients.CollectOptions) ([]models.RawRecord, error) {
	args := m.Called(ctx, domain, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RawRecord), args.Error(1)
}

func (m *MockCollector) FetchPage(ctx context.Context, pageURL string) (*clients.Page, error) {
	args := m.Called(ctx, pageURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.Page), args.Error(1)
}

// MockJobStore is a mock implementation of repository.JobStore
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) Create(ctx context.Context, job *models.ImportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobStore) Complete(ctx context.Context, id uuid.UUID, status models.JobStatus, progress *models.JobProgress, errorMessage string) error {
	args := m.Called(ctx, id, status, progress, errorMessage)
	return args.Error(0)
}

func (m *MockJobStore) History(ctx context.Context, limit int) ([]models.ImportJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ImportJob), args.Error(1)
}

func (m *MockJobStore) Cancel(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockJobStore) Retry(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

var _ repository.JobStore = (*MockJobStore)(nil)

// panicAdapter fails hard on records flagged with "explode"
type panicAdapter struct{}

func (panicAdapter) Name() string { return "panic" }

func (panicAdapter) Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error) {
	return adapters.RecordsFromData(req.Data)
}

func (panicAdapter) Normalize(raw models.RawRecord, opts adapters.NormalizeOptions) (*models.NormalizedProduct, error) {
	if raw["explode"] != nil {
		panic("unexpected record shape")
	}
	return &models.NormalizedProduct{Title: fmt.Sprint(raw["title"]), Price: 10}, nil
}

// truncatedAdapter returns its records together with an error, like a feed
// whose connection dropped after the first page
type truncatedAdapter struct{}

func (truncatedAdapter) Name() string { return "truncated" }

func (truncatedAdapter) Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error) {
	records, err := adapters.RecordsFromData(req.Data)
	if err != nil {
		return nil, err
	}
	return records, errors.New("connection reset after page 1")
}

func (truncatedAdapter) Normalize(raw models.RawRecord, opts adapters.NormalizeOptions) (*models.NormalizedProduct, error) {
	if raw["title"] == nil {
		return nil, errors.New("record has no title")
	}
	return &models.NormalizedProduct{Title: fmt.Sprint(raw["title"]), Price: 10}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(collector clients.Collector, jobs repository.JobStore, guard *idempotency.Guard) *ImportService {
	cfg := DefaultImportConfig()
	cfg.NormalizeWorkers = 4
	return NewImportService(adapters.NewDefaultRegistry(collector), jobs, guard, nil, cfg, testLogger())
}

const fullDescription = "Forged stainless steel blades with ergonomic handles and a solid oak block. " +
	"Dishwasher safe and delivered with a honing steel for daily care."

func TestImport_CSVEndToEnd(t *testing.T) {
	csv := "title,description,price,image_1,image_2,image_3,category,sku\n" +
		"Chef Knife Set,\"" + fullDescription + "\",49.90," +
		"https://cdn.example.com/knife-1.jpg,https://cdn.example.com/knife-2.jpg,https://cdn.example.com/knife-3.jpg," +
		"Kitchen,KN-100\n" +
		"Pen,,0,,,,,\n"

	svc := newTestService(&MockCollector{}, nil, nil)
	result := svc.ImportFromCSV(context.Background(), &models.ImportFile{Name: "catalog.csv", Content: []byte(csv)}, nil)

	require.True(t, result.Success, "unexpected error: %+v", result.Error)
	require.Len(t, result.Products, 2)
	assert.Equal(t, 2, result.Metadata.TotalExtracted)
	assert.Equal(t, 2, result.Metadata.TotalImported)
	assert.Equal(t, 0, result.Metadata.TotalErrors)
	assert.Equal(t, models.SourceCSV, result.Metadata.Source)
	assert.True(t, strings.HasPrefix(result.Metadata.RequestID, "imp_"))

	full := result.Products[0]
	assert.Equal(t, "Chef Knife Set", full.Title)
	assert.Empty(t, full.Brand)
	assert.Equal(t, 49.90, full.Price)
	assert.Len(t, full.Images, 3)
	assert.Equal(t, "KN-100", full.SKU)
	assert.GreaterOrEqual(t, full.CompletenessScore, 70)
	assert.Equal(t, models.ProductStatusReady, full.Status)
	assert.Equal(t, models.ExtractionManual, full.Attribution["title"].Kind)

	minimal := result.Products[1]
	assert.Equal(t, "Pen", minimal.Title)
	assert.Less(t, minimal.CompletenessScore, 40)
	assert.Equal(t, models.ProductStatusErrorIncomplete, minimal.Status)
}

func TestImport_CSVFieldMapping(t *testing.T) {
	csv := "Nom Produit,Tarif,Photo\nLampe de bureau en laiton,39.00,https://cdn.example.com/lamp.jpg\n"

	svc := newTestService(&MockCollector{}, nil, nil)
	result := svc.ImportFromCSV(context.Background(), &models.ImportFile{Name: "lamps.csv", Content: []byte(csv)},
		map[string]string{"Nom Produit": "title", "Tarif": "price", "Photo": "images"})

	require.True(t, result.Success)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "Lampe de bureau en laiton", result.Products[0].Title)
	assert.Equal(t, 39.0, result.Products[0].Price)
	assert.Equal(t, []string{"https://cdn.example.com/lamp.jpg"}, result.Products[0].Images)
}

func TestImport_BatchIsolation(t *testing.T) {
	const total, broken = 50, 17
	data := make([]interface{}, total)
	for i := range data {
		data[i] = map[string]interface{}{
			"title":  fmt.Sprintf("Product number %02d", i),
			"price":  float64(i + 1),
			"images": []interface{}{fmt.Sprintf("https://cdn.example.com/p%02d.jpg", i)},
		}
	}
	data[broken] = "not an object"

	svc := newTestService(&MockCollector{}, nil, nil)
	result := svc.Import(context.Background(), &models.ImportRequest{Source: models.SourceJSON, Data: data})

	require.True(t, result.Success)
	assert.Len(t, result.Products, total-1)
	assert.Equal(t, total, result.Metadata.TotalExtracted)
	assert.Equal(t, total-1, result.Metadata.TotalImported)
	assert.Equal(t, 1, result.Metadata.TotalErrors)
	require.Len(t, result.Metadata.Errors, 1)
	assert.Equal(t, broken, result.Metadata.Errors[0].Index)
	assert.Equal(t, models.ErrCodeNormalization, result.Metadata.Errors[0].Code)
	assert.Contains(t, result.Metadata.Errors[0].Error, "malformed")

	// Input order is kept around the failing record
	assert.Equal(t, "Product number 16", result.Products[16].Title)
	assert.Equal(t, "Product number 18", result.Products[17].Title)
	assert.Equal(t, "Product number 49", result.Products[total-2].Title)
}

func TestImport_PanicIsolatedToRecord(t *testing.T) {
	svc := newTestService(&MockCollector{}, nil, nil)
	svc.registry.Register(panicAdapter{}, models.SourceJSON)

	data := []interface{}{
		map[string]interface{}{"title": "first"},
		map[string]interface{}{"title": "second", "explode": true},
		map[string]interface{}{"title": "third"},
	}
	result := svc.Import(context.Background(), &models.ImportRequest{Source: models.SourceJSON, Data: data})

	require.True(t, result.Success)
	require.Len(t, result.Products, 2)
	assert.Equal(t, "first", result.Products[0].Title)
	assert.Equal(t, "third", result.Products[1].Title)
	require.Len(t, result.Metadata.Errors, 1)
	assert.Equal(t, 1, result.Metadata.Errors[0].Index)
	assert.Contains(t, result.Metadata.Errors[0].Error, "panic")
}

func TestImport_PartialExtractionCountsAsError(t *testing.T) {
	jobs := &MockJobStore{}
	jobs.On("Create", mock.Anything, mock.AnythingOfType("*models.ImportJob")).Return(nil)
	jobs.On("Complete", mock.Anything, mock.AnythingOfType("uuid.UUID"), models.JobStatusCompleted,
		mock.MatchedBy(func(p *models.JobProgress) bool {
			return p.TotalItems == 2 && p.ProcessedItems == 2 && p.FailedItems == 1 && p.Percentage == 100
		}), "").Return(nil)

	svc := newTestService(&MockCollector{}, jobs, nil)
	svc.registry.Register(truncatedAdapter{}, models.SourceCSV)

	data := []interface{}{
		map[string]interface{}{"title": "Linen tea towel"},
		map[string]interface{}{"sku": "TT-2"},
	}
	result := svc.Import(context.Background(), &models.ImportRequest{Source: models.SourceCSV, Data: data})

	require.True(t, result.Success, "unexpected error: %+v", result.Error)
	assert.Equal(t, 1, result.Metadata.TotalImported)
	require.Len(t, result.Metadata.Errors, 2)
	assert.Equal(t, 2, result.Metadata.TotalErrors)

	extraction := result.Metadata.Errors[0]
	assert.Equal(t, -1, extraction.Index)
	assert.Equal(t, models.ErrCodeExtraction, extraction.Code)
	assert.Contains(t, extraction.Error, "connection reset")

	record := result.Metadata.Errors[1]
	assert.Equal(t, 1, record.Index)
	assert.Equal(t, models.ErrCodeNormalization, record.Code)
	assert.Equal(t, "record has no title", record.Error)
	jobs.AssertExpectations(t)
}

func TestImport_MaxRecords(t *testing.T) {
	data := make([]interface{}, 10)
	for i := range data {
		data[i] = map[string]interface{}{"title": fmt.Sprintf("Item %d", i), "price": 5}
	}

	svc := newTestService(&MockCollector{}, nil, nil)
	result := svc.Import(context.Background(), &models.ImportRequest{
		Source:  models.SourceJSON,
		Data:    data,
		Options: models.ImportOptions{MaxRecords: 3},
	})

	require.True(t, result.Success)
	assert.Len(t, result.Products, 3)
	assert.Equal(t, 10, result.Metadata.TotalExtracted)
	assert.Equal(t, "Item 2", result.Products[2].Title)
}

func TestImport_SkipValidation(t *testing.T) {
	data := map[string]interface{}{
		"title":       "Handmade ceramic coffee mug",
		"description": strings.Repeat("Glazed stoneware. ", 12),
		"price":       18,
		"images":      []interface{}{"https://cdn.example.com/mug.jpg"},
		"category":    "kitchen",
		"sku":         "MUG-1",
		"brand":       "Atelier",
		"weight":      0.4,
		"attributes":  map[string]interface{}{"Material": "Stoneware"},
		"variants":    []interface{}{map[string]interface{}{"title": "Sand"}},
	}
	svc := newTestService(&MockCollector{}, nil, nil)

	checked := svc.Import(context.Background(), &models.ImportRequest{Source: models.SourceJSON, Data: data})
	require.True(t, checked.Success)
	assert.Equal(t, models.ProductStatusErrorIncomplete, checked.Products[0].Status)

	unchecked := svc.Import(context.Background(), &models.ImportRequest{
		Source:  models.SourceJSON,
		Data:    data,
		Options: models.ImportOptions{SkipValidation: true},
	})
	require.True(t, unchecked.Success)
	assert.Greater(t, unchecked.Products[0].CompletenessScore, checked.Products[0].CompletenessScore)
	assert.Equal(t, models.ProductStatusReady, unchecked.Products[0].Status)
}

func TestImport_SkipValidationKeepsReadyGate(t *testing.T) {
	data := map[string]interface{}{
		"title":       "Handmade ceramic coffee mug",
		"description": strings.Repeat("Glazed stoneware, food safe. ", 8),
		"price":       0,
		"category":    "kitchen",
		"sku":         "MUG-1",
		"brand":       "Atelier",
		"weight":      0.4,
		"attributes":  map[string]interface{}{"Material": "Stoneware"},
		"variants":    []interface{}{map[string]interface{}{"title": "Sand", "price": 12}},
	}
	svc := newTestService(&MockCollector{}, nil, nil)

	result := svc.Import(context.Background(), &models.ImportRequest{
		Source:  models.SourceJSON,
		Data:    data,
		Options: models.ImportOptions{SkipValidation: true},
	})

	require.True(t, result.Success)
	require.Len(t, result.Products, 1)
	product := result.Products[0]
	assert.Empty(t, product.Images)
	assert.NotEqual(t, models.ProductStatusReady, product.Status)
	assert.LessOrEqual(t, product.CompletenessScore, 39)
}

func TestImport_RequestValidation(t *testing.T) {
	svc := newTestService(&MockCollector{}, nil, nil)

	tests := []struct {
		name  string
		req   *models.ImportRequest
		field string
	}{
		{"nil request", nil, ""},
		{"no payload", &models.ImportRequest{Source: models.SourceCSV}, "url"},
		{"no source without detection", &models.ImportRequest{URL: "https://www.amazon.com/dp/B01"}, "source"},
		{"negative max records", &models.ImportRequest{Source: models.SourceJSON, Data: "[]", Options: models.ImportOptions{MaxRecords: -1}}, "maxrecords"},
		{"unknown format", &models.ImportRequest{Source: models.SourceJSON, Data: "[]", Options: models.ImportOptions{Format: "pdf"}}, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := svc.Import(context.Background(), tt.req)
			assert.False(t, result.Success)
			require.NotNil(t, result.Error)
			assert.Equal(t, models.ErrCodeValidation, result.Error.Code)
			if tt.field != "" {
				assert.Equal(t, tt.field, result.Error.Details["field"])
			}
			assert.Empty(t, result.Products)
		})
	}
}

func TestImport_UnsupportedSource(t *testing.T) {
	svc := newTestService(&MockCollector{}, nil, nil)
	result := svc.Import(context.Background(), &models.ImportRequest{Source: "etsy", URL: "https://www.etsy.com/listing/1"})

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrCodeValidation, result.Error.Code)
	assert.Contains(t, result.Error.Details["supportedSources"], "aliexpress")
}

func TestImportFromURL_DetectsSource(t *testing.T) {
	collector := &MockCollector{}
	collector.On("ScrapeProduct", mock.Anything, models.SourceTemu, "https://www.temu.com/goods-601.html", mock.Anything).
		Return([]models.RawRecord{{"goods_name": "Wireless earbuds with charging case", "price": "19.99"}}, nil).Once()

	svc := newTestService(collector, nil, nil)
	result := svc.ImportFromURL(context.Background(), "www.temu.com/goods-601.html", models.ImportOptions{})

	require.True(t, result.Success, "unexpected error: %+v", result.Error)
	assert.Equal(t, models.SourceTemu, result.Metadata.Source)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "Wireless earbuds with charging case", result.Products[0].Title)
	assert.Equal(t, models.ExtractionHeadlessFetch, result.Products[0].Attribution["title"].Kind)
	collector.AssertExpectations(t)
}

func TestImportFromExtension(t *testing.T) {
	svc := newTestService(&MockCollector{}, nil, nil)
	payload := map[string]interface{}{
		"title":  "Smart watch with heart rate monitor",
		"price":  "59,90 €",
		"images": []interface{}{"https://ae01.alicdn.com/kf/watch.jpg"},
	}

	result := svc.ImportFromExtension(context.Background(), "https://www.aliexpress.com/item/100.html", payload, models.ImportOptions{})

	require.True(t, result.Success, "unexpected error: %+v", result.Error)
	assert.Equal(t, models.SourceAliExpress, result.Metadata.Source)
	require.Len(t, result.Products, 1)
	assert.Equal(t, 59.90, result.Products[0].Price)
	assert.Equal(t, "EUR", result.Products[0].Currency)
	assert.Equal(t, models.ExtractionMarkupScrape, result.Products[0].Attribution["price"].Kind)
}

func TestImport_ExtractionFailure(t *testing.T) {
	collector := &MockCollector{}
	collector.On("FetchCatalog", mock.Anything, models.SourceAmazon, "https://www.amazon.com/dp/B01", mock.Anything).
		Return(nil, &clients.CollectorError{Operation: "catalog", StatusCode: 502, Message: "bad gateway"})

	clock := &testClock{now: time.Now()}
	guard := idempotency.NewGuard(idempotency.NewMemoryStoreWithClock(clock.Now), 0, testLogger())
	svc := newTestService(collector, nil, guard)

	req := func() *models.ImportRequest {
		return &models.ImportRequest{Source: models.SourceAmazon, URL: "https://www.amazon.com/dp/B01"}
	}
	result := svc.Import(context.Background(), req())

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrCodeExtraction, result.Error.Code)
	assert.Contains(t, result.Error.Message, "bad gateway")

	// Failures are not cached
	again := svc.Import(context.Background(), req())
	assert.False(t, again.Metadata.Cached)
	collector.AssertNumberOfCalls(t, "FetchCatalog", 2)
}

func TestImport_ExtractionTimeout(t *testing.T) {
	collector := &MockCollector{}
	collector.On("ScrapeProduct", mock.Anything, models.SourceAliExpress, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	cfg := DefaultImportConfig()
	cfg.ExtractTimeout = 20 * time.Millisecond
	svc := NewImportService(adapters.NewDefaultRegistry(collector), nil, nil, nil, cfg, testLogger())

	result := svc.Import(context.Background(), &models.ImportRequest{
		Source: models.SourceAliExpress,
		URL:    "https://www.aliexpress.com/item/1.html",
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrCodeExtraction, result.Error.Code)
	assert.Contains(t, result.Error.Message, "timed out")
}

func TestImport_NoRecords(t *testing.T) {
	svc := newTestService(&MockCollector{}, nil, nil)
	result := svc.Import(context.Background(), &models.ImportRequest{Source: models.SourceJSON, Data: "[]"})

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrCodeExtraction, result.Error.Code)
}

func TestImport_Idempotency(t *testing.T) {
	collector := &MockCollector{}
	collector.On("ScrapeProduct", mock.Anything, models.SourceAliExpress, "https://www.aliexpress.com/item/42.html", mock.Anything).
		Return([]models.RawRecord{{"subject": "Portable blender for smoothies", "price": "24.50"}}, nil)

	clock := &testClock{now: time.Now()}
	guard := idempotency.NewGuard(idempotency.NewMemoryStoreWithClock(clock.Now), idempotency.DefaultTTL, testLogger())
	svc := newTestService(collector, nil, guard)

	req := func() *models.ImportRequest {
		return &models.ImportRequest{Source: models.SourceAliExpress, URL: "https://www.aliexpress.com/item/42.html"}
	}

	first := svc.Import(context.Background(), req())
	require.True(t, first.Success)
	assert.False(t, first.Metadata.Cached)
	assert.NotEmpty(t, first.Metadata.IdempotencyKey)

	second := svc.Import(context.Background(), req())
	require.True(t, second.Success)
	assert.True(t, second.Metadata.Cached)
	assert.Equal(t, first.Metadata.RequestID, second.Metadata.RequestID)
	assert.Equal(t, first.Products[0].Title, second.Products[0].Title)
	collector.AssertNumberOfCalls(t, "ScrapeProduct", 1)

	clock.Advance(idempotency.DefaultTTL + time.Hour)
	third := svc.Import(context.Background(), req())
	require.True(t, third.Success)
	assert.False(t, third.Metadata.Cached)
	collector.AssertNumberOfCalls(t, "ScrapeProduct", 2)
}

func TestImport_SameDataMapIsReplayed(t *testing.T) {
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), idempotency.DefaultTTL, testLogger())
	svc := newTestService(&MockCollector{}, nil, guard)

	data := map[string]interface{}{
		"subject":    "Portable blender for smoothies",
		"sale_price": map[string]interface{}{"min": 24.5},
		"image_list": []interface{}{"https://ae01.alicdn.com/kf/blender.jpg"},
	}
	req := func() *models.ImportRequest {
		return &models.ImportRequest{
			Source:  models.SourceAliExpress,
			Data:    data,
			Options: models.ImportOptions{FieldMapping: map[string]string{"subject": "title"}},
		}
	}

	first := svc.Import(context.Background(), req())
	require.True(t, first.Success, "unexpected error: %+v", first.Error)
	assert.False(t, first.Metadata.Cached)

	second := svc.Import(context.Background(), req())
	require.True(t, second.Success)
	assert.True(t, second.Metadata.Cached)
	assert.Equal(t, first.Metadata.IdempotencyKey, second.Metadata.IdempotencyKey)

	assert.Len(t, data, 3, "extraction must not write into the caller's map")
	assert.NotContains(t, data, adapters.ExtractionKey)
	assert.NotContains(t, data, "title")
}

func TestImport_ConcurrentSharedDataMap(t *testing.T) {
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), idempotency.DefaultTTL, testLogger())
	svc := newTestService(&MockCollector{}, nil, guard)

	data := []interface{}{
		map[string]interface{}{"title": "Walnut desk organizer", "price": 32, "image": "https://cdn.example.com/org.jpg"},
		map[string]interface{}{"title": "Cork desk mat", "price": 19, "image": "https://cdn.example.com/mat.jpg"},
	}

	const callers = 8
	results := make([]*models.ImportResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Import(context.Background(), &models.ImportRequest{Source: models.SourceURL, URL: "https://shop.example.com/desk", Data: data})
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		require.True(t, result.Success, "unexpected error: %+v", result.Error)
		assert.Len(t, result.Products, 2)
		assert.Equal(t, results[0].Metadata.IdempotencyKey, result.Metadata.IdempotencyKey)
	}
	for _, item := range data {
		assert.Len(t, item, 3)
	}
}

func TestImport_BulkCreatesJob(t *testing.T) {
	jobs := &MockJobStore{}
	var created *models.ImportJob
	jobs.On("Create", mock.Anything, mock.AnythingOfType("*models.ImportJob")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*models.ImportJob) }).
		Return(nil)
	jobs.On("Complete", mock.Anything, mock.AnythingOfType("uuid.UUID"), models.JobStatusCompleted,
		mock.MatchedBy(func(p *models.JobProgress) bool {
			return p.TotalItems == 1 && p.SuccessfulItems == 1 && p.Percentage == 100
		}), "").Return(nil)

	svc := newTestService(&MockCollector{}, jobs, nil)
	csv := "title,price\nOak cutting board,25\n"
	result := svc.ImportFromCSV(context.Background(), &models.ImportFile{Name: "boards.csv", Content: []byte(csv)}, nil)

	require.True(t, result.Success)
	require.NotNil(t, created)
	assert.Equal(t, created.ID.String(), result.Metadata.JobID)
	assert.Equal(t, "boards.csv", created.FileName)
	assert.Equal(t, models.JobStatusRunning, created.Status)
	jobs.AssertExpectations(t)
}

func TestImport_SingleURLHasNoJob(t *testing.T) {
	jobs := &MockJobStore{}
	collector := &MockCollector{}
	collector.On("FetchCatalog", mock.Anything, models.SourceEbay, mock.Anything, mock.Anything).
		Return([]models.RawRecord{{"title": "Vintage film camera", "price": 120}}, nil)

	svc := newTestService(collector, jobs, nil)
	result := svc.Import(context.Background(), &models.ImportRequest{Source: models.SourceEbay, URL: "https://www.ebay.com/itm/1"})

	require.True(t, result.Success)
	assert.Empty(t, result.Metadata.JobID)
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCancelJob_OnlyUpdatesJobStore(t *testing.T) {
	id := uuid.New()
	jobs := &MockJobStore{}
	jobs.On("Cancel", mock.Anything, id).Return(&models.ImportJob{ID: id, Status: models.JobStatusCancelled}, nil)

	collector := &MockCollector{}
	svc := newTestService(collector, jobs, nil)

	got, err := svc.CancelJob(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	jobs.AssertExpectations(t)
	collector.AssertNotCalled(t, "ExportStore", mock.Anything, mock.Anything, mock.Anything)
}

func TestImport_CancelledJobKeepsStatus(t *testing.T) {
	jobs := &MockJobStore{}
	jobs.On("Create", mock.Anything, mock.AnythingOfType("*models.ImportJob")).Return(nil)
	jobs.On("Complete", mock.Anything, mock.AnythingOfType("uuid.UUID"), models.JobStatusCompleted, mock.Anything, "").
		Return(repository.ErrJobCancelled)

	svc := newTestService(&MockCollector{}, jobs, nil)
	csv := "title,price\nOak cutting board,25\n"
	result := svc.ImportFromCSV(context.Background(), &models.ImportFile{Name: "boards.csv", Content: []byte(csv)}, nil)

	// The import itself is unaffected by a cancellation recorded in the store
	require.True(t, result.Success)
	assert.Len(t, result.Products, 1)
	jobs.AssertExpectations(t)
}

func TestCancelJob_Errors(t *testing.T) {
	jobs := &MockJobStore{}
	svc := newTestService(&MockCollector{}, jobs, nil)

	_, err := svc.CancelJob(context.Background(), "not-a-uuid")
	var validationErr *models.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	id := uuid.New()
	jobs.On("Cancel", mock.Anything, id).Return(nil, repository.ErrJobNotCancellable)
	_, err = svc.CancelJob(context.Background(), id.String())
	assert.ErrorIs(t, err, repository.ErrJobNotCancellable)

	untracked := newTestService(&MockCollector{}, nil, nil)
	_, err = untracked.CancelJob(context.Background(), id.String())
	assert.ErrorIs(t, err, ErrJobTrackingDisabled)
}

func TestRetryJob_OnlyResetsJob(t *testing.T) {
	id := uuid.New()
	jobs := &MockJobStore{}
	jobs.On("Retry", mock.Anything, id).Return(&models.ImportJob{
		ID:         id,
		Source:     models.SourceShopify,
		SourceURL:  "https://demo.myshopify.com",
		Status:     models.JobStatusPending,
		RetryCount: 1,
	}, nil)

	collector := &MockCollector{}
	svc := newTestService(collector, jobs, nil)
	job, err := svc.RetryJob(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, models.JobStatusPending, job.Status)

	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	collector.AssertNotCalled(t, "ExportStore", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryJob_Errors(t *testing.T) {
	id := uuid.New()
	jobs := &MockJobStore{}
	jobs.On("Retry", mock.Anything, id).Return(nil, repository.ErrRetryLimitReached)
	svc := newTestService(&MockCollector{}, jobs, nil)

	_, err := svc.RetryJob(context.Background(), id.String())
	assert.ErrorIs(t, err, repository.ErrRetryLimitReached)

	_, err = svc.RetryJob(context.Background(), "nope")
	var validationErr *models.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	untracked := newTestService(&MockCollector{}, nil, nil)
	_, err = untracked.RetryJob(context.Background(), id.String())
	assert.ErrorIs(t, err, ErrJobTrackingDisabled)
}

func TestGetImportHistory(t *testing.T) {
	jobs := &MockJobStore{}
	jobs.On("History", mock.Anything, defaultHistoryLimit).Return([]models.ImportJob{{Source: models.SourceCSV}}, nil).Once()
	jobs.On("History", mock.Anything, maxHistoryLimit).Return([]models.ImportJob{}, nil).Once()

	svc := newTestService(&MockCollector{}, jobs, nil)

	history, err := svc.GetImportHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = svc.GetImportHistory(context.Background(), 5000)
	require.NoError(t, err)
	jobs.AssertExpectations(t)
}

func TestSourceSemaphore(t *testing.T) {
	sem := NewSourceSemaphore(&ExtractionConcurrencyConfig{MaxConcurrentPerFamily: 1, QueueTimeout: 20 * time.Millisecond})

	release, err := sem.Acquire(context.Background(), "file")
	require.NoError(t, err)
	assert.Equal(t, 1, sem.ActiveCount("file"))

	_, ok := sem.TryAcquire("file")
	assert.False(t, ok)

	_, err = sem.Acquire(context.Background(), "file")
	assert.Error(t, err)

	// Other families are independent
	other, ok := sem.TryAcquire("storefront-api")
	require.True(t, ok)
	other()

	release()
	release()
	assert.Equal(t, 0, sem.ActiveCount("file"))

	again, ok := sem.TryAcquire("file")
	require.True(t, ok)
	again()
}
