package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"product-import-service/internal/adapters"
	"product-import-service/internal/clients"
	"product-import-service/internal/models"
	"product-import-service/internal/repository"
	"product-import-service/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.ImportJob{}))
	return db
}

func setupRouter(t *testing.T, collector clients.Collector, withJobs bool) (*gin.Engine, *gorm.DB) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	var (
		db   *gorm.DB
		jobs repository.JobStore
	)
	if withJobs {
		db = setupTestDB(t)
		jobs = repository.NewJobRepository(db)
	}

	svc := services.NewImportService(adapters.NewDefaultRegistry(collector), jobs, nil, nil, services.DefaultImportConfig(), log)
	h := NewImportHandler(svc)

	router := gin.New()
	imports := router.Group("/api/v1/imports")
	imports.POST("", h.Import)
	imports.POST("/url", h.ImportURL)
	imports.POST("/csv", h.ImportCSV)
	imports.POST("/extension", h.ImportExtension)
	imports.GET("/history", h.History)
	imports.GET("/stats", h.Stats)
	imports.GET("/sources", h.Sources)
	imports.POST("/jobs/:id/cancel", h.CancelJob)
	imports.POST("/jobs/:id/retry", h.RetryJob)
	return router, db
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) models.ImportResult {
	t.Helper()
	var result models.ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestImportHandler_ImportInlineData(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	w := doJSON(router, http.MethodPost, "/api/v1/imports", map[string]interface{}{
		"source": "json",
		"data": []map[string]interface{}{
			{"title": "Ceramic Pour Over Coffee Dripper", "price": "24.50", "image": "https://cdn.example.com/dripper.jpg"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)
	assert.True(t, result.Success)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "Ceramic Pour Over Coffee Dripper", result.Products[0].Title)
	assert.Equal(t, 24.50, result.Products[0].Price)
}

func TestImportHandler_ImportJSONDetectsSourceFromURL(t *testing.T) {
	collector := &MockCollector{}
	router, _ := setupRouter(t, collector, false)

	w := doJSON(router, http.MethodPost, "/api/v1/imports", map[string]interface{}{
		"url": "https://www.aliexpress.com/item/1005006.html",
		"data": map[string]interface{}{
			"subject":    "Portable blender for smoothies",
			"sale_price": map[string]interface{}{"min": 24.5},
			"image_list": []interface{}{"https://ae01.alicdn.com/kf/blender.jpg"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)
	assert.True(t, result.Success)
	assert.Equal(t, models.SourceAliExpress, result.Metadata.Source)
	collector.AssertNotCalled(t, "ScrapeProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestImportHandler_ImportMissingPayload(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	w := doJSON(router, http.MethodPost, "/api/v1/imports", map[string]interface{}{"source": "json"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	result := decodeResult(t, w)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, models.ErrCodeValidation, result.Error.Code)
}

func TestImportHandler_ImportMalformedBody(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandler_ImportURLExtractionFailure(t *testing.T) {
	collector := &MockCollector{}
	collector.On("ScrapeProduct", mock.Anything, models.SourceTemu, "https://www.temu.com/goods-601099512.html", mock.Anything).
		Return(nil, errors.New("scraper unavailable"))
	router, _ := setupRouter(t, collector, false)

	w := doJSON(router, http.MethodPost, "/api/v1/imports/url", URLImportRequest{URL: "https://www.temu.com/goods-601099512.html"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	result := decodeResult(t, w)
	require.NotNil(t, result.Error)
	assert.Equal(t, models.ErrCodeExtraction, result.Error.Code)
	collector.AssertExpectations(t)
}

func TestImportHandler_ImportURLRequiresURL(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	w := doJSON(router, http.MethodPost, "/api/v1/imports/url", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestImportHandler_ImportCSVCreatesJob(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, true)

	csv := "Product Name,Cost\nBamboo Cutting Board,18.00\nLinen Apron,22.00\n"
	body, contentType := multipartBody(t, "catalog.csv", csv, map[string]string{
		"mapping": `{"Product Name":"title","Cost":"price"}`,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/csv", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)
	require.Len(t, result.Products, 2)
	assert.Equal(t, "Bamboo Cutting Board", result.Products[0].Title)
	assert.Equal(t, 18.00, result.Products[0].Price)
	assert.NotEmpty(t, result.Metadata.JobID)

	w = doJSON(router, http.MethodGet, "/api/v1/imports/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Data  []models.ImportJob `json:"data"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Equal(t, 1, history.Total)
	assert.Equal(t, result.Metadata.JobID, history.Data[0].ID.String())
	assert.Equal(t, models.JobStatusCompleted, history.Data[0].Status)
	assert.Equal(t, "catalog.csv", history.Data[0].FileName)
}

func TestImportHandler_ImportCSVInvalidMapping(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	body, contentType := multipartBody(t, "catalog.csv", "title\nMug\n", map[string]string{"mapping": "[1,2"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/csv", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid mapping")
}

func TestImportHandler_ImportCSVRequiresFile(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	body, contentType := multipartBody(t, "", "", map[string]string{"mapping": "{}"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/csv", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file is required")
}

func TestImportHandler_ImportMultipartDetectsFormat(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, true)

	body, contentType := multipartBody(t, "feed.json", `[{"title":"Wool Throw Blanket","price":59}]`, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)
	assert.Equal(t, models.SourceJSON, result.Metadata.Source)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "Wool Throw Blanket", result.Products[0].Title)
}

func TestImportHandler_ImportExtension(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	w := doJSON(router, http.MethodPost, "/api/v1/imports/extension", ExtensionImportRequest{
		URL: "https://www.aliexpress.com/item/1005006.html",
		Data: map[string]interface{}{
			"title": "Mechanical Keyboard 75% Hot Swap",
			"price": 45.99,
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)
	assert.Equal(t, models.SourceAliExpress, result.Metadata.Source)
	require.Len(t, result.Products, 1)
}

func TestImportHandler_HistoryWithoutJobStore(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	w := doJSON(router, http.MethodGet, "/api/v1/imports/history", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestImportHandler_CancelJob(t *testing.T) {
	router, db := setupRouter(t, &MockCollector{}, true)
	jobs := repository.NewJobRepository(db)

	pending := &models.ImportJob{Source: models.SourceCSV, MaxRetries: 3}
	require.NoError(t, jobs.Create(context.Background(), pending))
	done := &models.ImportJob{Source: models.SourceCSV, MaxRetries: 3}
	require.NoError(t, jobs.Create(context.Background(), done))
	require.NoError(t, jobs.Complete(context.Background(), done.ID, models.JobStatusCompleted, nil, ""))

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"invalid id", "not-a-uuid", http.StatusBadRequest},
		{"unknown job", uuid.NewString(), http.StatusNotFound},
		{"completed job", done.ID.String(), http.StatusConflict},
		{"pending job", pending.ID.String(), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/v1/imports/jobs/"+tt.id+"/cancel", nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	stored, err := jobs.GetByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)
}

func TestImportHandler_RetryJob(t *testing.T) {
	router, db := setupRouter(t, &MockCollector{}, true)
	jobs := repository.NewJobRepository(db)

	failed := &models.ImportJob{Source: models.SourceCSV, FileName: "catalog.csv", MaxRetries: 3}
	require.NoError(t, jobs.Create(context.Background(), failed))
	require.NoError(t, jobs.Complete(context.Background(), failed.ID, models.JobStatusFailed, nil, "parse error"))

	w := doJSON(router, http.MethodPost, "/api/v1/imports/jobs/"+failed.ID.String()+"/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Data models.ImportJob `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.JobStatusPending, body.Data.Status)
	assert.Equal(t, 1, body.Data.RetryCount)

	w = doJSON(router, http.MethodPost, "/api/v1/imports/jobs/"+failed.ID.String()+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestImportHandler_StatsAndSources(t *testing.T) {
	router, _ := setupRouter(t, &MockCollector{}, false)

	w := doJSON(router, http.MethodGet, "/api/v1/imports/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "concurrency")

	w = doJSON(router, http.MethodGet, "/api/v1/imports/sources", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aliexpress")
}

func TestResultStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{models.ErrCodeValidation, http.StatusBadRequest},
		{models.ErrCodeExtraction, http.StatusBadGateway},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			result := &models.ImportResult{Error: &models.ImportError{Code: tt.code}}
			assert.Equal(t, tt.status, resultStatus(result))
		})
	}
	assert.Equal(t, http.StatusOK, resultStatus(&models.ImportResult{Success: true}))
}

func TestHealthHandler(t *testing.T) {
	db := setupTestDB(t)
	h := NewHealthHandler(db)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	w := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "product-import-service")

	w = doJSON(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w = doJSON(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
