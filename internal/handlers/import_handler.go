package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"product-import-service/internal/models"
	"product-import-service/internal/repository"
	"product-import-service/internal/services"
)

// ImportHandler handles product import endpoints
type ImportHandler struct {
	service *services.ImportService
}

// NewImportHandler creates a new import handler
func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

// URLImportRequest is the body of POST /imports/url
type URLImportRequest struct {
	URL     string               `json:"url" binding:"required"`
	Options models.ImportOptions `json:"options"`
}

// ExtensionImportRequest is the body of POST /imports/extension
type ExtensionImportRequest struct {
	URL     string               `json:"url"`
	Data    interface{}          `json:"data" binding:"required"`
	Options models.ImportOptions `json:"options"`
}

// Import runs a generic import. JSON bodies carry url or data; multipart
// bodies carry the file plus optional "source" and "options" fields.
func (h *ImportHandler) Import(c *gin.Context) {
	var req models.ImportRequest

	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		file, ok := h.readFile(c)
		if !ok {
			return
		}
		req.File = file
		req.Source = models.SourceType(c.PostForm("source"))
		req.URL = c.PostForm("url")
		if raw := c.PostForm("options"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Options); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid options: " + err.Error()})
				return
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Without an explicit source the URL or file decides
	if req.Source == "" {
		req.Options.AutoDetect = true
	}

	h.respond(c, h.service.Import(c.Request.Context(), &req))
}

// ImportURL imports the product or feed behind a URL, detecting the source
func (h *ImportHandler) ImportURL(c *gin.Context) {
	var req URLImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.respond(c, h.service.ImportFromURL(c.Request.Context(), req.URL, req.Options))
}

// ImportCSV imports an uploaded CSV file. The optional "mapping" form field
// is a JSON object from source column to product field.
func (h *ImportHandler) ImportCSV(c *gin.Context) {
	file, ok := h.readFile(c)
	if !ok {
		return
	}

	var mapping map[string]string
	if raw := c.PostForm("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mapping: " + err.Error()})
			return
		}
	}

	h.respond(c, h.service.ImportFromCSV(c.Request.Context(), file, mapping))
}

// ImportExtension imports records captured by the browser extension
func (h *ImportHandler) ImportExtension(c *gin.Context) {
	var req ExtensionImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.respond(c, h.service.ImportFromExtension(c.Request.Context(), req.URL, req.Data, req.Options))
}

// History returns the most recent bulk import jobs
func (h *ImportHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	jobs, err := h.service.GetImportHistory(c.Request.Context(), limit)
	if err != nil {
		h.jobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  jobs,
		"total": len(jobs),
	})
}

// CancelJob cancels a pending or running import job
func (h *ImportHandler) CancelJob(c *gin.Context) {
	job, err := h.service.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}

// RetryJob retries a failed or cancelled import job
func (h *ImportHandler) RetryJob(c *gin.Context) {
	job, err := h.service.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}

// Stats returns pipeline statistics
func (h *ImportHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.Stats()})
}

// Sources lists the registered import sources
func (h *ImportHandler) Sources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": models.AllSources})
}

func (h *ImportHandler) readFile(c *gin.Context) (*models.ImportFile, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, false
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open file"})
		return nil, false
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return nil, false
	}

	return &models.ImportFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, true
}

// respond writes the import envelope with a status derived from its error code
func (h *ImportHandler) respond(c *gin.Context, result *models.ImportResult) {
	c.JSON(resultStatus(result), result)
}

func resultStatus(result *models.ImportResult) int {
	if result.Success || result.Error == nil {
		return http.StatusOK
	}
	switch result.Error.Code {
	case models.ErrCodeValidation:
		return http.StatusBadRequest
	case models.ErrCodeExtraction:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *ImportHandler) jobError(c *gin.Context, err error) {
	var validationErr *models.ValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
	case errors.Is(err, repository.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, repository.ErrJobNotCancellable),
		errors.Is(err, repository.ErrJobNotRetryable),
		errors.Is(err, repository.ErrRetryLimitReached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrJobTrackingDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
