package models

import (
	"errors"
	"time"
)

// SourceType identifies where an import request takes its records from
type SourceType string

const (
	SourceAliExpress SourceType = "aliexpress"
	SourceTemu       SourceType = "temu"
	SourceAmazon     SourceType = "amazon"
	SourceEbay       SourceType = "ebay"
	SourceShopify    SourceType = "shopify"
	SourceCSV        SourceType = "csv"
	SourceXML        SourceType = "xml"
	SourceJSON       SourceType = "json"
	SourceXLSX       SourceType = "xlsx"
	SourceURL        SourceType = "url"
)

// AllSources lists every supported source identifier
var AllSources = []SourceType{
	SourceAliExpress,
	SourceTemu,
	SourceAmazon,
	SourceEbay,
	SourceShopify,
	SourceCSV,
	SourceXML,
	SourceJSON,
	SourceXLSX,
	SourceURL,
}

// IsValid reports whether s is one of the supported sources
func (s SourceType) IsValid() bool {
	for _, src := range AllSources {
		if s == src {
			return true
		}
	}
	return false
}

// IsFile reports whether the source carries records in an uploaded file
func (s SourceType) IsFile() bool {
	switch s {
	case SourceCSV, SourceXML, SourceJSON, SourceXLSX:
		return true
	}
	return false
}

// RawRecord is one upstream record before normalization
type RawRecord map[string]interface{}

// ImportFile is an uploaded file handle
type ImportFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"-"`
}

// ImportOptions holds the recognized free-form import flags
type ImportOptions struct {
	FieldMapping    map[string]string `json:"fieldMapping,omitempty"`
	AutoDetect      bool              `json:"autoDetect,omitempty"`
	MaxRecords      int               `json:"maxRecords,omitempty" validate:"gte=0"`
	IncludeVariants *bool             `json:"includeVariants,omitempty"`
	IncludeReviews  bool              `json:"includeReviews,omitempty"`
	SkipValidation  bool              `json:"skipValidation,omitempty"`
	Format          string            `json:"format,omitempty" validate:"omitempty,oneof=csv xml json xlsx"`
}

// VariantsEnabled reports whether variants should be extracted (default true)
func (o ImportOptions) VariantsEnabled() bool {
	return o.IncludeVariants == nil || *o.IncludeVariants
}

// ImportRequest is the inbound import command
type ImportRequest struct {
	Source  SourceType    `json:"source,omitempty"`
	URL     string        `json:"url,omitempty" validate:"omitempty,url"`
	Data    interface{}   `json:"data,omitempty"`
	File    *ImportFile   `json:"-"`
	Options ImportOptions `json:"options,omitempty"`
}

// HasPayload reports whether the request carries a URL, inline data or a file
func (r *ImportRequest) HasPayload() bool {
	return r.URL != "" || r.Data != nil || (r.File != nil && len(r.File.Content) > 0)
}

// ImportError describes a request-level failure
type ImportError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RecordError reports a failure isolated to one raw record. Index is -1 for
// failures not tied to a record, such as an extraction that stopped partway.
type RecordError struct {
	Index int    `json:"index"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// NewRecordError converts err into a RecordError, taking the index from a
// NormalizationError
func NewRecordError(err error) RecordError {
	re := RecordError{Index: -1, Code: ErrorCode(err), Error: err.Error()}
	var normErr *NormalizationError
	if errors.As(err, &normErr) {
		re.Index = normErr.Index
		re.Error = normErr.Err.Error()
	}
	return re
}

// ImportMetadata summarizes how an import was processed
type ImportMetadata struct {
	RequestID      string        `json:"requestId"`
	Source         SourceType    `json:"source,omitempty"`
	JobID          string        `json:"jobId,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty"`
	Cached         bool          `json:"cached"`
	Duration       time.Duration `json:"-"`
	DurationMs     int64         `json:"durationMs"`
	TotalExtracted int           `json:"totalExtracted"`
	TotalImported  int           `json:"totalImported"`
	TotalErrors    int           `json:"totalErrors"`
	Errors         []RecordError `json:"errors,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// ImportResult is the envelope returned for every import call
type ImportResult struct {
	Success  bool                `json:"success"`
	Products []NormalizedProduct `json:"products"`
	Error    *ImportError        `json:"error,omitempty"`
	Metadata ImportMetadata      `json:"metadata"`
}

// Clone returns a deep copy that shares nothing with the original
func (r *ImportResult) Clone() *ImportResult {
	clone := *r
	if r.Metadata.Errors != nil {
		clone.Metadata.Errors = append([]RecordError(nil), r.Metadata.Errors...)
	}
	if r.Products != nil {
		clone.Products = make([]NormalizedProduct, len(r.Products))
		for i := range r.Products {
			clone.Products[i] = *r.Products[i].Clone()
		}
	}
	if r.Error != nil {
		e := *r.Error
		if r.Error.Details != nil {
			e.Details = make(map[string]interface{}, len(r.Error.Details))
			for k, v := range r.Error.Details {
				e.Details[k] = v
			}
		}
		clone.Error = &e
	}
	return &clone
}
