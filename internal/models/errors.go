package models

import (
	"errors"
	"fmt"
)

// Error codes reported in ImportError.Code
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeExtraction    = "EXTRACTION_ERROR"
	ErrCodeNormalization = "NORMALIZATION_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ValidationError is returned when an import request is malformed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a request-level validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UnsupportedSourceError is returned when no adapter is registered for a source
type UnsupportedSourceError struct {
	Source string
}

func (e *UnsupportedSourceError) Error() string {
	return "unsupported source: " + e.Source
}

// ExtractionError is returned when raw records could not be retrieved
type ExtractionError struct {
	Source SourceType
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NormalizationError is returned when a single raw record cannot be mapped
type NormalizationError struct {
	Index int
	Err   error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// ErrorCode classifies an error into an ImportError code
func ErrorCode(err error) string {
	var validationErr *ValidationError
	var unsupportedErr *UnsupportedSourceError
	var extractionErr *ExtractionError
	var normalizationErr *NormalizationError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &unsupportedErr):
		return ErrCodeValidation
	case errors.As(err, &extractionErr):
		return ErrCodeExtraction
	case errors.As(err, &normalizationErr):
		return ErrCodeNormalization
	default:
		return ErrCodeInternal
	}
}
