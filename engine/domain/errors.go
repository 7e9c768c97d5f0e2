package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine failures.
var (
	ErrInvalidChunkParams = errors.New("invalid chunk parameters")
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrQuestionTooShort   = errors.New("question too short")
	ErrIndexCorrupt       = errors.New("index corrupt")
	ErrEmbeddingProvider  = errors.New("embedding provider failure")
	ErrGenerationProvider = errors.New("generation provider failure")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrOrgNotFound        = errors.New("organization not found")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
