package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingBackend is returned when the embedding service fails.
	ErrEmbeddingBackend = errors.New("embedding backend failed")

	// ErrVectorStore is returned when the vector store fails.
	ErrVectorStore = errors.New("vector store failed")

	// ErrCollectionNotFound is returned when a collection doesn't exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when creating a collection that already exists.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrGenerationBackend is returned when the chat model fails.
	ErrGenerationBackend = errors.New("generation backend failed")

	// ErrProviderNotAvailable is returned when a provider is not available.
	ErrProviderNotAvailable = errors.New("provider not available")
)

// InvalidRequestError describes a request field that failed validation.
type InvalidRequestError struct {
	Field   string
	Message string
}

// NewInvalidRequest creates an InvalidRequestError.
func NewInvalidRequest(field, message string) *InvalidRequestError {
	return &InvalidRequestError{Field: field, Message: message}
}

func (e *InvalidRequestError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// GenerationBackendError carries the upstream status and body of a failed
// generation call.
type GenerationBackendError struct {
	Status int
	Body   string
	Err    error
}

func (e *GenerationBackendError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("generation backend: %v", e.Err)
	case e.Body != "":
		return fmt.Sprintf("generation backend returned status %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("generation backend returned status %d", e.Status)
	}
}

func (e *GenerationBackendError) Is(target error) bool {
	return target == ErrGenerationBackend
}

func (e *GenerationBackendError) Unwrap() error {
	return e.Err
}

// BackendStatusError wraps a non-2xx response of an upstream service onto one
// of the sentinel errors above.
type BackendStatusError struct {
	Kind   error
	Status int
	Body   string
}

func (e *BackendStatusError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", e.Kind, e.Status, e.Body)
}

func (e *BackendStatusError) Unwrap() error {
	return e.Kind
}
