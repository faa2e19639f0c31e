package shared

import (
	"errors"
	"fmt"

	"github.com/meetprep/backend/internal/domain/topic"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrUnknownTopic        = NewDomainError("UNKNOWN_TOPIC", "Topic is not part of the vocabulary")
	ErrProviderNotFound    = NewDomainError("PROVIDER_NOT_FOUND", "Provider has no data for the identifier")
	ErrProviderDisabled    = NewDomainError("PROVIDER_DISABLED", "Provider is not configured")
)

// ErrStalenessSkip signals that a refresh was skipped because the stored data is still fresh.
// It is not a failure: handlers translate it into an up-to-date topic.
var ErrStalenessSkip = errors.New("data still fresh, refresh skipped")

// SerializationError is returned when an envelope cannot be encoded or decoded
type SerializationError struct {
	Topic topic.Topic
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize envelope for topic %s: %v", e.Topic, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// TransportError is returned when the broker rejects or fails a send or consume
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandlerError wraps an error or recovered panic raised by an envelope handler
type HandlerError struct {
	Handler    string
	Topic      topic.Topic
	EnvelopeID string
	Panic      bool
	Err        error
}

func (e *HandlerError) Error() string {
	kind := "failed"
	if e.Panic {
		kind = "panicked"
	}
	return fmt.Sprintf("handler %s %s on topic %s (envelope %s): %v", e.Handler, kind, e.Topic, e.EnvelopeID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ProviderError wraps a failed call to an enrichment provider
type ProviderError struct {
	Provider   string
	Identifier string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (%s): status %d: %v", e.Provider, e.Identifier, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Identifier, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the resource or provider data is absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrProviderNotFound)
}
