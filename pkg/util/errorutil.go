package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/topcity/ticket-service/internal/domain"
)

// DomainError standardizes application errors at the HTTP boundary.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError("NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewUnavailable(err error) error {
	return &DomainError{
		Code:       "STORE_UNAVAILABLE",
		Message:    "ticket store unavailable, retry shortly",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts service errors to a DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var mapped error
	switch {
	case errors.Is(err, domain.ErrNotFound):
		mapped = NewNotFound("resource", nil)
	case errors.Is(err, domain.ErrMissingIdempotencyKey), errors.Is(err, domain.ErrInvalidInput):
		mapped = NewValidationError(err.Error(), nil)
	case errors.Is(err, domain.ErrIdempotencyMismatch), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrEventClosed):
		mapped = NewConflict(err.Error(), nil)
	case errors.Is(err, domain.ErrStoreUnavailable):
		mapped = NewUnavailable(err)
	default:
		mapped = NewInternalError(err)
	}
	return mapped.(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}
