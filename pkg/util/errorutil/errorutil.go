package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the stores, the lifecycle engine and the dispatcher.
const (
	CodeStoreUnavailable      = "STORE_UNAVAILABLE"
	CodeTimeout               = "TIMEOUT"
	CodeDuplicateActiveTicket = "DUPLICATE_ACTIVE_TICKET"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeAlreadyHandled        = "ALREADY_HANDLED"
	CodeMalformed             = "MALFORMED"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeInternal              = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
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
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewUnauthorized reports an actor lacking a capability.
func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusForbidden, nil)
}

// NewUnauthenticated reports a missing or invalid ops API credential.
func NewUnauthenticated(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

func NewDuplicateActiveTicket(details map[string]any) error {
	return NewDomainError(CodeDuplicateActiveTicket, "owner already has an active ticket in this category", http.StatusConflict, details)
}

func NewInvalidTransition(details map[string]any) error {
	return NewDomainError(CodeInvalidTransition, "action not valid from current ticket state", http.StatusConflict, details)
}

func NewAlreadyHandled(key string) error {
	return NewDomainError(CodeAlreadyHandled, "action already handled", http.StatusOK, map[string]any{"key": key})
}

func NewMalformed(message string, details map[string]any) error {
	return NewDomainError(CodeMalformed, message, http.StatusBadRequest, details)
}

// NewStoreUnavailable wraps a backend failure. Deadline errors become TIMEOUT.
func NewStoreUnavailable(store string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &DomainError{
			Code:       CodeTimeout,
			Message:    fmt.Sprintf("%s timed out", store),
			HTTPStatus: http.StatusGatewayTimeout,
			Details:    map[string]any{"store": store},
			Err:        err,
		}
	}
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    fmt.Sprintf("%s unavailable", store),
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"store": store},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CodeOf returns the DomainError code carried by err, or "" when there is none.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsTransient reports whether the caller may retry the operation.
func IsTransient(err error) bool {
	code := CodeOf(err)
	return code == CodeStoreUnavailable || code == CodeTimeout
}

// WithDetails returns a copy of err with extra context. The code is never changed.
func WithDetails(err error, details map[string]any) error {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return err
	}
	merged := make(map[string]any, len(domainErr.Details)+len(details))
	for k, v := range domainErr.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	cp := *domainErr
	cp.Details = merged
	return &cp
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
