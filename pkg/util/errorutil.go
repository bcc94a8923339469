package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared across the HTTP surface and the client.
const (
	CodeMissingFields     = "MISSING_FIELDS"
	CodeChatDisabled      = "CHAT_DISABLED"
	CodeDeliveryFailed    = "DELIVERY_FAILED"
	CodeTransitionDenied  = "TRANSITION_DENIED"
	CodeHistoryLoadFailed = "HISTORY_LOAD_FAILED"
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
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewMissingFields reports a send rejected before any I/O was attempted.
func NewMissingFields(details map[string]any) error {
	return NewDomainError(CodeMissingFields, "required message fields missing", http.StatusBadRequest, details)
}

// NewChatDisabled reports a send against a closed ticket.
func NewChatDisabled(ticketID string) error {
	return NewDomainError(CodeChatDisabled, "chat is disabled for closed tickets", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewDeliveryFailed reports that both the streaming and durable channels were
// exhausted. The caller owns the user-visible retry.
func NewDeliveryFailed(err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    "message could not be delivered",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewTransitionDenied reports a lifecycle rejection with its specific reason.
func NewTransitionDenied(reason string) error {
	return NewDomainError(CodeTransitionDenied, reason, http.StatusUnprocessableEntity, nil)
}

// NewHistoryLoadFailed wraps a non-fatal history fetch failure.
func NewHistoryLoadFailed(err error) error {
	return &DomainError{
		Code:       CodeHistoryLoadFailed,
		Message:    "could not load message history",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
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

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
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
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err carries the given DomainError code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
