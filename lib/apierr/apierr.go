package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an API failure so that both the server handlers and the
// sync client agree on how a given error is handled.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthorized"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindConfiguration Kind = "configuration"
	KindUpstream      Kind = "upstream"
)

// Error is an API error with an HTTP status and a client-visible message.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an Error with the given kind, status and message.
func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// Validationf creates a 400 validation error.
func Validationf(format string, args ...any) *Error {
	return New(KindValidation, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, http.StatusUnauthorized, message)
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return New(KindNotFound, http.StatusNotFound, message)
}

// Conflict creates a 409 error.
func Conflict(message string) *Error {
	return New(KindConflict, http.StatusConflict, message)
}

// Configuration creates a 500 error for server-side misconfiguration. The
// message is an operator signal and must not be masked as an auth failure.
func Configuration(message string) *Error {
	return New(KindConfiguration, http.StatusInternalServerError, message)
}

// Upstream creates an error that carries the metadata provider's status and
// message through to the caller.
func Upstream(status int, message string) *Error {
	if status < 400 {
		status = http.StatusBadGateway
	}
	return New(KindUpstream, status, message)
}

// FromStatus reconstructs an Error from a response status and error payload.
// The sync client uses this so that error kinds survive the wire.
func FromStatus(status int, message string) *Error {
	kind := KindUpstream
	switch status {
	case http.StatusBadRequest:
		kind = KindValidation
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusInternalServerError:
		kind = KindConfiguration
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	return New(kind, status, message)
}

// KindOf returns the kind of err, or an empty kind for non-API errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// IsUnauthorized reports whether err is a credential failure.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsConflict reports whether err is a duplicate-key failure.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
