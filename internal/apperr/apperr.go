// Package apperr defines the domain error taxonomy shared by all
// services. Handlers map kinds to HTTP statuses; everything else wraps
// with %w and lets the kind travel up.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// Validation covers malformed or out-of-range input.
	Validation Kind = iota
	// NotFound means a referenced entity is absent.
	NotFound
	// Conflict means the request races with existing state (spot taken,
	// duplicate username/email/phone).
	Conflict
	// PolicyViolation covers business-rule refusals the front end
	// renders specifically (cancellation window, blacklist).
	PolicyViolation
	// Storage is a transactional failure, always rolled back before
	// surfacing.
	Storage
	// Unexpected is everything else; surfaced as a generic failure.
	Unexpected
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, or Unexpected if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}

// Is lets errors.Is match against a bare kind sentinel.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage returns the human-readable message for the request
// boundary, hiding internals for unexpected failures.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Unexpected {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case PolicyViolation:
		return http.StatusForbidden
	case Storage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
