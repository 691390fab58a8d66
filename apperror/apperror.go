// Package apperror defines the error kinds shared by the import pipeline, the dashboard
// services and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for recovery and for the API boundary.
type Kind int

const (
	KindUnexpected Kind = iota
	KindFormat
	KindNotFound
	KindValidation
	KindTransient
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindIO:
		return "io"
	default:
		return "unexpected"
	}
}

// Error carries a kind, an optional machine-readable code and the wrapped cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind (and code, when the target sets one).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func newError(kind Kind, code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Format reports an input file without a parseable structure.
func Format(format string, args ...interface{}) *Error {
	return newError(KindFormat, "INVALID_FORMAT", nil, format, args...)
}

// FormatWrap is Format with a cause.
func FormatWrap(err error, format string, args ...interface{}) *Error {
	return newError(KindFormat, "INVALID_FORMAT", err, format, args...)
}

// NotFound reports a missing meter, job or credential; code is optional.
func NotFound(code string, format string, args ...interface{}) *Error {
	return newError(KindNotFound, code, nil, format, args...)
}

// Validation reports malformed caller input.
func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, "VALIDATION", nil, format, args...)
}

// Transient reports a network failure of the weather provider or the scraper.
func Transient(err error, format string, args ...interface{}) *Error {
	return newError(KindTransient, "TRANSIENT", err, format, args...)
}

// IO reports unreadable input.
func IO(err error, format string, args ...interface{}) *Error {
	return newError(KindIO, "IO", err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, KindUnexpected otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindFormat:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
