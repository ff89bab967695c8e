package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every error the domain layer can return. Callers switch on
// the kind instead of probing error messages.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindState
	KindTransaction
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindTransaction:
		return "transaction"
	case KindExternal:
		return "external"
	}
	return "unknown"
}

// Error carries a kind, an operator-facing message, optional field-level
// messages and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func FieldErrors(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func State(message string) *Error {
	return &Error{Kind: KindState, Message: message}
}

// Transaction wraps an error raised inside an atomic multi-step unit. The
// whole unit has been rolled back by the time the caller sees it.
func Transaction(message string, err error) *Error {
	return &Error{Kind: KindTransaction, Message: message, Err: err}
}

// External wraps a chain RPC or other upstream failure. The message is safe
// to show to a caller; the cause is for logs only.
func External(message string, err error) *Error {
	return &Error{Kind: KindExternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not an apperrors.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HTTPStatus maps an error to the response status the handlers use.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindState:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindExternal:
		return http.StatusServiceUnavailable
	case KindTransaction:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// PublicMessage is what handlers put in the response body. External failures
// never leak upstream detail.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please, try again."
	}
	if e.Kind == KindExternal {
		return "Service is not available. Please, try again later."
	}
	return e.Message
}
