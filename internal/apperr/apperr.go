// Package apperr classifies service errors so transports can map them to
// status codes without string matching.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a failure category. Kinds are themselves errors so callers can use
// errors.Is(err, apperr.NotFound).
type Kind string

const (
	NotFound          Kind = "not_found"
	InvalidCredential Kind = "invalid_credential"
	InvalidInput      Kind = "invalid_input"
	Closed            Kind = "closed"
	InvalidCode       Kind = "invalid_code"
	Duplicate         Kind = "duplicate"
	AlreadyExists     Kind = "already_exists"
	Full              Kind = "full"
	Conflict          Kind = "conflict"
	Remote            Kind = "remote_failure"
)

func (k Kind) Error() string { return string(k) }

// Error carries a kind, a user-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// E builds an error of the given kind.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind and message to err. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the outermost kind in err's chain, or "" when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// Message returns the user-facing part of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus maps err to a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case InvalidCredential:
		return http.StatusUnauthorized
	case InvalidInput, InvalidCode:
		return http.StatusBadRequest
	case Closed:
		return http.StatusLocked
	case Duplicate, AlreadyExists, Full, Conflict:
		return http.StatusConflict
	case Remote:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
