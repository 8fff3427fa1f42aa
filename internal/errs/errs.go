// Package errs carries the error taxonomy shared by every external
// collaborator adapter. Adapters classify failures into a Kind once, at the
// edge; call sites branch on Kind and the HTTP layer maps Kind to a status
// code in exactly one place.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error
type Kind string

const (
	// Authentication is a missing or invalid token
	Authentication Kind = "authentication"
	// Authorization is a caller acting outside its tenant or membership
	Authorization Kind = "authorization"
	// NotFound is an absent tenant, device, policy, group or user
	NotFound Kind = "not_found"
	// Validation is a malformed or out-of-range payload
	Validation Kind = "validation"
	// Conflict is a uniqueness collision or a lost conditional update
	Conflict Kind = "conflict"
	// Unavailable is an upstream reporting throttling or unavailability
	Unavailable Kind = "unavailable"
	// Upstream is any other upstream failure
	Upstream Kind = "upstream"
)

// Error is the typed union returned by collaborator adapters.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, string(e.Kind))
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an Error with a message
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an Error around a cause
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or Upstream when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Upstream
}

// Is reports whether err carries the given Kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code served to interactive
// clients. This is the only place the taxonomy meets HTTP.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
