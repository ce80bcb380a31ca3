package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. a range whose start date is after its end date).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrConflict is returned when an operation would break the single-active-trip
// rule. Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrInvalidState is returned when an operation targets a trip in the wrong
// lifecycle state (appending to a finished trip, querying an active one).
// Handlers should map this to HTTP 409.
var ErrInvalidState = errors.New("invalid state")

// Error carries the message shown to callers for a failed precondition.
// Kind is one of the sentinels above, so callers keep using errors.Is:
//
//	errors.Is(err, domain.ErrNotFound) // true for &Error{Kind: ErrNotFound}
//
// Error() returns Msg only, which is the text the API reports verbatim.
type Error struct {
	Kind error
	Msg  string
}

// NewError builds an *Error of the given kind.
func NewError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Message returns the caller-facing text of err: the Msg of the first *Error
// in the chain, or err.Error() when there is none.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return err.Error()
}
