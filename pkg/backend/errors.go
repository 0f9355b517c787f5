package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel error kinds. Match with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNetwork         = errors.New("network error")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
)

// Error is a classified failure from a gateway operation.
type Error struct {
	Op      string // gateway operation, e.g. "list chats"
	Kind    error  // one of the sentinels above
	Status  int    // HTTP status, 0 for transport failures
	Message string // server-provided or local detail
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, msg)
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindForStatus classifies a non-2xx HTTP status.
func KindForStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthenticated
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return ErrValidation
	default:
		return ErrNetwork
	}
}

// Validation wraps a local validation failure so it matches ErrValidation.
func Validation(op string, err error) error {
	return &Error{Op: op, Kind: ErrValidation, Err: err}
}
