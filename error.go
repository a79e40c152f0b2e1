package flatbank

import (
	"errors"
	"fmt"
)

var (
	ErrInternalServer     = errors.New("internal server error")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// ErrBadRequest is a value-level precondition failure. Fields maps the
// offending input to a human readable reason.
type ErrBadRequest struct {
	Fields map[string]string `json:"fields"`
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("missing/invalid params: %v", e.Fields)
}

// ErrNotFound names the missing resource. Message, when set, replaces the
// generated text.
type ErrNotFound struct {
	Resource string `json:"resource"`
	Message  string `json:"message,omitempty"`
}

func (e ErrNotFound) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource == "" {
		return "record not found"
	}
	return e.Resource + " not found"
}

// ErrConflict means a uniqueness rule would be broken.
type ErrConflict struct {
	Reason string `json:"reason"`
}

func (e ErrConflict) Error() string {
	return e.Reason
}

type ErrUnauthorized struct{}

func (e ErrUnauthorized) Error() string {
	return "Invalid credentials"
}

// isBusinessErr reports whether err is one of the typed rule violations
// above, as opposed to an infrastructure failure.
func isBusinessErr(err error) bool {
	return errors.As(err, &ErrBadRequest{}) ||
		errors.As(err, &ErrNotFound{}) ||
		errors.As(err, &ErrConflict{}) ||
		errors.As(err, &ErrUnauthorized{})
}
