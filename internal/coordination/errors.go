// Package coordination implements the agent, task, and memory services
// that sit between the MCP tool handlers and the persistence/notify
// layers: lifecycle invariants, the long-poll wait loops, and event
// logging around every mutation.
package coordination

import (
	"errors"
	"fmt"

	"github.com/aiswarm/swarmd/internal/persistence"
)

// ErrorKind classifies a CoordinationError for MCP error-response mapping.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "NotFound"
	KindInvalidInput ErrorKind = "InvalidInput"
	KindInvalidState ErrorKind = "InvalidState"
	KindConflict     ErrorKind = "Conflict"
	KindTimeout      ErrorKind = "Timeout"
	KindCancelled    ErrorKind = "Cancelled"
	KindBusDisposed  ErrorKind = "BusDisposed"
	KindInternal     ErrorKind = "Internal"
)

// CoordinationError is the one error type every service method returns
// wrapped around. Handlers switch on Kind to pick an MCP error code;
// everything else is carried as the wrapped Cause.
type CoordinationError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CoordinationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoordinationError) Unwrap() error { return e.Cause }

func newErr(kind ErrorKind, message string, cause error) *CoordinationError {
	return &CoordinationError{Kind: kind, Message: message, Cause: cause}
}

// wrapStoreErr classifies the sentinel errors persistence returns into the
// matching CoordinationError kind.
func wrapStoreErr(message string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return newErr(KindNotFound, message, err)
	case errors.Is(err, persistence.ErrInvalidState):
		return newErr(KindInvalidState, message, err)
	default:
		return newErr(KindInternal, message, err)
	}
}
