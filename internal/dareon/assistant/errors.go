package assistant

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a command failure.
type Kind string

const (
	KindEmptyCommand            Kind = "EmptyCommand"
	KindUnrecognizedCommand     Kind = "UnrecognizedCommand"
	KindUnsupportedIntent       Kind = "UnsupportedIntent"
	KindIntegrationNotConnected Kind = "IntegrationNotConnected"
	KindInvalidSortKey          Kind = "InvalidSortKey"
	KindExecutionFailed         Kind = "ExecutionFailed"
)

// CommandError is the failure type returned by Resolve and Execute. Message
// is safe to show to the client; Err carries the underlying cause, if any.
type CommandError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is matches any *CommandError of the same Kind, so the sentinels below work
// with errors.Is regardless of message.
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	return ok && t.Kind == e.Kind
}

// Status is the HTTP status the failure maps to.
func (e *CommandError) Status() int {
	if e.Kind == KindExecutionFailed {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// Sentinels for errors.Is.
var (
	ErrEmptyCommand            = &CommandError{Kind: KindEmptyCommand, Message: "Command must not be empty"}
	ErrUnrecognizedCommand     = &CommandError{Kind: KindUnrecognizedCommand, Message: "Could not understand command"}
	ErrUnsupportedIntent       = &CommandError{Kind: KindUnsupportedIntent, Message: "Unsupported command"}
	ErrIntegrationNotConnected = &CommandError{Kind: KindIntegrationNotConnected, Message: "Integration not connected"}
	ErrInvalidSortKey          = &CommandError{Kind: KindInvalidSortKey, Message: "Invalid sort key"}
	ErrExecutionFailed         = &CommandError{Kind: KindExecutionFailed, Message: "Failed to process command"}
)

func newError(kind Kind, msg string, err error) *CommandError {
	return &CommandError{Kind: kind, Message: msg, Err: err}
}

// failed wraps a collaborator error. The client only sees the generic
// message; the cause stays available to logs through Unwrap.
func failed(op string, err error) *CommandError {
	return newError(KindExecutionFailed, ErrExecutionFailed.Message, fmt.Errorf("%s: %w", op, err))
}

// AsCommandError extracts a *CommandError from err. Errors of any other type
// are reported as ExecutionFailed.
func AsCommandError(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}
	return newError(KindExecutionFailed, ErrExecutionFailed.Message, err)
}
