package domain

import (
	"errors"
	"fmt"
)

// Validation errors block an operation locally; they never reach the collaborator.
var (
	ErrEmptyPrompt     = errors.New("prompt text is required")
	ErrDanglingLink    = errors.New("next question is not linkable")
	ErrDuplicateRoot   = errors.New("group already has a root question")
	ErrMissingRoot     = errors.New("group has no root question")
	ErrDuplicateOrder  = errors.New("duplicate question order")
	ErrRootProtected   = errors.New("root question can only be removed with its flow")
	ErrPlanIncomplete  = errors.New("plan needs a title and description before flows can be attached")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrFileTooLarge    = errors.New("file exceeds the upload size limit")
	ErrEmptyOption     = errors.New("option text is required")
	ErrOptionMarkup    = errors.New("option text cannot contain < or >")
	ErrLastActive      = errors.New("at least one flow must stay active")
)

// ErrNotFound is returned by stores when an id does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotConnected is returned when the chat channel is not usable.
var ErrNotConnected = errors.New("chat channel not connected")

// ErrorClass mirrors the error taxonomy surfaced to operators and visitors.
type ErrorClass int

const (
	ClassValidation ErrorClass = iota
	ClassRemote
	ClassPartial
	ClassProtocol
	ClassUnresolved
)

// String returns the string representation of ErrorClass.
func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassRemote:
		return "remote"
	case ClassPartial:
		return "partial"
	case ClassProtocol:
		return "protocol"
	case ClassUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Error wraps an error with its class and the operation that produced it.
type Error struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation classifies err as a local validation failure.
func Validation(op string, err error) error {
	return &Error{Class: ClassValidation, Op: op, Err: err}
}

// Remote classifies err as a collaborator rejection.
func Remote(op string, err error) error {
	return &Error{Class: ClassRemote, Op: op, Err: err}
}

// Partial classifies err as the failed half of a partially successful operation.
func Partial(op string, err error) error {
	return &Error{Class: ClassPartial, Op: op, Err: err}
}

// Protocol classifies err as a chat channel decode failure.
func Protocol(op string, err error) error {
	return &Error{Class: ClassProtocol, Op: op, Err: err}
}

// ClassOf returns the class of err and whether it was classified at all.
func ClassOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return 0, false
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassValidation
}

// IsPartial reports whether err is a partial-success failure.
func IsPartial(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassPartial
}
