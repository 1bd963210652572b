package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProcess indicates that no process has been started in the
	// environment; Execute must run before the failing task.
	ErrNoProcess = errors.New("no process in environment, run Execute first")

	// ErrNoStdin indicates that the running process has no writable stdin
	ErrNoStdin = errors.New("no process stdin in environment, run Execute first")

	// ErrNoOutput indicates that no captured output is available for reading
	ErrNoOutput = errors.New("no captured output in environment")

	// ErrNoStderr indicates that no captured stderr is available
	ErrNoStderr = errors.New("no captured stderr in environment")

	// ErrNoExitCode indicates that no exit code has been recorded yet
	ErrNoExitCode = errors.New("no exit code in environment, run CheckExitCode first")

	// ErrNoWorkDir indicates that no working directory has been set
	ErrNoWorkDir = errors.New("no working directory set, run SetWorkDir or CreateTempDir first")

	// ErrNoChannel indicates that no channel is open; Connect must run first
	ErrNoChannel = errors.New("no channel open, run Connect first")

	// ErrChannelOpen indicates that a channel is already open and must be
	// disconnected before connecting again
	ErrChannelOpen = errors.New("channel already open, run Disconnect first")

	// ErrMissingField indicates that a required field is absent from the environment
	ErrMissingField = errors.New("field not set in environment")

	// ErrUnresolvedKeyword indicates that a ${name} placeholder had no
	// matching value in the environment
	ErrUnresolvedKeyword = errors.New("unresolved keyword")
)

// Error codes classify failures by the stage that produced them.
const (
	// CodePrecondition marks a missing prerequisite or invalid task
	// configuration, detected before any side effect.
	CodePrecondition = "PRECONDITION"

	// CodeExecution marks an external program exiting with an unaccepted code.
	CodeExecution = "EXECUTION"

	// CodeExtraction marks a query or conversion failure while harvesting output.
	CodeExtraction = "EXTRACTION"

	// CodeAssertion marks a user-supplied check over the environment failing.
	CodeAssertion = "ASSERTION"
)

// Error represents a structured pipeline error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Precondition creates a precondition error
func Precondition(message string, err error) *Error {
	return NewError(CodePrecondition, message, err)
}

// Execution creates an execution error
func Execution(message string, err error) *Error {
	return NewError(CodeExecution, message, err)
}

// Extraction creates an extraction error
func Extraction(message string, err error) *Error {
	return NewError(CodeExtraction, message, err)
}

// Assertion creates an assertion error
func Assertion(message string) *Error {
	return NewError(CodeAssertion, message, nil)
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsPrecondition checks if an error is a precondition error
func IsPrecondition(err error) bool {
	return hasCode(err, CodePrecondition)
}

// IsExecution checks if an error is an execution error
func IsExecution(err error) bool {
	return hasCode(err, CodeExecution)
}

// IsExtraction checks if an error is an extraction error
func IsExtraction(err error) bool {
	return hasCode(err, CodeExtraction)
}

// IsAssertion checks if an error is an assertion error
func IsAssertion(err error) bool {
	return hasCode(err, CodeAssertion)
}
