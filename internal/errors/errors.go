package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors.
//
// AUTH, TIMEOUT and NETWORK come out of session setup. EXEC covers remote
// commands that exit non-zero or print something a probe can't interpret.
// TRANSFER covers the local artifact and the SFTP upload. VERIFY is a
// post-launch check that didn't pass.
const (
	ErrConfig   = "CONFIG"
	ErrSSH      = "SSH"
	ErrAuth     = "AUTH"
	ErrTimeout  = "TIMEOUT"
	ErrNetwork  = "NETWORK"
	ErrExec     = "EXEC"
	ErrTransfer = "TRANSFER"
	ErrVerify   = "VERIFY"
	ErrLock     = "LOCK"
	ErrStore    = "STORE"
	ErrInternal = "INTERNAL"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// NewCommand creates an EXEC error for a remote command that exited non-zero.
// The remote stderr is carried verbatim in the message.
func NewCommand(step string, exitCode int, stderr string) *Error {
	return &Error{
		Code:       ErrExec,
		Message:    fmt.Sprintf("%s: %s", step, strings.TrimSpace(stderr)),
		Suggestion: fmt.Sprintf("Remote command exited with status %d", exitCode),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost structured Error in the chain,
// or an empty string when there is none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the bare message of a structured error (no symbol, cause or
// suggestion), falling back to err.Error() for plain errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// SuggestionOf returns the suggestion of a structured error, or "".
func SuggestionOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Suggestion
	}
	return ""
}

// ExitError carries a process exit code without any message of its own. The
// command that returns it has already reported the failure to the user.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError with the given code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts the exit code from an ExitError anywhere in the chain.
func GetExitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
