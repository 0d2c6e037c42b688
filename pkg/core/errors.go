package core

import (
	"fmt"
	"runtime"
	"strings"
)

// Error carries an error code, a captured stack and, for close aggregates,
// the secondary failures recorded while handling the primary one.
type Error struct {
	Code       ErrorCode
	Message    string
	Stack      []string
	Cause      error
	Suppressed []error
}

// ErrorCode classifies session failures.
type ErrorCode string

const (
	// ErrCodeClosed marks operations attempted on a closed handle.
	ErrCodeClosed ErrorCode = "CLOSED"
	// ErrCodeTransaction marks transaction-state misuse: begin while
	// active, commit with nothing open, unknown savepoints, nested
	// isolation mismatch.
	ErrCodeTransaction ErrorCode = "TRANSACTION"
	// ErrCodeTransactionLeak marks a transaction still open at close
	// time; it was rolled back, but the caller forgot to end it.
	ErrCodeTransactionLeak ErrorCode = "TRANSACTION_LEAK"
	// ErrCodeCloseFailed marks a close during which one or more resource
	// release steps failed. Suppressed holds the secondary failures.
	ErrCodeCloseFailed ErrorCode = "CLOSE_FAILED"
	// ErrCodeConnection marks isolation-level/read-only manipulation
	// failing at the connection layer.
	ErrCodeConnection ErrorCode = "CONNECTION"
	// ErrCodeNoExtension marks a capability with no registered factory.
	ErrCodeNoExtension ErrorCode = "NO_EXTENSION"
	// ErrCodeInvalidParam marks bad caller input.
	ErrCodeInvalidParam ErrorCode = "INVALID_PARAM"
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if n := len(e.Suppressed); n > 0 {
		msg += fmt.Sprintf(" (%d suppressed)", n)
	}
	return msg
}

// Unwrap returns the primary cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace returns the captured call stack.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// AddSuppressed records a secondary failure kept for diagnostics.
func (e *Error) AddSuppressed(errs ...error) *Error {
	for _, err := range errs {
		if err != nil {
			e.Suppressed = append(e.Suppressed, err)
		}
	}
	return e
}

// NewError creates an error with a captured stack.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   cause,
	}
}

// WrapError wraps err, keeping the original stack if err already carries one.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if coreErr, ok := err.(*Error); ok {
		return &Error{
			Code:    code,
			Message: message,
			Stack:   coreErr.Stack,
			Cause:   coreErr,
		}
	}
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   err,
	}
}

func captureStackTrace() []string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return []string{}
	}

	frames := runtime.CallersFrames(pc[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		fn := frame.Function
		file := frame.File
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}
		if idx := strings.LastIndex(fn, "/"); idx != -1 {
			fn = fn[idx+1:]
		}
		stack = append(stack, fmt.Sprintf("  at %s (%s:%d)", fn, file, frame.Line))
		if !more {
			break
		}
	}
	return stack
}

// IsErrorCode checks whether err is a core error with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if coreErr, ok := err.(*Error); ok {
		return coreErr.Code == code
	}
	return false
}

// GetErrorCode returns err's code, or "" for nil and foreign errors.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if coreErr, ok := err.(*Error); ok {
		return coreErr.Code
	}
	return ""
}
