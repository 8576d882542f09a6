// Package poolerrors provides structured error handling for objpool with rich
// context, stack traces, and error categorization. It enables consistent error
// handling patterns across the entire codebase.
//
// # Overview
//
// The poolerrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//   - Retryability detection
//
// # Basic Usage
//
//	// Create a new error
//	err := poolerrors.New(poolerrors.ErrorTypeConfig, "invalid pool size")
//
//	// Add context
//	err = err.WithDetail("size", -1)
//
//	// Wrap existing errors
//	if err := conn.RoundTrip(req); err != nil {
//	    return poolerrors.Wrap(err, poolerrors.ErrorTypeConnection, "request failed").
//	        WithDetail("netloc", netloc)
//	}
//
// # Error Types
//
// Errors are categorized by type, which helps with:
//   - Error handling strategies (retry logic)
//   - Monitoring and alerting
//   - Debugging and troubleshooting
//
// Pool exhaustion (ErrorTypeLimit) is recoverable and retryable; process
// identity and configuration errors are fatal and must never be retried.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Create new
// instances or use WithDetail before sharing across goroutines.
package poolerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used for error handling
// strategies and monitoring.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents invalid pool configuration, such as a
	// negative capacity. Fatal, surfaced at construction, never retried.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeLimit represents pool exhaustion: no capacity available under
	// non-blocking or timed-out acquisition. Recoverable; callers may retry
	// or back off.
	ErrorTypeLimit ErrorType = "limit"
	// ErrorTypeVerification represents a freshly created resource failing
	// validation. Capacity is reclaimed before the error propagates.
	ErrorTypeVerification ErrorType = "verification"
	// ErrorTypeProcess represents an operation attempted from a process other
	// than the one that constructed the pool. Fatal for that pool in that
	// process.
	ErrorTypeProcess ErrorType = "process"
	// ErrorTypeDoubleRelease represents a release of an already-released
	// pooled handle when configured to enforce single release.
	ErrorTypeDoubleRelease ErrorType = "double_release"
	// ErrorTypeUnimplemented represents an invocation of a lifecycle hook
	// that was never supplied, such as the default create factory.
	ErrorTypeUnimplemented ErrorType = "unimplemented"
	// ErrorTypeConnection represents transport-level connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
)

// Error represents a structured error with context, providing rich debugging
// information and enabling error handling strategies based on category.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error, providing additional
// context for debugging and monitoring. This method can be chained.
//
// Example:
//
//	err := poolerrors.New(poolerrors.ErrorTypeLimit, "pool exhausted").
//	    WithDetail("capacity", size).
//	    WithDetail("netloc", netloc)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable based on its type.
// Pool exhaustion, timeout, and connection errors are considered retryable;
// configuration and process-identity errors are fatal.
//
// Example:
//
//	for attempt := 0; attempt < maxRetries; attempt++ {
//	    conn, err := pool.Get(ctx)
//	    if err == nil {
//	        return conn, nil
//	    }
//	    if !poolerrors.IsRetryable(err) {
//	        return nil, err
//	    }
//	    time.Sleep(backoff(attempt))
//	}
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	case ErrorTypeInternal, ErrorTypeConfig, ErrorTypeVerification,
		ErrorTypeProcess, ErrorTypeDoubleRelease, ErrorTypeUnimplemented:
		return false
	default:
		return false
	}
}

// IsType checks if the error is of the given type, useful for conditional
// logic based on error categories.
//
// Example:
//
//	if poolerrors.IsType(err, poolerrors.ErrorTypeLimit) {
//	    // Pool exhausted - back off and retry
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
