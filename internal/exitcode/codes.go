// Package exitcode maps guardian errors to CLI exit codes.
//
// The contract is small: 0 success, 1 operator error (bad usage, bad
// arguments), 2 runtime error (anything the guardian itself failed to do).
// Scripts and agents branch on these without parsing messages.
package exitcode

import (
	"errors"
	"fmt"
)

const (
	// Success indicates the command completed.
	Success = 0

	// ErrUsage indicates invalid arguments or usage.
	ErrUsage = 1

	// ErrRuntime indicates a runtime failure inside the guardian.
	ErrRuntime = 2
)

// codedError carries an explicit exit code through the error chain.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// Usage wraps err as an operator error (exit 1).
func Usage(err error) error {
	return &codedError{code: ErrUsage, err: err}
}

// Usagef creates an operator error from a format string.
func Usagef(format string, args ...any) error {
	return &codedError{code: ErrUsage, err: fmt.Errorf(format, args...)}
}

// Code returns the exit code for err. Non-coded errors are runtime errors;
// nil is success.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ErrRuntime
}
