// Package guarderr defines the guardian's coded error type.
//
// Every failure that crosses a component boundary carries a stable code,
// a message, and a one-line operator hint. RPC handlers surface the error
// as a structured payload; the CLI maps it to an exit code. Raw stack
// traces never reach either surface.
package guarderr

import (
	"errors"
	"fmt"
)

// Code identifies a failure category.
type Code string

const (
	CodeStateCorrupt      Code = "STATE_CORRUPT"
	CodeStateWriteFailed  Code = "STATE_WRITE_FAILED"
	CodeBudgetCorrupt     Code = "BUDGET_CORRUPT"
	CodeBudgetWriteFailed Code = "BUDGET_WRITE_FAILED"
	CodeBundleFailed      Code = "BUNDLE_FAILED"
	CodeScanFailed        Code = "SCAN_FAILED"
	CodeFixFailed         Code = "FIX_FAILED"
	CodeProcessScanFailed Code = "PROCESS_SCAN_FAILED"
	CodeDiskCheckFailed   Code = "DISK_CHECK_FAILED"
	CodeUnknown           Code = "UNKNOWN"
)

// Error is a coded guardian error.
type Error struct {
	Code    Code
	Message string
	Hint    string
	Cause   error
}

// New creates a coded error with an operator hint.
func New(code Code, message, hint string) *Error {
	return &Error{Code: code, Message: message, Hint: hint}
}

// Wrap creates a coded error around a cause.
func Wrap(code Code, message, hint string, cause error) *Error {
	return &Error{Code: code, Message: message, Hint: hint, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// CodeOf extracts the code from err, walking wrapped errors.
// Non-coded errors report CodeUnknown.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeUnknown
}

// HintOf extracts the operator hint from err, or a generic fallback.
func HintOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) && ge.Hint != "" {
		return ge.Hint
	}
	return "re-run with the daemon log open; report if it persists"
}

// Payload is the structured form surfaced at the RPC boundary.
type Payload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
	Cause   string `json:"cause,omitempty"`
}

// ToPayload converts any error into its sanitized structured form.
func ToPayload(err error) Payload {
	var ge *Error
	if errors.As(err, &ge) {
		p := Payload{Code: string(ge.Code), Message: ge.Message, Hint: ge.Hint}
		if ge.Cause != nil {
			p.Cause = ge.Cause.Error()
		}
		if p.Hint == "" {
			p.Hint = HintOf(nil)
		}
		return p
	}
	return Payload{
		Code:    string(CodeUnknown),
		Message: err.Error(),
		Hint:    HintOf(nil),
	}
}
