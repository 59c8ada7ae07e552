// Package hubstoreerr defines the error taxonomy crossed at the store's
// public boundary: every failure carries a stable code and a message, never
// just an opaque Go error chain.
package hubstoreerr

import "fmt"

// Code is one row of the taxonomy in spec §7.
type Code string

const (
	CodeInvalidParam       Code = "bad_request.invalid_param"
	CodeValidationFailure  Code = "bad_request.validation_failure"
	CodeConflict           Code = "bad_request.conflict"
	CodeDuplicate          Code = "bad_request.duplicate"
	CodeBadRequestInternal Code = "bad_request.internal_error"
	CodeDBInternal         Code = "db.internal_error"
	CodeNotFound           Code = "not_found"
)

// HubError is the error type returned across the store's public boundary.
// Code and Message are what cross the wire; Cause is kept for logging only.
type HubError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *HubError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HubError) Unwrap() error { return e.Cause }

// Wire renders the "<code>/<message>" pair spec §6 requires at the host
// binding boundary.
func (e *HubError) Wire() string { return string(e.Code) + "/" + e.Message }

// Expected reports whether err is a HubError whose code is an ordinary,
// well-formed outcome (duplicate/conflict) that must not be logged as a
// defect (spec §7's propagation policy).
func Expected(err error) bool {
	he, ok := err.(*HubError)
	if !ok {
		return false
	}
	return he.Code == CodeConflict || he.Code == CodeDuplicate
}

func InvalidParam(msg string) *HubError {
	return &HubError{Code: CodeInvalidParam, Message: msg}
}

func ValidationFailure(msg string) *HubError {
	return &HubError{Code: CodeValidationFailure, Message: msg}
}

func Conflict(msg string) *HubError {
	return &HubError{Code: CodeConflict, Message: msg}
}

func Duplicate(msg string) *HubError {
	return &HubError{Code: CodeDuplicate, Message: msg}
}

func BadRequestInternal(msg string) *HubError {
	return &HubError{Code: CodeBadRequestInternal, Message: msg}
}

func DBInternal(cause error) *HubError {
	msg := "internal database error"
	if cause != nil {
		msg = cause.Error()
	}
	return &HubError{Code: CodeDBInternal, Message: msg, Cause: cause}
}

func NotFound(msg string) *HubError {
	return &HubError{Code: CodeNotFound, Message: msg}
}
