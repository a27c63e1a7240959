package assistant

import (
	"errors"
	"fmt"
)

// Code identifies a request-level failure category. The HTTP layer maps
// codes onto status codes; the orchestrator never speaks HTTP itself.
type Code string

const (
	CodeSchemaUnavailable    Code = "SCHEMA_UNAVAILABLE"
	CodeClassificationFailed Code = "CLASSIFICATION_FAILED"
	CodeSQLRejected          Code = "SQL_REJECTED"
	CodeSQLGenerationFailed  Code = "SQL_GENERATION_FAILED"
	CodeExecutionFailed      Code = "EXECUTION_FAILED"
	CodeSynthesisFailed      Code = "ANSWER_SYNTHESIS_FAILED"
	CodeResourceExhausted    Code = "RESOURCE_EXHAUSTED"
)

// Error is the single failure type surfaced by the orchestrator. Retryable
// marks failures a client may reasonably resubmit.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, message string, err error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: code == CodeResourceExhausted,
		Err:       err,
	}
}

// CodeOf extracts the failure code from err, or empty when err is not an
// orchestrator error.
func CodeOf(err error) Code {
	var assistantErr *Error
	if errors.As(err, &assistantErr) {
		return assistantErr.Code
	}
	return ""
}
