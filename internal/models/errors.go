package models

import "fmt"

// Workflow error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeIllegalTransition = "ILLEGAL_TRANSITION"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDependencyFailure = "DEPENDENCY_FAILURE"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
)

// WorkflowError is the typed error returned by the workflow core. Fields is
// populated only for validation errors and maps field name to a human-readable
// reason.
type WorkflowError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *WorkflowError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (%d field violations)", e.Code, e.Message, len(e.Fields))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError wraps a per-field violation map. The caller can correct
// the submitted data and retry; no state was changed.
func NewValidationError(fields map[string]string) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeValidation,
		Message: "submitted step data is invalid",
		Fields:  fields,
	}
}

// NewIllegalTransitionError reports an operation attempted against a step or
// instance whose state does not permit it. State is left untouched.
func NewIllegalTransitionError(format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{Code: ErrCodeIllegalTransition, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing instance, step, attachment or report.
func NewNotFoundError(format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewDependencyFailure reports a failed external collaborator (byte storage,
// renderer). The enclosing operation was aborted before any local commit.
func NewDependencyFailure(collaborator string, err error) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeDependencyFailure,
		Message: fmt.Sprintf("%s: %v", collaborator, err),
	}
}

// NewConfigurationError reports a malformed step catalog. Fatal at startup,
// never a per-request condition.
func NewConfigurationError(format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// IsWorkflowError extracts a *WorkflowError with the given code from err.
func IsWorkflowError(err error, code string) bool {
	we, ok := err.(*WorkflowError)
	return ok && we.Code == code
}
