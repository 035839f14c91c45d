package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>

// Input error codes
const (
	// ErrCodeValidation is used when parameters fail agent validation
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeRequestTooLarge is used when the request body exceeds the limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a plan or agent is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyApplied is used when a plan was applied before
	ErrCodeAlreadyApplied = "ERR_ALREADY_APPLIED"
)

// State error codes
const (
	// ErrCodeDependency is used when a plan's dependencies are unmet
	ErrCodeDependency = "ERR_DEPENDENCY"
	// ErrCodeInvalidState is used when an operation is invalid for the
	// plan's current status
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Failure error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeExecutionFailed is used when a run finished with status error
	ErrCodeExecutionFailed = "ERR_EXECUTION_FAILED"
	// ErrCodeRollbackFailed is used when compensation did not complete
	ErrCodeRollbackFailed = "ERR_ROLLBACK_FAILED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Input errors -> 400 Bad Request
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Resource errors
	ErrCodeNotFound:       http.StatusNotFound,
	ErrCodeAlreadyApplied: http.StatusConflict,

	// State errors -> 422 Unprocessable Entity
	ErrCodeDependency:   http.StatusUnprocessableEntity,
	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	// Failures -> 500 Internal Server Error
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeExecutionFailed: http.StatusInternalServerError,
	ErrCodeRollbackFailed:  http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
