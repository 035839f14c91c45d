// Package dto defines the wire shapes of the automation API: the response
// envelope, the request bodies and the error code register.
package dto

import (
	"time"

	"github.com/google/uuid"
)

// Response is the standard API envelope. Data can be present alongside
// Error when an operation produced a result and still failed, for example
// an apply whose items all errored.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo carries the machine-readable error code and a human message
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// NewSuccessResponse wraps data in a success envelope
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse builds an error envelope
func NewErrorResponse(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
}

// NewFailureResponse builds an error envelope that still carries data,
// for operations that ran and produced a failed result
func NewFailureResponse(data any, code, message, requestID string) Response {
	r := NewErrorResponse(code, message, requestID)
	r.Data = data
	return r
}

// ExecuteRequest is the body of POST /agents/:type/execute
type ExecuteRequest struct {
	Parameters map[string]any `json:"parameters" binding:"required"`
	DryRun     bool           `json:"dry_run"`
	DependsOn  []uuid.UUID    `json:"depends_on"`
}

// PlanRequest is the body of POST /plans: build and park a plan without
// running it
type PlanRequest struct {
	Agent      string         `json:"agent" binding:"required"`
	Parameters map[string]any `json:"parameters" binding:"required"`
	DependsOn  []uuid.UUID    `json:"depends_on"`
}

// ApproveRequest is the body of POST /plans/:id/approve. Either a signed
// grant token or an approver name must be present; the grant wins when both
// are sent.
type ApproveRequest struct {
	ApprovedBy string    `json:"approved_by"`
	Note       string    `json:"note"`
	ExpiresAt  time.Time `json:"expires_at"`
	Grant      string    `json:"grant"`
}

// PendingApproval is returned with 202 Accepted when a plan was built but
// needs a human decision before it runs
type PendingApproval struct {
	PlanID uuid.UUID `json:"plan_id"`
	Status string    `json:"status"`
	Risk   string    `json:"risk"`
	Scale  int       `json:"scale"`
}

// ExecutionsQuery binds the query string of GET /agents/:type/executions
type ExecutionsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}
