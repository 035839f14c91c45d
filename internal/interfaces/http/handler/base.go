// Package handler exposes the automation engine over HTTP. Handlers stay
// thin: they bind requests, call the engine and translate its results and
// typed errors into the response envelope.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/infrastructure/logger"
	"github.com/shopops/automator/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID scoped in by the logging middleware
func getRequestID(c *gin.Context) string {
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleEngineError translates the engine's typed errors into HTTP
// responses. A parked plan is not a failure: it answers 202 with the
// pending approval so the caller can route it to a human.
func (h *BaseHandler) HandleEngineError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var approvalErr *engine.ApprovalRequiredError
	if errors.As(err, &approvalErr) {
		h.Accepted(c, dto.PendingApproval{
			PlanID: approvalErr.PlanID,
			Status: "awaiting_approval",
			Risk:   string(approvalErr.Risk),
			Scale:  approvalErr.Scale,
		})
		return
	}

	var validationErr *engine.ValidationError
	if errors.As(err, &validationErr) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, validationErr.Error())
		return
	}

	var appliedErr *engine.AlreadyAppliedError
	if errors.As(err, &appliedErr) {
		h.Error(c, http.StatusConflict, dto.ErrCodeAlreadyApplied, appliedErr.Error())
		return
	}

	var depErr *engine.DependencyError
	if errors.As(err, &depErr) {
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeDependency, depErr.Error())
		return
	}

	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState, err.Error())
	default:
		h.InternalError(c, err.Error())
	}
}
