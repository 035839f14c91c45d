package dto

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyApplied, http.StatusConflict},
		{ErrCodeDependency, http.StatusUnprocessableEntity},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeExecutionFailed, http.StatusInternalServerError},
		{ErrCodeRollbackFailed, http.StatusInternalServerError},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestErrorCodeFormat(t *testing.T) {
	// All registered codes should follow the ERR_ prefix convention
	for code := range ErrorCodeHTTPStatus {
		t.Run(code, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(code, "ERR_"), "error code should start with ERR_")
		})
	}
}

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse(map[string]string{"id": "123"})

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrCodeNotFound, "plan not found", "req-123")

	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "plan not found", resp.Error.Message)
	assert.Equal(t, "req-123", resp.Error.RequestID)
}

func TestNewFailureResponse(t *testing.T) {
	result := map[string]string{"status": "error"}
	resp := NewFailureResponse(result, ErrCodeExecutionFailed, "run finished with status error", "req-456")

	assert.False(t, resp.Success)
	assert.Equal(t, result, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeExecutionFailed, resp.Error.Code)
}

func TestResponseJSON(t *testing.T) {
	t.Run("success envelope omits error", func(t *testing.T) {
		data, err := json.Marshal(NewSuccessResponse(map[string]string{"k": "v"}))
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"error"`)
	})

	t.Run("error envelope omits data", func(t *testing.T) {
		data, err := json.Marshal(NewErrorResponse(ErrCodeInternal, "boom", ""))
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"data"`)
		// Empty request IDs stay off the wire
		assert.NotContains(t, string(data), `"request_id"`)
	})

	t.Run("round trip", func(t *testing.T) {
		data, err := json.Marshal(NewErrorResponse(ErrCodeNotFound, "plan not found", "req-test-123"))
		require.NoError(t, err)

		var decoded Response
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.False(t, decoded.Success)
		require.NotNil(t, decoded.Error)
		assert.Equal(t, ErrCodeNotFound, decoded.Error.Code)
		assert.Equal(t, "req-test-123", decoded.Error.RequestID)
	})
}
