package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortepremiada/fleet/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	).WithDetail("physicalId is required").WithInstance("/v1/activations")

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Equal(t, "physicalId is required", p.Detail)
	assert.Equal(t, "/v1/activations", p.Instance)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "physicalId", Message: "physicalId is required", Code: "required"},
	})
	p.Instance = "/v1/activations"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "invalid input", result.Detail)
	assert.Equal(t, "/v1/activations", result.Instance)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "physicalId", result.Errors[0].Field)
}

func TestProblem_Constructors(t *testing.T) {
	tests := []struct {
		name       string
		problem    *models.Problem
		wantType   string
		wantStatus int
	}{
		{"unauthorized", models.NewUnauthorized("req_1", "token revoked"), models.ProblemTypeUnauthorized, http.StatusUnauthorized},
		{"forbidden", models.NewForbidden("req_1", "platform role required"), models.ProblemTypeForbidden, http.StatusForbidden},
		{"not found", models.NewNotFound("req_1", "terminal not found"), models.ProblemTypeNotFound, http.StatusNotFound},
		{"conflict", models.NewConflict("req_1", "code already used"), models.ProblemTypeConflict, http.StatusConflict},
		{"quota exceeded", models.NewQuotaExceeded("req_1", "2 of 2 devices online"), models.ProblemTypeQuotaExceeded, http.StatusConflict},
		{"too many requests", models.NewTooManyRequests("req_1", "rate limit exceeded"), models.ProblemTypeTooManyRequests, http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "database error"), models.ProblemTypeInternal, http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req_1", "upstream unavailable"), models.ProblemTypeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.wantStatus, tt.problem.Status)
			assert.Equal(t, "req_1", tt.problem.TraceID)
		})
	}
}
