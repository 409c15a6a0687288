package handler

import (
	"errors"
	"net/http"

	"github.com/sortepremiada/fleet/internal/api/middleware"
	"github.com/sortepremiada/fleet/internal/api/models"
	"github.com/sortepremiada/fleet/internal/api/response"
	"github.com/sortepremiada/fleet/internal/tenant"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// writeDomainError maps domain errors onto RFC7807 problems. Anything
// unrecognized becomes an opaque 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, terminal.ErrTerminalNotFound):
		response.NotFound(w, r, "terminal not found")
	case errors.Is(err, tenant.ErrTenantNotFound):
		response.NotFound(w, r, "tenant not found")
	case errors.Is(err, terminal.ErrCodeAlreadyUsed):
		response.Conflict(w, r, "activation code has already been used")
	case errors.Is(err, terminal.ErrCrossTenantConflict):
		response.Conflict(w, r, "physical id is bound to a terminal of another tenant")
	case errors.Is(err, terminal.ErrQuotaExceeded):
		writeQuotaExceeded(w, r, err.Error())
	case errors.Is(err, terminal.ErrValidation):
		response.BadRequest(w, r, err.Error(), nil)
	default:
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func writeQuotaExceeded(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewQuotaExceeded(traceID, detail)
	response.Error(w, r, problem)
}
