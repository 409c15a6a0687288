package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sortepremiada/fleet/internal/api/models"
	"github.com/sortepremiada/fleet/internal/api/response"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// ActivationHandler handles the public code-redemption endpoint.
type ActivationHandler struct {
	service *terminal.Service
}

// NewActivationHandler creates a new ActivationHandler.
func NewActivationHandler(service *terminal.Service) *ActivationHandler {
	return &ActivationHandler{service: service}
}

// Activate handles POST /v1/activations - a device exchanges an activation
// code and its physical id for a device token. The token appears only in this
// response.
func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var input models.ActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid activation request", errs)
		return
	}

	result, err := h.service.Activate(r.Context(), input.Code, input.PhysicalID, terminal.ActivateInput{
		Model:      input.Model,
		AppVersion: input.AppVersion,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := models.ActivationResponse{
		Terminal: models.TerminalFromDomain(result.Terminal, models.Timestamp(time.Now())),
		Token:    result.Token,
	}
	if result.Tenant != nil {
		resp.Tenant = &models.ActivationTenant{
			ID:   result.Tenant.ID,
			Name: result.Tenant.Name,
		}
	}

	response.JSON(w, r, http.StatusOK, resp)
}
