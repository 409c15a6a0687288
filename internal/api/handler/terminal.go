package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sortepremiada/fleet/internal/api/models"
	"github.com/sortepremiada/fleet/internal/api/response"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// TerminalHandler handles the operator-facing terminal registry endpoints.
type TerminalHandler struct {
	service *terminal.Service
}

// NewTerminalHandler creates a new TerminalHandler.
func NewTerminalHandler(service *terminal.Service) *TerminalHandler {
	return &TerminalHandler{service: service}
}

// Create handles POST /v1/terminals - register a pending terminal and issue
// its activation code.
func (h *TerminalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.TerminalCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid terminal", errs)
		return
	}

	op := GetOperator(r.Context())
	tenantID := op.TenantID
	if op.Platform() {
		// Platform operators create on behalf of a tenant.
		tenantID = input.TenantID
		if tenantID == "" {
			response.BadRequest(w, r, "tenantId is required for platform operators", []models.FieldError{
				{Field: "tenantId", Message: "tenantId is required", Code: "required"},
			})
			return
		}
	}

	t, err := h.service.RequestActivation(r.Context(), tenantID, terminal.RequestActivationInput{
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	now := models.Timestamp(time.Now())
	location := fmt.Sprintf("/v1/terminals/%s", t.ID)
	response.Created(w, r, location, models.TerminalFromDomain(t, now))
}

// List handles GET /v1/terminals - list the fleet.
func (h *TerminalHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.listFilter(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, terminalList(items))
}

// Map handles GET /v1/terminals/map - terminals with coordinates, for the
// fleet map view.
func (h *TerminalHandler) Map(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.listFilter(w, r)
	if !ok {
		return
	}

	items, err := h.service.Map(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, terminalList(items))
}

// Get handles GET /v1/terminals/{terminalId}.
func (h *TerminalHandler) Get(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalId")

	t, err := h.service.Get(r.Context(), terminalID, tenantScope(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.TerminalFromDomain(t, models.Timestamp(time.Now())))
}

// Deactivate handles POST /v1/terminals/{terminalId}/deactivate.
func (h *TerminalHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalId")

	t, err := h.service.Deactivate(r.Context(), terminalID, tenantScope(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.TerminalFromDomain(t, models.Timestamp(time.Now())))
}

// Reactivate handles POST /v1/terminals/{terminalId}/reactivate.
func (h *TerminalHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalId")

	t, err := h.service.Reactivate(r.Context(), terminalID, tenantScope(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.TerminalFromDomain(t, models.Timestamp(time.Now())))
}

// Delete handles DELETE /v1/terminals/{terminalId}. Platform role only,
// enforced by the router.
func (h *TerminalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalId")

	if err := h.service.Delete(r.Context(), terminalID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

// ForceUnbind handles POST /v1/terminals/force-unbind. Platform role only,
// enforced by the router.
func (h *TerminalHandler) ForceUnbind(w http.ResponseWriter, r *http.Request) {
	var input models.ForceUnbindRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid request", errs)
		return
	}

	removed, err := h.service.ForceUnbind(r.Context(), input.PhysicalID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ForceUnbindResponse{Removed: removed})
}

// listFilter builds the list filter from the query string, confined to the
// operator's tenant scope.
func (h *TerminalHandler) listFilter(w http.ResponseWriter, r *http.Request) (terminal.ListFilter, bool) {
	filter := terminal.ListFilter{TenantID: tenantScope(r.Context())}

	// Platform operators may narrow to a single tenant.
	if filter.TenantID == "" {
		filter.TenantID = r.URL.Query().Get("tenantId")
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := terminal.Status(raw)
		if !status.Valid() {
			response.BadRequest(w, r, "invalid status filter", []models.FieldError{
				{Field: "status", Message: "status must be ONLINE or OFFLINE", Code: "enum"},
			})
			return terminal.ListFilter{}, false
		}
		filter.Status = &status
	}

	if r.URL.Query().Get("includeArchived") == "true" {
		filter.IncludeArchived = true
	}

	return filter, true
}

func terminalList(items []*terminal.Terminal) models.TerminalList {
	now := models.Timestamp(time.Now())
	out := models.TerminalList{
		Items: make([]models.Terminal, 0, len(items)),
		Total: len(items),
	}
	for _, t := range items {
		out.Items = append(out.Items, models.TerminalFromDomain(t, now))
	}
	return out
}
