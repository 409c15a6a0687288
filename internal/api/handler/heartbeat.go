package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sortepremiada/fleet/internal/api/models"
	"github.com/sortepremiada/fleet/internal/api/response"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// HeartbeatHandler handles liveness reports.
type HeartbeatHandler struct {
	service *terminal.Service
}

// NewHeartbeatHandler creates a new HeartbeatHandler.
func NewHeartbeatHandler(service *terminal.Service) *HeartbeatHandler {
	return &HeartbeatHandler{service: service}
}

// Heartbeat handles POST /v1/heartbeat - a terminal reports liveness under
// its own device token. The terminal id comes from the token, never from the
// payload.
func (h *HeartbeatHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	device := GetDevice(r.Context())
	if device == nil {
		response.Unauthorized(w, r, "device authentication required")
		return
	}

	input, ok := decodeHeartbeat(w, r)
	if !ok {
		return
	}
	input.TerminalID = device.ID

	h.apply(w, r, input)
}

// IngestHeartbeat handles POST /v1/ingest/heartbeats - a relay submits a
// heartbeat on behalf of a terminal named in the payload. This is the bridge
// for legacy devices without tokens; unknown ids are admitted only when the
// service runs with tolerant ingest enabled.
func (h *HeartbeatHandler) IngestHeartbeat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TerminalID string `json:"terminalId"`
		models.HeartbeatRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if strings.TrimSpace(payload.TerminalID) == "" {
		response.BadRequest(w, r, "invalid heartbeat", []models.FieldError{
			{Field: "terminalId", Message: "terminalId is required", Code: "required"},
		})
		return
	}
	if errs := payload.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid heartbeat", errs)
		return
	}

	input := heartbeatInput(payload.HeartbeatRequest)
	input.TerminalID = payload.TerminalID

	h.apply(w, r, input)
}

func (h *HeartbeatHandler) apply(w http.ResponseWriter, r *http.Request, input terminal.HeartbeatInput) {
	t, err := h.service.Heartbeat(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.TerminalFromDomain(t, models.Timestamp(time.Now())))
}

func decodeHeartbeat(w http.ResponseWriter, r *http.Request) (terminal.HeartbeatInput, bool) {
	var req models.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return terminal.HeartbeatInput{}, false
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid heartbeat", errs)
		return terminal.HeartbeatInput{}, false
	}
	return heartbeatInput(req), true
}

func heartbeatInput(req models.HeartbeatRequest) terminal.HeartbeatInput {
	input := terminal.HeartbeatInput{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	if req.CurrentUserID.Present {
		input.User = terminal.UserField{Present: true, ID: req.CurrentUserID.Value}
	}
	if req.Status != nil {
		status := terminal.Status(*req.Status)
		input.Status = &status
	}
	return input
}
