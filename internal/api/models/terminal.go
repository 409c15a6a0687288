package models

import (
	"strings"
	"time"

	"github.com/sortepremiada/fleet/internal/terminal"
)

// Terminal is the API representation of a POS terminal. The device token is
// never included; it is returned exactly once, in the activation response.
type Terminal struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId"`
	PhysicalID     string         `json:"physicalId"`
	ActivationCode string         `json:"activationCode"`
	Name           string         `json:"name"`
	Description    *string        `json:"description,omitempty"`
	Model          *string        `json:"model,omitempty"`
	AppVersion     *string        `json:"appVersion,omitempty"`
	Status         TerminalStatus `json:"status"`
	IsActive       bool           `json:"isActive"`
	CurrentUserID  *string        `json:"currentUserId,omitempty"`
	LastUserID     *string        `json:"lastUserId,omitempty"`
	Latitude       *float64       `json:"latitude,omitempty"`
	Longitude      *float64       `json:"longitude,omitempty"`
	Stale          bool           `json:"stale"`
	ActivatedAt    *Timestamp     `json:"activatedAt,omitempty"`
	ArchivedAt     *Timestamp     `json:"archivedAt,omitempty"`
	LastSeenAt     *Timestamp     `json:"lastSeenAt,omitempty"`
	CreatedAt      Timestamp      `json:"createdAt"`
	UpdatedAt      Timestamp      `json:"updatedAt"`
}

// TerminalFromDomain converts a domain terminal to its API representation.
// Staleness is computed against now at read time.
func TerminalFromDomain(t *terminal.Terminal, now Timestamp) Terminal {
	return Terminal{
		ID:             t.ID,
		TenantID:       t.TenantID,
		PhysicalID:     t.PhysicalID,
		ActivationCode: t.ActivationCode,
		Name:           t.Name,
		Description:    t.Description,
		Model:          t.Model,
		AppVersion:     t.AppVersion,
		Status:         TerminalStatus(t.Status),
		IsActive:       t.IsActive,
		CurrentUserID:  t.CurrentUserID,
		LastUserID:     t.LastUserID,
		Latitude:       t.Latitude,
		Longitude:      t.Longitude,
		Stale:          t.Stale(now.Time()),
		ActivatedAt:    optionalTimestamp(t.ActivatedAt),
		ArchivedAt:     optionalTimestamp(t.ArchivedAt),
		LastSeenAt:     optionalTimestamp(t.LastSeenAt),
		CreatedAt:      Timestamp(t.CreatedAt),
		UpdatedAt:      Timestamp(t.UpdatedAt),
	}
}

// TerminalList wraps a collection of terminals.
type TerminalList struct {
	Items []Terminal `json:"items"`
	Total int        `json:"total"`
}

// TerminalCreateRequest registers a pending terminal and issues its
// activation code.
type TerminalCreateRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	// TenantID is honored only for platform operators; tenant operators are
	// pinned to their own tenant.
	TenantID string `json:"tenantId,omitempty"`
}

// Validate checks the request fields.
func (r *TerminalCreateRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name is required", Code: "required"})
	}
	return errs
}

// ActivationRequest is submitted by a device to redeem an activation code.
type ActivationRequest struct {
	Code       string  `json:"code"`
	PhysicalID string  `json:"physicalId"`
	Model      *string `json:"model,omitempty"`
	AppVersion *string `json:"appVersion,omitempty"`
}

// Validate checks the request fields.
func (r *ActivationRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Code) == "" {
		errs = append(errs, FieldError{Field: "code", Message: "code is required", Code: "required"})
	}
	if strings.TrimSpace(r.PhysicalID) == "" {
		errs = append(errs, FieldError{Field: "physicalId", Message: "physicalId is required", Code: "required"})
	}
	return errs
}

// ActivationResponse carries the credential and bootstrap data back to the
// device. This is the only place the token ever appears.
type ActivationResponse struct {
	Terminal Terminal          `json:"terminal"`
	Token    string            `json:"token"`
	Tenant   *ActivationTenant `json:"tenant,omitempty"`
}

// ActivationTenant is the tenant metadata a device needs to bootstrap.
type ActivationTenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HeartbeatRequest is a periodic liveness report. CurrentUserID is tri-state:
// absent keeps the session, null clears it, a value claims it.
type HeartbeatRequest struct {
	Latitude      *float64        `json:"latitude,omitempty"`
	Longitude     *float64        `json:"longitude,omitempty"`
	CurrentUserID OptionalString  `json:"currentUserId"`
	Status        *TerminalStatus `json:"status,omitempty"`
}

// Validate checks the request fields.
func (r *HeartbeatRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		errs = append(errs, FieldError{Field: "latitude", Message: "latitude must be between -90 and 90", Code: "range"})
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		errs = append(errs, FieldError{Field: "longitude", Message: "longitude must be between -180 and 180", Code: "range"})
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		errs = append(errs, FieldError{Field: "latitude", Message: "latitude and longitude must be sent together", Code: "pair"})
	}
	if r.Status != nil && *r.Status != TerminalStatusOnline && *r.Status != TerminalStatusOffline {
		errs = append(errs, FieldError{Field: "status", Message: "status must be ONLINE or OFFLINE", Code: "enum"})
	}
	return errs
}

// ForceUnbindRequest frees a physical id by removing every bound record.
type ForceUnbindRequest struct {
	PhysicalID string `json:"physicalId"`
}

// Validate checks the request fields.
func (r *ForceUnbindRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.PhysicalID) == "" {
		errs = append(errs, FieldError{Field: "physicalId", Message: "physicalId is required", Code: "required"})
	}
	return errs
}

// ForceUnbindResponse reports how many records were removed.
type ForceUnbindResponse struct {
	Removed int64 `json:"removed"`
}

func optionalTimestamp(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}
