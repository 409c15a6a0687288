// Package terminal provides POS terminal activation, heartbeat processing and
// fleet session management.
package terminal

import (
	"errors"
	"time"
)

// Domain errors.
var (
	// ErrTerminalNotFound is returned when no terminal matches the given id,
	// activation code or physical id.
	ErrTerminalNotFound = errors.New("terminal not found")

	// ErrCodeAlreadyUsed is returned when an activation code has already been
	// exchanged for a credential.
	ErrCodeAlreadyUsed = errors.New("activation code already used")

	// ErrCrossTenantConflict is returned when the physical id submitted during
	// activation is bound to a terminal of a different tenant.
	ErrCrossTenantConflict = errors.New("physical id is bound to another tenant")

	// ErrQuotaExceeded is returned when admitting a terminal to ONLINE would
	// exceed the tenant's active device quota.
	ErrQuotaExceeded = errors.New("tenant active device quota exceeded")

	// ErrCodeGenerationExhausted is returned when a unique activation code
	// could not be produced within the retry bound.
	ErrCodeGenerationExhausted = errors.New("could not generate a unique activation code")

	// ErrValidation is returned for malformed input that survives past the
	// HTTP layer.
	ErrValidation = errors.New("invalid input")
)

// Status represents the liveness state of a terminal.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusOffline
}

// StaleAfter is how long an ONLINE terminal may go without a heartbeat before
// readers consider it stale. Field terminals report on the order of tens of
// seconds, so two minutes means several missed heartbeats.
const StaleAfter = 2 * time.Minute

// Terminal represents a physical point-of-sale unit.
//
// A terminal is pending until activation (ActivatedAt nil, no token). Archival
// is a soft delete: the row keeps its history but no longer holds the physical
// id uniqueness slot (enforced by a partial unique index on physical_id WHERE
// archived_at IS NULL).
type Terminal struct {
	ID             string
	TenantID       string
	PhysicalID     string
	ActivationCode string
	Name           string
	Description    *string
	Model          *string
	AppVersion     *string
	Status         Status
	IsActive       bool
	CurrentUserID  *string
	LastUserID     *string
	Token          *string
	ActivatedAt    *time.Time
	ArchivedAt     *time.Time
	LastSeenAt     *time.Time
	Latitude       *float64
	Longitude      *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Pending reports whether the terminal has not been activated yet.
func (t *Terminal) Pending() bool {
	return t.ActivatedAt == nil
}

// Archived reports whether the terminal has been archived.
func (t *Terminal) Archived() bool {
	return t.ArchivedAt != nil
}

// HasLocation reports whether the terminal has ever reported coordinates.
func (t *Terminal) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// Stale reports whether an ONLINE terminal has not been heard from recently.
// Staleness is derived at read time; it is never stored.
func (t *Terminal) Stale(now time.Time) bool {
	if t.Status != StatusOnline {
		return false
	}
	if t.LastSeenAt == nil {
		return true
	}
	return now.Sub(*t.LastSeenAt) > StaleAfter
}

// ListFilter narrows terminal reads. TenantID is mandatory for tenant-scoped
// callers; an empty TenantID means all tenants and is restricted to the
// platform role at the API layer.
type ListFilter struct {
	TenantID        string
	Status          *Status
	IncludeArchived bool
	RequireLocation bool
}
