// Package tenant resolves lottery operator (banca) metadata from the
// platform tenant directory.
package tenant

import (
	"context"
	"errors"
)

// ErrTenantNotFound is returned when a tenant does not exist in the directory.
var ErrTenantNotFound = errors.New("tenant not found")

// Tenant is a lottery operator owning a fleet of terminals.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// CodePrefix is the two-letter prefix stamped into activation codes
	// issued for this tenant.
	CodePrefix string `json:"codePrefix"`

	// MaxActiveDevices caps how many of the tenant's terminals may be ONLINE
	// at once.
	MaxActiveDevices int `json:"maxActiveDevices"`
}

// Directory looks up tenants. Implementations: HTTPDirectory against the
// platform directory service, MemoryDirectory for tests and local runs.
type Directory interface {
	Get(ctx context.Context, id string) (*Tenant, error)
}
