package tenant

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory for tests and local runs.
type MemoryDirectory struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewMemoryDirectory creates a directory seeded with the given tenants.
func NewMemoryDirectory(tenants ...*Tenant) *MemoryDirectory {
	d := &MemoryDirectory{tenants: make(map[string]*Tenant, len(tenants))}
	for _, tn := range tenants {
		d.tenants[tn.ID] = tn
	}
	return d
}

// Get resolves a tenant by id.
func (d *MemoryDirectory) Get(_ context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tn, ok := d.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	c := *tn
	return &c, nil
}

// Put inserts or replaces a tenant.
func (d *MemoryDirectory) Put(tn *Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *tn
	d.tenants[tn.ID] = &c
}

// Ensure MemoryDirectory implements Directory.
var _ Directory = (*MemoryDirectory)(nil)
