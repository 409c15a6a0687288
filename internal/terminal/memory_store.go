package terminal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is an in-memory implementation of Store. It is intended for
// testing; production should use the PostgreSQL implementation. A single
// mutex makes every operation, including CommitActivation, atomic.
type InMemoryStore struct {
	mu        sync.RWMutex
	terminals map[string]*Terminal // keyed by terminal ID
}

// NewInMemoryStore creates a new in-memory terminal store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{terminals: make(map[string]*Terminal)}
}

// GetByID retrieves a terminal by id.
func (s *InMemoryStore) GetByID(_ context.Context, id string) (*Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.terminals[id]
	if !ok {
		return nil, ErrTerminalNotFound
	}
	return copyTerminal(t), nil
}

// GetByCode retrieves a terminal by activation code.
func (s *InMemoryStore) GetByCode(_ context.Context, code string) (*Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.terminals {
		if t.ActivationCode == code {
			return copyTerminal(t), nil
		}
	}
	return nil, ErrTerminalNotFound
}

// GetActiveByPhysicalID retrieves the non-archived holder of a physical id.
func (s *InMemoryStore) GetActiveByPhysicalID(_ context.Context, physicalID string) (*Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t := s.liveHolder(physicalID, ""); t != nil {
		return copyTerminal(t), nil
	}
	return nil, ErrTerminalNotFound
}

// CodeExists reports whether an activation code is already taken.
func (s *InMemoryStore) CodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.terminals {
		if t.ActivationCode == code {
			return true, nil
		}
	}
	return false, nil
}

// Create inserts a new terminal.
func (s *InMemoryStore) Create(_ context.Context, t *Terminal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terminals[t.ID] = copyTerminal(t)
	return nil
}

// Update overwrites an existing terminal.
func (s *InMemoryStore) Update(_ context.Context, t *Terminal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.terminals[t.ID]; !ok {
		return ErrTerminalNotFound
	}
	s.terminals[t.ID] = copyTerminal(t)
	return nil
}

// CommitActivation mirrors the Postgres transaction under one lock.
func (s *InMemoryStore) CommitActivation(_ context.Context, commit ActivationCommit) (*Terminal, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.terminals[commit.TerminalID]
	if !ok {
		return nil, "", ErrTerminalNotFound
	}
	if target.ActivatedAt != nil {
		return nil, "", ErrCodeAlreadyUsed
	}

	var archivedID string
	if holder := s.liveHolder(commit.PhysicalID, commit.TerminalID); holder != nil {
		if holder.TenantID != commit.TenantID {
			return nil, "", ErrCrossTenantConflict
		}
		now := commit.Now
		holder.ArchivedAt = &now
		holder.IsActive = false
		holder.Status = StatusOffline
		holder.Token = nil
		holder.CurrentUserID = nil
		holder.UpdatedAt = now
		archivedID = holder.ID
	}

	now := commit.Now
	token := commit.Token
	target.PhysicalID = commit.PhysicalID
	target.Token = &token
	target.ActivatedAt = &now
	target.IsActive = true
	target.Status = StatusOffline
	if commit.Model != nil {
		target.Model = commit.Model
	}
	if commit.AppVersion != nil {
		target.AppVersion = commit.AppVersion
	}
	target.UpdatedAt = now

	return copyTerminal(target), archivedID, nil
}

// ApplyHeartbeat applies a heartbeat update.
func (s *InMemoryStore) ApplyHeartbeat(_ context.Context, update HeartbeatUpdate) (*Terminal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.terminals[update.TerminalID]
	if !ok {
		return nil, ErrTerminalNotFound
	}

	now := update.Now
	t.Status = update.Status
	t.LastSeenAt = &now
	t.UpdatedAt = now
	if update.Latitude != nil {
		t.Latitude = update.Latitude
	}
	if update.Longitude != nil {
		t.Longitude = update.Longitude
	}
	if update.SetUser {
		t.CurrentUserID = update.CurrentUserID
	}
	if update.SetLastUser {
		t.LastUserID = update.LastUserID
	}

	return copyTerminal(t), nil
}

// ReleaseUserSessions logs the user out of every other terminal atomically.
func (s *InMemoryStore) ReleaseUserSessions(_ context.Context, userID, exceptID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released int64
	for _, t := range s.terminals {
		if t.ID == exceptID || t.CurrentUserID == nil || *t.CurrentUserID != userID {
			continue
		}
		user := userID
		t.Status = StatusOffline
		t.CurrentUserID = nil
		t.LastUserID = &user
		t.UpdatedAt = now
		released++
	}
	return released, nil
}

// CountOnlineByTenant counts ONLINE, non-archived terminals of a tenant,
// excluding exceptID.
func (s *InMemoryStore) CountOnlineByTenant(_ context.Context, tenantID, exceptID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.terminals {
		if t.TenantID == tenantID && t.Status == StatusOnline && t.ArchivedAt == nil && t.ID != exceptID {
			count++
		}
	}
	return count, nil
}

// TouchLastSeen updates only last_seen_at.
func (s *InMemoryStore) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.terminals[id]
	if !ok {
		return ErrTerminalNotFound
	}
	t.LastSeenAt = &at
	return nil
}

// List retrieves terminals matching the filter, newest first.
func (s *InMemoryStore) List(_ context.Context, filter ListFilter) ([]*Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*Terminal
	for _, t := range s.terminals {
		if filter.TenantID != "" && t.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if !filter.IncludeArchived && t.ArchivedAt != nil {
			continue
		}
		if filter.RequireLocation && !t.HasLocation() {
			continue
		}
		items = append(items, copyTerminal(t))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// Delete removes a terminal permanently.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.terminals[id]; !ok {
		return ErrTerminalNotFound
	}
	delete(s.terminals, id)
	return nil
}

// DeleteByPhysicalID removes every row bound to a physical id.
func (s *InMemoryStore) DeleteByPhysicalID(_ context.Context, physicalID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, t := range s.terminals {
		if t.PhysicalID == physicalID {
			delete(s.terminals, id)
			removed++
		}
	}
	return removed, nil
}

// liveHolder returns the non-archived terminal holding physicalID, excluding
// exceptID. Callers must hold the lock.
func (s *InMemoryStore) liveHolder(physicalID, exceptID string) *Terminal {
	for _, t := range s.terminals {
		if t.PhysicalID == physicalID && t.ArchivedAt == nil && t.ID != exceptID {
			return t
		}
	}
	return nil
}

// copyTerminal creates a deep copy of a terminal.
func copyTerminal(t *Terminal) *Terminal {
	if t == nil {
		return nil
	}

	c := *t
	c.Description = copyStr(t.Description)
	c.Model = copyStr(t.Model)
	c.AppVersion = copyStr(t.AppVersion)
	c.CurrentUserID = copyStr(t.CurrentUserID)
	c.LastUserID = copyStr(t.LastUserID)
	c.Token = copyStr(t.Token)
	c.ActivatedAt = copyTime(t.ActivatedAt)
	c.ArchivedAt = copyTime(t.ArchivedAt)
	c.LastSeenAt = copyTime(t.LastSeenAt)
	c.Latitude = copyFloat(t.Latitude)
	c.Longitude = copyFloat(t.Longitude)
	return &c
}

func copyStr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Ensure InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)
