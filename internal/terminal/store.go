package terminal

import (
	"context"
	"time"
)

// ActivationCommit is the transactional write that binds a terminal to its
// physical id and credential. The store must apply it atomically: archive any
// same-tenant holder of the physical id, then claim the target row only if it
// is still pending.
type ActivationCommit struct {
	TerminalID string
	TenantID   string
	PhysicalID string
	Token      string
	Model      *string
	AppVersion *string
	Now        time.Time
}

// HeartbeatUpdate is the per-row update applied at the end of heartbeat
// processing. Latitude and Longitude are sticky: nil means keep the stored
// value. CurrentUserID and LastUserID are only written when the corresponding
// Set flag is true.
type HeartbeatUpdate struct {
	TerminalID    string
	Status        Status
	Latitude      *float64
	Longitude     *float64
	SetUser       bool
	CurrentUserID *string
	SetLastUser   bool
	LastUserID    *string
	Now           time.Time
}

// Store defines the persistence contract for the terminal registry.
type Store interface {
	// GetByID retrieves a terminal by id, archived or not.
	GetByID(ctx context.Context, id string) (*Terminal, error)

	// GetByCode retrieves a terminal by activation code.
	GetByCode(ctx context.Context, code string) (*Terminal, error)

	// GetActiveByPhysicalID retrieves the non-archived terminal holding the
	// given physical id.
	GetActiveByPhysicalID(ctx context.Context, physicalID string) (*Terminal, error)

	// CodeExists reports whether an activation code is already taken. Codes
	// are never reused, so archived rows count.
	CodeExists(ctx context.Context, code string) (bool, error)

	// Create inserts a new terminal.
	Create(ctx context.Context, t *Terminal) error

	// Update overwrites an existing terminal.
	Update(ctx context.Context, t *Terminal) error

	// CommitActivation atomically archives any same-tenant holder of the
	// physical id and claims the target row. It fails with
	// ErrCrossTenantConflict if a different tenant still holds the physical
	// id, and with ErrCodeAlreadyUsed if the target row is no longer pending
	// at commit time. Returns the updated terminal and the id of the archived
	// terminal, if any.
	CommitActivation(ctx context.Context, commit ActivationCommit) (updated *Terminal, archivedID string, err error)

	// ApplyHeartbeat applies a heartbeat update and returns the updated row.
	ApplyHeartbeat(ctx context.Context, update HeartbeatUpdate) (*Terminal, error)

	// ReleaseUserSessions logs the user out of every terminal other than
	// exceptID in one conditional update: status OFFLINE, current user
	// cleared, last user recorded. Returns the number of affected rows.
	ReleaseUserSessions(ctx context.Context, userID, exceptID string, now time.Time) (int64, error)

	// CountOnlineByTenant counts ONLINE, non-archived terminals of a tenant,
	// excluding exceptID.
	CountOnlineByTenant(ctx context.Context, tenantID, exceptID string) (int, error)

	// TouchLastSeen updates only last_seen_at, used by credential verification.
	TouchLastSeen(ctx context.Context, id string, at time.Time) error

	// List retrieves terminals matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Terminal, error)

	// Delete removes a terminal permanently.
	Delete(ctx context.Context, id string) error

	// DeleteByPhysicalID removes every row bound to a physical id, archived
	// or not. Returns the number of removed rows.
	DeleteByPhysicalID(ctx context.Context, physicalID string) (int64, error)
}
