package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// terminalColumns is the select list shared by every read.
const terminalColumns = `
	id, tenant_id, physical_id, activation_code, name, description, model,
	app_version, status, is_active, current_user_id, last_user_id, token,
	activated_at, archived_at, last_seen_at, latitude, longitude,
	created_at, updated_at`

// PostgresStore is a PostgreSQL implementation of Store.
//
// Schema note: physical_id carries a partial unique index scoped to live rows
// (CREATE UNIQUE INDEX ... ON terminals (physical_id) WHERE archived_at IS
// NULL), so archiving a terminal frees its physical id without renaming it.
// activation_code is globally unique; codes are never reused.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL terminal store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanTerminal(row pgxRow) (*Terminal, error) {
	var t Terminal
	err := row.Scan(
		&t.ID,
		&t.TenantID,
		&t.PhysicalID,
		&t.ActivationCode,
		&t.Name,
		&t.Description,
		&t.Model,
		&t.AppVersion,
		&t.Status,
		&t.IsActive,
		&t.CurrentUserID,
		&t.LastUserID,
		&t.Token,
		&t.ActivatedAt,
		&t.ArchivedAt,
		&t.LastSeenAt,
		&t.Latitude,
		&t.Longitude,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTerminalNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetByID retrieves a terminal by id, archived or not.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Terminal, error) {
	query := `SELECT` + terminalColumns + ` FROM terminals WHERE id = $1`
	return scanTerminal(s.pool.QueryRow(ctx, query, id))
}

// GetByCode retrieves a terminal by activation code.
func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*Terminal, error) {
	query := `SELECT` + terminalColumns + ` FROM terminals WHERE activation_code = $1`
	return scanTerminal(s.pool.QueryRow(ctx, query, code))
}

// GetActiveByPhysicalID retrieves the non-archived holder of a physical id.
func (s *PostgresStore) GetActiveByPhysicalID(ctx context.Context, physicalID string) (*Terminal, error) {
	query := `SELECT` + terminalColumns + ` FROM terminals WHERE physical_id = $1 AND archived_at IS NULL`
	return scanTerminal(s.pool.QueryRow(ctx, query, physicalID))
}

// CodeExists reports whether an activation code is already taken.
func (s *PostgresStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM terminals WHERE activation_code = $1)`, code,
	).Scan(&exists)
	return exists, err
}

// Create inserts a new terminal.
func (s *PostgresStore) Create(ctx context.Context, t *Terminal) error {
	query := `
		INSERT INTO terminals (
			id, tenant_id, physical_id, activation_code, name, description,
			model, app_version, status, is_active, current_user_id,
			last_user_id, token, activated_at, archived_at, last_seen_at,
			latitude, longitude, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20)
	`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.TenantID, t.PhysicalID, t.ActivationCode, t.Name, t.Description,
		t.Model, t.AppVersion, t.Status, t.IsActive, t.CurrentUserID,
		t.LastUserID, t.Token, t.ActivatedAt, t.ArchivedAt, t.LastSeenAt,
		t.Latitude, t.Longitude, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// Update overwrites an existing terminal.
func (s *PostgresStore) Update(ctx context.Context, t *Terminal) error {
	query := `
		UPDATE terminals SET
			tenant_id = $2,
			physical_id = $3,
			activation_code = $4,
			name = $5,
			description = $6,
			model = $7,
			app_version = $8,
			status = $9,
			is_active = $10,
			current_user_id = $11,
			last_user_id = $12,
			token = $13,
			activated_at = $14,
			archived_at = $15,
			last_seen_at = $16,
			latitude = $17,
			longitude = $18,
			updated_at = $19
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		t.ID, t.TenantID, t.PhysicalID, t.ActivationCode, t.Name, t.Description,
		t.Model, t.AppVersion, t.Status, t.IsActive, t.CurrentUserID,
		t.LastUserID, t.Token, t.ActivatedAt, t.ArchivedAt, t.LastSeenAt,
		t.Latitude, t.Longitude, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTerminalNotFound
	}
	return nil
}

// CommitActivation performs the activation transaction: lock and resolve any
// live holder of the physical id, then claim the target row only if it is
// still pending.
func (s *PostgresStore) CommitActivation(ctx context.Context, commit ActivationCommit) (*Terminal, string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("beginning activation transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Lock the live holder of the physical id so a concurrent activation of
	// the same hardware serializes here.
	var holderID, holderTenantID string
	err = tx.QueryRow(ctx, `
		SELECT id, tenant_id FROM terminals
		WHERE physical_id = $1 AND archived_at IS NULL AND id <> $2
		FOR UPDATE
	`, commit.PhysicalID, commit.TerminalID).Scan(&holderID, &holderTenantID)

	var archivedID string
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// No collision.
	case err != nil:
		return nil, "", err
	case holderTenantID != commit.TenantID:
		return nil, "", ErrCrossTenantConflict
	default:
		// Reinstall: archive the prior binding. The row and its history stay
		// queryable by id; the partial unique index releases the physical id.
		_, err = tx.Exec(ctx, `
			UPDATE terminals SET
				archived_at = $2,
				is_active = FALSE,
				status = $3,
				token = NULL,
				current_user_id = NULL,
				updated_at = $2
			WHERE id = $1
		`, holderID, commit.Now, StatusOffline)
		if err != nil {
			return nil, "", fmt.Errorf("archiving terminal %s: %w", holderID, err)
		}
		archivedID = holderID
	}

	// Claim the target row. The activated_at IS NULL predicate is the
	// commit-time check that loses gracefully against a concurrent activation
	// of the same code.
	row := tx.QueryRow(ctx, `
		UPDATE terminals SET
			physical_id = $2,
			token = $3,
			activated_at = $4,
			is_active = TRUE,
			status = $5,
			model = COALESCE($6, model),
			app_version = COALESCE($7, app_version),
			updated_at = $4
		WHERE id = $1 AND activated_at IS NULL
		RETURNING` + terminalColumns + `
	`, commit.TerminalID, commit.PhysicalID, commit.Token, commit.Now,
		StatusOffline, commit.Model, commit.AppVersion)

	updated, err := scanTerminal(row)
	if err != nil {
		if errors.Is(err, ErrTerminalNotFound) {
			return nil, "", ErrCodeAlreadyUsed
		}
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("committing activation: %w", err)
	}
	return updated, archivedID, nil
}

// ApplyHeartbeat applies a heartbeat update. Coordinates are sticky via
// COALESCE; the user columns are written only when their Set flag is true.
func (s *PostgresStore) ApplyHeartbeat(ctx context.Context, update HeartbeatUpdate) (*Terminal, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE terminals SET
			status = $2,
			last_seen_at = $3,
			updated_at = $3,
			latitude = COALESCE($4, latitude),
			longitude = COALESCE($5, longitude),
			current_user_id = CASE WHEN $6 THEN $7 ELSE current_user_id END,
			last_user_id = CASE WHEN $8 THEN $9 ELSE last_user_id END
		WHERE id = $1
		RETURNING`+terminalColumns+`
	`, update.TerminalID, update.Status, update.Now,
		update.Latitude, update.Longitude,
		update.SetUser, update.CurrentUserID,
		update.SetLastUser, update.LastUserID)

	return scanTerminal(row)
}

// ReleaseUserSessions logs the user out of every other terminal in one
// conditional update, closing the race window a fetch-then-iterate loop
// would leave open.
func (s *PostgresStore) ReleaseUserSessions(ctx context.Context, userID, exceptID string, now time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE terminals SET
			status = $3,
			current_user_id = NULL,
			last_user_id = $1,
			updated_at = $4
		WHERE current_user_id = $1 AND id <> $2
	`, userID, exceptID, StatusOffline, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CountOnlineByTenant counts ONLINE, non-archived terminals of a tenant,
// excluding exceptID.
func (s *PostgresStore) CountOnlineByTenant(ctx context.Context, tenantID, exceptID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM terminals
		WHERE tenant_id = $1 AND status = $2 AND archived_at IS NULL AND id <> $3
	`, tenantID, StatusOnline, exceptID).Scan(&count)
	return count, err
}

// TouchLastSeen updates only last_seen_at.
func (s *PostgresStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE terminals SET last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTerminalNotFound
	}
	return nil
}

// List retrieves terminals matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Terminal, error) {
	query := `SELECT` + terminalColumns + ` FROM terminals WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.IncludeArchived {
		query += " AND archived_at IS NULL"
	}
	if filter.RequireLocation {
		query += " AND latitude IS NOT NULL AND longitude IS NOT NULL"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terminals []*Terminal
	for rows.Next() {
		t, err := scanTerminal(rows)
		if err != nil {
			return nil, err
		}
		terminals = append(terminals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return terminals, nil
}

// Delete removes a terminal permanently.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM terminals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTerminalNotFound
	}
	return nil
}

// DeleteByPhysicalID removes every row bound to a physical id.
func (s *PostgresStore) DeleteByPhysicalID(ctx context.Context, physicalID string) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM terminals WHERE physical_id = $1`, physicalID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
