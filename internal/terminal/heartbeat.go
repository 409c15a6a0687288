package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sortepremiada/fleet/internal/events"
)

// UserField carries the tri-state currentUserId of a heartbeat payload:
// absent (Present false), present-and-null (Present true, ID nil), or
// present-and-set.
type UserField struct {
	Present bool
	ID      *string
}

// SetUser returns a present-and-set field.
func SetUser(id string) UserField {
	return UserField{Present: true, ID: &id}
}

// ClearUser returns a present-and-null field.
func ClearUser() UserField {
	return UserField{Present: true}
}

// HeartbeatInput is a periodic liveness report from a terminal.
type HeartbeatInput struct {
	TerminalID string
	Latitude   *float64
	Longitude  *float64
	User       UserField
	Status     *Status
}

// Heartbeat processes a liveness report: quota-gates the transition into
// ONLINE, enforces the single-active-session invariant for the reported user,
// and applies the terminal's own update. On failure the terminal keeps its
// last committed state; the field resends heartbeats continuously and
// self-heals.
func (s *Service) Heartbeat(ctx context.Context, input HeartbeatInput) (*Terminal, error) {
	if input.Status != nil && !input.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *input.Status)
	}

	t, err := s.store.GetByID(ctx, input.TerminalID)
	if errors.Is(err, ErrTerminalNotFound) && s.allowUnknown {
		t, err = s.registerUnknown(ctx, input.TerminalID)
	}
	if err != nil {
		return nil, err
	}
	if t.Archived() {
		return nil, ErrTerminalNotFound
	}

	// Heartbeats imply liveness: absent status means ONLINE.
	status := StatusOnline
	if input.Status != nil {
		status = *input.Status
	}

	// Bare tolerant-ingest records have no tenant yet, so there is no quota
	// to enforce against them.
	if status == StatusOnline && t.Status != StatusOnline && t.TenantID != "" {
		if err := s.admitOnline(ctx, t); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if input.User.Present && input.User.ID != nil {
		released, err := s.store.ReleaseUserSessions(ctx, *input.User.ID, t.ID, now)
		if err != nil {
			return nil, fmt.Errorf("releasing user sessions: %w", err)
		}
		if released > 0 {
			s.metrics.RecordSessionTakeover(ctx, t.TenantID)
			s.events.Publish(ctx, events.Event{
				Type:       events.TypeSessionTransferred,
				TerminalID: t.ID,
				TenantID:   t.TenantID,
				UserID:     input.User.ID,
				OccurredAt: now,
			})
			s.logger.Info().
				Str("terminal_id", t.ID).
				Str("user_id", *input.User.ID).
				Int64("released", released).
				Msg("user session moved to this terminal")
		}
	}

	update := HeartbeatUpdate{
		TerminalID: t.ID,
		Status:     status,
		Latitude:   input.Latitude,
		Longitude:  input.Longitude,
		Now:        now,
	}
	if input.User.Present {
		update.SetUser = true
		update.CurrentUserID = input.User.ID
		// lastUserId records only real transitions (A→B, A→null); a repeated
		// heartbeat from the same user or a null-to-null is a no-op.
		if t.CurrentUserID != nil && (input.User.ID == nil || *input.User.ID != *t.CurrentUserID) {
			update.SetLastUser = true
			update.LastUserID = t.CurrentUserID
		}
	}

	updated, err := s.store.ApplyHeartbeat(ctx, update)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordHeartbeat(ctx, t.TenantID, string(status))
	return updated, nil
}

// admitOnline gates a transition into ONLINE against the tenant quota. The
// count-then-admit check is racy under concurrent heartbeats; a transient
// overshoot of one is accepted rather than serializing every heartbeat.
func (s *Service) admitOnline(ctx context.Context, t *Terminal) error {
	tn, err := s.tenants.Get(ctx, t.TenantID)
	if err != nil {
		return fmt.Errorf("resolving tenant %s: %w", t.TenantID, err)
	}

	online, err := s.store.CountOnlineByTenant(ctx, t.TenantID, t.ID)
	if err != nil {
		return fmt.Errorf("counting online terminals: %w", err)
	}
	if online >= tn.MaxActiveDevices {
		s.metrics.RecordQuotaRejection(ctx, t.TenantID)
		s.logger.Warn().
			Str("terminal_id", t.ID).
			Str("tenant_id", t.TenantID).
			Int("online", online).
			Int("quota", tn.MaxActiveDevices).
			Msg("online admission rejected, quota reached")
		return fmt.Errorf("%w: %d of %d devices online", ErrQuotaExceeded, online, tn.MaxActiveDevices)
	}
	return nil
}

// registerUnknown creates a bare pending record for tolerant heartbeat
// ingest. The record still has to go through activation to obtain a
// credential.
func (s *Service) registerUnknown(ctx context.Context, id string) (*Terminal, error) {
	now := time.Now()
	t := &Terminal{
		ID:             id,
		Name:           "unregistered terminal",
		ActivationCode: "ingest:" + id,
		PhysicalID:     "pending:" + id,
		Status:         StatusOffline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("registering unknown terminal: %w", err)
	}

	s.logger.Warn().Str("terminal_id", id).Msg("bare record created for unknown heartbeat")
	return t, nil
}
