package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sortepremiada/fleet/internal/events"
	"github.com/sortepremiada/fleet/internal/tenant"
)

// TokenMinter mints opaque device credentials bound to a (terminal, tenant)
// pair. Implemented by the auth package.
type TokenMinter interface {
	MintDeviceToken(terminalID, tenantID string) (string, error)
}

// ServiceConfig holds dependencies for the terminal service.
type ServiceConfig struct {
	Store   Store
	Tenants tenant.Directory
	Tokens  TokenMinter
	Events  events.Publisher
	Logger  zerolog.Logger
	Metrics *Metrics

	// AllowUnknownDevices enables tolerant heartbeat ingest: a heartbeat from
	// an unknown terminal id creates a bare pending record instead of failing.
	// Off by default; unknown heartbeats then fail with ErrTerminalNotFound.
	AllowUnknownDevices bool
}

// Service provides terminal registry operations: activation code issuance,
// the activation transaction, heartbeat processing, reads and administrative
// transitions.
type Service struct {
	store        Store
	tenants      tenant.Directory
	tokens       TokenMinter
	events       events.Publisher
	logger       zerolog.Logger
	metrics      *Metrics
	allowUnknown bool
}

// NewService creates a new terminal service.
func NewService(cfg ServiceConfig) *Service {
	pub := cfg.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store:        cfg.Store,
		tenants:      cfg.Tenants,
		tokens:       cfg.Tokens,
		events:       pub,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		allowUnknown: cfg.AllowUnknownDevices,
	}
}

// RequestActivationInput carries operator-supplied metadata for a new
// terminal.
type RequestActivationInput struct {
	Name        string
	Description *string
}

// RequestActivation creates a pending terminal with a fresh activation code.
// The record has no credential and no real physical id until the device
// redeems the code.
func (s *Service) RequestActivation(ctx context.Context, tenantID string, input RequestActivationInput) (*Terminal, error) {
	tn, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolving tenant %s: %w", tenantID, err)
	}

	code, err := s.generateCode(ctx, tn.CodePrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t := &Terminal{
		ID:             newTerminalID(),
		TenantID:       tenantID,
		ActivationCode: code,
		Name:           strings.TrimSpace(input.Name),
		Description:    input.Description,
		Status:         StatusOffline,
		IsActive:       false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// Placeholder until activation binds the real hardware identifier. Keyed
	// by the terminal id so the partial unique index on physical_id holds.
	t.PhysicalID = "pending:" + t.ID

	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("creating pending terminal: %w", err)
	}

	s.logger.Info().
		Str("terminal_id", t.ID).
		Str("tenant_id", tenantID).
		Msg("pending terminal created")

	return t, nil
}

// ActivateInput carries device-supplied metadata submitted with the code.
type ActivateInput struct {
	Model      *string
	AppVersion *string
}

// ActivationResult is returned to the device on successful activation. Token
// is the freshly minted credential; Tenant carries the metadata the device
// needs to bootstrap its local configuration.
type ActivationResult struct {
	Terminal   *Terminal
	Token      string
	Tenant     *tenant.Tenant
	ArchivedID string
}

// Activate exchanges an activation code and a physical id for a device
// credential.
//
// A same-tenant holder of the physical id (reinstall) is archived in the same
// transaction that claims the code; a cross-tenant holder aborts with no
// mutation anywhere. The commit re-checks that the code is still unredeemed,
// so a concurrent activation of the same code loses with ErrCodeAlreadyUsed
// instead of clobbering the winner.
func (s *Service) Activate(ctx context.Context, code, physicalID string, input ActivateInput) (*ActivationResult, error) {
	physicalID = strings.TrimSpace(physicalID)
	if physicalID == "" {
		return nil, fmt.Errorf("%w: physical id is required", ErrValidation)
	}

	t, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !t.Pending() {
		return nil, ErrCodeAlreadyUsed
	}

	// Fail fast on a cross-tenant collision before minting anything. The
	// commit re-checks under lock.
	holder, err := s.store.GetActiveByPhysicalID(ctx, physicalID)
	if err != nil && !errors.Is(err, ErrTerminalNotFound) {
		return nil, fmt.Errorf("looking up physical id holder: %w", err)
	}
	if holder != nil && holder.ID != t.ID && holder.TenantID != t.TenantID {
		return nil, ErrCrossTenantConflict
	}

	token, err := s.tokens.MintDeviceToken(t.ID, t.TenantID)
	if err != nil {
		return nil, fmt.Errorf("minting device token: %w", err)
	}

	now := time.Now()
	updated, archivedID, err := s.store.CommitActivation(ctx, ActivationCommit{
		TerminalID: t.ID,
		TenantID:   t.TenantID,
		PhysicalID: physicalID,
		Token:      token,
		Model:      input.Model,
		AppVersion: input.AppVersion,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	tn, err := s.tenants.Get(ctx, t.TenantID)
	if err != nil {
		// The binding is committed; a tenant directory hiccup must not undo
		// it. The device retries its bootstrap fetch.
		s.logger.Warn().Err(err).Str("tenant_id", t.TenantID).Msg("tenant lookup failed after activation")
	}

	s.metrics.RecordActivation(ctx, t.TenantID)
	if archivedID != "" {
		s.logger.Info().
			Str("terminal_id", archivedID).
			Str("physical_id", physicalID).
			Msg("prior terminal archived on reinstall")
		s.events.Publish(ctx, events.Event{
			Type:       events.TypeTerminalArchived,
			TerminalID: archivedID,
			TenantID:   t.TenantID,
			OccurredAt: now,
		})
	}
	s.events.Publish(ctx, events.Event{
		Type:       events.TypeTerminalActivated,
		TerminalID: updated.ID,
		TenantID:   updated.TenantID,
		OccurredAt: now,
	})

	s.logger.Info().
		Str("terminal_id", updated.ID).
		Str("tenant_id", updated.TenantID).
		Msg("terminal activated")

	return &ActivationResult{
		Terminal:   updated,
		Token:      token,
		Tenant:     tn,
		ArchivedID: archivedID,
	}, nil
}

// Get retrieves a terminal by id. A non-empty tenantScope restricts the read
// to that tenant; rows outside the scope surface as not found rather than
// leaking their existence.
func (s *Service) Get(ctx context.Context, id, tenantScope string) (*Terminal, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenantScope != "" && t.TenantID != tenantScope {
		return nil, ErrTerminalNotFound
	}
	return t, nil
}

// List retrieves terminals matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Terminal, error) {
	return s.store.List(ctx, filter)
}

// Map retrieves terminals for the map view: like List, but rows without
// coordinates are excluded. Staleness is the caller's read-time computation
// via Terminal.Stale.
func (s *Service) Map(ctx context.Context, filter ListFilter) ([]*Terminal, error) {
	filter.RequireLocation = true
	filter.IncludeArchived = false
	return s.store.List(ctx, filter)
}

// Deactivate administratively blocks a terminal: the binding and history are
// preserved, but credential verification fails until reactivation.
func (s *Service) Deactivate(ctx context.Context, id, tenantScope string) (*Terminal, error) {
	t, err := s.Get(ctx, id, tenantScope)
	if err != nil {
		return nil, err
	}

	t.IsActive = false
	t.Status = StatusOffline
	t.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().Str("terminal_id", id).Msg("terminal deactivated")
	return t, nil
}

// Reactivate lifts an administrative block. The terminal stays OFFLINE until
// its next admitted heartbeat.
func (s *Service) Reactivate(ctx context.Context, id, tenantScope string) (*Terminal, error) {
	t, err := s.Get(ctx, id, tenantScope)
	if err != nil {
		return nil, err
	}

	t.IsActive = true
	t.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().Str("terminal_id", id).Msg("terminal reactivated")
	return t, nil
}

// Delete removes a terminal permanently, freeing its activation code slot and
// physical id. Platform-operator only; the API layer enforces the role.
func (s *Service) Delete(ctx context.Context, id string) error {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.events.Publish(ctx, events.Event{
		Type:       events.TypeTerminalDeleted,
		TerminalID: t.ID,
		TenantID:   t.TenantID,
		OccurredAt: time.Now(),
	})
	s.logger.Info().Str("terminal_id", id).Msg("terminal deleted")
	return nil
}

// ForceUnbind removes every row bound to a physical id, archived or not. It
// is the manual override for a physical id stuck in a bad state, e.g. after
// a cross-tenant conflict that has to be resolved by hand.
func (s *Service) ForceUnbind(ctx context.Context, physicalID string) (int64, error) {
	removed, err := s.store.DeleteByPhysicalID(ctx, physicalID)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, ErrTerminalNotFound
	}

	s.logger.Warn().
		Str("physical_id", physicalID).
		Int64("removed", removed).
		Msg("physical id force-unbound")
	return removed, nil
}

// newTerminalID generates a prefixed terminal id.
func newTerminalID() string {
	return "trm_" + uuid.New().String()[:22]
}
