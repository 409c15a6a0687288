// Package events publishes terminal lifecycle events for downstream
// consumers (reporting, provisioning, audit).
package events

import (
	"context"
	"time"
)

// Event types emitted by the fleet service.
const (
	TypeTerminalActivated  = "terminal.activated"
	TypeTerminalArchived   = "terminal.archived"
	TypeTerminalDeleted    = "terminal.deleted"
	TypeSessionTransferred = "session.transferred"
)

// Event is a terminal lifecycle notification.
type Event struct {
	Type       string    `json:"type"`
	TerminalID string    `json:"terminal_id"`
	TenantID   string    `json:"tenant_id,omitempty"`
	UserID     *string   `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits lifecycle events. Publishing is fire-and-forget: delivery
// failures are logged by the implementation, never surfaced to the request
// path.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Nop is a Publisher that discards every event. Used in tests and when no
// broker is configured.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(context.Context, Event) {}
