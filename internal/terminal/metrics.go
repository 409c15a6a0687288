package terminal

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/sortepremiada/fleet/internal/terminal"

// Metrics holds OpenTelemetry instruments for fleet operations. A nil
// *Metrics is valid and records nothing, so tests can skip wiring it.
type Metrics struct {
	activations      metric.Int64Counter
	heartbeats       metric.Int64Counter
	quotaRejections  metric.Int64Counter
	sessionTakeovers metric.Int64Counter
}

// NewMetrics creates fleet metrics instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	activations, err := meter.Int64Counter(
		"fleet.terminal.activations",
		metric.WithDescription("Number of successful terminal activations"),
		metric.WithUnit("{activation}"),
	)
	if err != nil {
		return nil, err
	}

	heartbeats, err := meter.Int64Counter(
		"fleet.terminal.heartbeats",
		metric.WithDescription("Number of processed heartbeats"),
		metric.WithUnit("{heartbeat}"),
	)
	if err != nil {
		return nil, err
	}

	quotaRejections, err := meter.Int64Counter(
		"fleet.terminal.quota_rejections",
		metric.WithDescription("Number of ONLINE admissions rejected by the tenant quota"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	sessionTakeovers, err := meter.Int64Counter(
		"fleet.session.takeovers",
		metric.WithDescription("Number of user sessions moved between terminals"),
		metric.WithUnit("{takeover}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		activations:      activations,
		heartbeats:       heartbeats,
		quotaRejections:  quotaRejections,
		sessionTakeovers: sessionTakeovers,
	}, nil
}

// RecordActivation records a successful activation.
func (m *Metrics) RecordActivation(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.activations.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant.id", tenantID)))
}

// RecordHeartbeat records a processed heartbeat.
func (m *Metrics) RecordHeartbeat(ctx context.Context, tenantID, status string) {
	if m == nil {
		return
	}
	m.heartbeats.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("terminal.status", status),
	))
}

// RecordQuotaRejection records an ONLINE admission rejected by the quota.
func (m *Metrics) RecordQuotaRejection(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.quotaRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant.id", tenantID)))
}

// RecordSessionTakeover records a session moving between terminals.
func (m *Metrics) RecordSessionTakeover(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.sessionTakeovers.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant.id", tenantID)))
}
