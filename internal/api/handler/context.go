package handler

import (
	"context"

	"github.com/sortepremiada/fleet/internal/api/middleware"
	"github.com/sortepremiada/fleet/internal/auth"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// GetDevice retrieves the authenticated terminal from the context.
// This is a convenience wrapper around middleware.GetDevice.
func GetDevice(ctx context.Context) *terminal.Terminal {
	return middleware.GetDevice(ctx)
}

// GetOperator retrieves the authenticated operator claims from the context.
// This is a convenience wrapper around middleware.GetOperator.
func GetOperator(ctx context.Context) *auth.OperatorClaims {
	return middleware.GetOperator(ctx)
}

// tenantScope returns the tenant the operator is confined to. Platform
// operators get an empty scope (all tenants).
func tenantScope(ctx context.Context) string {
	op := GetOperator(ctx)
	if op == nil || op.Platform() {
		return ""
	}
	return op.TenantID
}
