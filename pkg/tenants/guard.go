package tenants

import (
	"context"
	"fmt"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/observability"
)

// BypassAuthorizer decides whether a user may cross tenant boundaries.
// Implemented by the rbac checker. The check is exact-match: a wildcard
// grant must not imply bypass.
type BypassAuthorizer interface {
	HasExactPermission(ctx context.Context, userID, tenantID int64, resource, action string) (bool, error)
}

// Guard issues tenant scopes. Plain scopes come from NewScope; the only
// way to obtain a cross-tenant scope is Bypass, which checks the
// tenants:bypass permission and writes an audit record.
type Guard struct {
	authorizer BypassAuthorizer
	auditor    audit.Logger
	logger     *observability.Logger
}

// NewGuard creates a scope guard
func NewGuard(authorizer BypassAuthorizer, auditor audit.Logger, logger *observability.Logger) *Guard {
	return &Guard{
		authorizer: authorizer,
		auditor:    auditor,
		logger:     logger,
	}
}

// Bypass returns a cross-tenant scope for an authorized administrator.
// Both grants and denials are audited.
func (g *Guard) Bypass(ctx context.Context, userID, tenantID int64) (Scope, error) {
	allowed, err := g.authorizer.HasExactPermission(ctx, userID, tenantID, "tenants", "bypass")
	if err != nil {
		return Scope{}, fmt.Errorf("failed to check bypass permission: %w", err)
	}

	if !allowed {
		if auditErr := audit.TenantBypass(ctx, g.auditor, userID, tenantID, audit.EventStatusDenied); auditErr != nil {
			g.logger.WithError(auditErr).Error("failed to audit denied tenant bypass")
		}
		return Scope{}, ErrBypassDenied
	}

	if auditErr := audit.TenantBypass(ctx, g.auditor, userID, tenantID, audit.EventStatusSuccess); auditErr != nil {
		g.logger.WithError(auditErr).Error("failed to audit tenant bypass")
	}
	return Scope{bypass: true}, nil
}

// Violation logs a cross-tenant access attempt at error severity and
// returns the generic scope error. The caller must not leak which tenant
// or entity was involved.
func (g *Guard) Violation(ctx context.Context, scope Scope, rowTenantID int64) error {
	g.logger.WithFields(map[string]interface{}{
		"scope_tenant_id": scope.TenantID(),
		"row_tenant_id":   rowTenantID,
	}).Error("tenant scope violation")

	event := audit.NewEvent(ctx, audit.EventTypeTenantViolation, audit.EventStatusFailure)
	tenantID := scope.TenantID()
	event.TenantID = &tenantID
	if err := g.auditor.Log(ctx, event); err != nil {
		g.logger.WithError(err).Error("failed to audit scope violation")
	}
	return ErrScopeViolation
}
