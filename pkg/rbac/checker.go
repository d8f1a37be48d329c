package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/observability"
)

// Checker evaluates permission checks against the store
type Checker struct {
	store   *Store
	auditor audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewChecker creates a permission checker
func NewChecker(store *Store, auditor audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Checker {
	return &Checker{
		store:   store,
		auditor: auditor,
		logger:  logger,
		metrics: metrics,
	}
}

// HasPermission reports whether the user's roles grant (resource, action).
// Wildcard permissions satisfy it. It never consults the superuser flag.
func (c *Checker) HasPermission(ctx context.Context, userID, tenantID int64, resource, action string) (bool, error) {
	perms, err := c.store.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	for _, perm := range perms {
		if perm.Matches(resource, action) {
			return true, nil
		}
	}
	return false, nil
}

// HasExactPermission reports whether the user's roles grant the literal
// (resource, action) pair. Wildcards do not satisfy it, which makes it
// the authorizer for tenant bypass: a tenant admin holding ("*", "*")
// must not cross tenant boundaries without an explicit grant.
func (c *Checker) HasExactPermission(ctx context.Context, userID, tenantID int64, resource, action string) (bool, error) {
	perms, err := c.store.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	for _, perm := range perms {
		if perm.Resource == resource && perm.Action == action {
			return true, nil
		}
	}
	return false, nil
}

// Check evaluates a permission list for an authenticated user under the
// given combinator. A superuser is always allowed, and every bypass is
// recorded in the audit log.
func (c *Checker) Check(ctx context.Context, user authn.AuthUser, combinator Combinator, pairs []Pair) (bool, error) {
	if len(pairs) == 0 {
		// An empty list is a programming error, not a denial
		return false, fmt.Errorf("permission check with no permission pairs")
	}

	start := time.Now()
	defer func() {
		c.metrics.PermissionCheckDuration.WithLabelValues(combinator.String()).Observe(time.Since(start).Seconds())
	}()

	if user.IsSuperuser {
		for _, pair := range pairs {
			c.metrics.SuperuserBypassTotal.WithLabelValues(pair.String()).Inc()
			if err := audit.SuperuserBypass(ctx, c.auditor, user.ID, user.TenantID, pair.Resource, pair.Action); err != nil {
				c.logger.WithError(err).Error("failed to audit superuser bypass")
			}
		}
		c.metrics.PermissionChecksTotal.WithLabelValues(combinator.String(), "true").Inc()
		return true, nil
	}

	perms, err := c.store.GetUserPermissions(ctx, user.ID, user.TenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load user permissions: %w", err)
	}

	allowed := evaluate(perms, combinator, pairs)
	c.metrics.PermissionChecksTotal.WithLabelValues(combinator.String(), fmt.Sprintf("%t", allowed)).Inc()
	return allowed, nil
}

// Require is Check with a denial error instead of a boolean
func (c *Checker) Require(ctx context.Context, user authn.AuthUser, combinator Combinator, pairs []Pair) error {
	allowed, err := c.Check(ctx, user, combinator, pairs)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

func evaluate(perms []Permission, combinator Combinator, pairs []Pair) bool {
	switch combinator {
	case CombinatorAll:
		for _, pair := range pairs {
			if !granted(perms, pair) {
				return false
			}
		}
		return true
	default: // CombinatorAny
		for _, pair := range pairs {
			if granted(perms, pair) {
				return true
			}
		}
		return false
	}
}

func granted(perms []Permission, pair Pair) bool {
	for _, perm := range perms {
		if perm.Matches(pair.Resource, pair.Action) {
			return true
		}
	}
	return false
}
