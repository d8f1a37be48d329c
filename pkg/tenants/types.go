package tenants

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the tenant does not exist
	ErrNotFound = errors.New("tenant not found")
	// ErrBypassDenied indicates the caller lacks the bypass permission
	ErrBypassDenied = errors.New("tenant bypass denied")
	// ErrScopeViolation indicates a row from another tenant reached a
	// scoped code path. This is an internal defect, never client input.
	ErrScopeViolation = errors.New("tenant scope violation")
)

// BypassPermission gates Guard.Bypass
const BypassPermission = "tenants:bypass"

// Tenant represents an isolated customer workspace
type Tenant struct {
	ID        int64                  `json:"id"`
	Name      string                 `json:"name"`
	Slug      string                 `json:"slug"`
	Settings  map[string]interface{} `json:"settings"`
	IsActive  bool                   `json:"is_active"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Scope is the tenant predicate carried into every scoped store call.
// The zero value is unusable: build one with NewScope or Guard.Bypass.
type Scope struct {
	tenantID int64
	bypass   bool
}

// NewScope returns a scope restricted to one tenant
func NewScope(tenantID int64) Scope {
	return Scope{tenantID: tenantID}
}

// TenantID returns the tenant this scope is restricted to
func (s Scope) TenantID() int64 {
	return s.tenantID
}

// Bypassed reports whether this scope crosses tenant boundaries
func (s Scope) Bypassed() bool {
	return s.bypass
}

// Valid reports whether the scope carries a usable predicate
func (s Scope) Valid() bool {
	return s.bypass || s.tenantID > 0
}

// Check verifies a loaded row belongs to this scope's tenant. Stores call
// it before returning rows fetched by non-tenant keys.
func (s Scope) Check(rowTenantID int64) error {
	if s.bypass {
		return nil
	}
	if rowTenantID != s.tenantID {
		return ErrScopeViolation
	}
	return nil
}
