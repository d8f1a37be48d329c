package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store handles tenant persistence. Methods that touch a specific tenant
// take a Scope so the predicate cannot be forgotten.
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get loads the tenant a scope is restricted to. A bypassed scope may
// name any tenant via id.
func (s *Store) Get(ctx context.Context, scope Scope, id int64) (*Tenant, error) {
	if !scope.Bypassed() && id != scope.TenantID() {
		return nil, ErrScopeViolation
	}

	query := `
		SELECT id, name, slug, settings, is_active, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, id))
}

// GetBySlug loads a tenant by slug. Slug resolution happens before a
// request is authenticated, so it is not scope-checked.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `
		SELECT id, name, slug, settings, is_active, created_at, updated_at
		FROM tenants
		WHERE slug = $1
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, slug))
}

// List returns all tenants. Listing crosses tenant boundaries, so it
// requires a bypassed scope.
func (s *Store) List(ctx context.Context, scope Scope) ([]*Tenant, error) {
	if !scope.Bypassed() {
		return nil, ErrScopeViolation
	}

	query := `
		SELECT id, name, slug, settings, is_active, created_at, updated_at
		FROM tenants
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var result []*Tenant
	for rows.Next() {
		tenant, err := s.scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tenant)
	}
	return result, rows.Err()
}

// UpdateSettings replaces the tenant settings map
func (s *Store) UpdateSettings(ctx context.Context, scope Scope, id int64, settings map[string]interface{}) error {
	if !scope.Bypassed() && id != scope.TenantID() {
		return ErrScopeViolation
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `UPDATE tenants SET settings = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, settingsJSON, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant settings: %w", err)
	}
	return requireRow(result)
}

// UpdateName renames a tenant
func (s *Store) UpdateName(ctx context.Context, scope Scope, id int64, name string) error {
	if !scope.Bypassed() && id != scope.TenantID() {
		return ErrScopeViolation
	}

	query := `UPDATE tenants SET name = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, name, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant name: %w", err)
	}
	return requireRow(result)
}

// Deactivate soft-deletes a tenant. Scoped rows referencing it fail the
// active-tenant check from then on.
func (s *Store) Deactivate(ctx context.Context, scope Scope, id int64) error {
	if !scope.Bypassed() && id != scope.TenantID() {
		return ErrScopeViolation
	}

	query := `UPDATE tenants SET is_active = false, updated_at = $1 WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	return requireRow(result)
}

// CountActive counts active tenants for metrics
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants WHERE is_active`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tenants: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanTenant(row *sql.Row) (*Tenant, error) {
	tenant, err := s.scanTenantRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

func (s *Store) scanTenantRow(row rowScanner) (*Tenant, error) {
	var tenant Tenant
	var settingsJSON []byte

	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&settingsJSON,
		&tenant.IsActive,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tenant settings: %w", err)
		}
	}
	if tenant.Settings == nil {
		tenant.Settings = map[string]interface{}{}
	}
	return &tenant, nil
}

func requireRow(result sql.Result) error {
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count affected rows: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
