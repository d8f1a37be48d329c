package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mkurtis/warden/pkg/tenants"
)

// Store handles role and permission persistence. Role operations take a
// tenant scope; the permission catalog is global.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a role inside the scope's tenant
func (s *Store) CreateRole(ctx context.Context, scope tenants.Scope, role *Role) error {
	if err := scope.Check(role.TenantID); err != nil {
		return err
	}

	now := time.Now()
	query := `
		INSERT INTO roles (tenant_id, name, description, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		role.TenantID, role.Name, role.Description, role.IsDefault, now, now,
	).Scan(&role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %q: %w", role.Name, ErrConflict)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole loads a role and verifies it belongs to the scope's tenant
func (s *Store) GetRole(ctx context.Context, scope tenants.Scope, roleID int64) (*Role, error) {
	query := `
		SELECT id, tenant_id, name, description, is_default, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	role, err := s.scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if err != nil {
		return nil, err
	}
	if err := scope.Check(role.TenantID); err != nil {
		// Report foreign-tenant roles as absent, not as forbidden
		return nil, ErrNotFound
	}
	return role, nil
}

// GetRoleByName loads a role by name within the scope's tenant
func (s *Store) GetRoleByName(ctx context.Context, scope tenants.Scope, name string) (*Role, error) {
	query := `
		SELECT id, tenant_id, name, description, is_default, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1 AND name = $2
	`
	return s.scanRole(s.db.QueryRowContext(ctx, query, scope.TenantID(), name))
}

// GetDefaultRole returns the tenant's default role, if one is set
func (s *Store) GetDefaultRole(ctx context.Context, scope tenants.Scope) (*Role, error) {
	query := `
		SELECT id, tenant_id, name, description, is_default, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1 AND is_default
	`
	return s.scanRole(s.db.QueryRowContext(ctx, query, scope.TenantID()))
}

// ListRoles returns the scope's tenant roles
func (s *Store) ListRoles(ctx context.Context, scope tenants.Scope) ([]Role, error) {
	query := `
		SELECT id, tenant_id, name, description, is_default, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var description sql.NullString
		err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &description,
			&role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.Description = description.String
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates a role's name and description
func (s *Store) UpdateRole(ctx context.Context, scope tenants.Scope, role *Role) error {
	query := `
		UPDATE roles
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4 AND tenant_id = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		role.Name, role.Description, time.Now(), role.ID, scope.TenantID())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %q: %w", role.Name, ErrConflict)
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireRow(result)
}

// SetDefaultRole marks one role as the tenant default, clearing any
// previous default in the same transaction
func (s *Store) SetDefaultRole(ctx context.Context, scope tenants.Scope, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE roles SET is_default = false WHERE tenant_id = $1 AND is_default`,
		scope.TenantID())
	if err != nil {
		return fmt.Errorf("failed to clear default role: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE roles SET is_default = true WHERE id = $1 AND tenant_id = $2`,
		roleID, scope.TenantID())
	if err != nil {
		return fmt.Errorf("failed to set default role: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteRole removes a role and its assignments via cascade
func (s *Store) DeleteRole(ctx context.Context, scope tenants.Scope, roleID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM roles WHERE id = $1 AND tenant_id = $2`,
		roleID, scope.TenantID())
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return requireRow(result)
}

// CreatePermission adds an atom to the global permission catalog
func (s *Store) CreatePermission(ctx context.Context, perm *Permission) error {
	query := `
		INSERT INTO permissions (resource, action, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query, perm.Resource, perm.Action, perm.Description).Scan(&perm.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("permission %s: %w", perm.String(), ErrConflict)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// ListPermissions returns the whole catalog
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	query := `SELECT id, resource, action, description FROM permissions ORDER BY resource, action`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// AttachPermission grants a catalog permission to a role
func (s *Store) AttachPermission(ctx context.Context, scope tenants.Scope, roleID, permissionID int64) error {
	// The subquery pins the role to the scope's tenant
	query := `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT id, $2 FROM roles WHERE id = $1 AND tenant_id = $3
	`
	result, err := s.db.ExecContext(ctx, query, roleID, permissionID, scope.TenantID())
	if err != nil {
		if isUniqueViolation(err) {
			return nil // already attached
		}
		return fmt.Errorf("failed to attach permission: %w", err)
	}
	return requireRow(result)
}

// DetachPermission removes a permission from a role
func (s *Store) DetachPermission(ctx context.Context, scope tenants.Scope, roleID, permissionID int64) error {
	query := `
		DELETE FROM role_permissions
		USING roles
		WHERE role_permissions.role_id = roles.id
		  AND roles.id = $1 AND roles.tenant_id = $2
		  AND role_permissions.permission_id = $3
	`
	result, err := s.db.ExecContext(ctx, query, roleID, scope.TenantID(), permissionID)
	if err != nil {
		return fmt.Errorf("failed to detach permission: %w", err)
	}
	return requireRow(result)
}

// GetRolePermissions returns the permissions attached to a role
func (s *Store) GetRolePermissions(ctx context.Context, scope tenants.Scope, roleID int64) ([]Permission, error) {
	query := `
		SELECT p.id, p.resource, p.action, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		WHERE r.id = $1 AND r.tenant_id = $2
		ORDER BY p.resource, p.action
	`
	rows, err := s.db.QueryContext(ctx, query, roleID, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// AssignRole grants a role to a user. Assigning an already held role is
// not an error.
func (s *Store) AssignRole(ctx context.Context, scope tenants.Scope, userID, roleID int64, grantedBy *int64) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, granted_by, granted_at)
		SELECT $1, id, $3, $4 FROM roles WHERE id = $2 AND tenant_id = $5
	`
	result, err := s.db.ExecContext(ctx, query, userID, roleID, grantedBy, time.Now(), scope.TenantID())
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return requireRow(result)
}

// UnassignRole removes a role from a user
func (s *Store) UnassignRole(ctx context.Context, scope tenants.Scope, userID, roleID int64) error {
	query := `
		DELETE FROM user_roles
		USING roles
		WHERE user_roles.role_id = roles.id
		  AND roles.tenant_id = $3
		  AND user_roles.user_id = $1 AND user_roles.role_id = $2
	`
	result, err := s.db.ExecContext(ctx, query, userID, roleID, scope.TenantID())
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	return requireRow(result)
}

// GetUserRoles returns the roles a user holds within the scope's tenant
func (s *Store) GetUserRoles(ctx context.Context, scope tenants.Scope, userID int64) ([]Role, error) {
	query := `
		SELECT r.id, r.tenant_id, r.name, r.description, r.is_default, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.tenant_id = $2
		ORDER BY r.name
	`
	rows, err := s.db.QueryContext(ctx, query, userID, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var description sql.NullString
		err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &description,
			&role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.Description = description.String
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetUserPermissions returns the union of permissions across every role
// the user holds in the tenant
func (s *Store) GetUserPermissions(ctx context.Context, userID, tenantID int64) ([]Permission, error) {
	query := `
		SELECT DISTINCT p.id, p.resource, p.action, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.tenant_id = $2
		ORDER BY p.id
	`
	rows, err := s.db.QueryContext(ctx, query, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *Store) scanRole(row *sql.Row) (*Role, error) {
	var role Role
	var description sql.NullString
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &description,
		&role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}
	role.Description = description.String
	return &role, nil
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var perm Permission
		var description sql.NullString
		if err := rows.Scan(&perm.ID, &perm.Resource, &perm.Action, &description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perm.Description = description.String
		perms = append(perms, perm)
	}
	return perms, rows.Err()
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

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
