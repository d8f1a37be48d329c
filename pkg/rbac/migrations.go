package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mkurtis/warden/pkg/tenants"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					resource VARCHAR(255) NOT NULL,
					action VARCHAR(255) NOT NULL,
					description TEXT,
					UNIQUE(resource, action)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, name)
				);

				CREATE INDEX idx_roles_tenant_id ON roles(tenant_id);
				CREATE UNIQUE INDEX idx_roles_one_default_per_tenant
					ON roles(tenant_id) WHERE is_default;
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, role_id)
				);

				CREATE INDEX idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX idx_user_roles_role_id ON user_roles(role_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// PermissionCatalog returns the built-in permission atoms seeded at startup
func PermissionCatalog() []Permission {
	return []Permission{
		{Resource: "users", Action: "read", Description: "View users"},
		{Resource: "users", Action: "write", Description: "Create and update users"},
		{Resource: "users", Action: "delete", Description: "Deactivate users"},
		{Resource: "roles", Action: "read", Description: "View roles"},
		{Resource: "roles", Action: "write", Description: "Create and update roles"},
		{Resource: "roles", Action: "delete", Description: "Delete roles"},
		{Resource: "roles", Action: "assign", Description: "Assign roles to users"},
		{Resource: "tenants", Action: "read", Description: "View tenant settings"},
		{Resource: "tenants", Action: "write", Description: "Update tenant settings"},
		{Resource: "tenants", Action: "bypass", Description: "Query across tenant boundaries"},
		{Resource: "audit", Action: "read", Description: "Read the audit log"},
		{Resource: Wildcard, Action: Wildcard, Description: "Every permission"},
	}
}

// SeedPermissions inserts any catalog permissions not yet present
func SeedPermissions(ctx context.Context, store *Store) error {
	for _, perm := range PermissionCatalog() {
		p := perm
		if err := store.CreatePermission(ctx, &p); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return fmt.Errorf("failed to seed permission %s: %w", perm.String(), err)
		}
	}
	return nil
}

// BootstrapTenantRoles creates the admin and member roles for a fresh
// tenant. Member is the default role picked up at registration.
func BootstrapTenantRoles(ctx context.Context, store *Store, scope tenants.Scope) error {
	perms, err := store.ListPermissions(ctx)
	if err != nil {
		return err
	}

	permID := func(resource, action string) (int64, bool) {
		for _, p := range perms {
			if p.Resource == resource && p.Action == action {
				return p.ID, true
			}
		}
		return 0, false
	}

	admin := &Role{TenantID: scope.TenantID(), Name: "admin", Description: "Full tenant access"}
	if err := store.CreateRole(ctx, scope, admin); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	if admin.ID != 0 {
		if id, ok := permID(Wildcard, Wildcard); ok {
			if err := store.AttachPermission(ctx, scope, admin.ID, id); err != nil {
				return err
			}
		}
	}

	member := &Role{TenantID: scope.TenantID(), Name: "member", Description: "Standard member", IsDefault: true}
	if err := store.CreateRole(ctx, scope, member); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	if member.ID != 0 {
		for _, pair := range []Pair{{"users", "read"}, {"roles", "read"}, {"tenants", "read"}} {
			if id, ok := permID(pair.Resource, pair.Action); ok {
				if err := store.AttachPermission(ctx, scope, member.ID, id); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
