package rbac

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkurtis/warden/pkg/tenants"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func roleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tenant_id", "name", "description", "is_default", "created_at", "updated_at"})
}

func TestCreateRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO roles")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	role := &Role{TenantID: 10, Name: "auditor"}
	require.NoError(t, store.CreateRole(context.Background(), tenants.NewScope(10), role))
	assert.Equal(t, int64(3), role.ID)
}

func TestCreateRoleForeignTenant(t *testing.T) {
	store, _ := newMockStore(t)

	role := &Role{TenantID: 20, Name: "auditor"}
	err := store.CreateRole(context.Background(), tenants.NewScope(10), role)
	assert.ErrorIs(t, err, tenants.ErrScopeViolation)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO roles")).
		WillReturnError(&pq.Error{Code: "23505"})

	role := &Role{TenantID: 10, Name: "admin"}
	err := store.CreateRole(context.Background(), tenants.NewScope(10), role)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGetRoleHidesForeignTenant(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM roles").
		WithArgs(int64(3)).
		WillReturnRows(roleRows().AddRow(3, 20, "admin", nil, false, now, now))

	// The role exists but belongs to tenant 20
	_, err := store.GetRole(context.Background(), tenants.NewScope(10), 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDefaultRole(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM roles").
		WithArgs(int64(10)).
		WillReturnRows(roleRows().AddRow(2, 10, "member", "Standard member", true, now, now))

	role, err := store.GetDefaultRole(context.Background(), tenants.NewScope(10))
	require.NoError(t, err)
	assert.True(t, role.IsDefault)
	assert.Equal(t, "member", role.Name)
}

func TestSetDefaultRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE roles SET is_default = false").
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE roles SET is_default = true").
		WithArgs(int64(3), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetDefaultRole(context.Background(), tenants.NewScope(10), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDefaultRoleMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE roles SET is_default = false").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE roles SET is_default = true").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.SetDefaultRole(context.Background(), tenants.NewScope(10), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignRoleIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.AssignRole(context.Background(), tenants.NewScope(10), 5, 3, nil)
	assert.NoError(t, err, "assigning an already held role succeeds")
}

func TestAssignRoleForeignTenantRole(t *testing.T) {
	store, mock := newMockStore(t)

	// The guarded insert matches no rows when the role is in another tenant
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.AssignRole(context.Background(), tenants.NewScope(10), 5, 3, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserPermissions(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT DISTINCT (.+) FROM permissions").
		WithArgs(int64(5), int64(10)).
		WillReturnRows(permissionRows().
			AddRow(1, "users", "read", "View users").
			AddRow(2, "roles", "*", nil))

	perms, err := store.GetUserPermissions(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "users:read", perms[0].String())
	assert.Equal(t, "roles:*", perms[1].String())
}
