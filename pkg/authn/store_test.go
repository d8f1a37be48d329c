package authn

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "email", "password_hash", "full_name", "is_active", "is_superuser",
		"oauth_provider", "oauth_provider_id", "last_login_at", "created_at", "updated_at",
	})
}

func TestGetUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow(
			1, 10, "alice@example.com", "hash", "Alice", true, true,
			nil, nil, nil, now, now,
		))

	user, err := store.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, int64(10), user.TenantID)
	assert.Equal(t, "Alice", user.FullName)
	assert.True(t, user.IsSuperuser)
	assert.Nil(t, user.OAuthProvider)
	assert.Nil(t, user.LastLoginAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("nobody@example.com").
		WillReturnRows(userRows())

	_, err := store.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserByProvider(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WithArgs("google", "sub-123").
		WillReturnRows(userRows().AddRow(
			2, 10, "bob@example.com", "", "Bob", true, false,
			"google", "sub-123", now, now, now,
		))

	user, err := store.GetUserByProvider(context.Background(), "google", "sub-123")
	require.NoError(t, err)
	require.NotNil(t, user.OAuthProvider)
	assert.Equal(t, "google", *user.OAuthProvider)
	require.NotNil(t, user.OAuthProviderID)
	assert.Equal(t, "sub-123", *user.OAuthProviderID)
	require.NotNil(t, user.LastLoginAt)
}

func TestGetAuthUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, tenant_id, is_active, is_superuser FROM users").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "is_active", "is_superuser"}).
			AddRow(5, 10, true, false))

	authUser, err := store.GetAuthUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), authUser.ID)
	assert.Equal(t, int64(10), authUser.TenantID)
	assert.True(t, authUser.IsActive)
	assert.False(t, authUser.IsSuperuser)
}

func TestCreateTenantAndOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tenants")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	user := &User{Email: "alice@example.com", PasswordHash: "hash", FullName: "Alice"}
	tenantID, err := store.CreateTenantAndOwner(context.Background(), "Acme", "acme", user)
	require.NoError(t, err)

	assert.Equal(t, int64(10), tenantID)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, int64(10), user.TenantID)
	assert.True(t, user.IsSuperuser, "first user owns the tenant")
	assert.True(t, user.IsActive)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTenantAndOwnerSlugConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tenants")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	user := &User{Email: "alice@example.com"}
	_, err := store.CreateTenantAndOwner(context.Background(), "Acme", "acme", user)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateTenantAndOwnerEmailConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tenants")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	user := &User{Email: "taken@example.com"}
	_, err := store.CreateTenantAndOwner(context.Background(), "Acme", "acme", user)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConsumeRefreshToken(t *testing.T) {
	store, mock := newMockStore(t)

	expires := time.Now().Add(time.Hour)
	created := time.Now()
	mock.ExpectQuery("UPDATE refresh_tokens").
		WithArgs("somehash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked", "created_at"}).
			AddRow(3, 5, "somehash", expires, true, created))

	rt, err := store.ConsumeRefreshToken(context.Background(), "somehash")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rt.UserID)
	assert.True(t, rt.Revoked, "consuming revokes the token")
}

func TestConsumeRefreshTokenAlreadyUsed(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE refresh_tokens").
		WithArgs("somehash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked", "created_at"}))

	_, err := store.ConsumeRefreshToken(context.Background(), "somehash")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := store.RevokeAllRefreshTokens(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestRevokeRefreshTokenIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked").
		WithArgs("unknownhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.RevokeRefreshToken(context.Background(), "unknownhash"))
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WillReturnResult(sqlmock.NewResult(0, 12))

	count, err := store.DeleteExpiredRefreshTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}
