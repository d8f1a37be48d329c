package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/observability"
)

const testSecret = "middleware-test-secret"

func newTestAuthService(t *testing.T) (*authn.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return authn.NewService(
		authn.NewStore(db),
		authn.NewTokenIssuer(testSecret, 15*time.Minute),
		authn.NewPasswordHasher(4),
		7*24*time.Hour,
		observability.NewLogger(observability.ErrorLevel, io.Discard),
		observability.NewMetrics(prometheus.NewRegistry()),
	), mock
}

func issueToken(t *testing.T, userID, tenantID int64) string {
	t.Helper()
	token, err := authn.NewTokenIssuer(testSecret, 15*time.Minute).IssueAccessToken(userID, tenantID)
	require.NoError(t, err)
	return token
}

func expectAuthUser(mock sqlmock.Sqlmock, userID, tenantID int64, active bool) {
	mock.ExpectQuery("SELECT id, tenant_id, is_active, is_superuser FROM users").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "is_active", "is_superuser"}).
			AddRow(userID, tenantID, active, false))
}

func TestAuthenticatorValidToken(t *testing.T) {
	svc, mock := newTestAuthService(t)
	expectAuthUser(mock, 7, 3, true)

	var sawAuth *authn.AuthContext
	var sawScope bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = GetAuthContext(r)
		scope, ok := GetScope(r)
		sawScope = ok && scope.TenantID() == 3
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, 7, 3))
	rec := httptest.NewRecorder()

	NewAuthenticator(svc).Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sawAuth)
	assert.Equal(t, int64(7), sawAuth.User.ID)
	assert.Equal(t, int64(3), sawAuth.User.TenantID)
	assert.NotEmpty(t, sawAuth.TokenID)
	assert.True(t, sawScope, "tenant scope should match the token's tenant")
}

func TestAuthenticatorMissingHeader(t *testing.T) {
	svc, _ := newTestAuthService(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	NewAuthenticator(svc).Handler(panicHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="warden"`, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, httputil.ProblemContentType, rec.Header().Get("Content-Type"))
}

func TestAuthenticatorMalformedHeader(t *testing.T) {
	svc, _ := newTestAuthService(t)

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		NewAuthenticator(svc).Handler(panicHandler(t)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuthenticatorExpiredToken(t *testing.T) {
	svc, _ := newTestAuthService(t)

	expired, err := authn.NewTokenIssuer(testSecret, -time.Minute).IssueAccessToken(7, 3)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()

	NewAuthenticator(svc).Handler(panicHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestAuthenticatorInactiveUser(t *testing.T) {
	svc, mock := newTestAuthService(t)
	expectAuthUser(mock, 7, 3, false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, 7, 3))
	rec := httptest.NewRecorder()

	NewAuthenticator(svc).Handler(panicHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "inactive")
}

func TestOptionalAuthenticatorAnonymous(t *testing.T) {
	svc, _ := newTestAuthService(t)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, GetAuthContext(r))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	NewOptionalAuthenticator(svc).Handler(next).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalAuthenticatorRejectsBadToken(t *testing.T) {
	svc, _ := newTestAuthService(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	NewOptionalAuthenticator(svc).Handler(panicHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{"standard", "Bearer abc123", "abc123", true},
		{"lowercase scheme", "bearer abc123", "abc123", true},
		{"empty", "", "", false},
		{"no token", "Bearer", "", false},
		{"wrong scheme", "Basic abc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			token, ok := BearerToken(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}

func panicHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run")
	})
}
