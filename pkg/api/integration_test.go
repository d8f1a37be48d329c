//go:build integration
// +build integration

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/middleware"
	"github.com/mkurtis/warden/pkg/oauth"
	"github.com/mkurtis/warden/pkg/observability"
	"github.com/mkurtis/warden/pkg/rbac"
	"github.com/mkurtis/warden/pkg/tenants"
)

// setupPostgresContainer starts a throwaway PostgreSQL container and runs
// all migrations. Skips when Docker is unavailable.
func setupPostgresContainer(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("warden"),
		postgres.WithPassword("warden_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	require.NoError(t, authn.RunMigrations(ctx, db))
	require.NoError(t, rbac.RunMigrations(ctx, db))
	require.NoError(t, rbac.SeedPermissions(ctx, rbac.NewStore(db)))

	return db
}

// newIntegrationServer wires the full stack against a real database
func newIntegrationServer(t *testing.T, db *sql.DB) *Server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	auditDB, err := audit.NewDBLogger(db)
	require.NoError(t, err)
	auditor := audit.NewMultiLogger(audit.NewSlogLogger(logger), auditDB)

	authStore := authn.NewStore(db)
	authSvc := authn.NewService(authStore,
		authn.NewTokenIssuer("integration-test-secret", 15*time.Minute),
		authn.NewPasswordHasher(4), 7*24*time.Hour, logger, metrics)

	rbacStore := rbac.NewStore(db)
	checker := rbac.NewChecker(rbacStore, auditor, logger, metrics)

	registry := oauth.NewRegistry()

	return NewServer(Deps{
		Auth:        authSvc,
		Coordinator: oauth.NewCoordinator(registry, oauth.NewStateStore(client, 10*time.Minute, metrics), authStore, authSvc, 5*time.Second, logger, metrics),
		Registry:    registry,
		RBACStore:   rbacStore,
		Checker:     checker,
		Tenants:     tenants.NewStore(db),
		Guard:       tenants.NewGuard(checker, auditor, logger),
		AuditStore:  auditDB,
		Auditor:     auditor,
		Throttle:    middleware.NewLoginThrottle(client, nil, logger, metrics),
		Logger:      logger,
		Metrics:     metrics,
	})
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func registerTenant(t *testing.T, server *Server, email, tenantName string) (accessToken, refreshToken string) {
	t.Helper()

	rec, body := doJSON(t, server, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":       email,
		"password":    "integration-pass-1",
		"full_name":   "Test User",
		"tenant_name": tenantName,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestAuthLifecycleIntegration(t *testing.T) {
	db := setupPostgresContainer(t)
	server := newIntegrationServer(t, db)

	accessToken, _ := registerTenant(t, server, "alice@example.com", "Acme")

	// The registered owner can read their own profile
	rec, body := doJSON(t, server, http.MethodGet, "/api/v1/auth/me", nil, accessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, true, body["is_superuser"])

	// Password login issues a fresh pair
	rec, body = doJSON(t, server, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "integration-pass-1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	loginRefresh := body["refresh_token"].(string)

	// Rotation: the old secret dies, a new one replaces it
	rec, body = doJSON(t, server, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": loginRefresh,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotatedRefresh := body["refresh_token"].(string)
	require.NotEqual(t, loginRefresh, rotatedRefresh)

	// Replaying the consumed secret fails and revokes the whole family
	rec, _ = doJSON(t, server, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": loginRefresh,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, server, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": rotatedRefresh,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rotated token must die with the replayed family")
}

func TestDefaultRolesBootstrappedIntegration(t *testing.T) {
	db := setupPostgresContainer(t)
	server := newIntegrationServer(t, db)

	accessToken, _ := registerTenant(t, server, "owner@example.com", "Initech")

	rec, _ := doJSON(t, server, http.MethodGet, "/api/v1/roles", nil, accessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var roles []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))

	names := make(map[string]bool)
	defaults := make(map[string]bool)
	for _, role := range roles {
		name := role["name"].(string)
		names[name] = true
		if isDefault, ok := role["is_default"].(bool); ok && isDefault {
			defaults[name] = true
		}
	}
	assert.True(t, names["admin"])
	assert.True(t, names["member"])
	assert.True(t, defaults["member"], "member should be the default role for invites")
}

func TestTenantIsolationIntegration(t *testing.T) {
	db := setupPostgresContainer(t)
	server := newIntegrationServer(t, db)

	aliceToken, _ := registerTenant(t, server, "alice@acme.example", "Acme")
	bobToken, _ := registerTenant(t, server, "bob@initech.example", "Initech")

	// Alice creates a tenant-local role
	rec, created := doJSON(t, server, http.MethodPost, "/api/v1/roles", map[string]string{
		"name":        "auditors",
		"description": "Read-only compliance access",
	}, aliceToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	roleID := int64(created["id"].(float64))

	// Bob's listing never shows it
	rec, _ = doJSON(t, server, http.MethodGet, "/api/v1/roles", nil, bobToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "auditors")

	// Fetching it by ID from the other tenant is indistinguishable from
	// a role that does not exist
	rec, _ = doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/v1/roles/%d", roleID), nil, bobToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Alice still sees it
	rec, fetched := doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/v1/roles/%d", roleID), nil, aliceToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auditors", fetched["name"])
}

func TestCrossTenantListingIntegration(t *testing.T) {
	db := setupPostgresContainer(t)
	server := newIntegrationServer(t, db)

	aliceToken, _ := registerTenant(t, server, "alice@acme.example", "Acme")
	registerTenant(t, server, "bob@initech.example", "Initech")

	// Tenant owners are tenant-scoped superusers, not platform operators;
	// the cross-tenant listing requires an explicit bypass grant
	rec, _ := doJSON(t, server, http.MethodGet, "/api/v1/tenants", nil, aliceToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Self-assigning the seeded admin role grants the wildcard permission,
	// which must still not satisfy the exact tenants:bypass check
	rec, me := doJSON(t, server, http.MethodGet, "/api/v1/auth/me", nil, aliceToken)
	require.Equal(t, http.StatusOK, rec.Code)
	aliceID := int64(me["id"].(float64))

	rec, _ = doJSON(t, server, http.MethodGet, "/api/v1/roles", nil, aliceToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	var adminID int64
	for _, role := range roles {
		if role["name"] == "admin" {
			adminID = int64(role["id"].(float64))
		}
	}
	require.NotZero(t, adminID)

	rec, _ = doJSON(t, server, http.MethodPut,
		fmt.Sprintf("/api/v1/roles/%d/users/%d", adminID, aliceID), nil, aliceToken)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec, _ = doJSON(t, server, http.MethodGet, "/api/v1/tenants", nil, aliceToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
