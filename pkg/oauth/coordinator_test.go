package oauth

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/observability"
)

// fakeProvider is a scripted Provider for driving the coordinator
type fakeProvider struct {
	name        string
	exchangeErr error
	userInfo    *UserInfo
	userInfoErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, _ string) (*oauth2.Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "provider-token"}, nil
}

func (p *fakeProvider) FetchUserInfo(_ context.Context, _ *oauth2.Token) (*UserInfo, error) {
	if p.userInfoErr != nil {
		return nil, p.userInfoErr
	}
	return p.userInfo, nil
}

func githubProfile() *UserInfo {
	return &UserInfo{
		Provider:   "github",
		ProviderID: "12345",
		Email:      "octocat@example.com",
		Name:       "Octo Cat",
	}
}

func newTestCoordinator(t *testing.T, provider Provider) (*Coordinator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	states, _ := newTestStateStore(t)
	store := authn.NewStore(db)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	auth := authn.NewService(
		store,
		authn.NewTokenIssuer("coordinator-test-secret", 15*time.Minute),
		authn.NewPasswordHasher(4),
		7*24*time.Hour,
		logger,
		metrics,
	)

	return NewCoordinator(NewRegistry(provider), states, store, auth, 5*time.Second, logger, metrics), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "email", "password_hash", "full_name", "is_active", "is_superuser",
		"oauth_provider", "oauth_provider_id", "last_login_at", "created_at", "updated_at",
	})
}

func existingUserRow(id, tenantID int64, active bool) *sqlmock.Rows {
	now := time.Now()
	return userRows().AddRow(
		id, tenantID, "octocat@example.com", "", "Octo Cat", active, true,
		"github", "12345", nil, now, now,
	)
}

func expectIssueTokens(mock sqlmock.Sqlmock, userID int64) {
	mock.ExpectExec("UPDATE users SET last_login_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
}

func beginState(t *testing.T, coord *Coordinator, provider string) string {
	t.Helper()
	url, err := coord.Begin(context.Background(), provider, "https://app.example.com/done", nil)
	require.NoError(t, err)
	return url[len("https://idp.example.com/authorize?state="):]
}

func TestBeginUnknownProvider(t *testing.T) {
	coord, _ := newTestCoordinator(t, &fakeProvider{name: "github"})

	_, err := coord.Begin(context.Background(), "google", "", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCompleteExistingIdentity(t *testing.T) {
	coord, mock := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})
	state := beginState(t, coord, "github")

	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WithArgs("github", "12345").
		WillReturnRows(existingUserRow(7, 3, true))
	expectIssueTokens(mock, 7)

	user, pair, redirect, err := coord.Complete(context.Background(), "github", "code", state)
	require.NoError(t, err)

	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, int64(3), user.TenantID)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, "https://app.example.com/done", redirect)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteInvalidState(t *testing.T) {
	coord, _ := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})

	_, _, _, err := coord.Complete(context.Background(), "github", "code", "never-issued")
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestCompleteStateReplay(t *testing.T) {
	coord, mock := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})
	state := beginState(t, coord, "github")

	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WillReturnRows(existingUserRow(7, 3, true))
	expectIssueTokens(mock, 7)

	_, _, _, err := coord.Complete(context.Background(), "github", "code", state)
	require.NoError(t, err)

	_, _, _, err = coord.Complete(context.Background(), "github", "code", state)
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestCompleteExchangeFailure(t *testing.T) {
	coord, _ := newTestCoordinator(t, &fakeProvider{
		name:        "github",
		exchangeErr: errors.New("upstream 500"),
	})
	state := beginState(t, coord, "github")

	_, _, _, err := coord.Complete(context.Background(), "github", "bad-code", state)
	assert.ErrorIs(t, err, ErrProviderFailure)
}

func TestCompleteIncompleteProfile(t *testing.T) {
	coord, _ := newTestCoordinator(t, &fakeProvider{
		name:        "github",
		userInfoErr: ErrIncompleteProfile,
	})
	state := beginState(t, coord, "github")

	_, _, _, err := coord.Complete(context.Background(), "github", "code", state)
	assert.ErrorIs(t, err, ErrIncompleteProfile)
}

func TestCompleteLinksByEmail(t *testing.T) {
	coord, mock := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})
	state := beginState(t, coord, "github")

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WillReturnRows(userRows())
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("octocat@example.com").
		WillReturnRows(userRows().AddRow(
			7, 3, "octocat@example.com", "$2a$04$hash", "Octo Cat", true, false,
			nil, nil, nil, now, now,
		))
	mock.ExpectExec("UPDATE users").
		WithArgs("github", "12345", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectIssueTokens(mock, 7)

	user, _, _, err := coord.Complete(context.Background(), "github", "code", state)
	require.NoError(t, err)

	require.NotNil(t, user.OAuthProvider)
	assert.Equal(t, "github", *user.OAuthProvider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteProvisionsNewTenant(t *testing.T) {
	coord, mock := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})
	state := beginState(t, coord, "github")

	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WillReturnRows(userRows())
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WillReturnRows(userRows())
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tenants")).
		WithArgs("Octo Cat's Workspace", "octo-cat-s-workspace", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()
	expectIssueTokens(mock, 7)

	user, pair, _, err := coord.Complete(context.Background(), "github", "code", state)
	require.NoError(t, err)

	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, int64(3), user.TenantID)
	assert.True(t, user.IsSuperuser, "the first user owns the new tenant")
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteDuplicateCallbackRace(t *testing.T) {
	coord, mock := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})
	state := beginState(t, coord, "github")

	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WillReturnRows(userRows())
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WillReturnRows(userRows())
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tenants")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	// The racing callback won, so the identity now resolves
	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WillReturnRows(existingUserRow(7, 3, true))
	expectIssueTokens(mock, 7)

	user, _, _, err := coord.Complete(context.Background(), "github", "code", state)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteInactiveUser(t *testing.T) {
	coord, mock := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})
	state := beginState(t, coord, "github")

	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WillReturnRows(existingUserRow(7, 3, false))

	_, _, _, err := coord.Complete(context.Background(), "github", "code", state)
	assert.ErrorIs(t, err, authn.ErrUserInactive)
}

func TestCompleteLinkRequestedUser(t *testing.T) {
	coord, mock := newTestCoordinator(t, &fakeProvider{name: "github", userInfo: githubProfile()})

	userID := int64(7)
	url, err := coord.Begin(context.Background(), "github", "", &userID)
	require.NoError(t, err)
	state := url[len("https://idp.example.com/authorize?state="):]

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE oauth_provider").
		WillReturnRows(userRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tenant_id, is_active, is_superuser FROM users")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "is_active", "is_superuser"}).
			AddRow(7, 3, true, false))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(int64(7), int64(3)).
		WillReturnRows(userRows().AddRow(
			7, 3, "alice@example.com", "$2a$04$hash", "Alice", true, false,
			nil, nil, nil, now, now,
		))
	mock.ExpectExec("UPDATE users").
		WithArgs("github", "12345", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectIssueTokens(mock, 7)

	user, _, _, err := coord.Complete(context.Background(), "github", "code", state)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	require.NotNil(t, user.OAuthProviderID)
	assert.Equal(t, "12345", *user.OAuthProviderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
