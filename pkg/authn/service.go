package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkurtis/warden/pkg/observability"
	"github.com/mkurtis/warden/pkg/tenants"
)

// dummyHash is compared against when login hits an unknown email, so a
// missing account costs the same bcrypt work as a wrong password.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

const tenantSlugAttempts = 3

// Service implements authentication flows on top of the store
type Service struct {
	store      *Store
	issuer     *TokenIssuer
	hasher     *PasswordHasher
	refreshTTL time.Duration
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewService creates a new authentication service
func NewService(store *Store, issuer *TokenIssuer, hasher *PasswordHasher, refreshTTL time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:      store,
		issuer:     issuer,
		hasher:     hasher,
		refreshTTL: refreshTTL,
		logger:     logger,
		metrics:    metrics,
	}
}

// Register creates a new tenant with the caller as its superuser owner.
// There is no cross-tenant signup: every registration bootstraps a tenant.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, *TokenPair, error) {
	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, nil, fmt.Errorf("email %q: %w", req.Email, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	user := &User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FullName:     req.FullName,
	}

	// Slug collisions retry with a random suffix. An email conflict can
	// still surface here if two registrations race past the pre-check.
	baseSlug := tenants.Slugify(req.TenantName)
	var tenantID int64
	for attempt := 0; attempt < tenantSlugAttempts; attempt++ {
		slug := baseSlug
		if attempt > 0 {
			slug = baseSlug + "-" + uuid.NewString()[:8]
		}
		tenantID, err = s.store.CreateTenantAndOwner(ctx, req.TenantName, slug, user)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConflict) {
			return nil, nil, err
		}
	}
	if err != nil {
		return nil, nil, err
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"user_id":   user.ID,
	}).Info("tenant registered")

	pair, err := s.issueTokenPair(ctx, user.ID, tenantID)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.LoginAttemptsTotal.WithLabelValues("register", "success").Inc()
	return user, pair, nil
}

// Login authenticates an email and password and issues a token pair.
// Unknown emails and wrong passwords both return ErrUnauthenticated.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = s.hasher.Compare(dummyHash, password)
		s.metrics.LoginAttemptsTotal.WithLabelValues("password", "failure").Inc()
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	if user.PasswordHash == "" {
		// OAuth-provisioned account with no password set
		_ = s.hasher.Compare(dummyHash, password)
		s.metrics.LoginAttemptsTotal.WithLabelValues("password", "failure").Inc()
		return nil, ErrUnauthenticated
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.metrics.LoginAttemptsTotal.WithLabelValues("password", "failure").Inc()
		return nil, ErrUnauthenticated
	}

	if !user.IsActive {
		s.metrics.LoginAttemptsTotal.WithLabelValues("password", "inactive").Inc()
		return nil, ErrUserInactive
	}

	if err := s.store.TouchLastLogin(ctx, user.ID); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to record last login")
	}

	pair, err := s.issueTokenPair(ctx, user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}
	s.metrics.LoginAttemptsTotal.WithLabelValues("password", "success").Inc()
	return pair, nil
}

// IssueTokensFor issues a token pair for an already authenticated user.
// The OAuth coordinator calls this after resolving a provider identity.
func (s *Service) IssueTokensFor(ctx context.Context, user *User) (*TokenPair, error) {
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if err := s.store.TouchLastLogin(ctx, user.ID); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to record last login")
	}
	return s.issueTokenPair(ctx, user.ID, user.TenantID)
}

// Refresh rotates a refresh token: the presented secret is revoked and a
// fresh pair is issued. A replayed secret revokes every live token for the
// user, since replay means the secret leaked.
func (s *Service) Refresh(ctx context.Context, refreshSecret string) (*TokenPair, error) {
	if err := ValidateRefreshFormat(refreshSecret); err != nil {
		s.metrics.RefreshRotationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	tokenHash := HashRefreshSecret(refreshSecret)
	consumed, err := s.store.ConsumeRefreshToken(ctx, tokenHash)
	if errors.Is(err, ErrInvalidToken) {
		return nil, s.handleFailedRotation(ctx, tokenHash)
	}
	if err != nil {
		return nil, err
	}

	authUser, err := s.store.GetAuthUser(ctx, consumed.UserID)
	if err != nil {
		return nil, err
	}
	if !authUser.IsActive {
		s.metrics.RefreshRotationsTotal.WithLabelValues("inactive").Inc()
		return nil, ErrUserInactive
	}

	pair, err := s.issueTokenPair(ctx, authUser.ID, authUser.TenantID)
	if err != nil {
		return nil, err
	}
	s.metrics.RefreshRotationsTotal.WithLabelValues("rotated").Inc()
	return pair, nil
}

// handleFailedRotation distinguishes a replayed secret from an unknown or
// expired one. Both return ErrInvalidToken to the caller.
func (s *Service) handleFailedRotation(ctx context.Context, tokenHash string) error {
	existing, err := s.store.FindRefreshToken(ctx, tokenHash)
	if err != nil {
		s.metrics.RefreshRotationsTotal.WithLabelValues("invalid").Inc()
		return ErrInvalidToken
	}

	if existing.Revoked {
		revoked, revokeErr := s.store.RevokeAllRefreshTokens(ctx, existing.UserID)
		if revokeErr != nil {
			s.logger.WithError(revokeErr).Error("failed to revoke tokens after replay")
		}
		s.logger.WithFields(map[string]interface{}{
			"user_id":        existing.UserID,
			"tokens_revoked": revoked,
		}).Warn("refresh token replay detected, all sessions revoked")
		s.metrics.RefreshRotationsTotal.WithLabelValues("reuse_detected").Inc()
		return ErrInvalidToken
	}

	// Known but expired
	s.metrics.RefreshRotationsTotal.WithLabelValues("expired").Inc()
	return ErrTokenExpired
}

// Logout revokes the presented refresh token. It is idempotent: revoking
// an unknown or already revoked secret succeeds.
func (s *Service) Logout(ctx context.Context, refreshSecret string) error {
	if err := ValidateRefreshFormat(refreshSecret); err != nil {
		return nil
	}
	return s.store.RevokeRefreshToken(ctx, HashRefreshSecret(refreshSecret))
}

// LogoutAll revokes every live refresh token for a user
func (s *Service) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	return s.store.RevokeAllRefreshTokens(ctx, userID)
}

// CurrentUser loads the full profile of an authenticated user
func (s *Service) CurrentUser(ctx context.Context, tenantID, userID int64) (*User, error) {
	return s.store.GetUserByID(ctx, tenantID, userID)
}

// VerifyAccess verifies an access token and loads the live account state.
// The database is the source of truth for is_active and is_superuser, so
// deactivation takes effect on the next request, not at token expiry.
func (s *Service) VerifyAccess(ctx context.Context, tokenString string) (*AuthContext, error) {
	claims, err := s.issuer.VerifyAccessToken(tokenString)
	if err != nil {
		s.metrics.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	userID, err := claims.UserID()
	if err != nil {
		s.metrics.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	authUser, err := s.store.GetAuthUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		s.metrics.TokenVerificationsTotal.WithLabelValues("unknown_user").Inc()
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	// A tenant mismatch means the token predates an account move
	if authUser.TenantID != claims.TenantID {
		s.metrics.TokenVerificationsTotal.WithLabelValues("tenant_mismatch").Inc()
		return nil, ErrInvalidToken
	}

	if !authUser.IsActive {
		s.metrics.TokenVerificationsTotal.WithLabelValues("inactive").Inc()
		return nil, ErrUserInactive
	}

	s.metrics.TokenVerificationsTotal.WithLabelValues("valid").Inc()
	return &AuthContext{User: *authUser, TokenID: claims.ID}, nil
}

func (s *Service) issueTokenPair(ctx context.Context, userID, tenantID int64) (*TokenPair, error) {
	accessToken, err := s.issuer.IssueAccessToken(userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshSecret, refreshHash, err := NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	if _, err := s.store.InsertRefreshToken(ctx, userID, refreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	s.metrics.TokensIssuedTotal.WithLabelValues("access").Inc()
	s.metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshSecret,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}
