package authn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store handles user and refresh token persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new authentication store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// userColumns is the canonical column list for scanning full users
const userColumns = `id, tenant_id, email, password_hash, full_name, is_active, is_superuser,
       oauth_provider, oauth_provider_id, last_login_at, created_at, updated_at`

// CreateTenantAndOwner creates a tenant and its first user in one
// transaction. The first user is always a superuser of the new tenant.
// passwordHash may be empty for OAuth-provisioned accounts.
func (s *Store) CreateTenantAndOwner(ctx context.Context, tenantName, tenantSlug string, user *User) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	var tenantID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tenants (name, slug, is_active, created_at, updated_at)
		VALUES ($1, $2, true, $3, $4)
		RETURNING id
	`, tenantName, tenantSlug, now, now).Scan(&tenantID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("tenant slug %q: %w", tenantSlug, ErrConflict)
		}
		return 0, fmt.Errorf("failed to create tenant: %w", err)
	}

	user.TenantID = tenantID
	user.IsActive = true
	user.IsSuperuser = true

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (tenant_id, email, password_hash, full_name, is_active, is_superuser,
		                   oauth_provider, oauth_provider_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, tenantID, user.Email, user.PasswordHash, user.FullName, user.IsActive, user.IsSuperuser,
		user.OAuthProvider, user.OAuthProviderID, now, now).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("email %q: %w", user.Email, ErrConflict)
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return tenantID, nil
}

// GetUserByEmail retrieves a user by email. Email is unique system-wide,
// so login does not need a tenant identifier.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetUserByID retrieves a user by ID within a tenant
func (s *Store) GetUserByID(ctx context.Context, tenantID, userID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND tenant_id = $2`
	return s.scanUser(s.db.QueryRowContext(ctx, query, userID, tenantID))
}

// GetUserByProvider retrieves a user by OAuth identity
func (s *Store) GetUserByProvider(ctx context.Context, provider, providerID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oauth_provider = $1 AND oauth_provider_id = $2`
	return s.scanUser(s.db.QueryRowContext(ctx, query, provider, providerID))
}

// GetAuthUser loads the hot-path projection for token verification
func (s *Store) GetAuthUser(ctx context.Context, userID int64) (*AuthUser, error) {
	query := `SELECT id, tenant_id, is_active, is_superuser FROM users WHERE id = $1`

	var u AuthUser
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&u.ID,
		&u.TenantID,
		&u.IsActive,
		&u.IsSuperuser,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth user: %w", err)
	}
	return &u, nil
}

// LinkOAuthIdentity attaches an OAuth identity to an existing user
func (s *Store) LinkOAuthIdentity(ctx context.Context, userID int64, provider, providerID string) error {
	query := `
		UPDATE users
		SET oauth_provider = $1, oauth_provider_id = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := s.db.ExecContext(ctx, query, provider, providerID, time.Now(), userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("oauth identity: %w", ErrConflict)
		}
		return fmt.Errorf("failed to link oauth identity: %w", err)
	}
	return nil
}

// TouchLastLogin records a successful login timestamp
func (s *Store) TouchLastLogin(ctx context.Context, userID int64) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// InsertRefreshToken stores the hash of a newly minted refresh secret
func (s *Store) InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (*RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, false, $4)
		RETURNING id
	`

	rt := &RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	err := s.db.QueryRowContext(ctx, query, userID, tokenHash, expiresAt, rt.CreatedAt).Scan(&rt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return rt, nil
}

// ConsumeRefreshToken atomically revokes a live refresh token and returns
// it. The single conditional UPDATE makes rotation race-free: when two
// requests replay the same secret, exactly one matches the predicate.
func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true
		WHERE token_hash = $1 AND NOT revoked AND expires_at > NOW()
		RETURNING id, user_id, token_hash, expires_at, revoked, created_at
	`

	var rt RefreshToken
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.Revoked,
		&rt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	return &rt, nil
}

// FindRefreshToken looks up a refresh token by hash regardless of its
// state. Rotation uses it to tell a replayed secret apart from garbage.
func (s *Store) FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var rt RefreshToken
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.Revoked,
		&rt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken revokes a single refresh token by hash. Revoking an
// unknown or already revoked token is not an error, so logout is idempotent.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	query := `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`
	if _, err := s.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllRefreshTokens revokes every live refresh token for a user
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND NOT revoked`
	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count revoked tokens: %w", err)
	}
	return count, nil
}

// DeleteExpiredRefreshTokens removes tokens past expiry. Used by the janitor.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < NOW()`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted tokens: %w", err)
	}
	return count, nil
}

// CountActiveRefreshTokens counts live refresh tokens for metrics
func (s *Store) CountActiveRefreshTokens(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM refresh_tokens WHERE NOT revoked AND expires_at > NOW()`

	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count refresh tokens: %w", err)
	}
	return count, nil
}

// scanUser scans a full user row
func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var user User
	var fullName sql.NullString
	var oauthProvider, oauthProviderID sql.NullString
	var lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.PasswordHash,
		&fullName,
		&user.IsActive,
		&user.IsSuperuser,
		&oauthProvider,
		&oauthProviderID,
		&lastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if fullName.Valid {
		user.FullName = fullName.String
	}
	if oauthProvider.Valid {
		p := oauthProvider.String
		user.OAuthProvider = &p
	}
	if oauthProviderID.Valid {
		pid := oauthProviderID.String
		user.OAuthProviderID = &pid
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}

	return &user, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
