package authn

import "time"

// User represents a user account. Every user belongs to exactly one tenant.
type User struct {
	ID              int64      `json:"id"`
	TenantID        int64      `json:"tenant_id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"` // Never expose hash
	FullName        string     `json:"full_name,omitempty"`
	IsActive        bool       `json:"is_active"`
	IsSuperuser     bool       `json:"is_superuser"`
	OAuthProvider   *string    `json:"oauth_provider,omitempty"`
	OAuthProviderID *string    `json:"-"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AuthUser is the minimal projection loaded on the request hot path.
// It carries exactly what authorization decisions need.
type AuthUser struct {
	ID          int64 `json:"id"`
	TenantID    int64 `json:"tenant_id"`
	IsActive    bool  `json:"is_active"`
	IsSuperuser bool  `json:"is_superuser"`
}

// TokenPair is returned after login, registration and refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken is the stored record for an opaque refresh secret.
// The plaintext secret is never stored, only its SHA256 hash.
type RefreshToken struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthContext holds the authenticated identity for a request. It is built
// once by the auth middleware and carried in the request context.
type AuthContext struct {
	User AuthUser

	// TokenID is the jti claim of the access token used
	TokenID string
}

// RegisterRequest carries the inputs for tenant bootstrap registration
type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	TenantName string `json:"tenant_name"`
}
