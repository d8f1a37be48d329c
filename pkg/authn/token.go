package authn

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// RefreshPrefix identifies warden refresh secrets
	RefreshPrefix = "warden_"
	// RefreshSecretLength is the total length of random bytes (32 bytes = 256 bits)
	RefreshSecretLength = 32

	// tokenTypeAccess is the typ claim of access tokens
	tokenTypeAccess = "access"
)

// Claims are the access token claims. The tenant ID travels inside the
// token so request handling never queries the database to establish tenancy.
type Claims struct {
	TenantID  int64  `json:"tid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies access tokens and mints refresh secrets
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
}

// NewTokenIssuer creates a token issuer. The secret signs access tokens
// with HS256.
func NewTokenIssuer(secret string, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
	}
}

// AccessTTL returns the configured access token lifetime
func (ti *TokenIssuer) AccessTTL() time.Duration {
	return ti.accessTTL
}

// IssueAccessToken creates a signed access token for the user
func (ti *TokenIssuer) IssueAccessToken(userID, tenantID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID:  tenantID,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates a token and returns its claims.
// Returns ErrTokenExpired for expired tokens and ErrInvalidToken for
// everything else that fails, so callers cannot leak parsing details.
func (ti *TokenIssuer) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.TenantID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserID parses the subject claim into a user ID
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// NewRefreshSecret creates a new opaque refresh secret.
// Format: warden_<base64url(32 random bytes)>
// The returned hash is what gets stored; the secret is shown exactly once.
func NewRefreshSecret() (secret string, secretHash string, err error) {
	randomBytes := make([]byte, RefreshSecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret = RefreshPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return secret, HashRefreshSecret(secret), nil
}

// HashRefreshSecret computes the SHA256 hash of a refresh secret for lookup
func HashRefreshSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// ValidateRefreshFormat checks if a refresh secret has the correct format
func ValidateRefreshFormat(secret string) error {
	if !strings.HasPrefix(secret, RefreshPrefix) {
		return ErrInvalidToken
	}

	encodedPart := strings.TrimPrefix(secret, RefreshPrefix)
	if len(encodedPart) == 0 {
		return ErrInvalidToken
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return ErrInvalidToken
	}

	return nil
}
