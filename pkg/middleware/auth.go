package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/contextkeys"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/tenants"
)

// Authenticator verifies Bearer access tokens and attaches the caller's
// identity and tenant scope to the request context
type Authenticator struct {
	svc      *authn.Service
	optional bool
}

// NewAuthenticator creates authentication middleware that rejects
// unauthenticated requests
func NewAuthenticator(svc *authn.Service) *Authenticator {
	return &Authenticator{svc: svc}
}

// NewOptionalAuthenticator creates authentication middleware that lets
// anonymous requests through without an AuthContext. A present but
// invalid token is still rejected.
func NewOptionalAuthenticator(svc *authn.Service) *Authenticator {
	return &Authenticator{svc: svc, optional: true}
}

// Handler wraps an HTTP handler with authentication. The token is
// verified once here; downstream handlers read the decoded AuthContext
// from the request context instead of re-parsing the token.
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, r, "Missing or malformed Authorization header")
			return
		}

		authCtx, err := m.svc.VerifyAccess(r.Context(), token)
		if err != nil {
			httputil.WriteUnauthorized(w, r, verifyFailureDetail(err))
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithTenant(ctx, tenants.NewScope(authCtx.User.TenantID))
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(authCtx.User.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verifyFailureDetail maps verification errors to response details
// without leaking which users exist
func verifyFailureDetail(err error) string {
	switch {
	case errors.Is(err, authn.ErrTokenExpired):
		return "Access token expired"
	case errors.Is(err, authn.ErrUserInactive):
		return "Account is inactive"
	default:
		return "Invalid access token"
	}
}

// BearerToken extracts the token from the Authorization header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetAuthContext extracts the decoded auth context from a request
func GetAuthContext(r *http.Request) *authn.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*authn.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// GetScope extracts the tenant scope from a request. ok is false on
// unauthenticated requests.
func GetScope(r *http.Request) (tenants.Scope, bool) {
	scope, ok := r.Context().Value(contextkeys.TenantKey).(tenants.Scope)
	return scope, ok
}
