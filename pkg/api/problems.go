package api

import (
	"errors"
	"net/http"

	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/oauth"
	"github.com/mkurtis/warden/pkg/observability"
	"github.com/mkurtis/warden/pkg/rbac"
	"github.com/mkurtis/warden/pkg/tenants"
)

// writeDomainError is the single boundary turning domain errors into
// problem documents. Anything unrecognized is a 500 with a generic body;
// the detail stays in the server log.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authn.ErrUnauthenticated):
		httputil.WriteUnauthorized(w, r, "Invalid email or password")
	case errors.Is(err, authn.ErrTokenExpired):
		httputil.WriteUnauthorized(w, r, "Token expired")
	case errors.Is(err, authn.ErrInvalidToken):
		httputil.WriteUnauthorized(w, r, "Invalid token")
	case errors.Is(err, authn.ErrUserInactive):
		httputil.WriteUnauthorized(w, r, "Account is inactive")
	case errors.Is(err, authn.ErrConflict), errors.Is(err, rbac.ErrConflict):
		httputil.WriteConflict(w, r, "Resource already exists")
	case errors.Is(err, authn.ErrNotFound), errors.Is(err, rbac.ErrNotFound), errors.Is(err, tenants.ErrNotFound):
		httputil.WriteNotFound(w, r, "Resource not found")
	case errors.Is(err, rbac.ErrPermissionDenied), errors.Is(err, tenants.ErrBypassDenied):
		httputil.WriteForbidden(w, r, "Insufficient permissions")
	case errors.Is(err, oauth.ErrUnknownProvider):
		httputil.WriteNotFound(w, r, "Unknown OAuth provider")
	case errors.Is(err, oauth.ErrStateInvalid):
		httputil.WriteBadRequest(w, r, "OAuth state is invalid or expired, restart the flow")
	case errors.Is(err, oauth.ErrProviderFailure), errors.Is(err, oauth.ErrIncompleteProfile):
		httputil.WriteProblem(w, r, httputil.NewProblem(http.StatusBadGateway, "oauth-provider", "OAuth provider error").
			WithDetail("The identity provider did not complete the flow"))
	case errors.Is(err, tenants.ErrScopeViolation):
		// A scope violation is an internal bug, never a client-visible
		// tenancy detail
		observability.FromContext(r.Context()).WithError(err).Error("tenant scope violation reached the HTTP boundary")
		httputil.WriteInternalError(w, r, err)
	default:
		httputil.WriteInternalError(w, r, err)
	}
}
