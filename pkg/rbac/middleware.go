package rbac

import (
	"errors"
	"net/http"

	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/contextkeys"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/observability"
)

// RequirePermissions gates a handler behind a permission check. The auth
// middleware must run first so the request carries an AuthContext.
func RequirePermissions(checker *Checker, combinator Combinator, pairs ...Pair) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*authn.AuthContext)
			if !ok || authCtx == nil {
				httputil.WriteUnauthorized(w, r, "Authentication required")
				return
			}

			err := checker.Require(r.Context(), authCtx.User, combinator, pairs)
			if errors.Is(err, ErrPermissionDenied) {
				httputil.WriteForbidden(w, r, "Insufficient permissions")
				return
			}
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("permission check failed")
				httputil.WriteInternalError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
