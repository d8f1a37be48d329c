package api

import (
	"net/http"
	"net/url"
	"sort"

	"github.com/gorilla/mux"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/middleware"
	"github.com/mkurtis/warden/pkg/oauth"
)

// OAuthHandlers handles the OAuth login and account linking flow
type OAuthHandlers struct {
	coordinator *oauth.Coordinator
	registry    *oauth.Registry
	auditor     audit.Logger
}

// NewOAuthHandlers creates the OAuth handlers
func NewOAuthHandlers(coordinator *oauth.Coordinator, registry *oauth.Registry, auditor audit.Logger) *OAuthHandlers {
	return &OAuthHandlers{
		coordinator: coordinator,
		registry:    registry,
		auditor:     auditor,
	}
}

// RegisterRoutes registers the OAuth routes. Authorize and callback are
// public; an already signed-in caller hitting authorize links the
// provider identity to their account instead of logging in, which is why
// the route group runs behind the optional authenticator.
func (h *OAuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/oauth/providers", h.listProviders).Methods("GET")
	router.HandleFunc("/auth/oauth/{provider}/authorize", h.authorize).Methods("GET")
	router.HandleFunc("/auth/oauth/{provider}/callback", h.callback).Methods("GET")
}

// listProviders handles GET /auth/oauth/providers
func (h *OAuthHandlers) listProviders(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	sort.Strings(names)
	httputil.WriteSuccess(w, map[string][]string{"providers": names})
}

// authorize handles GET /auth/oauth/{provider}/authorize
func (h *OAuthHandlers) authorize(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	redirectURI := r.URL.Query().Get("redirect_uri")

	// A signed-in caller is linking, not logging in
	var userID *int64
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		userID = &authCtx.User.ID
	}

	authURL, err := h.coordinator.Begin(r.Context(), provider, redirectURI, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback handles GET /auth/oauth/{provider}/callback
func (h *OAuthHandlers) callback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		audit.Authentication(r.Context(), h.auditor, audit.EventTypeOAuthFailed, audit.EventStatusFailure, nil, "provider returned "+errCode)
		httputil.WriteBadRequest(w, r, "The identity provider reported: "+errCode)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		httputil.WriteBadRequest(w, r, "Missing code or state parameter")
		return
	}

	user, pair, redirectURI, err := h.coordinator.Complete(r.Context(), provider, code, state)
	if err != nil {
		audit.Authentication(r.Context(), h.auditor, audit.EventTypeOAuthFailed, audit.EventStatusFailure, nil, "oauth callback failed")
		writeDomainError(w, r, err)
		return
	}

	audit.Authentication(r.Context(), h.auditor, audit.EventTypeOAuthLogin, audit.EventStatusSuccess, &user.ID, "oauth login via "+provider)

	// Browser flows asked for a final destination; tokens travel in the
	// fragment so they never hit server logs on the other side
	if redirectURI != "" {
		fragment := url.Values{
			"access_token":  {pair.AccessToken},
			"refresh_token": {pair.RefreshToken},
			"token_type":    {pair.TokenType},
		}
		http.Redirect(w, r, redirectURI+"#"+fragment.Encode(), http.StatusFound)
		return
	}

	httputil.WriteSuccess(w, tokenResponse{User: user, TokenPair: pair})
}
