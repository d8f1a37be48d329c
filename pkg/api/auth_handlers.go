package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/middleware"
	"github.com/mkurtis/warden/pkg/observability"
	"github.com/mkurtis/warden/pkg/rbac"
	"github.com/mkurtis/warden/pkg/tenants"
)

// AuthHandlers handles credential and session HTTP requests
type AuthHandlers struct {
	auth    *authn.Service
	rbac    *rbac.Store
	auditor audit.Logger
	logger  *observability.Logger
}

// NewAuthHandlers creates the auth handlers
func NewAuthHandlers(auth *authn.Service, rbacStore *rbac.Store, auditor audit.Logger, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		auth:    auth,
		rbac:    rbacStore,
		auditor: auditor,
		logger:  logger,
	}
}

// RegisterPublicRoutes registers the unauthenticated credential routes
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods("POST")
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/refresh", h.refresh).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
}

// RegisterProtectedRoutes registers routes requiring a verified access token
func (h *AuthHandlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/auth/logout-all", h.logoutAll).Methods("POST")
	router.HandleFunc("/auth/me", h.me).Methods("GET")
}

// register handles POST /auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req authn.RegisterRequest
	if !httputil.ParseJSONOrProblem(w, r, &req) {
		return
	}

	fieldErrs := httputil.FieldErrors{}
	fieldErrs.RequireNonEmpty("email", req.Email)
	fieldErrs.RequireNonEmpty("password", req.Password)
	fieldErrs.RequireNonEmpty("tenant_name", req.TenantName)
	if len(req.Password) < 8 {
		fieldErrs.Add("password", "must be at least 8 characters")
	}
	if fieldErrs.WriteIfAny(w, r) {
		return
	}

	user, pair, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	// The owner is a superuser already; bootstrapping the tenant's
	// default roles here means later invites land on "member"
	scope := tenants.NewScope(user.TenantID)
	if err := rbac.BootstrapTenantRoles(r.Context(), h.rbac, scope); err != nil {
		h.logger.WithError(err).WithField("tenant_id", user.TenantID).Error("failed to bootstrap tenant roles")
	}

	audit.Authentication(r.Context(), h.auditor, audit.EventTypeAuthRegister, audit.EventStatusSuccess, &user.ID, "tenant registered")

	httputil.WriteCreated(w, tokenResponse{User: user, TokenPair: pair})
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrProblem(w, r, &req) {
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, authn.ErrUnauthenticated) || errors.Is(err, authn.ErrUserInactive) {
			audit.Authentication(r.Context(), h.auditor, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, nil, "login failed")
		}
		writeDomainError(w, r, err)
		return
	}

	audit.Authentication(r.Context(), h.auditor, audit.EventTypeAuthLogin, audit.EventStatusSuccess, nil, "password login")
	httputil.WriteSuccess(w, pair)
}

// refresh handles POST /auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !httputil.ParseJSONOrProblem(w, r, &req) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, pair)
}

// logout handles POST /auth/logout. Always 204: revoking an already
// dead token is not an error worth telling an attacker about.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !httputil.ParseJSONOrProblem(w, r, &req) {
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeDomainError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}

// logoutAll handles POST /auth/logout-all
func (h *AuthHandlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, r, "Authentication required")
		return
	}

	revoked, err := h.auth.LogoutAll(r.Context(), authCtx.User.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	audit.Authentication(r.Context(), h.auditor, audit.EventTypeAuthLogout, audit.EventStatusSuccess, &authCtx.User.ID, "all sessions revoked")
	httputil.WriteSuccess(w, map[string]int64{"revoked_sessions": revoked})
}

// me handles GET /auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, r, "Authentication required")
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), authCtx.User.TenantID, authCtx.User.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

// tokenResponse is the registration response body
type tokenResponse struct {
	User *authn.User `json:"user"`
	*authn.TokenPair
}
