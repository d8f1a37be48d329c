package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/middleware"
	"github.com/mkurtis/warden/pkg/rbac"
	"github.com/mkurtis/warden/pkg/tenants"
)

// TenantHandlers handles tenant administration. All routes operate on the
// caller's own tenant except the cross-tenant listing, which goes through
// the guard's audited bypass.
type TenantHandlers struct {
	store   *tenants.Store
	guard   *tenants.Guard
	checker *rbac.Checker
}

// NewTenantHandlers creates the tenant handlers
func NewTenantHandlers(store *tenants.Store, guard *tenants.Guard, checker *rbac.Checker) *TenantHandlers {
	return &TenantHandlers{
		store:   store,
		guard:   guard,
		checker: checker,
	}
}

// RegisterRoutes registers tenant routes on the authenticated router
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	read := rbac.RequirePermissions(h.checker, rbac.CombinatorAny, rbac.Pair{Resource: "tenants", Action: "read"})
	write := rbac.RequirePermissions(h.checker, rbac.CombinatorAny, rbac.Pair{Resource: "tenants", Action: "write"})

	router.Handle("/tenant", read(http.HandlerFunc(h.getTenant))).Methods("GET")
	router.Handle("/tenant", write(http.HandlerFunc(h.updateTenant))).Methods("PUT")
	router.Handle("/tenant/settings", write(http.HandlerFunc(h.updateSettings))).Methods("PUT")
	router.Handle("/tenant", write(http.HandlerFunc(h.deactivateTenant))).Methods("DELETE")

	// The cross-tenant list checks tenants:bypass itself via the guard,
	// so no static permission wrapper here
	router.HandleFunc("/tenants", h.listTenants).Methods("GET")
}

// getTenant handles GET /tenant
func (h *TenantHandlers) getTenant(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	tenant, err := h.store.Get(r.Context(), scope, scope.TenantID())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tenant)
}

// updateTenant handles PUT /tenant
func (h *TenantHandlers) updateTenant(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrProblem(w, r, &req) {
		return
	}

	fieldErrs := httputil.FieldErrors{}
	fieldErrs.RequireNonEmpty("name", req.Name)
	if fieldErrs.WriteIfAny(w, r) {
		return
	}

	if err := h.store.UpdateName(r.Context(), scope, scope.TenantID(), req.Name); err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// updateSettings handles PUT /tenant/settings
func (h *TenantHandlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var settings map[string]interface{}
	if !httputil.ParseJSONOrProblem(w, r, &settings) {
		return
	}

	if err := h.store.UpdateSettings(r.Context(), scope, scope.TenantID(), settings); err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// deactivateTenant handles DELETE /tenant
func (h *TenantHandlers) deactivateTenant(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	if err := h.store.Deactivate(r.Context(), scope, scope.TenantID()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listTenants handles GET /tenants, a cross-tenant read available only
// through the guard's audited bypass
func (h *TenantHandlers) listTenants(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, r, "Authentication required")
		return
	}

	bypass, err := h.guard.Bypass(r.Context(), authCtx.User.ID, authCtx.User.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	all, err := h.store.List(r.Context(), bypass)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, all)
}
