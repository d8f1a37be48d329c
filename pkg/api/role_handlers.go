package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/middleware"
	"github.com/mkurtis/warden/pkg/rbac"
	"github.com/mkurtis/warden/pkg/tenants"
)

// RoleHandlers handles role administration within the caller's tenant
type RoleHandlers struct {
	store   *rbac.Store
	checker *rbac.Checker
	auditor audit.Logger
}

// NewRoleHandlers creates the role handlers
func NewRoleHandlers(store *rbac.Store, checker *rbac.Checker, auditor audit.Logger) *RoleHandlers {
	return &RoleHandlers{
		store:   store,
		checker: checker,
		auditor: auditor,
	}
}

// RegisterRoutes registers role routes on the authenticated router, each
// gated by the matching permission
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	read := rbac.RequirePermissions(h.checker, rbac.CombinatorAny, rbac.Pair{Resource: "roles", Action: "read"})
	write := rbac.RequirePermissions(h.checker, rbac.CombinatorAny, rbac.Pair{Resource: "roles", Action: "write"})
	del := rbac.RequirePermissions(h.checker, rbac.CombinatorAny, rbac.Pair{Resource: "roles", Action: "delete"})
	assign := rbac.RequirePermissions(h.checker, rbac.CombinatorAny, rbac.Pair{Resource: "roles", Action: "assign"})

	router.Handle("/permissions", read(http.HandlerFunc(h.listPermissions))).Methods("GET")
	router.Handle("/roles", read(http.HandlerFunc(h.listRoles))).Methods("GET")
	router.Handle("/roles", write(http.HandlerFunc(h.createRole))).Methods("POST")
	router.Handle("/roles/{id:[0-9]+}", read(http.HandlerFunc(h.getRole))).Methods("GET")
	router.Handle("/roles/{id:[0-9]+}", write(http.HandlerFunc(h.updateRole))).Methods("PUT")
	router.Handle("/roles/{id:[0-9]+}", del(http.HandlerFunc(h.deleteRole))).Methods("DELETE")
	router.Handle("/roles/{id:[0-9]+}/default", write(http.HandlerFunc(h.setDefaultRole))).Methods("PUT")
	router.Handle("/roles/{id:[0-9]+}/permissions", read(http.HandlerFunc(h.rolePermissions))).Methods("GET")
	router.Handle("/roles/{id:[0-9]+}/permissions/{permission_id:[0-9]+}", write(http.HandlerFunc(h.attachPermission))).Methods("PUT")
	router.Handle("/roles/{id:[0-9]+}/permissions/{permission_id:[0-9]+}", write(http.HandlerFunc(h.detachPermission))).Methods("DELETE")
	router.Handle("/roles/{id:[0-9]+}/users/{user_id:[0-9]+}", assign(http.HandlerFunc(h.assignRole))).Methods("PUT")
	router.Handle("/roles/{id:[0-9]+}/users/{user_id:[0-9]+}", assign(http.HandlerFunc(h.unassignRole))).Methods("DELETE")
	router.Handle("/users/{user_id:[0-9]+}/roles", read(http.HandlerFunc(h.userRoles))).Methods("GET")
}

// requestScope pulls the tenant scope the auth middleware established
func requestScope(w http.ResponseWriter, r *http.Request) (tenants.Scope, bool) {
	scope, ok := middleware.GetScope(r)
	if !ok {
		httputil.WriteUnauthorized(w, r, "Authentication required")
		return tenants.Scope{}, false
	}
	return scope, true
}

// listPermissions handles GET /permissions
func (h *RoleHandlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// listRoles handles GET /roles
func (h *RoleHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	roles, err := h.store.ListRoles(r.Context(), scope)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// createRole handles POST /roles
func (h *RoleHandlers) createRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrProblem(w, r, &req) {
		return
	}

	fieldErrs := httputil.FieldErrors{}
	fieldErrs.RequireNonEmpty("name", req.Name)
	if fieldErrs.WriteIfAny(w, r) {
		return
	}

	role := &rbac.Role{
		TenantID:    scope.TenantID(),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.CreateRole(r.Context(), scope, role); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "role created: "+role.Name)
	httputil.WriteCreated(w, role)
}

// getRole handles GET /roles/{id}
func (h *RoleHandlers) getRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), scope, roleID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// updateRole handles PUT /roles/{id}
func (h *RoleHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrProblem(w, r, &req) {
		return
	}

	role, err := h.store.GetRole(r.Context(), scope, roleID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.Name != "" {
		role.Name = req.Name
	}
	role.Description = req.Description

	if err := h.store.UpdateRole(r.Context(), scope, role); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "role updated: "+role.Name)
	httputil.WriteSuccess(w, role)
}

// deleteRole handles DELETE /roles/{id}
func (h *RoleHandlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteRole(r.Context(), scope, roleID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "role deleted")
	httputil.WriteNoContent(w)
}

// setDefaultRole handles PUT /roles/{id}/default
func (h *RoleHandlers) setDefaultRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.SetDefaultRole(r.Context(), scope, roleID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "default role changed")
	httputil.WriteNoContent(w)
}

// rolePermissions handles GET /roles/{id}/permissions
func (h *RoleHandlers) rolePermissions(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}

	perms, err := h.store.GetRolePermissions(r.Context(), scope, roleID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// attachPermission handles PUT /roles/{id}/permissions/{permission_id}
func (h *RoleHandlers) attachPermission(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathInt64OrProblem(w, r, "permission_id")
	if !ok {
		return
	}

	if err := h.store.AttachPermission(r.Context(), scope, roleID, permissionID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "permission attached")
	httputil.WriteNoContent(w)
}

// detachPermission handles DELETE /roles/{id}/permissions/{permission_id}
func (h *RoleHandlers) detachPermission(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathInt64OrProblem(w, r, "permission_id")
	if !ok {
		return
	}

	if err := h.store.DetachPermission(r.Context(), scope, roleID, permissionID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "permission detached")
	httputil.WriteNoContent(w)
}

// assignRole handles PUT /roles/{id}/users/{user_id}
func (h *RoleHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrProblem(w, r, "user_id")
	if !ok {
		return
	}

	var grantedBy *int64
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		grantedBy = &authCtx.User.ID
	}

	if err := h.store.AssignRole(r.Context(), scope, userID, roleID, grantedBy); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "role assigned")
	httputil.WriteNoContent(w)
}

// unassignRole handles DELETE /roles/{id}/users/{user_id}
func (h *RoleHandlers) unassignRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrProblem(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.store.UnassignRole(r.Context(), scope, userID, roleID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.auditRoleChange(r, "role unassigned")
	httputil.WriteNoContent(w)
}

// userRoles handles GET /users/{user_id}/roles
func (h *RoleHandlers) userRoles(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrProblem(w, r, "user_id")
	if !ok {
		return
	}

	roles, err := h.store.GetUserRoles(r.Context(), scope, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

func (h *RoleHandlers) auditRoleChange(r *http.Request, message string) {
	event := audit.NewEvent(r.Context(), audit.EventTypeAuthzRoleChange, audit.EventStatusSuccess)
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		event.UserID = &authCtx.User.ID
		event.TenantID = &authCtx.User.TenantID
	}
	event.Message = message
	h.auditor.Log(r.Context(), event)
}
