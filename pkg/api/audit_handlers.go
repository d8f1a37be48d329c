package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/rbac"
)

// AuditHandlers exposes the persisted audit trail, scoped to the
// caller's tenant
type AuditHandlers struct {
	store   *audit.DBLogger
	checker *rbac.Checker
}

// NewAuditHandlers creates the audit handlers
func NewAuditHandlers(store *audit.DBLogger, checker *rbac.Checker) *AuditHandlers {
	return &AuditHandlers{
		store:   store,
		checker: checker,
	}
}

// RegisterRoutes registers the audit routes on the authenticated router
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	read := rbac.RequirePermissions(h.checker, rbac.CombinatorAny, rbac.Pair{Resource: "audit", Action: "read"})
	router.Handle("/audit", read(http.HandlerFunc(h.queryEvents))).Methods("GET")
}

// queryEvents handles GET /audit
func (h *AuditHandlers) queryEvents(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, r, "limit must be an integer")
		return
	}

	tenantID := scope.TenantID()
	filter := audit.QueryFilter{
		TenantID: &tenantID,
		Limit:    limit,
	}
	if eventType := httputil.ParseQueryString(r, "event_type", ""); eventType != "" {
		filter.EventType = audit.EventType(eventType)
	}

	events, err := h.store.Query(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, events)
}
