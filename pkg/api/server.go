package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/contextkeys"
	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/middleware"
	"github.com/mkurtis/warden/pkg/oauth"
	"github.com/mkurtis/warden/pkg/observability"
	"github.com/mkurtis/warden/pkg/rbac"
	"github.com/mkurtis/warden/pkg/tenants"
)

// Server represents the API server
type Server struct {
	router *mux.Router
	logger *observability.Logger
}

// Deps carries everything the server wires together
type Deps struct {
	Auth        *authn.Service
	Coordinator *oauth.Coordinator
	Registry    *oauth.Registry
	RBACStore   *rbac.Store
	Checker     *rbac.Checker
	Tenants     *tenants.Store
	Guard       *tenants.Guard
	AuditStore  *audit.DBLogger
	Auditor     audit.Logger
	Throttle    *middleware.LoginThrottle
	Logger      *observability.Logger
	Metrics     *observability.Metrics

	// AllowedOrigins configures CORS; empty means same-origin only
	AllowedOrigins []string
}

// NewServer creates the API server and mounts all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}
	s.setupRoutes(deps)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(
		middleware.RequestID,
		contextMiddleware(deps.Logger, deps.Auditor),
		observability.HTTPMetricsMiddleware(deps.Metrics),
		httputil.RecoveryMiddleware,
	)
	if len(deps.AllowedOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(deps.AllowedOrigins))
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	authHandlers := NewAuthHandlers(deps.Auth, deps.RBACStore, deps.Auditor, deps.Logger)

	// Credential endpoints are brute-force targets and run throttled
	public := api.NewRoute().Subrouter()
	if deps.Throttle != nil {
		public.Use(deps.Throttle.Handler)
	}
	authHandlers.RegisterPublicRoutes(public)

	// OAuth authorize doubles as account linking for a signed-in caller
	oauthRoutes := api.NewRoute().Subrouter()
	oauthRoutes.Use(middleware.NewOptionalAuthenticator(deps.Auth).Handler)
	NewOAuthHandlers(deps.Coordinator, deps.Registry, deps.Auditor).RegisterRoutes(oauthRoutes)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthenticator(deps.Auth).Handler)
	authHandlers.RegisterProtectedRoutes(protected)
	NewRoleHandlers(deps.RBACStore, deps.Checker, deps.Auditor).RegisterRoutes(protected)
	NewTenantHandlers(deps.Tenants, deps.Guard, deps.Checker).RegisterRoutes(protected)
	if deps.AuditStore != nil {
		NewAuditHandlers(deps.AuditStore, deps.Checker).RegisterRoutes(protected)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, r, "Unknown route")
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// contextMiddleware stashes the logger and audit sink in the request
// context so FromContext works everywhere downstream
func contextMiddleware(logger *observability.Logger, auditor audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logger != nil {
				requestLogger := logger
				if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
					requestLogger = logger.WithField("request_id", requestID)
				}
				ctx = observability.WithLogger(ctx, requestLogger)
			}
			if auditor != nil {
				ctx = audit.WithLogger(ctx, auditor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
