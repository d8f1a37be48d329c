// Package middleware provides HTTP middleware for authentication, request
// identity, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including Bearer
// token authentication, request ID propagation, and Redis-backed rate
// limiting for the credential endpoints.
//
// # Middleware Components
//
// Authenticator: Bearer token authentication
//
//	authmw := middleware.NewAuthenticator(authSvc)
//	router.Use(authmw.Handler)
//	// Verifies the access token once and adds AuthContext plus the
//	// tenant scope to the request context
//
// RequestID: per-request UUID propagation
//
//	router.Use(middleware.RequestID)
//
// LoginThrottle: Redis-backed fixed window limiting keyed by client IP
//
//	throttle := middleware.NewLoginThrottle(redisClient, nil, metrics)
//	loginRouter.Use(throttle.Handler)
//
// # Related Packages
//
//   - pkg/authn: Token verification
//   - pkg/tenants: Scope construction
//   - pkg/rbac: Permission checking
package middleware
