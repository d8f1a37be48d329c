// Package api provides the HTTP surface for authentication, authorization
// administration, and tenant management.
//
// # Overview
//
// This package wires the gorilla/mux router: public credential endpoints
// (register, login, refresh, OAuth), authenticated account endpoints, and
// permission-gated admin endpoints for roles, tenants, and the audit log.
// Handlers stay thin: they parse, call a service or store, and map domain
// errors to RFC 7807 problem documents in one place (problems.go).
//
// # Route Groups
//
//	POST /api/v1/auth/register     tenant bootstrap registration
//	POST /api/v1/auth/login        password login (throttled)
//	POST /api/v1/auth/refresh      refresh token rotation (throttled)
//	POST /api/v1/auth/logout       revoke one refresh token
//	POST /api/v1/auth/logout-all   revoke every session
//	GET  /api/v1/auth/me           current user
//	GET  /api/v1/auth/oauth/providers            configured providers
//	GET  /api/v1/auth/oauth/{provider}/authorize begin OAuth flow
//	GET  /api/v1/auth/oauth/{provider}/callback  complete OAuth flow
//	/api/v1/roles...               role administration (roles:*)
//	/api/v1/tenant...              tenant administration (tenants:*)
//	GET  /api/v1/audit             audit log query (audit:read)
//
// # Related Packages
//
//   - pkg/authn: Credential flows and token verification
//   - pkg/oauth: OAuth flow coordination
//   - pkg/rbac: Permission checks gating admin routes
//   - pkg/tenants: Scope guard behind tenant endpoints
//   - pkg/httputil: Problem documents and JSON helpers
package api
