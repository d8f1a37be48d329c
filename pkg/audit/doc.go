// Package audit records security-relevant events: logins, token replays,
// superuser bypasses and cross-tenant scope grants.
//
// # Overview
//
// The Logger interface has three implementations. DBLogger persists
// events to the audit_logs table and supports filtered queries.
// SlogLogger mirrors events into the structured application log.
// MultiLogger fans out to both. Handlers fetch the logger from the
// request context via FromContext, which falls back to a no-op logger so
// audit calls never need nil checks.
//
// # Related Packages
//
//   - pkg/rbac: records superuser permission bypasses
//   - pkg/tenants: records cross-tenant scope grants
package audit
