// Package tenants provides tenant records and the scope guard that keeps
// queries against tenant-owned tables inside one tenant.
//
// # Overview
//
// Every tenant-scoped store method takes a Scope. A Scope always carries
// a tenant predicate unless it was produced by Guard.Bypass, which checks
// an administrative permission and writes an audit record first. There is
// no third way to build one, so a query against a tenant-owned table
// cannot silently run unscoped.
//
// # Related Packages
//
//   - pkg/authn: creates tenants during registration bootstrap
//   - pkg/rbac: authorizes the bypass permission
package tenants
