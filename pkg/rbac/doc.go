// Package rbac implements role-based access control with tenant-scoped
// roles and a global permission catalog.
//
// # Overview
//
// Permissions are (resource, action) atoms shared by every tenant, with
// "*" matching any value in either position. Roles belong to one tenant
// and bundle permissions; users hold any number of roles and their
// effective permissions are the union. The Checker evaluates permission
// lists under an ANY or ALL combinator. A superuser short-circuits every
// check to allowed, but each bypass writes an audit event, a silent
// bypass is treated as a defect.
//
// # Related Packages
//
//   - pkg/tenants: roles are tenant-scoped through Scope
//   - pkg/audit: receives superuser bypass and denial events
//   - pkg/middleware: wraps handlers with RequirePermissions
package rbac
