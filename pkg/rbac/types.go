package rbac

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates the role or permission does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate role name or assignment
	ErrConflict = errors.New("already exists")
	// ErrPermissionDenied indicates an authenticated user failed a check
	ErrPermissionDenied = errors.New("permission denied")
)

// Wildcard matches any resource or action in a permission position
const Wildcard = "*"

// Permission is a global capability atom. It is never tenant-scoped,
// only its attachment to a role is.
type Permission struct {
	ID          int64  `json:"id"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// Matches reports whether this permission grants (resource, action).
// A "*" in either position matches any value there.
func (p Permission) Matches(resource, action string) bool {
	return matchPart(p.Resource, resource) && matchPart(p.Action, action)
}

func matchPart(granted, requested string) bool {
	return granted == Wildcard || granted == requested
}

// String renders the permission as resource:action
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Pair names a permission being requested in a check
type Pair struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// String renders the pair as resource:action
func (p Pair) String() string {
	return p.Resource + ":" + p.Action
}

// Combinator selects how a list of permission pairs combines in a check
type Combinator int

const (
	// CombinatorAny passes when at least one pair is granted
	CombinatorAny Combinator = iota
	// CombinatorAll passes only when every pair is granted
	CombinatorAll
)

// String returns the combinator label used in logs and metrics
func (c Combinator) String() string {
	switch c {
	case CombinatorAny:
		return "any"
	case CombinatorAll:
		return "all"
	default:
		return fmt.Sprintf("combinator(%d)", int(c))
	}
}

// Role is a tenant-scoped bundle of permissions
type Role struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserRole is the assignment of a role to a user
type UserRole struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}
