package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthRegister    EventType = "auth.register"
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthLogout      EventType = "auth.logout"
	EventTypeAuthRefresh     EventType = "auth.token_refresh"
	EventTypeAuthReplay      EventType = "auth.token_replay"

	// OAuth events
	EventTypeOAuthLogin  EventType = "oauth.login"
	EventTypeOAuthLink   EventType = "oauth.link"
	EventTypeOAuthFailed EventType = "oauth.failed"

	// Authorization events
	EventTypeAuthzDenied          EventType = "authz.access_denied"
	EventTypeAuthzSuperuserBypass EventType = "authz.superuser_bypass"
	EventTypeAuthzRoleChange      EventType = "authz.role_change"

	// Tenant isolation events
	EventTypeTenantBypass    EventType = "tenant.bypass"
	EventTypeTenantViolation EventType = "tenant.scope_violation"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   *int64 `json:"user_id,omitempty"`
	TenantID *int64 `json:"tenant_id,omitempty"`

	// Resource
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
