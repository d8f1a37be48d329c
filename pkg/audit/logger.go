package audit

import (
	"context"
	"time"

	"github.com/mkurtis/warden/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
// when none is set so callers never branch on nil.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NewEvent builds an event stamped with the current time and any request
// context available
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// Authentication records a login, logout or token lifecycle event
func Authentication(ctx context.Context, logger Logger, eventType EventType, status EventStatus, userID *int64, message string) error {
	event := NewEvent(ctx, eventType, status)
	event.UserID = userID
	event.Message = message
	return logger.Log(ctx, event)
}

// SuperuserBypass records a permission check short-circuited by the
// superuser flag. Every bypass is recorded, a silent one is a defect.
func SuperuserBypass(ctx context.Context, logger Logger, userID, tenantID int64, resource, action string) error {
	event := NewEvent(ctx, EventTypeAuthzSuperuserBypass, EventStatusSuccess)
	event.UserID = &userID
	event.TenantID = &tenantID
	event.Resource = resource
	event.Action = action
	event.Message = "permission check bypassed by superuser flag"
	return logger.Log(ctx, event)
}

// TenantBypass records a cross-tenant scope grant
func TenantBypass(ctx context.Context, logger Logger, userID, tenantID int64, status EventStatus) error {
	event := NewEvent(ctx, EventTypeTenantBypass, status)
	event.UserID = &userID
	event.TenantID = &tenantID
	event.Message = "cross-tenant scope requested"
	return logger.Log(ctx, event)
}

// NopLogger discards all events
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }
