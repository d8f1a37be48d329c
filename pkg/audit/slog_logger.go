package audit

import (
	"context"

	"github.com/mkurtis/warden/pkg/observability"
)

// SlogLogger mirrors audit events into the structured application log so
// security events show up in log search even when nobody queries the table
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates a log-backed audit logger
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// Log writes the event as a structured log line
func (l *SlogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_event": string(event.EventType),
		"status":      string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.TenantID != nil {
		fields["tenant_id"] = *event.TenantID
	}
	if event.Resource != "" {
		fields["resource"] = event.Resource
	}
	if event.Action != "" {
		fields["action"] = event.Action
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}

	entry := l.logger.WithFields(fields)
	switch event.Status {
	case EventStatusFailure, EventStatusDenied:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *SlogLogger) Close() error {
	return nil
}
