package audit

import (
	"context"
	"errors"
)

// MultiLogger fans events out to several loggers. An event is recorded if
// any destination accepts it, and errors from all destinations are joined.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a fan-out audit logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every destination
func (l *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range l.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination
func (l *MultiLogger) Close() error {
	var errs []error
	for _, logger := range l.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
