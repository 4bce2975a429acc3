package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity of a user-facing notification
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Sink receives user-facing notifications
type Sink interface {
	Notify(ctx context.Context, message string, severity Severity)
}

// Notification is the wire form of a notification
type Notification struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Time     time.Time `json:"time"`
}

// NewNotification stamps a message with an id and the current time
func NewNotification(message string, severity Severity) Notification {
	return Notification{
		ID:       uuid.NewString(),
		Message:  message,
		Severity: severity,
		Time:     time.Now().UTC(),
	}
}

// LogSink writes notifications to the application log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notify")}
}

// Notify logs the message at a level matching its severity
func (s *LogSink) Notify(ctx context.Context, message string, severity Severity) {
	fields := []zap.Field{zap.String("severity", string(severity))}

	switch severity {
	case SeverityError:
		s.logger.Error(message, fields...)
	case SeverityWarning:
		s.logger.Warn(message, fields...)
	default:
		s.logger.Info(message, fields...)
	}
}

// Fanout delivers every notification to each of its sinks
type Fanout []Sink

// Notify forwards the notification to every sink
func (f Fanout) Notify(ctx context.Context, message string, severity Severity) {
	for _, s := range f {
		if s != nil {
			s.Notify(ctx, message, severity)
		}
	}
}
