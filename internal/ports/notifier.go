package ports

import "context"

// Severity grades operator notifications.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Notifier is the seam to the notification subsystem (email, chat, ...).
// The engine only requires fire-and-forget delivery of operator alerts;
// a failed notification must never fail the operation that raised it.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, subject, body string) error
}
