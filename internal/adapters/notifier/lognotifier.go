package notifier

import (
	"context"

	"stockTradeBot/internal/ports"
)

// LogNotifier implements ports.Notifier by writing alerts to the
// application log. Stands in for the email/notification subsystem,
// which is an external collaborator; swap the implementation to deliver
// for real.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify records the alert in the log at a level matching its severity.
func (n *LogNotifier) Notify(ctx context.Context, severity ports.Severity, subject, body string) error {
	fields := map[string]interface{}{
		"severity": severity,
		"subject":  subject,
		"body":     body,
	}
	switch severity {
	case ports.SeverityCritical:
		n.logger.Error(ctx, nil, "ALERT: "+subject, fields)
	case ports.SeverityWarning:
		n.logger.Warn(ctx, "ALERT: "+subject, fields)
	default:
		n.logger.Info(ctx, "ALERT: "+subject, fields)
	}
	return nil
}
