// Package notify provides Notification Sink implementations for raised alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Notifier delivers an alert to the user. Delivery is fire-and-forget from the
// engine's perspective: errors are logged by the caller and never retried.
type Notifier interface {
	Send(ctx context.Context, alert types.Alert) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, alert types.Alert) error

// Send implements Notifier
func (f NotifierFunc) Send(ctx context.Context, alert types.Alert) error {
	return f(ctx, alert)
}

// LogNotifier writes alerts to a structured logger
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs alerts. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Send implements Notifier
func (n *LogNotifier) Send(ctx context.Context, alert types.Alert) error {
	level := slog.LevelWarn
	if alert.Severity == types.SeverityCritical {
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, "Alert: "+alert.Title,
		"alert_id", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"metric", alert.Metric,
		"message", alert.Message)
	return nil
}

// Multi fans an alert out to several notifiers. Every notifier is tried; the
// returned error joins the individual failures.
type Multi []Notifier

// Send implements Notifier
func (m Multi) Send(ctx context.Context, alert types.Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatAlert renders an alert as a short plain-text message
func FormatAlert(alert types.Alert) string {
	icon := "⚠️"
	if alert.Severity == types.SeverityCritical {
		icon = "🚨"
	}
	text := fmt.Sprintf("%s [%s] %s", icon, alert.Severity, alert.Title)
	if alert.Message != "" {
		text += "\n" + alert.Message
	}
	return text + "\n" + alert.Timestamp.Format("2006-01-02 15:04:05")
}
