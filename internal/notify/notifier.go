// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). The reconciler raises alerts for compliance flags and
// the archive sweeper for failed sweeps; operators choose which event types
// they want forwarded.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Operator alert event types.
const (
	EventComplianceFlag = "compliance_flag"
	EventDealSettled    = "deal_settled"
	EventArchiveFailed  = "archive_failed"
)

// Sender is one alert channel.
type Sender interface {
	// Send delivers an alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs and config ("telegram", "discord").
	Name() string
}

// Notifier fans alerts out to every configured Sender, filtered by event
// type. An empty event list forwards everything.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Notify
// forwards only the listed event types; an empty list forwards all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

func (n *Notifier) wants(event string) bool {
	return len(n.allowed) == 0 || n.allowed[event]
}

// Notify delivers the alert to every sender when the event type passes the
// configured filter. A filtered event is not an error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.wants(event) {
		n.logger.DebugContext(ctx, "alert filtered", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers the alert to every sender, bypassing the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender even when earlier ones fail, then reports the
// failures joined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		err := s.Send(ctx, title, message)
		if err == nil {
			n.logger.DebugContext(ctx, "alert sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
			continue
		}
		n.logger.ErrorContext(ctx, "alert delivery failed",
			slog.String("sender", s.Name()),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
