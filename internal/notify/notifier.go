// Package notify delivers operator alerts about the sync loop to chat
// channels. Alerts carry an event type so operators can subscribe only to
// the ones they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event types raised by the sync orchestrator.
const (
	// EventSyncFailed fires when a cycle fails after a successful one, and
	// again whenever the failure cause changes.
	EventSyncFailed = "sync_failed"
	// EventSyncRecovered fires on the first successful cycle after failures.
	EventSyncRecovered = "sync_recovered"
	// EventInconsistency fires when a cycle is aborted because local and
	// remote state disagree in a way the engine cannot resolve.
	EventInconsistency = "inconsistency"
)

// Alert titles, one per event.
const (
	TitleSyncFailed    = "STX20 sync failed"
	TitleSyncRecovered = "STX20 sync recovered"
	TitleInconsistency = "STX20 sync aborted: inconsistent state"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier such as "telegram".
	Name() string
}

// Notifier fans an alert out to every configured Sender. Events not in the
// allow list are dropped; an empty list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and event allow list.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether the notifier has any sender at all.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Notify sends an alert for event unless the event is filtered out. A nil
// Notifier is a no-op.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
