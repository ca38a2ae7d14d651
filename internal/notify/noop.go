package notify

import (
	"context"
	"log/slog"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// NoOpNotifier implements Notifier by logging discarded events. It is used
// when Discord is not configured.
type NoOpNotifier struct {
	log *slog.Logger
}

// NewNoOpNotifier creates a notifier that discards events with a log message.
func NewNoOpNotifier(log *slog.Logger) *NoOpNotifier {
	return &NoOpNotifier{log: log}
}

// Notify logs and discards a single event.
func (n *NoOpNotifier) Notify(_ context.Context, kind domain.EventKind, item, _ *domain.Item) error {
	n.log.Info("notification discarded (no backend configured)",
		"kind", kind,
		"item_id", item.ID,
		"title", item.Title,
	)
	return nil
}

// SendMessage logs and discards a status message.
func (n *NoOpNotifier) SendMessage(_ context.Context, text string) error {
	n.log.Debug("message discarded (no backend configured)", "text", text)
	return nil
}
