// Package notify delivers item events and plain status messages to an
// external channel.
package notify

import (
	"context"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// Notifier delivers Created and Updated events and free-form messages.
// prev is the previously stored item and is nil for Created events or when
// the snapshot keeps ids only.
type Notifier interface {
	Notify(ctx context.Context, kind domain.EventKind, item *domain.Item, prev *domain.Item) error
	SendMessage(ctx context.Context, text string) error
}
