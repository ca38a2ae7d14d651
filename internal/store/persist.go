package store

import (
	"context"
	"log/slog"
)

// Persister loads and saves snapshot records. Load returns no records and
// no error when nothing has been persisted yet.
type Persister interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// Nop is a Persister that keeps nothing.
type Nop struct{}

// Load implements Persister.
func (Nop) Load(context.Context) ([]Record, error) { return nil, nil }

// Save implements Persister.
func (Nop) Save(context.Context, []Record) error { return nil }

// RestoreInto loads persisted records into s and reports how many entries
// the store holds afterwards. A load failure leaves s empty; the caller
// decides whether that is fatal.
func RestoreInto(ctx context.Context, s Store, p Persister, log *slog.Logger) (int, error) {
	records, err := p.Load(ctx)
	if err != nil {
		return 0, err
	}
	s.Restore(records)
	if log != nil {
		log.Info("snapshot restored", "records", len(records), "entries", s.Len(), "mode", s.Mode())
	}
	return s.Len(), nil
}
