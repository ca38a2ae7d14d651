package engine

import (
	"github.com/donaldgifford/listing-watcher/internal/store"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// Classify compares item against the snapshot and commits it in the same
// step, so the store always reflects the newest observation whether or not
// the resulting event is ever delivered.
//
// Unknown ids are Created. Known ids whose sale and bid prices both match
// the stored item are Unchanged; the stored record is still refreshed.
// Anything else is Updated and carries the previous item. A store that
// keeps ids only has nothing to compare against, so known ids are always
// Unchanged there.
func Classify(item domain.Item, s store.Store, cycle uint64) domain.Event {
	prev, ok := s.Lookup(item.ID)
	s.Put(item, cycle)

	switch {
	case !ok:
		return domain.Event{Kind: domain.EventCreated, Item: item}
	case prev == nil || prev.SamePrice(&item):
		return domain.Event{Kind: domain.EventUnchanged, Item: item}
	default:
		return domain.Event{Kind: domain.EventUpdated, Item: item, Previous: prev}
	}
}
