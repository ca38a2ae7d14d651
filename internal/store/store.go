// Package store holds the snapshot of previously observed items and the
// persisters that carry it across restarts. The in-memory stores are owned
// by a single poll loop and are not safe for concurrent use.
package store

import (
	"fmt"
	"sort"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// Mode selects how much of each item the snapshot keeps.
type Mode string

// Snapshot modes.
const (
	// ModeRecords keeps the last-seen item, enabling price-change detection.
	ModeRecords Mode = "records"
	// ModeIDs keeps only item ids. Known items are always unchanged.
	ModeIDs Mode = "ids"
)

// ParseMode validates a mode string. The empty string selects ModeRecords.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRecords:
		return ModeRecords, nil
	case ModeIDs:
		return ModeIDs, nil
	default:
		return "", fmt.Errorf("unknown snapshot mode %q (want records or ids)", s)
	}
}

// Record is one persisted snapshot entry. Item is nil in ModeIDs.
type Record struct {
	ID       string       `json:"id"`
	Item     *domain.Item `json:"item,omitempty"`
	LastSeen uint64       `json:"-"`
}

// Store is the keyed memory of previously observed items.
type Store interface {
	// Lookup reports whether id is known. prev is nil when the store does
	// not keep full records.
	Lookup(id string) (prev *domain.Item, ok bool)
	// Put inserts or overwrites the entry for item.ID and stamps it with
	// the cycle in which it was seen.
	Put(item domain.Item, cycle uint64)
	// EvictOlderThan drops entries last seen before cycle and returns how
	// many were removed.
	EvictOlderThan(cycle uint64) int
	// Len returns the number of entries.
	Len() int
	// Mode reports which variant this is.
	Mode() Mode
	// Records returns every entry sorted by id.
	Records() []Record
	// Restore replaces the contents with previously persisted records,
	// all stamped as seen in cycle zero.
	Restore(records []Record)
}

// New returns an empty store for mode.
func New(mode Mode) Store {
	if mode == ModeIDs {
		return NewIDStore()
	}
	return NewRecordStore()
}

type recordEntry struct {
	item     domain.Item
	lastSeen uint64
}

// RecordStore maps item id to the last-seen item.
type RecordStore struct {
	items map[string]recordEntry
}

// NewRecordStore returns an empty full-record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{items: make(map[string]recordEntry)}
}

// Lookup implements Store.
func (s *RecordStore) Lookup(id string) (*domain.Item, bool) {
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	prev := e.item
	return &prev, true
}

// Put implements Store.
func (s *RecordStore) Put(item domain.Item, cycle uint64) {
	s.items[item.ID] = recordEntry{item: item, lastSeen: cycle}
}

// EvictOlderThan implements Store.
func (s *RecordStore) EvictOlderThan(cycle uint64) int {
	var n int
	for id, e := range s.items {
		if e.lastSeen < cycle {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// Len implements Store.
func (s *RecordStore) Len() int { return len(s.items) }

// Mode implements Store.
func (*RecordStore) Mode() Mode { return ModeRecords }

// Records implements Store.
func (s *RecordStore) Records() []Record {
	out := make([]Record, 0, len(s.items))
	for id, e := range s.items {
		item := e.item
		out = append(out, Record{ID: id, Item: &item, LastSeen: e.lastSeen})
	}
	sortRecords(out)
	return out
}

// Restore implements Store. Records without an item are skipped because a
// full-record store cannot compare prices against them.
func (s *RecordStore) Restore(records []Record) {
	s.items = make(map[string]recordEntry, len(records))
	for _, r := range records {
		if r.Item == nil || r.ID == "" {
			continue
		}
		item := *r.Item
		item.ID = r.ID
		s.items[r.ID] = recordEntry{item: item}
	}
}

// IDStore remembers item ids only.
type IDStore struct {
	ids map[string]uint64
}

// NewIDStore returns an empty identifier-only store.
func NewIDStore() *IDStore {
	return &IDStore{ids: make(map[string]uint64)}
}

// Lookup implements Store. prev is always nil.
func (s *IDStore) Lookup(id string) (*domain.Item, bool) {
	_, ok := s.ids[id]
	return nil, ok
}

// Put implements Store.
func (s *IDStore) Put(item domain.Item, cycle uint64) {
	s.ids[item.ID] = cycle
}

// EvictOlderThan implements Store.
func (s *IDStore) EvictOlderThan(cycle uint64) int {
	var n int
	for id, seen := range s.ids {
		if seen < cycle {
			delete(s.ids, id)
			n++
		}
	}
	return n
}

// Len implements Store.
func (s *IDStore) Len() int { return len(s.ids) }

// Mode implements Store.
func (*IDStore) Mode() Mode { return ModeIDs }

// Records implements Store.
func (s *IDStore) Records() []Record {
	out := make([]Record, 0, len(s.ids))
	for id, seen := range s.ids {
		out = append(out, Record{ID: id, LastSeen: seen})
	}
	sortRecords(out)
	return out
}

// Restore implements Store.
func (s *IDStore) Restore(records []Record) {
	s.ids = make(map[string]uint64, len(records))
	for _, r := range records {
		if r.ID != "" {
			s.ids[r.ID] = 0
		}
	}
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
