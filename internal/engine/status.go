package engine

import (
	"fmt"
	"time"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// State is the poll loop lifecycle position.
type State int32

// Poll loop states. The numeric values are exported as the engine_state gauge.
const (
	StateBootstrapping State = iota
	StateCycling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateCycling:
		return "cycling"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time summary of the poll loop, published after every
// pass for read-only observers.
type Status struct {
	State          State         `json:"state"`
	Cycle          uint64        `json:"cycle"`
	CycleID        string        `json:"cycle_id,omitempty"`
	Queries        []string      `json:"queries"`
	SnapshotMode   string        `json:"snapshot_mode"`
	SnapshotSize   int           `json:"snapshot_size"`
	StartedAt      time.Time     `json:"started_at"`
	LastCycleAt    time.Time     `json:"last_cycle_at,omitzero"`
	LastDuration   time.Duration `json:"last_duration_ns"`
	NextCycleAt    time.Time     `json:"next_cycle_at,omitzero"`
	TokenExpiresAt time.Time     `json:"token_expires_at,omitzero"`
	LastCreated    int           `json:"last_created"`
	LastUpdated    int           `json:"last_updated"`
	LastUnchanged  int           `json:"last_unchanged"`
	FailedQueries  []string      `json:"failed_queries,omitempty"`
	TotalCreated   uint64        `json:"total_created"`
	TotalUpdated   uint64        `json:"total_updated"`
}

// Summary renders a short multi-line status for chat messages.
func (s *Status) Summary() string {
	msg := fmt.Sprintf("**Status:** %s, cycle %d\nSnapshot: %d items\nLast cycle: %d new, %d updated",
		s.State, s.Cycle, s.SnapshotSize, s.LastCreated, s.LastUpdated)
	if len(s.FailedQueries) > 0 {
		msg += fmt.Sprintf("\nFailed queries: %d", len(s.FailedQueries))
	}
	if !s.LastCycleAt.IsZero() {
		msg += fmt.Sprintf("\nLast cycle at: <t:%d:R>", s.LastCycleAt.Unix())
	}
	return msg
}

// eventRing keeps the most recent delivered or attempted events.
type eventRing struct {
	buf  []domain.EventRecord
	next int
	full bool
}

func newEventRing(n int) *eventRing {
	if n <= 0 {
		return &eventRing{}
	}
	return &eventRing{buf: make([]domain.EventRecord, n)}
}

func (r *eventRing) add(rec domain.EventRecord) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// newestFirst returns up to limit records, most recent first. A limit of
// zero or less returns everything held.
func (r *eventRing) newestFirst(limit int) []domain.EventRecord {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.EventRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Report converts the status into its ops API form.
func (s *Status) Report() domain.StatusReport {
	return domain.StatusReport{
		State:          s.State.String(),
		Cycle:          s.Cycle,
		CycleID:        s.CycleID,
		Queries:        s.Queries,
		SnapshotMode:   s.SnapshotMode,
		SnapshotSize:   s.SnapshotSize,
		StartedAt:      s.StartedAt,
		LastCycleAt:    s.LastCycleAt,
		LastDurationMS: s.LastDuration.Milliseconds(),
		NextCycleAt:    s.NextCycleAt,
		TokenExpiresAt: s.TokenExpiresAt,
		LastCreated:    s.LastCreated,
		LastUpdated:    s.LastUpdated,
		LastUnchanged:  s.LastUnchanged,
		FailedQueries:  s.FailedQueries,
		TotalCreated:   s.TotalCreated,
		TotalUpdated:   s.TotalUpdated,
	}
}
