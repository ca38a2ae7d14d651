// Package engine runs the poll loop: it keeps the eBay credential valid,
// fetches every configured query, classifies the results against the
// snapshot and forwards new and re-priced items to the notifier.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/donaldgifford/listing-watcher/internal/ebay"
	"github.com/donaldgifford/listing-watcher/internal/metrics"
	"github.com/donaldgifford/listing-watcher/internal/notify"
	"github.com/donaldgifford/listing-watcher/internal/store"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

const (
	instrumentationName = "github.com/donaldgifford/listing-watcher/internal/engine"

	// DefaultPollInterval is the sleep between cycles.
	DefaultPollInterval = 60 * time.Second
	// MaxQueryLength is the longest query eBay accepts without truncating it
	// on its side.
	MaxQueryLength = 100

	defaultRecentEvents = 100

	phaseBootstrap = "bootstrap"
	phaseCycle     = "cycle"
)

// Engine owns the snapshot store and drives the poll loop. Run must be
// called at most once; State, Status and RecentEvents are safe to call from
// other goroutines.
type Engine struct {
	creds     ebay.CredentialSource
	fetcher   ebay.Fetcher
	notifier  notify.Notifier
	store     store.Store
	persister store.Persister
	queries   []string
	log       *slog.Logger

	interval     time.Duration
	maxAgeCycles uint64
	now          func() time.Time

	tracer    trace.Tracer
	cycleHist metric.Float64Histogram

	// Owned by the Run goroutine.
	cred  *ebay.Credential
	cycle uint64

	state     atomic.Int32
	status    atomic.Pointer[Status]
	startedAt time.Time
	totals    struct{ created, updated uint64 }

	mu     sync.Mutex
	recent *eventRing
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithPollInterval sets the sleep between cycles.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithPersister makes the engine restore the snapshot on start and save it
// after every pass.
func WithPersister(p store.Persister) EngineOption {
	return func(e *Engine) {
		e.persister = p
	}
}

// WithMaxAgeCycles evicts snapshot entries not seen for n cycles. Zero
// disables eviction.
func WithMaxAgeCycles(n uint64) EngineOption {
	return func(e *Engine) {
		e.maxAgeCycles = n
	}
}

// WithRecentEvents sets how many delivered events are kept for RecentEvents.
func WithRecentEvents(n int) EngineOption {
	return func(e *Engine) {
		e.recent = newEventRing(n)
	}
}

// WithNowFunc overrides the clock.
func WithNowFunc(f func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = f
	}
}

// NewEngine creates a new Engine with injected dependencies.
func NewEngine(
	creds ebay.CredentialSource,
	fetcher ebay.Fetcher,
	notifier notify.Notifier,
	s store.Store,
	queries []string,
	opts ...EngineOption,
) *Engine {
	eng := &Engine{
		creds:     creds,
		fetcher:   fetcher,
		notifier:  notifier,
		store:     s,
		persister: store.Nop{},
		queries:   slices.Clone(queries),
		log:       slog.Default(),
		interval:  DefaultPollInterval,
		now:       time.Now,
		tracer:    otel.Tracer(instrumentationName),
		recent:    newEventRing(defaultRecentEvents),
	}
	for _, opt := range opts {
		opt(eng)
	}

	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"lw.cycle.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of poll passes."),
	)
	if err != nil {
		eng.log.Warn("creating cycle histogram", "error", err)
	}
	eng.cycleHist = hist

	eng.startedAt = eng.now()
	eng.publish(&Status{})
	return eng
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Status returns the status published after the most recent pass.
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// RecentEvents returns up to limit recent notifiable events, newest first.
func (e *Engine) RecentEvents(limit int) []domain.EventRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recent.newestFirst(limit)
}

// Queries returns the configured search queries.
func (e *Engine) Queries() []string {
	return slices.Clone(e.queries)
}

// LongQueries returns the queries eBay will cut short.
func LongQueries(queries []string) []string {
	var long []string
	for _, q := range queries {
		if len([]rune(q)) > MaxQueryLength {
			long = append(long, q)
		}
	}
	return long
}

// StartupMessage is the chat message announcing the tracked queries.
func StartupMessage(queries []string) string {
	var b strings.Builder
	b.WriteString("**Starting Up!**\nTracking: \n")
	for i, q := range queries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(q)
	}
	return b.String()
}

// Run restores the snapshot, bootstraps it when empty and then cycles until
// ctx is cancelled or a credential exchange fails. Cancellation returns nil;
// an *ebay.AuthError is returned as is.
//
// A pass that has started runs to completion on a context detached from
// ctx, so the store is never left half-updated. Only the sleep between
// passes observes cancellation.
func (e *Engine) Run(ctx context.Context) error {
	defer e.setState(StateStopped)

	for _, q := range LongQueries(e.queries) {
		e.log.Warn("query longer than eBay accepts, it will be truncated server side",
			"query", q, "length", len([]rune(q)), "max", MaxQueryLength)
	}

	e.restore(ctx)
	if ctx.Err() != nil {
		return nil
	}

	work := context.WithoutCancel(ctx)

	sleepFirst := false
	if e.store.Len() == 0 {
		e.setState(StateBootstrapping)
		if err := e.Bootstrap(work); err != nil {
			return err
		}
		sleepFirst = true
	} else {
		e.log.Info("snapshot restored, skipping bootstrap", "entries", e.store.Len())
	}

	e.setState(StateCycling)
	for {
		if sleepFirst && !e.sleep(ctx) {
			e.log.Info("poll loop stopping", "cycle", e.cycle)
			return nil
		}
		sleepFirst = true

		if err := e.RunCycle(work); err != nil {
			return err
		}
	}
}

// Bootstrap performs the warm-up pass: every query is fetched and its items
// stored without notifying. Failed queries are logged and skipped.
func (e *Engine) Bootstrap(ctx context.Context) error {
	return e.pass(ctx, phaseBootstrap)
}

// RunCycle performs one regular pass and notifies Created and Updated
// events. Only an *ebay.AuthError is returned.
func (e *Engine) RunCycle(ctx context.Context) error {
	return e.pass(ctx, phaseCycle)
}

type passResult struct {
	created, updated, unchanged int
	seen                        int
	failed                      []string
	persistErr                  error
}

func (e *Engine) pass(ctx context.Context, phase string) error {
	start := e.now()
	e.cycle++
	cycle := e.cycle
	cycleID := uuid.NewString()
	notifying := phase == phaseCycle

	ctx, span := e.tracer.Start(ctx, "engine."+phase, trace.WithAttributes(
		attribute.Int64("lw.cycle", int64(cycle)), //nolint:gosec // cycle count
		attribute.String("lw.cycle_id", cycleID),
	))
	defer span.End()

	log := e.log.With("phase", phase, "cycle", cycle, "cycle_id", cycleID)

	var res passResult
	for _, q := range e.queries {
		// Checked per request: a slow pass can outlive the token.
		cred, err := e.credential(ctx)
		if err != nil {
			metrics.CyclesTotal.WithLabelValues(phase, "auth_error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "credential exchange failed")
			log.Error("credential exchange failed", "query", q, "error", err)
			if res.seen > 0 {
				_ = e.persist(ctx, log)
			}
			return err
		}

		items, err := e.fetch(ctx, q, cred)
		if err != nil {
			log.Error("query failed, skipping", "query", q, "error", err)
			res.failed = append(res.failed, q)
			continue
		}
		metrics.ItemsSeenTotal.Add(float64(len(items)))
		res.seen += len(items)

		for i := range items {
			ev := Classify(items[i], e.store, cycle)
			metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
			switch ev.Kind {
			case domain.EventCreated:
				res.created++
			case domain.EventUpdated:
				res.updated++
			default:
				res.unchanged++
			}
			if notifying && ev.Kind.Notifiable() {
				e.deliver(ctx, log, q, ev)
			}
		}
	}

	if notifying {
		e.evict(log, cycle, len(res.failed) > 0)
	}
	res.persistErr = e.persist(ctx, log)

	elapsed := e.now().Sub(start)
	outcome := "ok"
	if len(res.failed) > 0 {
		outcome = "partial"
		span.SetStatus(codes.Error, fmt.Sprintf("%d queries failed", len(res.failed)))
	}
	metrics.CyclesTotal.WithLabelValues(phase, outcome).Inc()
	metrics.CycleDuration.Observe(elapsed.Seconds())
	metrics.SnapshotSize.Set(float64(e.store.Len()))
	if e.cycleHist != nil {
		e.cycleHist.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("lw.phase", phase),
			attribute.String("lw.outcome", outcome),
		))
	}
	span.SetAttributes(
		attribute.Int("lw.created", res.created),
		attribute.Int("lw.updated", res.updated),
		attribute.Int("lw.failed_queries", len(res.failed)),
	)

	if notifying {
		e.totals.created += uint64(res.created) //nolint:gosec // non-negative
		e.totals.updated += uint64(res.updated) //nolint:gosec // non-negative
		log.Info("cycle complete",
			"new", res.created,
			"updated", res.updated,
			"unchanged", res.unchanged,
			"failed_queries", len(res.failed),
			"snapshot", e.store.Len(),
			"duration", elapsed,
		)
	} else {
		log.Info("bootstrap complete",
			"stored", e.store.Len(),
			"failed_queries", len(res.failed),
			"duration", elapsed,
		)
	}

	e.publishPass(cycleID, start, elapsed, &res)
	e.reportFailures(ctx, log, phase, cycle, &res)
	return nil
}

// credential returns the current credential, refreshing it when it is
// inside the safety margin. Every error is an *ebay.AuthError.
func (e *Engine) credential(ctx context.Context) (ebay.Credential, error) {
	cred, err := e.creds.EnsureValid(ctx, e.cred)
	if err != nil {
		var ae *ebay.AuthError
		if !errors.As(err, &ae) {
			err = &ebay.AuthError{Err: err}
		}
		return ebay.Credential{}, err
	}
	e.cred = &cred
	return cred, nil
}

// reportFailures posts a best-effort diagnostic when a pass had failed
// queries or could not be persisted.
func (e *Engine) reportFailures(ctx context.Context, log *slog.Logger, phase string, cycle uint64, res *passResult) {
	if len(res.failed) == 0 && res.persistErr == nil {
		return
	}
	msg := FailureMessage(phase, cycle, res.failed, res.persistErr)
	if err := e.notifier.SendMessage(ctx, msg); err != nil {
		metrics.NotificationFailuresTotal.Inc()
		log.Warn("sending failure diagnostic failed", "error", err)
	}
}

// FailureMessage renders the diagnostic posted after a pass with failures.
func FailureMessage(phase string, cycle uint64, failed []string, persistErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s %d finished with errors**", phase, cycle)
	if len(failed) > 0 {
		b.WriteString("\nFailed queries:")
		for _, q := range failed {
			b.WriteString("\n- ")
			b.WriteString(q)
		}
	}
	if persistErr != nil {
		fmt.Fprintf(&b, "\nSnapshot not saved: %v", persistErr)
	}
	return b.String()
}

func (e *Engine) fetch(ctx context.Context, query string, cred ebay.Credential) ([]domain.Item, error) {
	ctx, span := e.tracer.Start(ctx, "engine.fetch", trace.WithAttributes(
		attribute.String("lw.query", query),
	))
	defer span.End()

	items, err := e.fetcher.Fetch(ctx, query, cred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("lw.items", len(items)))
	return items, nil
}

func (e *Engine) deliver(ctx context.Context, log *slog.Logger, query string, ev domain.Event) {
	ctx, span := e.tracer.Start(ctx, "engine.notify", trace.WithAttributes(
		attribute.String("lw.event", string(ev.Kind)),
		attribute.String("lw.item_id", ev.Item.ID),
	))
	defer span.End()

	err := e.notifier.Notify(ctx, ev.Kind, &ev.Item, ev.Previous)

	e.mu.Lock()
	e.recent.add(domain.EventRecord{
		Event:      ev,
		Query:      query,
		ObservedAt: e.now(),
		Delivered:  err == nil,
	})
	e.mu.Unlock()

	if err != nil {
		metrics.NotificationFailuresTotal.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "notify failed")
		log.Error("notification failed", "kind", ev.Kind, "item_id", ev.Item.ID, "error", err)
		return
	}
	metrics.NotificationsSentTotal.WithLabelValues(string(ev.Kind)).Inc()
	log.Debug("notification sent", "kind", ev.Kind, "item_id", ev.Item.ID)
}

// evict drops entries not seen in the last maxAgeCycles cycles. A cycle
// with failed queries skips eviction so the items of a flapping query are
// not forgotten and re-announced as new.
func (e *Engine) evict(log *slog.Logger, cycle uint64, partial bool) {
	if e.maxAgeCycles == 0 || cycle <= e.maxAgeCycles {
		return
	}
	if partial {
		log.Debug("skipping eviction after partial cycle")
		return
	}
	n := e.store.EvictOlderThan(cycle - e.maxAgeCycles + 1)
	if n > 0 {
		metrics.SnapshotEvictedTotal.Add(float64(n))
		log.Info("evicted stale snapshot entries", "evicted", n, "max_age_cycles", e.maxAgeCycles)
	}
}

func (e *Engine) persist(ctx context.Context, log *slog.Logger) error {
	if err := e.persister.Save(ctx, e.store.Records()); err != nil {
		metrics.PersistFailuresTotal.Inc()
		log.Warn("persisting snapshot failed, keeping in-memory state", "error", err)
		return err
	}
	return nil
}

func (e *Engine) restore(ctx context.Context) {
	n, err := store.RestoreInto(ctx, e.store, e.persister, e.log)
	if err != nil {
		e.log.Warn("restoring snapshot failed, starting cold", "error", err)
		return
	}
	metrics.SnapshotSize.Set(float64(n))
}

// sleep waits for the poll interval and reports whether the loop should
// continue.
func (e *Engine) sleep(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	t := time.NewTimer(e.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return ctx.Err() == nil
	}
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	metrics.EngineState.Set(float64(s))

	st := e.Status()
	st.State = s
	e.publish(&st)
}

func (e *Engine) publishPass(cycleID string, start time.Time, elapsed time.Duration, res *passResult) {
	st := e.Status()
	st.Cycle = e.cycle
	st.CycleID = cycleID
	st.SnapshotSize = e.store.Len()
	st.LastCycleAt = start
	st.LastDuration = elapsed
	st.NextCycleAt = start.Add(elapsed).Add(e.interval)
	st.LastCreated = res.created
	st.LastUpdated = res.updated
	st.LastUnchanged = res.unchanged
	st.FailedQueries = slices.Clone(res.failed)
	st.TotalCreated = e.totals.created
	st.TotalUpdated = e.totals.updated
	if e.cred != nil {
		st.TokenExpiresAt = e.cred.ExpiresAt
	}
	e.publish(&st)
}

func (e *Engine) publish(st *Status) {
	st.State = e.State()
	st.Queries = slices.Clone(e.queries)
	st.SnapshotMode = string(e.store.Mode())
	st.StartedAt = e.startedAt
	e.status.Store(st)
}
