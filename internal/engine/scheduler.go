package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/donaldgifford/listing-watcher/internal/notify"
)

const heartbeatTimeout = 15 * time.Second

// StatusSource exposes the latest published poll loop status.
type StatusSource interface {
	Status() Status
}

// Scheduler posts a periodic heartbeat with the poll loop status.
type Scheduler struct {
	cron     *cron.Cron
	source   StatusSource
	notifier notify.Notifier
	log      *slog.Logger
	entryID  cron.EntryID
}

// NewScheduler registers the heartbeat job. spec is any robfig/cron spec,
// including descriptors such as "@every 6h" or "@daily".
func NewScheduler(
	source StatusSource,
	n notify.Notifier,
	spec string,
	log *slog.Logger,
) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:     c,
		source:   source,
		notifier: n,
		log:      log,
	}

	id, err := c.AddFunc(spec, s.runHeartbeat)
	if err != nil {
		return nil, err
	}
	s.entryID = id

	return s, nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started", "next_heartbeat", s.cron.Entry(s.entryID).Next)
	s.cron.Start()
}

// Stop gracefully stops the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("scheduler stopping")
	return s.cron.Stop()
}

// Entries returns the registered cron entries for inspection.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) runHeartbeat() {
	st := s.source.Status()
	if st.State == StateStopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
	defer cancel()

	if err := s.notifier.SendMessage(ctx, st.Summary()); err != nil {
		s.log.Error("heartbeat failed", "error", err)
		return
	}
	s.log.Debug("heartbeat sent", "cycle", st.Cycle)
}
