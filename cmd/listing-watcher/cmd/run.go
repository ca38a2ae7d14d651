package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/donaldgifford/listing-watcher/internal/api"
	"github.com/donaldgifford/listing-watcher/internal/config"
	"github.com/donaldgifford/listing-watcher/internal/engine"
	"github.com/donaldgifford/listing-watcher/internal/notify"
	"github.com/donaldgifford/listing-watcher/internal/telemetry"
)

const (
	lifecycleMessageTimeout = 15 * time.Second
	telemetryFlushTimeout   = 10 * time.Second

	msgStopping = "stopping bot"
	msgDied     = "bot died, check console for reason"
)

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the poll loop",
		Long: "Runs the watcher until interrupted: bootstraps the snapshot, then\n" +
			"polls every query once per interval. The ops server and the\n" +
			"heartbeat job start alongside it when enabled.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatcher(ctx)
		},
	}
}

func runWatcher(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
	}, log)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("flushing telemetry", "error", err)
		}
	}()

	snap, err := newSnapshot(ctx, &cfg.Snapshot, log)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer snap.closeFn()

	notifier := newNotifier(&cfg.Notifications.Discord, log)

	eng := engine.NewEngine(
		newCredentialManager(&cfg.Ebay, log),
		newBrowseClient(&cfg.Ebay, log),
		notifier,
		snap.store,
		cfg.Queries,
		engine.WithLogger(log),
		engine.WithPollInterval(cfg.Poll.Interval),
		engine.WithPersister(snap.persister),
		engine.WithMaxAgeCycles(cfg.Snapshot.MaxAgeCycles),
	)

	sendLifecycle(ctx, notifier, log, engine.StartupMessage(cfg.Queries))

	err = serve(ctx, cfg, eng, notifier, log)
	if err != nil {
		log.Error("watcher stopped", "error", err)
		sendLifecycle(ctx, notifier, log, msgDied)
		return err
	}

	log.Info("watcher stopped")
	sendLifecycle(ctx, notifier, log, msgStopping)
	return nil
}

// serve runs the engine, the ops server and the heartbeat together. The
// first failure cancels the others.
func serve(
	ctx context.Context,
	cfg *config.Config,
	eng *engine.Engine,
	notifier notify.Notifier,
	log *slog.Logger,
) error {
	var sched *engine.Scheduler
	if cfg.Poll.Heartbeat != "" {
		var err error
		sched, err = engine.NewScheduler(eng, notifier, cfg.Poll.Heartbeat, log)
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := eng.Run(gctx)
		if err == nil && ctx.Err() == nil && gctx.Err() == nil {
			return errors.New("poll loop exited unexpectedly")
		}
		return err
	})

	if cfg.Server.Enabled {
		srv := api.NewServer(api.ServerConfig{
			Addr:         cfg.Server.Addr(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			Version:      Version,
		}, eng, log)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if sched != nil {
		sched.Start()
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	return g.Wait()
}

// sendLifecycle posts a chat message on a context that outlives ctx so the
// shutdown notice still goes out after a signal.
func sendLifecycle(ctx context.Context, n notify.Notifier, log *slog.Logger, text string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lifecycleMessageTimeout)
	defer cancel()
	if err := n.SendMessage(sendCtx, text); err != nil {
		log.Warn("sending lifecycle message", "error", err)
	}
}
