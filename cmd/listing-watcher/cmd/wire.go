package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/donaldgifford/listing-watcher/internal/config"
	"github.com/donaldgifford/listing-watcher/internal/ebay"
	"github.com/donaldgifford/listing-watcher/internal/notify"
	"github.com/donaldgifford/listing-watcher/internal/store"
)

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

// newHTTPClient returns a client whose requests are traced when a tracer
// provider is installed.
func newHTTPClient(timeout time.Duration, operation string) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return operation + " " + r.Method
			}),
		),
	}
}

func newCredentialManager(cfg *config.EbayConfig, log *slog.Logger) *ebay.CredentialManager {
	return ebay.NewCredentialManager(cfg.AppID, cfg.CertID,
		ebay.WithTokenURL(cfg.TokenURL),
		ebay.WithScope(cfg.Scope),
		ebay.WithSafetyMargin(cfg.SafetyMargin),
		ebay.WithHTTPClient(newHTTPClient(cfg.TokenTimeout, "ebay.token")),
		ebay.WithAuthLogger(log),
	)
}

func newBrowseClient(cfg *config.EbayConfig, log *slog.Logger) *ebay.BrowseClient {
	rl := cfg.RateLimit
	return ebay.NewBrowseClient(
		ebay.WithBrowseURL(cfg.BrowseURL),
		ebay.WithMarketplace(cfg.Marketplace),
		ebay.WithPageSize(cfg.PageSize),
		ebay.WithBrowseHTTPClient(newHTTPClient(cfg.RequestTimeout, "ebay.search")),
		ebay.WithRateLimiter(ebay.NewRateLimiter(rl.PerSecond, rl.Burst, rl.DailyLimit)),
		ebay.WithBrowseLogger(log),
	)
}

func newNotifier(cfg *config.DiscordConfig, log *slog.Logger) notify.Notifier {
	if !cfg.Enabled {
		log.Info("discord disabled, events will only be logged")
		return notify.NewNoOpNotifier(log)
	}
	return notify.NewDiscordNotifier(cfg.WebhookURL,
		notify.WithHTTPClient(newHTTPClient(cfg.Timeout, "discord.webhook")),
		notify.WithUsername(cfg.Username),
		notify.WithAvatarURL(cfg.AvatarURL),
		notify.WithLogger(log),
	)
}

// snapshot bundles the in-memory store with its persister. closeFn releases
// backend resources and is never nil.
type snapshot struct {
	store     store.Store
	persister store.Persister
	closeFn   func()
}

func newSnapshot(ctx context.Context, cfg *config.SnapshotConfig, log *slog.Logger) (*snapshot, error) {
	mode, err := store.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	snap := &snapshot{store: store.New(mode), persister: store.Nop{}, closeFn: func() {}}

	switch cfg.Backend {
	case config.BackendFile:
		var opts []store.FileOption
		if cfg.LockPath != "" {
			opts = append(opts, store.WithLockPath(cfg.LockPath))
		}
		opts = append(opts, store.WithFileLogger(log))
		snap.persister = store.NewFilePersister(cfg.Path, mode, opts...)
	case config.BackendPostgres:
		pg, err := openPostgres(ctx, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		snap.persister = pg
		snap.closeFn = pg.Close
	}

	log.Info("snapshot configured", "mode", mode, "backend", cfg.Backend)
	return snap, nil
}

// openPostgres connects and applies pending migrations.
func openPostgres(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*store.PostgresPersister, error) {
	pg, err := store.NewPostgresPersister(ctx, cfg.DSN(), cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	applied, err := pg.Migrate(ctx)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Info("applied migrations", "versions", applied)
	}
	return pg, nil
}
