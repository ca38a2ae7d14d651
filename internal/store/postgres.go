package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

const defaultPoolSize = 4

// PostgresPersister keeps the snapshot in the snapshot_items table. Every
// save rewrites the table inside one transaction.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

// NewPostgresPersister connects to connString with a small pool.
func NewPostgresPersister(ctx context.Context, connString string, poolSize int) (*PostgresPersister, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	cfg.MaxConns = defaultPoolSize
	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize) //nolint:gosec // validated by config
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresPersister{pool: pool}, nil
}

// Close gracefully shuts down the connection pool.
func (p *PostgresPersister) Close() {
	p.pool.Close()
}

// Ping verifies the database connection is alive.
func (p *PostgresPersister) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Migrate applies pending SQL schema migrations.
func (p *PostgresPersister) Migrate(ctx context.Context) ([]string, error) {
	return RunMigrations(ctx, p.pool)
}

// Load implements Persister. An empty table is a cold start.
func (p *PostgresPersister) Load(ctx context.Context) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, item FROM snapshot_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot items: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			id  string
			raw []byte
		)
		if err := row.Scan(&id, &raw); err != nil {
			return Record{}, err
		}
		rec := Record{ID: id}
		if raw != nil {
			var item domain.Item
			if err := json.Unmarshal(raw, &item); err != nil {
				return Record{}, fmt.Errorf("decoding item %s: %w", id, err)
			}
			rec.Item = &item
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading snapshot items: %w", err)
	}
	return records, nil
}

// Save implements Persister.
func (p *PostgresPersister) Save(ctx context.Context, records []Record) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		var raw []byte
		if r.Item != nil {
			b, err := json.Marshal(r.Item)
			if err != nil {
				return fmt.Errorf("encoding item %s: %w", r.ID, err)
			}
			raw = b
		}
		rows = append(rows, []any{r.ID, raw})
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM snapshot_items`); err != nil {
			return fmt.Errorf("clearing snapshot items: %w", err)
		}
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"snapshot_items"},
			[]string{"id", "item"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copying snapshot items: %w", err)
		}
		return nil
	})
}
