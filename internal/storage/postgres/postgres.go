package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/partscout/internal/storage"
)

var (
	_ storage.Backend = (*postgresBackend)(nil)
	_ storage.Reader  = (*postgresBackend)(nil)
)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	variants TEXT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_query_idx ON runs (query, created_at DESC);
CREATE TABLE IF NOT EXISTS listings (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	source TEXT NOT NULL,
	neg DOUBLE PRECISION NOT NULL,
	neu DOUBLE PRECISION NOT NULL,
	pos DOUBLE PRECISION NOT NULL,
	compound DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS reviews (
	run_id TEXT NOT NULL,
	listing_position INTEGER NOT NULL,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	neg DOUBLE PRECISION NOT NULL,
	neu DOUBLE PRECISION NOT NULL,
	pos DOUBLE PRECISION NOT NULL,
	compound DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, listing_position, position),
	FOREIGN KEY (run_id, listing_position) REFERENCES listings(run_id, position) ON DELETE CASCADE
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

// Save stores the run, its listings and their reviews in one transaction.
func (b *postgresBackend) Save(ctx context.Context, run *storage.Run) error {
	variants := run.Variants
	if variants == nil {
		variants = []string{}
	}

	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(
			`INSERT INTO runs (id, query, variants, created_at) VALUES ($1, $2, $3, $4)`,
			run.ID, run.Query, variants, run.CreatedAt,
		)
		for i, l := range run.Listings {
			batch.Queue(`
			INSERT INTO listings (run_id, position, name, description, source, neg, neu, pos, compound)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				run.ID, i, l.Name, l.Description, l.Source,
				l.Sentiment.Neg, l.Sentiment.Neu, l.Sentiment.Pos, l.Sentiment.Compound,
			)
			for j, r := range l.Reviews {
				batch.Queue(`
				INSERT INTO reviews (run_id, listing_position, position, text, neg, neu, pos, compound)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
					run.ID, i, j, r.Text,
					r.Sentiment.Neg, r.Sentiment.Neu, r.Sentiment.Pos, r.Sentiment.Compound,
				)
			}
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert run %s: %w", run.ID, err)
		}
		return nil
	})
}

// Latest loads the most recently stored run for query.
func (b *postgresBackend) Latest(ctx context.Context, query string) (*storage.Run, error) {
	run := &storage.Run{Query: query}

	err := b.pool.QueryRow(ctx,
		`SELECT id, variants, created_at FROM runs WHERE query = $1 ORDER BY created_at DESC LIMIT 1`,
		query,
	).Scan(&run.ID, &run.Variants, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}

	rows, err := b.pool.Query(ctx, `
	SELECT name, description, source, neg, neu, pos, compound
	FROM listings WHERE run_id = $1 ORDER BY position`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	run.Listings, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Listing, error) {
		l := storage.Listing{Reviews: []storage.Review{}}
		err := row.Scan(&l.Name, &l.Description, &l.Source,
			&l.Sentiment.Neg, &l.Sentiment.Neu, &l.Sentiment.Pos, &l.Sentiment.Compound)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan listings: %w", err)
	}

	rows, err = b.pool.Query(ctx, `
	SELECT listing_position, text, neg, neu, pos, compound
	FROM reviews WHERE run_id = $1 ORDER BY listing_position, position`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var r storage.Review
		if err := rows.Scan(&idx, &r.Text,
			&r.Sentiment.Neg, &r.Sentiment.Neu, &r.Sentiment.Pos, &r.Sentiment.Compound,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if idx < 0 || idx >= len(run.Listings) {
			continue
		}
		run.Listings[idx].Reviews = append(run.Listings[idx].Reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return run, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
