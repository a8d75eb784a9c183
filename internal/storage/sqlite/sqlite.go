package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/partscout/internal/storage"
	_ "modernc.org/sqlite"
)

var (
	_ storage.Backend = (*sqliteBackend)(nil)
	_ storage.Reader  = (*sqliteBackend)(nil)
)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	variants TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_query_idx ON runs (query, created_at);
CREATE TABLE IF NOT EXISTS listings (
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	source TEXT NOT NULL,
	neg REAL NOT NULL,
	neu REAL NOT NULL,
	pos REAL NOT NULL,
	compound REAL NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS reviews (
	run_id TEXT NOT NULL,
	listing_position INTEGER NOT NULL,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	neg REAL NOT NULL,
	neu REAL NOT NULL,
	pos REAL NOT NULL,
	compound REAL NOT NULL,
	PRIMARY KEY (run_id, listing_position, position)
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

// Save stores the run with its listings in rank order.
func (b *sqliteBackend) Save(ctx context.Context, run *storage.Run) error {
	variants, err := json.Marshal(run.Variants)
	if err != nil {
		return fmt.Errorf("encode variants: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, query, variants, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Query, string(variants), run.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, l := range run.Listings {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO listings (run_id, position, name, description, source, neg, neu, pos, compound)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, l.Name, l.Description, l.Source,
			l.Sentiment.Neg, l.Sentiment.Neu, l.Sentiment.Pos, l.Sentiment.Compound,
		); err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}
		for j, r := range l.Reviews {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (run_id, listing_position, position, text, neg, neu, pos, compound)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, j, r.Text,
				r.Sentiment.Neg, r.Sentiment.Neu, r.Sentiment.Pos, r.Sentiment.Compound,
			); err != nil {
				return fmt.Errorf("insert review: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Latest loads the most recently stored run for query.
func (b *sqliteBackend) Latest(ctx context.Context, query string) (*storage.Run, error) {
	run := &storage.Run{Query: query}
	var variants string

	err := b.db.QueryRowContext(ctx,
		`SELECT id, variants, created_at FROM runs WHERE query = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		query,
	).Scan(&run.ID, &variants, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}
	if err := json.Unmarshal([]byte(variants), &run.Variants); err != nil {
		return nil, fmt.Errorf("decode variants: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, `
	SELECT name, description, source, neg, neu, pos, compound
	FROM listings WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	defer rows.Close()

	run.Listings = []storage.Listing{}
	for rows.Next() {
		l := storage.Listing{Reviews: []storage.Review{}}
		if err := rows.Scan(&l.Name, &l.Description, &l.Source,
			&l.Sentiment.Neg, &l.Sentiment.Neu, &l.Sentiment.Pos, &l.Sentiment.Compound,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		run.Listings = append(run.Listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	reviews, err := b.db.QueryContext(ctx, `
	SELECT listing_position, text, neg, neu, pos, compound
	FROM reviews WHERE run_id = ? ORDER BY listing_position, position`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer reviews.Close()

	for reviews.Next() {
		var idx int
		var r storage.Review
		if err := reviews.Scan(&idx, &r.Text,
			&r.Sentiment.Neg, &r.Sentiment.Neu, &r.Sentiment.Pos, &r.Sentiment.Compound,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if idx < 0 || idx >= len(run.Listings) {
			continue
		}
		run.Listings[idx].Reviews = append(run.Listings[idx].Reviews, r)
	}
	if err := reviews.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return run, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
