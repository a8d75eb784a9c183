package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/partscout/internal/sentiment"
	"github.com/FranksOps/partscout/internal/storage"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if PARTSCOUT_TEST_PG_DSN is set
	dsn := os.Getenv("PARTSCOUT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: PARTSCOUT_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	// Unique query so reruns against the same database do not collide.
	query := "brake pads " + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	run := &storage.Run{
		ID:        uuid.NewString(),
		Query:     query,
		Variants:  []string{query, "brake"},
		CreatedAt: now,
		Listings: []storage.Listing{
			{
				Name:      "Ceramic Pads",
				Sentiment: sentiment.Neutral(),
				Reviews: []storage.Review{
					{Text: "great", Sentiment: sentiment.Score{Pos: 1, Compound: 0.9}},
				},
				Source: "https://a.example/?s=brake",
			},
			{
				Name:      storage.NamePlaceholder,
				Sentiment: sentiment.Neutral(),
				Reviews:   []storage.Review{},
				Source:    "https://b.example/search?q=brake",
			},
		},
	}

	if err := b.Save(ctx, run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	got, err := b.(storage.Reader).Latest(ctx, query)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ID != run.ID || !got.CreatedAt.Equal(now) {
		t.Errorf("unexpected run header %s %v", got.ID, got.CreatedAt)
	}
	if len(got.Listings) != 2 || len(got.Listings[0].Reviews) != 1 || len(got.Listings[1].Reviews) != 0 {
		t.Fatalf("unexpected listings %+v", got.Listings)
	}
	if got.Listings[0].Reviews[0].Sentiment.Compound != 0.9 {
		t.Errorf("expected compound 0.9, got %v", got.Listings[0].Reviews[0].Sentiment.Compound)
	}

	if _, err := b.(storage.Reader).Latest(ctx, "missing "+uuid.NewString()); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
