package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/FranksOps/partscout/internal/rank"
	"github.com/FranksOps/partscout/internal/storage"
)

var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu  sync.Mutex
	dir string
}

// headers defines the CSV column order
var headers = []string{
	"position",
	"rank_key",
	"name",
	"description",
	"source",
	"neg",
	"neu",
	"pos",
	"compound",
	"review_count",
	"reviews_json",
}

// New creates a backend that exports each ranked run as a CSV file in dir,
// one row per listing in rank order.
func New(dir string) (storage.Backend, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv backend: %w", err)
	}
	return &csvBackend{dir: dir}, nil
}

// Path returns the CSV export path for query inside dir.
func Path(dir, query string) string {
	return filepath.Join(dir, storage.ArtifactName(query, "csv"))
}

func (b *csvBackend) Save(ctx context.Context, run *storage.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Create(Path(b.dir, run.Query))
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i, l := range run.Listings {
		reviewsJSON, err := json.Marshal(l.Reviews)
		if err != nil {
			return fmt.Errorf("encode reviews: %w", err)
		}
		record := []string{
			strconv.Itoa(i + 1),
			formatFloat(rank.Key(l)),
			l.Name,
			l.Description,
			l.Source,
			formatFloat(l.Sentiment.Neg),
			formatFloat(l.Sentiment.Neu),
			formatFloat(l.Sentiment.Pos),
			formatFloat(l.Sentiment.Compound),
			strconv.Itoa(len(l.Reviews)),
			string(reviewsJSON),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (b *csvBackend) Close() error {
	return nil
}
