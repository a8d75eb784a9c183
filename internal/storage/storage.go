package storage

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/FranksOps/partscout/internal/sentiment"
)

// ErrNotFound is returned by a Reader when no run was stored for a query.
var ErrNotFound = errors.New("no stored run for query")

// NamePlaceholder stands in for a listing name that could not be extracted.
const NamePlaceholder = "N/A"

// Review is a single customer review attached to a listing.
type Review struct {
	Text      string          `json:"text"`
	Sentiment sentiment.Score `json:"sentiment"`
}

// Listing is one product record extracted from a supplier search page.
type Listing struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Sentiment   sentiment.Score `json:"sentiment"`
	Reviews     []Review        `json:"reviews"`
	Source      string          `json:"source"`
}

// Run is the ranked outcome of one search session.
type Run struct {
	ID        string
	Query     string
	Variants  []string
	CreatedAt time.Time
	Listings  []Listing
}

// FetchRecord represents the outcome of a single supplier fetch.
type FetchRecord struct {
	ID           string
	Site         string
	Variant      string
	URL          string
	Proxy        string // egress proxy, credentials redacted
	StatusCode   int
	Headers      map[string][]string
	Body         []byte
	Duration     time.Duration
	DetectedBot  bool
	DetectionSrc string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome"
	CreatedAt    time.Time
	Error        string // non-empty if the fetch failed before an HTTP response
}

// Backend persists ranked runs.
type Backend interface {
	Save(ctx context.Context, run *Run) error
	Close() error
}

// Reader is implemented by backends that can load a stored run back.
type Reader interface {
	Latest(ctx context.Context, query string) (*Run, error)
}

// ArtifactName derives the file name for a query's results. Whitespace and
// path separators in the original query are replaced by '_'.
func ArtifactName(query, ext string) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, strings.TrimSpace(query))
	return "fs_results_" + safe + "." + ext
}
