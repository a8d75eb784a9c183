package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/internal/query"
	"github.com/FranksOps/partscout/internal/rank"
	"github.com/FranksOps/partscout/internal/site"
	"github.com/FranksOps/partscout/internal/storage"
)

// ErrNoResults is returned by Run when no supplier yielded a listing.
// Nothing is persisted in that case.
var ErrNoResults = errors.New("no results found across all suppliers")

// ErrUnexpectedStatus marks a response whose status was not 200.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Fetcher retrieves one supplier page. Implementations apply their own
// rate limiting and must not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*storage.FetchRecord, error)
}

// RobotsChecker reports whether a URL may be fetched.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, url string, userAgent string) (bool, error)
}

// FetchError describes a (variant, site) pair that contributed nothing
// because its page could not be retrieved or parsed.
type FetchError struct {
	Site       string
	Variant    string
	URL        string
	StatusCode int
	Detection  string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Site, e.Err)
	if e.Detection != "" {
		msg += " [blocked by " + e.Detection + "]"
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Session is the outcome of one search across every variant and supplier.
type Session struct {
	RunID    string
	Query    string
	Variants []string
	// Listings is in aggregation order after Collect and rank order after Run.
	Listings []storage.Listing
	Fetches  []*storage.FetchRecord
	Failures []*FetchError
	// Skipped holds URLs that robots.txt disallowed.
	Skipped  []string
	Started  time.Time
	Finished time.Time
}

// Pipeline runs a search session: expand, fetch, extract, rank, persist.
type Pipeline struct {
	Expander  *query.Expander
	Registry  *site.Registry
	Fetcher   Fetcher
	Robots    RobotsChecker // optional
	UserAgent string        // agent tested against robots.txt
	Backend   storage.Backend
	Logger    *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Collect expands q and visits every (variant, site) pair in variant-major,
// site-minor order, one fetch at a time. A failed pair is logged and
// recorded as a FetchError; it never stops the session. Only context
// cancellation or an empty query end it early.
func (p *Pipeline) Collect(ctx context.Context, q string) (*Session, error) {
	if p.Expander == nil || p.Registry == nil || p.Fetcher == nil {
		return nil, errors.New("pipeline: expander, registry and fetcher are required")
	}

	variants, err := p.Expander.Expand(q)
	if err != nil {
		return nil, err
	}

	log := p.logger()
	s := &Session{
		Query:    variants[0],
		Variants: variants,
		Listings: []storage.Listing{},
		Started:  time.Now().UTC(),
	}

	for _, variant := range variants {
		log.Info("running sub-search", "variant", variant)

		for _, d := range p.Registry.Sites() {
			if err := ctx.Err(); err != nil {
				return s, err
			}
			s.Listings = append(s.Listings, p.visit(ctx, s, d.ID, variant)...)
		}
	}

	s.Finished = time.Now().UTC()
	return s, nil
}

// visit handles one (variant, site) pair and returns its listings.
func (p *Pipeline) visit(ctx context.Context, s *Session, siteID, variant string) []storage.Listing {
	log := p.logger().With("site", siteID, "variant", variant)

	target, ok := p.Registry.SearchURL(siteID, variant)
	if !ok {
		return nil
	}

	if p.Robots != nil {
		allowed, err := p.Robots.IsAllowed(ctx, target, p.UserAgent)
		if err != nil {
			log.Warn("error checking robots.txt", "url", target, "err", err)
		} else if !allowed {
			log.Info("url blocked by robots.txt", "url", target)
			s.Skipped = append(s.Skipped, target)
			return nil
		}
	}

	log.Info("fetching", "url", target)

	rec, err := p.Fetcher.Fetch(ctx, target)
	if rec != nil {
		rec.Site = siteID
		rec.Variant = variant
		s.Fetches = append(s.Fetches, rec)
		metrics.RecordFetch(siteID, rec)
	}
	if fe := fetchFailure(siteID, variant, target, rec, err); fe != nil {
		p.fail(s, log, fe)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec.Body))
	if err != nil {
		p.fail(s, log, &FetchError{
			Site: siteID, Variant: variant, URL: target, StatusCode: rec.StatusCode,
			Err: fmt.Errorf("parse html: %w", err),
		})
		return nil
	}

	listings := p.Registry.Extract(siteID, doc, target)
	metrics.RecordListings(siteID, len(listings))
	if len(listings) == 0 {
		log.Info("no items", "url", target)
	} else {
		log.Info("found items", "url", target, "count", len(listings))
	}
	return listings
}

func (p *Pipeline) fail(s *Session, log *slog.Logger, fe *FetchError) {
	s.Failures = append(s.Failures, fe)
	log.Warn("fetch failed",
		"url", fe.URL,
		"status", fe.StatusCode,
		"detection", fe.Detection,
		"err", fe.Err,
	)
}

// fetchFailure classifies a fetch outcome. It returns nil for a 200.
func fetchFailure(siteID, variant, target string, rec *storage.FetchRecord, err error) *FetchError {
	fe := &FetchError{Site: siteID, Variant: variant, URL: target}
	switch {
	case err != nil:
		fe.Err = err
	case rec == nil:
		fe.Err = errors.New("no response")
	case rec.Error != "":
		fe.Err = errors.New(rec.Error)
	case rec.StatusCode != http.StatusOK:
		fe.StatusCode = rec.StatusCode
		fe.Detection = rec.DetectionSrc
		fe.Err = fmt.Errorf("%w %d", ErrUnexpectedStatus, rec.StatusCode)
	default:
		return nil
	}
	if rec != nil {
		fe.StatusCode = rec.StatusCode
		fe.Detection = rec.DetectionSrc
	}
	return fe
}

// Run collects, ranks and persists a session. When no listing was found it
// returns the session together with ErrNoResults and saves nothing.
func (p *Pipeline) Run(ctx context.Context, q string) (*Session, error) {
	s, err := p.Collect(ctx, q)
	if err != nil {
		return s, err
	}

	rank.Sort(s.Listings)

	if len(s.Listings) == 0 {
		p.logger().Info("no results found across all suppliers", "query", s.Query, "failures", len(s.Failures))
		return s, ErrNoResults
	}

	if p.Backend == nil {
		return s, nil
	}

	s.RunID = uuid.New().String()
	run := &storage.Run{
		ID:        s.RunID,
		Query:     s.Query,
		Variants:  s.Variants,
		CreatedAt: s.Finished,
		Listings:  s.Listings,
	}
	if err := p.Backend.Save(ctx, run); err != nil {
		return s, fmt.Errorf("save results: %w", err)
	}

	p.logger().Info("saved results", "query", s.Query, "run_id", s.RunID, "listings", len(s.Listings))
	return s, nil
}
