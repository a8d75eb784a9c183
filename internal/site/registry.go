package site

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/internal/sentiment"
	"github.com/FranksOps/partscout/internal/storage"
)

// Registry maps supplier IDs to their descriptors and extracts listings
// from parsed search pages. It is closed-world: an unknown ID extracts
// nothing.
type Registry struct {
	scorer sentiment.Scorer
	logger *slog.Logger
	order  []string
	sites  map[string]Descriptor
}

// NewRegistry builds a registry from descriptors, keeping their order.
func NewRegistry(scorer sentiment.Scorer, logger *slog.Logger, descs ...Descriptor) (*Registry, error) {
	if scorer == nil {
		return nil, fmt.Errorf("site registry: scorer is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		scorer: scorer,
		logger: logger,
		sites:  make(map[string]Descriptor, len(descs)),
	}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.sites[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSite, d.ID)
		}
		if d.Review == "" {
			d.Review = DefaultReviewSelector
		}
		r.sites[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Sites returns the registered descriptors in table order.
func (r *Registry) Sites() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sites[id])
	}
	return out
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	d, ok := r.sites[id]
	return d, ok
}

// SearchURL builds the search URL of site id for a query variant.
func (r *Registry) SearchURL(id, variant string) (string, bool) {
	d, ok := r.sites[id]
	if !ok {
		return "", false
	}
	return d.SearchURL(variant), true
}

// Extract returns every listing found in doc using the selectors of site
// id. Each listing is tagged with source. Missing names become
// storage.NamePlaceholder and missing descriptions the empty string.
func (r *Registry) Extract(id string, doc *goquery.Document, source string) []storage.Listing {
	d, ok := r.sites[id]
	if !ok || doc == nil {
		return []storage.Listing{}
	}

	listings := []storage.Listing{}
	doc.Find(d.Listing).Each(func(i int, item *goquery.Selection) {
		name := storage.NamePlaceholder
		if sel := selectOne(item, d.Name); sel != nil {
			name = strippedText(sel)
		} else {
			r.miss(id, "name", source)
		}

		description := ""
		if sel := selectOne(item, d.Description); sel != nil {
			description = strippedText(sel)
		} else {
			r.miss(id, "description", source)
		}

		listings = append(listings, storage.Listing{
			Name:        name,
			Description: description,
			Sentiment:   r.scorer.Score(description),
			Reviews:     r.reviews(item, d.Review),
			Source:      source,
		})
	})
	return listings
}

func (r *Registry) reviews(item *goquery.Selection, selector string) []storage.Review {
	reviews := []storage.Review{}
	item.Find(selector).Each(func(i int, rev *goquery.Selection) {
		text := strippedText(rev)
		reviews = append(reviews, storage.Review{
			Text:      text,
			Sentiment: r.scorer.Score(text),
		})
	})
	return reviews
}

func (r *Registry) miss(id, field, source string) {
	metrics.ExtractionMisses.WithLabelValues(id, field).Inc()
	r.logger.Debug("extraction miss", "site", id, "field", field, "url", source)
}

// selectOne returns the first match of selector under item, or nil.
func selectOne(item *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return nil
	}
	sel := item.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

// strippedText concatenates every descendant text node with surrounding
// whitespace trimmed, so "<span> ₹ </span><bdi>120</bdi>" reads "₹120".
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeStripped(&b, n)
	}
	return b.String()
}

func writeStripped(b *strings.Builder, n *html.Node) {
	switch {
	case n.Type == html.TextNode:
		b.WriteString(strings.TrimSpace(n.Data))
		return
	case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeStripped(b, c)
	}
}
