package report

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/FranksOps/partscout/internal/pipeline"
	"github.com/FranksOps/partscout/internal/rank"
	"github.com/FranksOps/partscout/internal/site"
	"github.com/FranksOps/partscout/internal/storage"
)

// Summary contains aggregated metrics about one search session.
type Summary struct {
	Query           string         `json:"query"`
	Variants        []string       `json:"variants"`
	TotalRequests   int            `json:"total_requests"`
	TotalErrors     int            `json:"total_errors"`
	TotalFailures   int            `json:"total_failures"`
	TotalDetections int            `json:"total_detections"`
	TotalSkipped    int            `json:"total_skipped"`
	TotalListings   int            `json:"total_listings"`
	StatusCodes     map[int]int    `json:"status_codes"`
	DetectionsBySrc map[string]int `json:"detections_by_src"`
	ListingsBySite  map[string]int `json:"listings_by_site"`
	TotalBytes      int64          `json:"total_bytes"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Duration        time.Duration  `json:"duration"`
}

// Summarize processes a session's fetch records and listings.
func Summarize(s *pipeline.Session) Summary {
	sum := Summary{
		StatusCodes:     make(map[int]int),
		DetectionsBySrc: make(map[string]int),
		ListingsBySite:  make(map[string]int),
	}
	if s == nil {
		return sum
	}

	sum.Query = s.Query
	sum.Variants = s.Variants
	sum.TotalFailures = len(s.Failures)
	sum.TotalSkipped = len(s.Skipped)
	sum.TotalListings = len(s.Listings)
	sum.StartTime = s.Started
	sum.EndTime = s.Finished
	if !sum.EndTime.IsZero() {
		sum.Duration = sum.EndTime.Sub(sum.StartTime)
	}

	siteByURL := make(map[string]string, len(s.Fetches))
	for _, r := range s.Fetches {
		sum.TotalRequests++
		siteByURL[r.URL] = r.Site
		if r.Error != "" {
			sum.TotalErrors++
		}
		if r.DetectedBot {
			sum.TotalDetections++
			sum.DetectionsBySrc[r.DetectionSrc]++
		}
		if r.StatusCode > 0 {
			sum.StatusCodes[r.StatusCode]++
		}
		sum.TotalBytes += int64(len(r.Body))
	}

	for _, l := range s.Listings {
		sum.ListingsBySite[siteByURL[l.Source]]++
	}

	return sum
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// WriteText renders the fetch summary of a session.
func WriteText(w io.Writer, summary Summary) error {
	t := newTable(w)
	t.SetTitle("Search: " + summary.Query)
	t.AppendRows([]table.Row{
		{"Variants", fmt.Sprint(summary.Variants)},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
		{"Requests", summary.TotalRequests},
		{"Transport errors", summary.TotalErrors},
		{"Failed pairs", summary.TotalFailures},
		{"Skipped by robots.txt", summary.TotalSkipped},
		{"Bot detections", summary.TotalDetections},
		{"Listings", summary.TotalListings},
		{"Bytes", summary.TotalBytes},
	})
	t.Render()

	if len(summary.StatusCodes) > 0 {
		codes := newTable(w)
		codes.AppendHeader(table.Row{"Status", "Count"})
		for _, code := range slices.Sorted(maps.Keys(summary.StatusCodes)) {
			codes.AppendRow(table.Row{code, summary.StatusCodes[code]})
		}
		codes.Render()
	}

	if len(summary.DetectionsBySrc) > 0 {
		det := newTable(w)
		det.AppendHeader(table.Row{"Protection", "Count"})
		for _, src := range slices.Sorted(maps.Keys(summary.DetectionsBySrc)) {
			det.AppendRow(table.Row{src, summary.DetectionsBySrc[src]})
		}
		det.Render()
	}

	if len(summary.ListingsBySite) > 0 {
		sites := newTable(w)
		sites.AppendHeader(table.Row{"Supplier", "Listings"})
		for _, id := range slices.Sorted(maps.Keys(summary.ListingsBySite)) {
			sites.AppendRow(table.Row{id, summary.ListingsBySite[id]})
		}
		sites.Render()
	}
	return nil
}

// WriteListings renders ranked listings with their rank keys.
func WriteListings(w io.Writer, listings []storage.Listing) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Rank", "Name", "Price / Description", "Reviews", "Supplier"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Rank", Align: text.AlignRight},
		{Name: "Name", WidthMax: 48, WidthMaxEnforcer: text.Trim},
		{Name: "Price / Description", WidthMax: 32, WidthMaxEnforcer: text.Trim},
		{Name: "Reviews", Align: text.AlignRight},
	})
	for i, l := range listings {
		t.AppendRow(table.Row{
			i + 1,
			strconv.FormatFloat(rank.Key(l), 'f', 4, 64),
			l.Name,
			l.Description,
			len(l.Reviews),
			host(l.Source),
		})
	}
	t.Render()
	return nil
}

// WriteSuppliers renders the supplier table in fetch order.
func WriteSuppliers(w io.Writer, descs []site.Descriptor) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "ID", "Search URL", "Listing", "Name", "Description", "Review"})
	for i, d := range descs {
		review := d.Review
		if review == "" {
			review = site.DefaultReviewSelector
		}
		t.AppendRow(table.Row{i + 1, d.ID, d.URLTemplate, d.Listing, d.Name, d.Description, review})
	}
	t.Render()
	return nil
}

func host(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return source
	}
	return u.Hostname()
}
