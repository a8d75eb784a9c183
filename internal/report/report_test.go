package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/partscout/internal/pipeline"
	"github.com/FranksOps/partscout/internal/sentiment"
	"github.com/FranksOps/partscout/internal/site"
	"github.com/FranksOps/partscout/internal/storage"
)

func testSession() *pipeline.Session {
	now := time.Now().UTC()
	return &pipeline.Session{
		Query:    "brake pads",
		Variants: []string{"brake pads", "brake", "pad"},
		Listings: []storage.Listing{
			{
				Name:        "Ceramic Brake Pads",
				Description: "₹1,250",
				Sentiment:   sentiment.Neutral(),
				Reviews:     []storage.Review{{Text: "great", Sentiment: sentiment.Score{Pos: 1, Compound: 0.95}}},
				Source:      "https://www.motrparts.com/?s=brake&post_type=product",
			},
			{
				Name:      storage.NamePlaceholder,
				Sentiment: sentiment.Neutral(),
				Reviews:   []storage.Review{},
				Source:    "https://www.motrparts.com/?s=brake&post_type=product",
			},
		},
		Fetches: []*storage.FetchRecord{
			{Site: "motrparts", URL: "https://www.motrparts.com/?s=brake&post_type=product", StatusCode: 200, Body: []byte("123")},
			{Site: "partfinder", URL: "https://www.partfinder.in/search?q=brake", StatusCode: 403, Body: []byte("1234"), DetectedBot: true, DetectionSrc: "Cloudflare"},
			{Site: "carorbis", URL: "https://www.carorbis.com/tools-and-garage/?s=brake", Error: "timeout"},
		},
		Failures: []*pipeline.FetchError{{Site: "partfinder"}, {Site: "carorbis"}},
		Skipped:  []string{"https://x.example/"},
		Started:  now,
		Finished: now.Add(3 * time.Second),
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(testSession())

	if summary.TotalRequests != 3 {
		t.Errorf("expected 3 total requests, got %d", summary.TotalRequests)
	}
	if summary.TotalErrors != 1 {
		t.Errorf("expected 1 error, got %d", summary.TotalErrors)
	}
	if summary.TotalFailures != 2 || summary.TotalSkipped != 1 {
		t.Errorf("expected 2 failures and 1 skip, got %d and %d", summary.TotalFailures, summary.TotalSkipped)
	}
	if summary.TotalDetections != 1 || summary.DetectionsBySrc["Cloudflare"] != 1 {
		t.Errorf("expected 1 Cloudflare detection, got %v", summary.DetectionsBySrc)
	}
	if summary.StatusCodes[200] != 1 || summary.StatusCodes[403] != 1 {
		t.Errorf("unexpected status codes: %v", summary.StatusCodes)
	}
	if summary.ListingsBySite["motrparts"] != 2 {
		t.Errorf("expected 2 listings from motrparts, got %v", summary.ListingsBySite)
	}
	if summary.TotalBytes != 7 {
		t.Errorf("expected 7 total bytes, got %d", summary.TotalBytes)
	}
	if summary.Duration != 3*time.Second {
		t.Errorf("expected 3s duration, got %v", summary.Duration)
	}
}

func TestSummarize_Nil(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalRequests != 0 || summary.StatusCodes == nil {
		t.Errorf("expected empty initialized summary, got %+v", summary)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, Summarize(testSession())); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Search: brake pads", "Failed pairs", "Cloudflare", "motrparts", "403"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteListings(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteListings(&buf, testSession().Listings); err != nil {
		t.Fatalf("WriteListings failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"0.9500", "Ceramic Brake Pads", "www.motrparts.com", "N/A"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Index(out, "Ceramic") > strings.Index(out, "N/A") {
		t.Errorf("expected listings in the given order, got:\n%s", out)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Summarize(testSession())); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["query"] != "brake pads" || decoded["total_requests"].(float64) != 3 {
		t.Errorf("unexpected json summary: %v", decoded)
	}
}

func TestWriteSuppliers(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSuppliers(&buf, site.Defaults()); err != nil {
		t.Fatalf("WriteSuppliers failed: %v", err)
	}
	out := buf.String()
	first, last := strings.Index(out, "motrparts"), strings.Index(out, "carorbis")
	if first < 0 || last < 0 || first > last {
		t.Errorf("expected suppliers in table order, got:\n%s", out)
	}
}
