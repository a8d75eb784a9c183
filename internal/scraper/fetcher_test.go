package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/FranksOps/partscout/internal/fingerprint"
	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/pkg/proxy"
	"github.com/FranksOps/partscout/pkg/ratelimit"
	"github.com/FranksOps/partscout/pkg/useragent"
)

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "TestBrowser/1.0" {
			t.Errorf("expected pool User-Agent, got %q", got)
		}
		if got := r.Header.Get("Referer"); got != useragent.DefaultReferer {
			t.Errorf("expected Referer %q, got %q", useragent.DefaultReferer, got)
		}
		if r.Header.Get("Accept-Language") == "" {
			t.Errorf("expected Accept-Language header, got none")
		}
		w.Header().Set("X-Test", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	fetcher, err := NewFetcher(FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBrowser/1.0"}),
		Referer:     useragent.DefaultReferer,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("expected no fetch error, got %s", res.Error)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", res.StatusCode)
	}
	if string(res.Body) != "ok" {
		t.Errorf("expected body 'ok', got %s", string(res.Body))
	}
	if len(res.Headers["X-Test"]) == 0 || res.Headers["X-Test"][0] != "true" {
		t.Errorf("expected X-Test header 'true', got %v", res.Headers["X-Test"])
	}
	if res.Duration == 0 {
		t.Errorf("expected non-zero duration")
	}
	if res.ID == "" {
		t.Errorf("expected non-empty UUID")
	}
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo})
	res, _ := fetcher.Fetch(context.Background(), ts.URL)

	if res.Error != "" {
		t.Fatalf("a non-200 response is not a transport error, got %s", res.Error)
	}
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", res.StatusCode)
	}
	if !res.DetectedBot || res.DetectionSrc != "Cloudflare" {
		t.Errorf("expected Cloudflare detection, got %v %q", res.DetectedBot, res.DetectionSrc)
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly one request, got %d", hits.Load())
	}
}

func TestFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{
		Timeout:     10 * time.Millisecond,
		Fingerprint: fingerprint.ProfileGo,
	})

	res, _ := fetcher.Fetch(context.Background(), ts.URL)
	if res.Error == "" || !strings.Contains(res.Error, "request failed") {
		t.Errorf("expected timeout error, got %v", res.Error)
	}
}

func TestFetcher_Limiter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{
		Fingerprint: fingerprint.ProfileGo,
		Limiter:     ratelimit.NewLimiter(100*time.Millisecond, 0),
	})

	start := time.Now()
	for i := 0; i < 2; i++ {
		if res, _ := fetcher.Fetch(context.Background(), ts.URL); res.Error != "" {
			t.Fatalf("unexpected fetch error: %s", res.Error)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected second fetch to be delayed, took %v", elapsed)
	}
}

func TestFetcher_SlowResponseKeepsFullGap(t *testing.T) {
	var (
		mu       sync.Mutex
		started  []time.Time
		finished []time.Time
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		started = append(started, time.Now())
		mu.Unlock()
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{
		Fingerprint: fingerprint.ProfileGo,
		Limiter:     ratelimit.NewLimiter(100*time.Millisecond, 0),
	})

	for i := 0; i < 2; i++ {
		if res, _ := fetcher.Fetch(context.Background(), ts.URL); res.Error != "" {
			t.Fatalf("unexpected fetch error: %s", res.Error)
		}
		finished = append(finished, time.Now())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(started) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(started))
	}
	if gap := started[1].Sub(finished[0]); gap < 90*time.Millisecond {
		t.Errorf("expected at least the courtesy delay after a slow fetch, got %v", gap)
	}
}

func TestFetcher_CancelledWhileWaiting(t *testing.T) {
	fetcher, _ := NewFetcher(FetchConfig{
		Fingerprint: fingerprint.ProfileGo,
		Limiter:     ratelimit.NewLimiter(time.Hour, 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := fetcher.Fetch(ctx, "http://127.0.0.1:1/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Error, "rate limiter failed") {
		t.Errorf("expected limiter error, got %q", res.Error)
	}
}

func TestFetcher_Proxy(t *testing.T) {
	// A server acting as the proxy answers every forwarded request itself.
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer proxyServer.Close()

	pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Second})
	if err := pool.Add(proxyServer.URL); err != nil {
		t.Fatalf("failed to add proxy: %v", err)
	}

	fetcher, _ := NewFetcher(FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		ProxyPool:   pool,
	})

	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer targetServer.Close()

	res, _ := fetcher.Fetch(context.Background(), targetServer.URL)
	if res.StatusCode != http.StatusTeapot {
		t.Errorf("expected 418 Teapot from proxy, got %d, err: %v", res.StatusCode, res.Error)
	}
	if res.Proxy != proxyServer.URL {
		t.Errorf("expected record to name the proxy, got %q", res.Proxy)
	}
}

func TestFetcher_ProxyFailureBenches(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Minute})
	if err := pool.Add(deadURL); err != nil {
		t.Fatalf("failed to add proxy: %v", err)
	}

	fetcher, _ := NewFetcher(FetchConfig{
		Timeout:     2 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		ProxyPool:   pool,
	})

	before := testutil.ToFloat64(metrics.ProxyFailures.WithLabelValues(deadURL))
	res, _ := fetcher.Fetch(context.Background(), "http://example.invalid/")
	if res.Error == "" {
		t.Fatal("expected a transport error through the dead proxy")
	}
	if got := testutil.ToFloat64(metrics.ProxyFailures.WithLabelValues(deadURL)) - before; got != 1 {
		t.Errorf("expected one proxy failure recorded, got %v", got)
	}
	if pool.Next() != nil {
		t.Error("expected the failing proxy to be benched")
	}
}
