package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/partscout/internal/bypass"
	"github.com/FranksOps/partscout/internal/fingerprint"
	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/internal/storage"
	"github.com/FranksOps/partscout/pkg/httpclient"
	"github.com/FranksOps/partscout/pkg/proxy"
	"github.com/FranksOps/partscout/pkg/ratelimit"
	"github.com/FranksOps/partscout/pkg/useragent"
)

// FetchConfig configures how supplier search pages are requested.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	UAPool       *useragent.Pool
	Referer      string
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// ProxyPool optionally rotates requests across egress proxies.
	// Requests through an HTTP proxy use the standard Go TLS handshake.
	ProxyPool *proxy.Pool
}

// Fetcher performs single GET requests with a browser identity. It never
// retries: one call is one request.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher with the given configuration.
// A single client is held across requests so connections are reused.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}
	if t, ok := transport.(*http.Transport); ok && cfg.ProxyPool.Len() > 0 {
		t.Proxy = proxy.FromContext(http.ProxyFromEnvironment)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Headers:      useragent.BrowserHeaders(cfg.Referer),
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch waits for the rate limiter and then GETs targetURL. The limiter's
// interval is counted from the end of the previous fetch, so a slow
// response still leaves a full courtesy gap before the next one. Transport
// failures are reported in the record's Error field rather than as a Go
// error, so callers can log and count them like any other failed fetch.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*storage.FetchRecord, error) {
	if err := f.config.Limiter.Wait(ctx); err != nil {
		return &storage.FetchRecord{
			ID:        uuid.New().String(),
			URL:       targetURL,
			CreatedAt: time.Now().UTC(),
			Error:     fmt.Sprintf("rate limiter failed: %v", err),
		}, nil
	}
	defer f.config.Limiter.Done()
	return f.get(ctx, targetURL), nil
}

// get issues a single request.
func (f *Fetcher) get(ctx context.Context, targetURL string) *storage.FetchRecord {
	start := time.Now()
	rec := &storage.FetchRecord{
		ID:        uuid.New().String(),
		URL:       targetURL,
		CreatedAt: start.UTC(),
	}

	activeProxy := f.config.ProxyPool.Next()
	if activeProxy != nil {
		ctx = proxy.WithProxy(ctx, activeProxy)
		rec.Proxy = activeProxy.Redacted()
	}

	resp, err := f.client.Get(ctx, targetURL, map[string]string{
		"User-Agent": f.config.UAPool.Next(),
	})
	rec.Duration = time.Since(start)
	if activeProxy != nil {
		f.config.ProxyPool.Report(activeProxy, err == nil)
		if err != nil {
			metrics.ProxyFailures.WithLabelValues(rec.Proxy).Inc()
		}
	}
	if err != nil {
		rec.Error = fmt.Sprintf("request failed: %v", err)
		return rec
	}

	rec.StatusCode = resp.StatusCode()
	rec.Headers = resp.Header()
	rec.Body = resp.Body()

	// Record whether we were challenged so failures can be diagnosed.
	bypass.Analyze(rec, bypass.DefaultDetectors())

	return rec
}
