package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Config defines how the pool benches failing proxies.
type Config struct {
	// MaxFailures is the number of consecutive transport failures after
	// which a proxy is benched.
	MaxFailures int
	// Cooldown is how long a benched proxy is skipped.
	Cooldown time.Duration
}

type entry struct {
	url          *url.URL
	failures     int
	benchedUntil time.Time
}

// Pool hands out egress proxies in round-robin order and skips proxies
// benched after repeated failures. It never retries a request itself.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
}

// NewPool creates an empty pool. Zero config values select 3 failures and
// a 5 minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// LoadFile adds proxies from a file with one URL per line. Blank lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read proxy list %s: %w", path, err)
	}

	return p.Add(urls...)
}

// Add parses proxy URLs and appends them to the rotation. A missing scheme
// defaults to http.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid proxy %q: %w", raw, err)
		}
		p.entries = append(p.entries, &entry{url: u})
	}
	return nil
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil if the pool is
// empty or every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if !e.benchedUntil.IsZero() && now.Before(e.benchedUntil) {
			continue
		}
		if !e.benchedUntil.IsZero() {
			e.benchedUntil = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request sent through u. A success clears
// the failure streak; a failure may bench the proxy. Unknown proxies are
// ignored.
func (p *Pool) Report(u *url.URL, ok bool) {
	if p == nil || u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.url.String() != u.String() {
			continue
		}
		if ok {
			e.failures = 0
			return
		}
		e.failures++
		if e.failures >= p.maxFailures {
			e.benchedUntil = time.Now().Add(p.cooldown)
		}
		return
	}
}

type ctxKey struct{}

// WithProxy returns a context that routes a request through u.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns an http.Transport proxy function that uses the proxy
// stored by WithProxy and falls back to fallback otherwise.
func FromContext(fallback func(*http.Request) (*url.URL, error)) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(ctxKey{}).(*url.URL); ok && u != nil {
			return u, nil
		}
		if fallback == nil {
			return nil, nil
		}
		return fallback(req)
	}
}
