package useragent

import (
	"sync/atomic"
)

// DefaultPool provides desktop browser User-Agents. The first entry is the
// one sent when rotation is not configured.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// DefaultReferer is sent so supplier search pages treat the request as a
// click-through from a search engine.
const DefaultReferer = "https://www.google.com/"

// BrowserHeaders returns the Accept, Accept-Language and Referer headers a
// desktop browser sends with a page navigation.
func BrowserHeaders(referer string) map[string]string {
	h := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
	if referer != "" {
		h["Referer"] = referer
	}
	return h
}

// Pool hands out User-Agents in round-robin order.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a new User-Agent pool. If the provided slice is empty,
// it falls back to the first entry of DefaultPool only, so every request
// carries the same browser identity.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool[:1]
	}
	// Copy to avoid external mutation
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{
		uas: copied,
	}
}

// Next returns the next User-Agent in the pool.
// It is safe for concurrent use.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// All returns a copy of all User-Agents currently in the pool.
func (p *Pool) All() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
