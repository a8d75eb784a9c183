package bypass

import (
	"bytes"
	"net/http"
	"slices"
	"strings"

	"github.com/FranksOps/partscout/internal/storage"
)

// Detector inspects a fetch record and reports whether a bot protection
// layer blocked or challenged the request, naming the vendor if so.
type Detector func(rec *storage.FetchRecord) (detected bool, source string)

// signature describes how one protection vendor shows up in a response.
type signature struct {
	source   string
	statuses []int
	server   string   // substring of the lowercased Server header
	headers  []string // presence of any of these headers
	body     [][]byte // presence of any of these body markers
}

func (s signature) detector() Detector {
	return func(rec *storage.FetchRecord) (bool, string) {
		if !slices.Contains(s.statuses, rec.StatusCode) {
			return false, ""
		}
		h := http.Header(rec.Headers)
		if s.server != "" && strings.Contains(strings.ToLower(h.Get("Server")), s.server) {
			return true, s.source
		}
		for _, name := range s.headers {
			if h.Get(name) != "" {
				return true, s.source
			}
		}
		for _, marker := range s.body {
			if bytes.Contains(rec.Body, marker) {
				return true, s.source
			}
		}
		return false, ""
	}
}

var (
	cloudflare = signature{
		source:   "Cloudflare",
		statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		server:   "cloudflare",
		body: [][]byte{
			[]byte("cf-browser-verification"),
			[]byte("cf-turnstile"),
			[]byte("Attention Required! | Cloudflare"),
		},
	}
	akamai = signature{
		source:   "Akamai",
		statuses: []int{http.StatusForbidden},
		server:   "akamai",
	}
	dataDome = signature{
		source:   "DataDome",
		statuses: []int{http.StatusForbidden},
		server:   "datadome",
		headers:  []string{"X-DataDome", "X-DataDome-Response"},
		body:     [][]byte{[]byte("geo.captcha-delivery.com")},
	}
	perimeterX = signature{
		source:   "PerimeterX",
		statuses: []int{http.StatusForbidden},
		headers:  []string{"X-Px-Captcha"},
		body: [][]byte{
			[]byte("client.perimeterx.net"),
			[]byte("px-captcha"),
			[]byte("_pxBlock"),
		},
	}
	// WordPress storefronts are usually fronted by Sucuri or Wordfence.
	sucuri = signature{
		source:   "Sucuri",
		statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		server:   "sucuri",
		headers:  []string{"X-Sucuri-Block"},
		body:     [][]byte{[]byte("Sucuri WebSite Firewall")},
	}
	wordfence = signature{
		source:   "Wordfence",
		statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		body: [][]byte{
			[]byte("Generated by Wordfence"),
			[]byte("wordfence-block"),
		},
	}
)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		cloudflare.detector(),
		akamai.detector(),
		akamaiReference,
		dataDome.detector(),
		perimeterX.detector(),
		sucuri.detector(),
		wordfence.detector(),
	}
}

// akamaiReference matches the generic "Access Denied ... Reference #" page,
// which needs both markers present.
func akamaiReference(rec *storage.FetchRecord) (bool, string) {
	if rec.StatusCode == http.StatusForbidden &&
		bytes.Contains(rec.Body, []byte("Reference #")) &&
		bytes.Contains(rec.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

// Analyze runs rec through detectors and records the first match on it.
// It returns true if any detector triggered.
func Analyze(rec *storage.FetchRecord, detectors []Detector) bool {
	if rec == nil {
		return false
	}
	for _, d := range detectors {
		if detected, source := d(rec); detected {
			rec.DetectedBot = true
			rec.DetectionSrc = source
			return true
		}
	}
	rec.DetectedBot = false
	rec.DetectionSrc = ""
	return false
}
