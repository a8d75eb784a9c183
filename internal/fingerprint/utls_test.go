package fingerprint

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"", ProfileChrome, false},
		{"chrome", ProfileChrome, false},
		{" Firefox ", ProfileFirefox, false},
		{"SAFARI", ProfileSafari, false},
		{"go", ProfileGo, false},
		{"random", ProfileRandom, false},
		{"netscape", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProfile(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProfile(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProfile(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTransport_BrowserProfilesDialTLS(t *testing.T) {
	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(p)
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}
			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}
			if tr.DialTLSContext == nil {
				t.Errorf("expected DialTLSContext to be set for %s", p)
			}
		})
	}
}

func TestTransport_Go(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileGo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := rt.(*http.Transport)
	if tr.DialTLSContext != nil {
		t.Fatal("expected go profile to use the standard TLS dialer")
	}
	// httptest.NewTLSServer uses self-signed certs.
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	resp, err := (&http.Client{Transport: tr}).Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", resp.StatusCode)
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	if _, err := Transport(Profile("unknown_browser")); err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
}
