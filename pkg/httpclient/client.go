package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// Headers are sent with every request unless overridden per call.
	Headers map[string]string
	// Provide a custom Transport, e.g. for uTLS fingerprinting
	Transport http.RoundTripper
}

// Client wraps a resty client to provide configurable timeouts, redirect
// policies and cookie management. It never retries.
type Client struct {
	*resty.Client
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	// Setup custom redirect policy
	if cfg.MaxRedirects >= 0 {
		c.SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects))
	} else {
		// Don't follow any redirects if max < 0
		c.SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	}

	// Cookie jar persistence
	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.SetCookieJar(jar)
	} else {
		c.SetCookieJar(nil)
	}

	if len(cfg.Headers) > 0 {
		c.SetHeaders(cfg.Headers)
	}

	if cfg.Transport != nil {
		c.SetTransport(cfg.Transport)
	}

	return &Client{Client: c}, nil
}

// Get executes a GET request. The provided context.Context controls
// cancellation independent of the client timeout.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	if ctx == nil {
		return nil, errors.New("get: context cannot be nil")
	}

	resp, err := c.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return resp, fmt.Errorf("get %s: %w", url, err)
	}
	return resp, nil
}
