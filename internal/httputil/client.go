// Package httputil provides a security-hardened HTTP client and input sanitization utilities.
package httputil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// UserAgent is sent when a backend does not configure its own.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrTooLarge is returned by ReadAll when the body exceeds the limit.
var ErrTooLarge = errors.New("response body exceeds size limit")

// TransportOptions tunes NewTransport.
type TransportOptions struct {
	// Impersonate makes TLS handshakes present a Chrome fingerprint.
	Impersonate bool
	// AllowPrivate permits dials to loopback and private ranges. Scraped
	// links come from third-party pages, so this stays off unless egress
	// goes through a local proxy.
	AllowPrivate bool
}

// NewTransport creates the tuned transport shared by all sessions.
func NewTransport(opts TransportOptions) http.RoundTripper {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !opts.AllowPrivate {
		dialer.Control = publicOnly
	}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if opts.Impersonate {
		t.DialTLSContext = chromeTLSDialer(dialer)
		t.ForceAttemptHTTP2 = false
	}
	return t
}

// NewClient creates a hardened HTTP client without cookie state.
func NewClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	if transport == nil {
		transport = NewTransport(TransportOptions{})
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewSession creates a client with its own cookie jar. Backends tie their
// anti-automation tokens to the cookies set on the first request, so each
// handshake needs a fresh session.
func NewSession(transport http.RoundTripper) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if transport == nil {
		transport = NewTransport(TransportOptions{})
	}
	return &http.Client{
		Jar:       jar,
		Transport: transport,
	}, nil
}

// NewRequest builds a request with browser-like defaults. Entries in
// headers override the defaults.
func NewRequest(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Request, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Get performs a GET request with standard browser-like headers.
func Get(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := NewRequest(ctx, http.MethodGet, rawURL, nil, headers)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// ReadAll reads r up to limit bytes and fails with ErrTooLarge beyond that.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, ErrTooLarge
	}
	return body, nil
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
