// Package extract turns TikTok post URLs into media.VideoReference values,
// following short-link redirects first.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"nomark/internal/httputil"
	xlog "nomark/internal/log"
	"nomark/internal/media"
)

var (
	// ErrMalformedURL means no usable handle or post ID was found.
	ErrMalformedURL = errors.New("malformed video URL")
	// ErrRedirectResolution means a short link could not be followed.
	ErrRedirectResolution = errors.New("failed to follow redirect")
)

// PlaceholderHandle is used when only the numeric fallback matched.
//
// The fallback accepts any long digit run, so a malformed URL can produce a
// reference with this handle instead of an error. Providers only need the
// post URL, which keeps this harmless in practice, but callers must not treat
// the handle as authoritative.
const PlaceholderHandle = "@user"

// DefaultShortLinkHosts are the hosts that only redirect to a canonical post URL.
var DefaultShortLinkHosts = []string{"vm.tiktok.com", "vt.tiktok.com"}

var (
	handlePattern  = regexp.MustCompile(`@[A-Za-z0-9_.]+`)
	contentPattern = regexp.MustCompile(`/(video|photo)/(\d+)`)
	// A run of 15 or more digits not glued to other digits, e.g. in ?item_id=.
	fallbackIDPattern = regexp.MustCompile(`(?:^|\D)(\d{15,})`)
)

// Extractor parses post URLs.
type Extractor struct {
	client     *http.Client
	timeout    time.Duration
	shortHosts map[string]bool
}

// New creates an Extractor. client must follow redirects; timeout bounds
// short-link resolution.
func New(client *http.Client, timeout time.Duration) *Extractor {
	if client == nil {
		client = httputil.NewClient(nil, timeout)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e := &Extractor{
		client:     client,
		timeout:    timeout,
		shortHosts: make(map[string]bool),
	}
	for _, h := range DefaultShortLinkHosts {
		e.shortHosts[h] = true
	}
	return e
}

// IsShortLink reports whether rawURL points at a short-link host.
func (e *Extractor) IsShortLink(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return e.shortHosts[strings.ToLower(u.Hostname())]
}

// Extract resolves rawURL (following short links) and parses it.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (media.VideoReference, error) {
	logger := xlog.FromContext(ctx, "extract")
	rawURL = strings.TrimSpace(rawURL)

	if err := httputil.ValidateURL(rawURL); err != nil {
		return media.VideoReference{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	if e.IsShortLink(rawURL) {
		logger.Debug().Str(xlog.FieldURL, rawURL).Msg("short link detected, following redirect")
		resolved, err := e.resolveShortLink(ctx, rawURL)
		if err != nil {
			logger.Warn().Err(err).Str(xlog.FieldURL, rawURL).Msg("redirect resolution failed")
			return media.VideoReference{}, fmt.Errorf("%w: %v", ErrRedirectResolution, err)
		}
		logger.Debug().Str(xlog.FieldURL, resolved).Msg("redirected")
		rawURL = resolved
	}

	ref, err := Parse(rawURL)
	if err != nil {
		return media.VideoReference{}, err
	}
	if ref.AuthorHandle == PlaceholderHandle {
		logger.Warn().Str(xlog.FieldURL, rawURL).Msg("no handle in URL, using placeholder")
	}
	return ref, nil
}

func (e *Extractor) resolveShortLink(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := httputil.Get(ctx, e.client, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	if resp.Request == nil || resp.Request.URL == nil {
		return "", fmt.Errorf("no final URL for %s", rawURL)
	}
	return resp.Request.URL.String(), nil
}

// Parse extracts the handle, post ID and content type from a canonical post
// URL. It performs no network I/O.
func Parse(rawURL string) (media.VideoReference, error) {
	handle := handlePattern.FindString(rawURL)
	content := contentPattern.FindStringSubmatch(rawURL)

	if handle == "" || content == nil {
		if m := fallbackIDPattern.FindStringSubmatch(rawURL); m != nil {
			if handle == "" {
				handle = PlaceholderHandle
			}
			return media.VideoReference{
				RawURL:       rawURL,
				AuthorHandle: handle,
				ContentID:    m[1],
				ContentType:  media.Video,
			}, nil
		}
	}

	if handle == "" {
		return media.VideoReference{}, fmt.Errorf("%w: could not extract username from %q", ErrMalformedURL, rawURL)
	}
	if content == nil {
		return media.VideoReference{}, fmt.Errorf("%w: could not extract video ID from %q", ErrMalformedURL, rawURL)
	}

	contentType, err := media.ParseContentType(content[1])
	if err != nil {
		return media.VideoReference{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	return media.VideoReference{
		RawURL:       rawURL,
		AuthorHandle: handle,
		ContentID:    content[2],
		ContentType:  contentType,
	}, nil
}
