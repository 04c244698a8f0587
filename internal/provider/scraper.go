package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"golang.org/x/time/rate"

	"nomark/internal/httputil"
	xlog "nomark/internal/log"
	"nomark/internal/media"
	"nomark/internal/metrics"
)

// pageLimit caps landing pages and form responses.
const pageLimit = 4 << 20

const (
	defaultTimeout  = 60 * time.Second
	defaultMaxBytes = 200 << 20
)

// Scraper implements Adapter for any Backend by running the shared
// landing page, token, form, link and media handshake.
type Scraper struct {
	backend   Backend
	selectors compiled
	transport http.RoundTripper
	timeout   time.Duration
	maxBytes  int64
	limiter   *rate.Limiter
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTransport sets the transport shared by the per-call sessions.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Scraper) { s.transport = rt }
}

// WithTimeout bounds one whole Fetch call.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxBytes caps the downloaded video size.
func WithMaxBytes(n int64) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithRateLimit paces handshakes against the backend. perSecond <= 0
// disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(s *Scraper) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// New creates a Scraper for b. The backend is copied, so later changes
// to b do not affect the Scraper.
func New(b Backend, opts ...Option) (*Scraper, error) {
	b.Headers = lo.Assign(b.Headers)
	b.Fields = slices.Clone(b.Fields)
	b.Links = slices.Clone(b.Links)

	sel, err := b.compile()
	if err != nil {
		return nil, err
	}

	s := &Scraper{
		backend:   b,
		selectors: sel,
		timeout:   defaultTimeout,
		maxBytes:  defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = httputil.NewTransport(httputil.TransportOptions{})
	}
	return s, nil
}

// Name returns the backend name.
func (s *Scraper) Name() string { return s.backend.Name }

// Fetch runs the backend handshake for ref.
func (s *Scraper) Fetch(ctx context.Context, ref media.VideoReference) mo.Result[media.ProviderResult] {
	logger := xlog.FromContext(ctx, "provider").With().
		Str(xlog.FieldProvider, s.Name()).
		Str(xlog.FieldContentID, ref.ContentID).
		Logger()

	if ref.ContentType != media.Video {
		logger.Warn().Str(xlog.FieldContentType, ref.ContentType.String()).Msg("rejecting non-video content")
		return mo.Err[media.ProviderResult](&Failure{
			Provider: s.Name(),
			Stage:    StageContentValidation,
			Message:  fmt.Sprintf("content type %s is not supported", ref.ContentType),
			Err:      ErrUnsupportedContentType,
		})
	}

	start := time.Now()
	metrics.RecordAttempt(s.Name())
	logger.Debug().Str(xlog.FieldURL, ref.RawURL).Msg("starting handshake")

	result, failure := s.fetch(ctx, ref, logger)
	elapsed := time.Since(start)
	if failure != nil {
		metrics.RecordFailure(s.Name(), string(failure.Stage), elapsed)
		logger.Warn().
			Err(failure.Err).
			Str(xlog.FieldStage, string(failure.Stage)).
			Int(xlog.FieldStatus, failure.StatusCode).
			Dur(xlog.FieldDuration, elapsed).
			Msg(failure.Message)
		return mo.Err[media.ProviderResult](failure)
	}

	metrics.RecordSuccess(s.Name(), len(result.Body), elapsed)
	logger.Info().
		Int(xlog.FieldBytes, len(result.Body)).
		Dur(xlog.FieldDuration, elapsed).
		Msg("video downloaded")
	return mo.Ok(result)
}

func (s *Scraper) fetch(ctx context.Context, ref media.VideoReference, logger zerolog.Logger) (media.ProviderResult, *Failure) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return media.ProviderResult{}, s.fail(StageInitialFetch, "waiting for rate limiter", 0, err)
		}
	}

	client, err := httputil.NewSession(s.transport)
	if err != nil {
		return media.ProviderResult{}, s.fail(StageInitialFetch, "creating session", 0, err)
	}

	// Landing page: sets session cookies and carries the form tokens.
	body, status, err := s.do(ctx, client, http.MethodGet, s.backend.LandingURL, nil, nil, pageLimit)
	if err != nil {
		return media.ProviderResult{}, s.fail(StageInitialFetch, "landing page request failed", status, err)
	}
	landing, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return media.ProviderResult{}, s.fail(StageInitialFetch, "parsing landing page", 0, err)
	}

	form, err := buildForm(landing, s.selectors.fields, ref.RawURL)
	if err != nil {
		logger.Debug().Str("html", snippet(body)).Msg("landing page without tokens")
		return media.ProviderResult{}, s.fail(StageTokenExtraction, "could not retrieve tokens", 0, err)
	}
	logger.Debug().Strs("fields", lo.Keys(form)).Msg("obtained form tokens")

	// Form submission.
	body, status, err = s.do(ctx, client, http.MethodPost, s.backend.FormURL,
		strings.NewReader(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		pageLimit)
	if err != nil {
		return media.ProviderResult{}, s.fail(StageFormSubmit, "form submission failed", status, err)
	}

	html := string(body)
	if s.backend.Envelope != "" {
		html, err = decodeEnvelope(body, s.backend.Envelope)
		if err != nil {
			logger.Debug().Str("body", snippet(body)).Msg("unexpected form response")
			return media.ProviderResult{}, s.fail(StageFormSubmit, "unparseable response", status, err)
		}
	}
	result, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return media.ProviderResult{}, s.fail(StageFormSubmit, "unparseable response", status, err)
	}

	// Direct media link.
	href, matched, ok := findLink(result, s.selectors.links)
	if !ok {
		logger.Debug().Str("html", snippet([]byte(html))).Msg("no download link in response")
		return media.ProviderResult{}, s.fail(StageLinkExtraction, "could not find download link", 0, nil)
	}
	link, err := httputil.ResolveReference(s.backend.FormURL, href)
	if err != nil {
		return media.ProviderResult{}, s.fail(StageLinkExtraction, "invalid download link", 0, err)
	}
	logger.Debug().Str("selector", matched).Str(xlog.FieldURL, link).Msg("found download link")

	// Media download.
	video, header, status, err := s.download(ctx, client, link)
	if err != nil {
		return media.ProviderResult{}, s.fail(StageMediaFetch, "video download failed", status, err)
	}
	if len(video) == 0 {
		return media.ProviderResult{}, s.fail(StageMediaFetch, "empty video response", status, nil)
	}

	if ct := header.Get("Content-Type"); !isMediaContentType(ct) {
		metrics.RecordContentTypeAnomaly(s.Name())
		logger.Warn().Str(xlog.FieldContentType, ct).Msg("unexpected content type for video, continuing")
	}

	return media.ProviderResult{
		Body:              video,
		SuggestedFilename: ref.SuggestedFilename(),
		MediaType:         media.MP4,
		Provider:          s.Name(),
	}, nil
}

// do sends one request and returns the body of a 2xx response. The
// response status is returned even on error when one was received.
func (s *Scraper) do(ctx context.Context, client *http.Client, method, rawURL string, payload io.Reader, extra map[string]string, limit int64) ([]byte, int, error) {
	req, err := httputil.NewRequest(ctx, method, rawURL, payload, lo.Assign(s.backend.Headers, extra))
	if err != nil {
		return nil, 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := httputil.ReadAll(resp.Body, limit)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (s *Scraper) download(ctx context.Context, client *http.Client, link string) ([]byte, http.Header, int, error) {
	req, err := httputil.NewRequest(ctx, http.MethodGet, link, nil, s.backend.Headers)
	if err != nil {
		return nil, nil, 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return nil, resp.Header, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > s.maxBytes {
		return nil, resp.Header, resp.StatusCode, httputil.ErrTooLarge
	}

	body, err := httputil.ReadAll(resp.Body, s.maxBytes)
	if err != nil {
		return nil, resp.Header, resp.StatusCode, err
	}
	return body, resp.Header, resp.StatusCode, nil
}

func (s *Scraper) fail(stage Stage, msg string, status int, err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		msg += " (timed out)"
	}
	return &Failure{
		Provider:   s.Name(),
		Stage:      stage,
		Message:    msg,
		StatusCode: status,
		Err:        err,
	}
}
