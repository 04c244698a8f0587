package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nomark/internal/extract"
	"nomark/internal/media"
	"nomark/internal/pipeline"
	"nomark/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

const (
	testKey = "s3cret"
	postURL = "https://www.tiktok.com/@someuser/video/7123456789012345678"
)

type resolverFunc func(ctx context.Context, rawURL string) (media.ProviderResult, error)

func (f resolverFunc) Resolve(ctx context.Context, rawURL string) (media.ProviderResult, error) {
	return f(ctx, rawURL)
}

func okResolver(body string) resolverFunc {
	return func(_ context.Context, rawURL string) (media.ProviderResult, error) {
		ref, err := extract.Parse(rawURL)
		if err != nil {
			return media.ProviderResult{}, err
		}
		return media.ProviderResult{
			Body:              []byte(body),
			SuggestedFilename: ref.SuggestedFilename(),
			MediaType:         media.MP4,
			Provider:          "tiktokio",
		}, nil
	}
}

func errResolver(err error) resolverFunc {
	return func(context.Context, string) (media.ProviderResult, error) {
		return media.ProviderResult{}, err
	}
}

func newTestHandler(t *testing.T, r Resolver, cfg Config) http.Handler {
	t.Helper()
	if cfg.APIKey == "" {
		cfg.APIKey = testKey
	}
	s, err := New(cfg, r)
	require.NoError(t, err)
	return s.Handler()
}

func download(t *testing.T, h http.Handler, target, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDownloadSuccess(t *testing.T) {
	h := newTestHandler(t, okResolver("mp4-bytes"), Config{})

	rec := download(t, h, "/download?url="+postURL, testKey)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4-bytes", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="tiktok_7123456789012345678.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "tiktokio", rec.Header().Get("X-Provider"))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestDownloadRange(t *testing.T) {
	h := newTestHandler(t, okResolver("0123456789"), Config{})

	req := httptest.NewRequest(http.MethodGet, "/download?url="+postURL, nil)
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
}

func TestDownloadAPIKey(t *testing.T) {
	called := false
	h := newTestHandler(t, resolverFunc(func(context.Context, string) (media.ProviderResult, error) {
		called = true
		return media.ProviderResult{}, nil
	}), Config{})

	for _, key := range []string{"", "wrong", testKey + "x"} {
		rec := download(t, h, "/download?url="+postURL, key)
		require.Equal(t, http.StatusForbidden, rec.Code, "key %q", key)
		assert.Equal(t, CodeForbidden, decodeError(t, rec).Error.Code)
	}
	assert.False(t, called, "resolver must not run for unauthorized requests")
}

func TestDownloadErrors(t *testing.T) {
	allFailed := func(statuses ...int) error {
		e := &pipeline.AllProvidersFailedError{}
		for i, s := range statuses {
			e.Failures = append(e.Failures, &provider.Failure{
				Provider:   fmt.Sprintf("p%d", i),
				Stage:      provider.StageFormSubmit,
				Message:    "internal detail",
				StatusCode: s,
			})
		}
		return e
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed URL", fmt.Errorf("%w: no id", extract.ErrMalformedURL), http.StatusBadRequest, CodeInvalidURL},
		{"redirect failed", fmt.Errorf("%w: dns", extract.ErrRedirectResolution), http.StatusBadRequest, CodeRedirectFailed},
		{"photo", &provider.Failure{Provider: "musicaldown", Stage: provider.StageContentValidation, Err: provider.ErrUnsupportedContentType}, http.StatusBadRequest, CodeUnsupportedContent},
		{"all failed with upstream status", allFailed(0, 503, 429), http.StatusTooManyRequests, CodeDownloadFailed},
		{"all failed without status", allFailed(0, 0, 0), http.StatusInternalServerError, CodeDownloadFailed},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, CodeUpstreamTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, errResolver(tt.err), Config{})
			rec := download(t, h, "/download?url="+postURL, testKey)

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, rec.Header().Get(HeaderRequestID), body.Error.RequestID)
			assert.NotContains(t, rec.Body.String(), "internal detail")
		})
	}
}

func TestDownloadMissingURL(t *testing.T) {
	h := newTestHandler(t, okResolver("x"), Config{})
	rec := download(t, h, "/download", testKey)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidRequest, decodeError(t, rec).Error.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	h := newTestHandler(t, errResolver(errors.New("boom")), Config{})

	req := httptest.NewRequest(http.MethodGet, "/download?url="+postURL, nil)
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-42", decodeError(t, rec).Error.RequestID)
}

func TestRateLimit(t *testing.T) {
	h := newTestHandler(t, okResolver("x"), Config{RatePerMinute: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, download(t, h, "/download?url="+postURL, testKey).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestHandler(t, okResolver("x"), Config{})

	rec := download(t, h, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	download(t, h, "/download?url="+postURL, testKey)
	rec = download(t, h, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nomark_http_request_duration_seconds")
}

func TestNotFound(t *testing.T) {
	h := newTestHandler(t, okResolver("x"), Config{})
	rec := download(t, h, "/nope", testKey)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeInvalidRequest, decodeError(t, rec).Error.Code)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{Listen: ":0"}, okResolver("x"))
	require.Error(t, err)

	_, err = New(Config{APIKey: testKey}, nil)
	require.Error(t, err)
}

func TestAuthorizeKey(t *testing.T) {
	assert.True(t, authorizeKey("abc", "abc"))
	assert.False(t, authorizeKey("abc", "abd"))
	assert.False(t, authorizeKey("", ""))
	assert.False(t, authorizeKey("abc", "  "))
}

func TestServeAndShutdown(t *testing.T) {
	s, err := New(Config{APIKey: testKey}, okResolver("video"))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/download?url="+postURL, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderAPIKey, testKey)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "video", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-done)
}

func TestRateLimitIgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	h := newTestHandler(t, okResolver("x"), Config{RatePerMinute: 2})

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/download?url="+postURL, nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set(HeaderAPIKey, "guess")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{
		http.StatusForbidden, http.StatusForbidden,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}
	assert.Equal(t, want, codes)
}

func TestRateLimitKeysOnClientBehindTrustedProxy(t *testing.T) {
	h := newTestHandler(t, okResolver("x"), Config{RatePerMinute: 2, TrustedProxies: []string{"10.0.0.0/8"}})

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/download?url="+postURL, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		req.Header.Set(HeaderAPIKey, testKey)
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Distinct clients behind the same proxy each get their own budget.
	for i := 1; i <= 4; i++ {
		require.Equal(t, http.StatusOK, send(fmt.Sprintf("198.51.100.%d", i)))
	}
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
}

func TestClientIP(t *testing.T) {
	trusted, err := parseCIDRs([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		xrip   string
		want   string
	}{
		{"untrusted peer ignores headers", "203.0.113.7:1000", "198.51.100.1", "198.51.100.2", "203.0.113.7"},
		{"trusted peer uses forwarded", "10.0.0.1:1000", "198.51.100.1", "", "198.51.100.1"},
		{"rightmost untrusted hop wins", "10.0.0.1:1000", "1.1.1.1, 198.51.100.1, 10.0.0.9", "", "198.51.100.1"},
		{"single trusted IP entry", "192.0.2.10:1000", "198.51.100.3", "", "198.51.100.3"},
		{"trusted peer falls back to X-Real-IP", "10.0.0.1:1000", "", "198.51.100.4", "198.51.100.4"},
		{"all hops trusted", "10.0.0.1:1000", "10.0.0.2, 10.0.0.3", "", "10.0.0.1"},
		{"garbage forwarded entries", "10.0.0.1:1000", "nope, also-nope", "", "10.0.0.1"},
		{"remote without port", "203.0.113.8", "", "", "203.0.113.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xrip != "" {
				req.Header.Set("X-Real-IP", tt.xrip)
			}
			assert.Equal(t, tt.want, clientIP(req, trusted).String())
		})
	}
}

func TestNewRejectsBadTrustedProxy(t *testing.T) {
	_, err := New(Config{APIKey: testKey, TrustedProxies: []string{"not-a-cidr"}}, okResolver("x"))
	require.Error(t, err)
}

func TestDownloadClientGone(t *testing.T) {
	h := newTestHandler(t, resolverFunc(func(ctx context.Context, _ string) (media.ProviderResult, error) {
		<-ctx.Done()
		return media.ProviderResult{}, ctx.Err()
	}), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/download?url="+postURL, nil).WithContext(ctx)
	req.Header.Set(HeaderAPIKey, testKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}
