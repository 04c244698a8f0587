// Package pipeline resolves a post URL to a video by trying extraction
// backends one after another until one succeeds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/lo"

	xlog "nomark/internal/log"
	"nomark/internal/media"
	"nomark/internal/metrics"
	"nomark/internal/provider"
)

// Extractor turns a post URL into a VideoReference.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (media.VideoReference, error)
}

// AllProvidersFailedError is returned when every adapter failed. Failures
// are kept in priority order.
type AllProvidersFailedError struct {
	Failures []*provider.Failure
}

func (e *AllProvidersFailedError) Error() string {
	parts := lo.Map(e.Failures, func(f *provider.Failure, _ int) string {
		return fmt.Sprintf("%s (%s)", f.Provider, f.Stage)
	})
	return "all providers failed: " + strings.Join(parts, ", ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AllProvidersFailedError) Unwrap() []error {
	return lo.Map(e.Failures, func(f *provider.Failure, _ int) error { return f })
}

// UpstreamStatus returns the most recent 4xx or 5xx status reported by a
// backend, or 0 if no failure carried one.
func (e *AllProvidersFailedError) UpstreamStatus() int {
	for i := len(e.Failures) - 1; i >= 0; i-- {
		if s := e.Failures[i].StatusCode; s >= http.StatusBadRequest && s < 600 {
			return s
		}
	}
	return 0
}

// Resolver runs the fallback chain. It holds no per-request state and is
// safe for concurrent use.
type Resolver struct {
	extractor Extractor
	adapters  []provider.Adapter
}

// New creates a Resolver trying adapters in the given order.
func New(extractor Extractor, adapters ...provider.Adapter) (*Resolver, error) {
	if extractor == nil {
		return nil, errors.New("pipeline: nil extractor")
	}
	if len(adapters) == 0 {
		return nil, errors.New("pipeline: no adapters")
	}
	return &Resolver{
		extractor: extractor,
		adapters:  append([]provider.Adapter(nil), adapters...),
	}, nil
}

// Providers returns the adapter names in priority order.
func (r *Resolver) Providers() []string {
	return lo.Map(r.adapters, func(a provider.Adapter, _ int) string { return a.Name() })
}

// Resolve extracts the post identity from rawURL and downloads the video.
// Extraction errors are returned as is; adapter failures are collected into
// an *AllProvidersFailedError.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (media.ProviderResult, error) {
	ref, err := r.extractor.Extract(ctx, rawURL)
	if err != nil {
		metrics.RecordResolve("rejected")
		return media.ProviderResult{}, err
	}
	return r.ResolveReference(ctx, ref)
}

// ResolveReference runs the adapters for an already extracted reference.
func (r *Resolver) ResolveReference(ctx context.Context, ref media.VideoReference) (media.ProviderResult, error) {
	logger := xlog.FromContext(ctx, "pipeline").With().
		Str(xlog.FieldContentID, ref.ContentID).
		Str(xlog.FieldContentType, ref.ContentType.String()).
		Logger()

	var failures []*provider.Failure
	for _, a := range r.adapters {
		if err := ctx.Err(); err != nil {
			metrics.RecordResolve("canceled")
			return media.ProviderResult{}, fmt.Errorf("resolve canceled after %d attempts: %w", len(failures), err)
		}

		result, err := a.Fetch(ctx, ref).Get()
		if err == nil {
			metrics.RecordResolve("ok")
			logger.Info().
				Str(xlog.FieldProvider, a.Name()).
				Int("failed_attempts", len(failures)).
				Msg("video resolved")
			return result, nil
		}

		f, ok := provider.AsFailure(err)
		if !ok {
			f = &provider.Failure{
				Provider: a.Name(),
				Stage:    provider.StageInitialFetch,
				Message:  "adapter error",
				Err:      err,
			}
		}

		// Unsupported content is a property of the request, not the backend.
		if errors.Is(f, provider.ErrUnsupportedContentType) {
			metrics.RecordResolve("rejected")
			return media.ProviderResult{}, f
		}

		failures = append(failures, f)
		logger.Debug().
			Str(xlog.FieldProvider, a.Name()).
			Str(xlog.FieldStage, string(f.Stage)).
			Msg("provider failed, trying next")
	}

	metrics.RecordResolve("all_failed")
	failed := &AllProvidersFailedError{Failures: failures}
	logger.Error().Err(failed).Msg("all providers failed")
	return media.ProviderResult{}, failed
}
