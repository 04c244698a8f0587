// Package provider defines the interface for third-party extraction backends
// and the generic scraping adapter that drives them.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"

	"nomark/internal/media"
)

// Adapter is the interface that extraction backends must implement.
type Adapter interface {
	// Name identifies the backend in logs, metrics and failures.
	Name() string

	// Fetch downloads the watermark-free video for ref. A failed fetch
	// carries a *Failure.
	Fetch(ctx context.Context, ref media.VideoReference) mo.Result[media.ProviderResult]
}

// Stage is the step of a backend handshake at which a fetch stopped.
type Stage string

const (
	StageRedirect          Stage = "redirect"
	StageInitialFetch      Stage = "initial-fetch"
	StageTokenExtraction   Stage = "token-extraction"
	StageFormSubmit        Stage = "form-submit"
	StageLinkExtraction    Stage = "link-extraction"
	StageMediaFetch        Stage = "media-fetch"
	StageContentValidation Stage = "content-validation"
)

// ErrUnsupportedContentType is returned for posts that are not videos.
var ErrUnsupportedContentType = errors.New("only video downloads are supported")

// Failure describes one failed adapter attempt.
type Failure struct {
	Provider   string
	Stage      Stage
	Message    string
	StatusCode int // upstream HTTP status, 0 if none was received
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", f.Provider, f.Stage, f.Message)
	if f.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", f.StatusCode)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
