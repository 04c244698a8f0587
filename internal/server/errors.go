package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nomark/internal/extract"
	xlog "nomark/internal/log"
	"nomark/internal/pipeline"
	"nomark/internal/provider"
)

// Error codes returned in the JSON error body.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidURL         = "INVALID_URL"
	CodeRedirectFailed     = "REDIRECT_FAILED"
	CodeUnsupportedContent = "UNSUPPORTED_CONTENT"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeDownloadFailed     = "DOWNLOAD_FAILED"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// APIError is the error returned to HTTP callers. Per-provider detail is
// logged and never included.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Cause }

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// classify maps a pipeline error to the response the caller sees.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var failed *pipeline.AllProvidersFailedError
	switch {
	case errors.Is(err, extract.ErrMalformedURL):
		return &APIError{Status: http.StatusBadRequest, Code: CodeInvalidURL, Message: "could not extract a video ID from the URL", Cause: err}
	case errors.Is(err, extract.ErrRedirectResolution):
		return &APIError{Status: http.StatusBadRequest, Code: CodeRedirectFailed, Message: "failed to follow short link redirect", Cause: err}
	case errors.Is(err, provider.ErrUnsupportedContentType):
		return &APIError{Status: http.StatusBadRequest, Code: CodeUnsupportedContent, Message: "only video downloads are supported", Cause: err}
	case errors.As(err, &failed):
		status := failed.UpstreamStatus()
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return &APIError{Status: status, Code: CodeDownloadFailed, Message: "all download methods failed", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: http.StatusGatewayTimeout, Code: CodeUpstreamTimeout, Message: "download timed out", Cause: err}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: "internal error", Cause: err}
	}
}

// writeError logs err and writes the JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)
	reqID := xlog.RequestIDFromContext(r.Context())

	logger := xlog.FromContext(r.Context(), "server")
	event := logger.Warn()
	if apiErr.Status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(apiErr.Cause).
		Int(xlog.FieldStatus, apiErr.Status).
		Str("code", apiErr.Code).
		Msg(apiErr.Message)

	var body errorBody
	body.Error.Code = apiErr.Code
	body.Error.Message = apiErr.Message
	body.Error.RequestID = reqID

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(body)
}
