package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gigboard/pkg/idx"
)

// RequestIDHeader carries the correlation ID of an outbound request.
const RequestIDHeader = "X-Request-ID"

// Transport logs every outbound request and stamps it with a request ID. The
// contextual logger (with req_id) is attached to the request context so the
// layers above can log against the same ID.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
	}

	logger := t.Logger.With(
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
	)

	// RoundTrippers must not mutate the caller's request
	r = r.Clone(WithContext(r.Context(), logger))
	r.Header.Set(RequestIDHeader, reqID)

	resp, err := t.Base.RoundTrip(r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_request", "status", resp.StatusCode, "duration_ms", duration)
	return resp, nil
}
