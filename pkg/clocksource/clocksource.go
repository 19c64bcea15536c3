// Package clocksource supplies the current UTC instant.
//
// A remote time service is asked once per reading; on any failure the local
// system clock is used instead. Callers never see an error.
package clocksource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Clock abstracts time.Now() to allow deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the standard time package.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Where a Reading came from.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// Reading is one answer to "what time is it".
type Reading struct {
	Instant time.Time `json:"instant"`
	Source  string    `json:"source"`
}

// Source supplies readings.
type Source interface {
	Now(ctx context.Context) Reading
}

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Remote asks a time service for the current instant.
type Remote struct {
	httpClient HTTPClient
	fallback   Clock
	logger     *slog.Logger
	url        string
	timeout    time.Duration
}

// Option configures a Remote.
type Option func(*Remote)

// WithHTTPClient sets the HTTP client used to reach the time service.
func WithHTTPClient(c HTTPClient) Option {
	return func(r *Remote) { r.httpClient = c }
}

// WithFallback sets the clock used when the time service is unavailable.
func WithFallback(c Clock) Option {
	return func(r *Remote) { r.fallback = c }
}

// WithTimeout bounds a single request to the time service.
func WithTimeout(d time.Duration) Option {
	return func(r *Remote) { r.timeout = d }
}

// NewRemote returns a Source backed by the time service at url. An empty url
// makes every reading local.
func NewRemote(url string, logger *slog.Logger, opts ...Option) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Remote{
		url:        url,
		logger:     logger,
		httpClient: http.DefaultClient,
		fallback:   SystemClock{},
		timeout:    3 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the remote instant, or the fallback clock's reading if the
// service cannot be reached or answers with something unparseable.
func (r *Remote) Now(ctx context.Context) Reading {
	if r.url == "" {
		return Reading{Instant: r.fallback.Now().UTC(), Source: SourceLocal}
	}
	t, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("time service unavailable, using local clock", "url", r.url, "error", err)
		return Reading{Instant: r.fallback.Now().UTC(), Source: SourceLocal}
	}
	r.logger.Debug("time service reading", "url", r.url, "instant", t)
	return Reading{Instant: t, Source: SourceRemote}
}

func (r *Remote) fetch(ctx context.Context) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, http.NoBody)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.Debug("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(body)
}

// parseTimestamp accepts {"utcTime": ...}, {"utc_datetime": ...},
// {"datetime": ...} or a bare ISO-8601 body.
func parseTimestamp(body []byte) (time.Time, error) {
	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, "{") {
		var payload struct {
			UTCTime     string `json:"utcTime"`
			UTCDatetime string `json:"utc_datetime"`
			Datetime    string `json:"datetime"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return time.Time{}, fmt.Errorf("decoding time response: %w", err)
		}
		switch {
		case payload.UTCTime != "":
			raw = payload.UTCTime
		case payload.UTCDatetime != "":
			raw = payload.UTCDatetime
		default:
			raw = payload.Datetime
		}
	} else {
		raw = strings.Trim(raw, `"`)
	}
	if raw == "" {
		return time.Time{}, errors.New("time response has no timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// Fixed is a Source that always returns the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now(context.Context) Reading {
	return Reading{Instant: time.Time(f).UTC(), Source: SourceLocal}
}
