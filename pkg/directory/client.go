package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// errPermanent marks responses that retrying cannot fix.
var errPermanent = errors.New("permanent failure")

// Client fetches city records from the city-metadata backend.
type Client struct {
	httpClient HTTPClient
	logger     *slog.Logger
	baseURL    string
	attempts   uint
	delay      time.Duration
	maxDelay   time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetry sets the number of attempts and the initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, httpClient HTTPClient, logger *slog.Logger, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		attempts:   4,
		delay:      250 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup implements Source. Network errors, 429 and 5xx responses are
// retried with exponential backoff; 404 returns ErrNotFound immediately.
func (c *Client) Lookup(ctx context.Context, name string) (*City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty city name: %w", ErrNotFound)
	}
	apiURL := c.baseURL + "/api/cities/" + url.PathEscape(name)

	var city *City
	var lastErr error
	err := retry.Do(
		func() error {
			city, lastErr = c.fetch(ctx, apiURL, name)
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(c.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying city lookup", "attempt", n+1, "city", name, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrNotFound) && !errors.Is(err, errPermanent)
		}),
	)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if errors.Is(lastErr, ErrNotFound) {
			return nil, lastErr
		}
		return nil, fmt.Errorf("city lookup %q failed: %w", name, lastErr)
	}
	return city, nil
}

func (c *Client) fetch(ctx context.Context, apiURL, name string) (*City, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errPermanent, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Debug("retryable HTTP error", "status", resp.StatusCode, "url", apiURL)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, preview(body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d: %s", errPermanent, resp.StatusCode, preview(body))
	}

	var city City
	if err := json.Unmarshal(body, &city); err != nil {
		c.logger.Debug("city JSON parse error", "city", name, "error", err, "body", preview(body))
		return nil, fmt.Errorf("%w: decoding city %q: %w", errPermanent, name, err)
	}
	if city.Name == "" {
		city.Name = cases.Title(language.English).String(name)
	}
	return &city, nil
}

func preview(body []byte) string {
	const n = 200
	if len(body) > n {
		return string(body[:n])
	}
	return string(body)
}
