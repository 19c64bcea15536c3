// Package geoip asks an IP-geolocation service where the caller is.
package geoip

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
)

// Location is the caller's approximate position.
type Location struct {
	City      string  `json:"city"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lon,omitempty"`
}

// Candidates returns the names to try in a city directory, best first: the
// reported city, then the city part of the IANA timezone
// ("Australia/Melbourne" gives "Melbourne"). Small towns are often missing
// from a directory while their zone's city is not.
func (l *Location) Candidates() []string {
	var out []string
	if city := strings.TrimSpace(l.City); city != "" {
		out = append(out, city)
	}
	if i := strings.LastIndex(l.Timezone, "/"); i >= 0 {
		zoneCity := strings.TrimSpace(strings.ReplaceAll(l.Timezone[i+1:], "_", " "))
		if zoneCity != "" && !strings.EqualFold(zoneCity, l.City) {
			out = append(out, zoneCity)
		}
	}
	return out
}

// ipAPIFields is the location part of an ip-api style response.
type ipAPIFields struct {
	City       string  `json:"city"`
	Region     string  `json:"region"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
	Timezone   string  `json:"timezone"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client handles IP-geolocation lookups.
type Client struct {
	httpClient HTTPClient
	logger     *slog.Logger
	endpoint   string
	attempts   uint
	delay      time.Duration
}

// NewClient creates a geolocation client for endpoint. The endpoint answers
// GET requests with JSON of the form {"city": ..., "country": ..., "timezone": ...},
// or with the same fields nested under "location"; the optional ?ip=
// parameter asks about another address.
func NewClient(endpoint string, httpClient HTTPClient, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
		attempts:   3,
		delay:      500 * time.Millisecond,
	}
}

// SetRetry overrides the retry policy.
func (c *Client) SetRetry(attempts uint, delay time.Duration) {
	c.attempts = attempts
	c.delay = delay
}

// Locate returns the location of the calling machine.
func (c *Client) Locate(ctx context.Context) (*Location, error) {
	return c.LocateIP(ctx, "")
}

// LocateIP returns the location of ip, or of the caller when ip is empty.
func (c *Client) LocateIP(ctx context.Context, ip string) (*Location, error) {
	if c.endpoint == "" {
		c.logger.Warn("geolocation endpoint not configured - skipping lookup")
		return nil, errors.New("geolocation endpoint not configured")
	}

	apiURL := c.endpoint
	if ip != "" {
		u, err := url.Parse(c.endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing geolocation endpoint: %w", err)
		}
		q := u.Query()
		q.Set("ip", ip)
		u.RawQuery = q.Encode()
		apiURL = u.String()
	}

	var loc *Location
	var lastErr error
	err := retry.Do(
		func() error {
			loc, lastErr = c.fetch(ctx, apiURL)
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying geolocation", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("geolocation failed: %w", lastErr)
	}
	return loc, nil
}

func (c *Client) fetch(ctx context.Context, apiURL string) (*Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var result struct {
		ipAPIFields
		Status   string       `json:"status"`
		Message  string       `json:"message"`
		Location *ipAPIFields `json:"location"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Debug("geolocation JSON parse error", "error", err, "body", string(body))
		return nil, fmt.Errorf("failed to parse geolocation response: %w", err)
	}
	if strings.EqualFold(result.Status, "fail") {
		return nil, fmt.Errorf("geolocation refused: %s", result.Message)
	}
	// Worker-style responses nest the fields under "location".
	if result.City == "" && result.Location != nil {
		result.ipAPIFields = *result.Location
	}
	if result.City == "" {
		return nil, errors.New("geolocation response has no city")
	}

	region := result.RegionName
	if region == "" {
		region = result.Region
	}
	c.logger.Debug("geolocation result", "city", result.City, "country", result.Country)
	return &Location{
		City:      result.City,
		Region:    region,
		Country:   result.Country,
		Timezone:  result.Timezone,
		Latitude:  result.Lat,
		Longitude: result.Lon,
	}, nil
}
