// Package geocode resolves addresses and coordinates through a
// Nominatim-compatible HTTP API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/event-board/internal/logging"
)

// ErrNoResult is returned when the provider knows no place for the query.
var ErrNoResult = errors.New("geocode: no result")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Result is a resolved place.
type Result struct {
	Point          Point
	DisplayAddress string
}

// Config configures the HTTP client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client calls the geocoding provider. Each call is a single request with no
// retry.
type Client struct {
	baseURL   *url.URL
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	return NewClientWithLogger(cfg, nil)
}

// NewClientWithLogger builds a client that logs provider calls.
func NewClientWithLogger(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("geocode: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	agent := strings.TrimSpace(cfg.UserAgent)
	if agent == "" {
		agent = "event-board"
	}
	return &Client{
		baseURL:   base,
		userAgent: agent,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}, nil
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (p place) result() (Result, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: invalid latitude %q", p.Lat)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: invalid longitude %q", p.Lon)
	}
	return Result{Point: Point{Lat: lat, Lon: lon}, DisplayAddress: strings.TrimSpace(p.DisplayName)}, nil
}

// Forward resolves a free-form address to its best matching place.
func (c *Client) Forward(ctx context.Context, address string) (Result, error) {
	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "jsonv2")
	query.Set("limit", "1")

	var places []place
	if err := c.get(ctx, "search", query, &places); err != nil {
		return Result{}, err
	}
	if len(places) == 0 {
		return Result{}, fmt.Errorf("%w for %q", ErrNoResult, address)
	}
	return places[0].result()
}

// Reverse resolves a coordinate pair to the nearest addressable place.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (Result, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("format", "jsonv2")

	var p place
	if err := c.get(ctx, "reverse", query, &p); err != nil {
		return Result{}, err
	}
	if p.Error != "" {
		return Result{}, fmt.Errorf("%w: %s", ErrNoResult, p.Error)
	}
	return p.result()
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	if c == nil {
		return fmt.Errorf("geocode client is nil")
	}

	target := c.baseURL.JoinPath(endpoint)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	logger := c.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	started := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("geocode request failed", "endpoint", endpoint, "error", err)
		return fmt.Errorf("geocode: %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	logger.Debug("geocode request", "endpoint", endpoint, "status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("geocode: %s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("geocode: decode %s response: %w", endpoint, err)
	}
	return nil
}
