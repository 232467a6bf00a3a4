// Package api implements an HTTP row source for source platforms that
// only expose their data through a REST API. Requests are rate limited
// and retried; the engine never sees transport details.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/cartmigrate/migration-core/internal/gateway"
)

// ClientConfig configures the API row source.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://shop.example.com/api.
	BaseURL string

	// Token is sent as a bearer token on every request.
	Token string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for failed requests (default: 3).
	MaxRetries int

	// RateLimit requests per second (default: 4).
	RateLimit float64

	// RateBurst maximum burst size (default: 2).
	RateBurst int

	// Transport allows injecting a custom HTTP transport for tests.
	Transport http.RoundTripper
}

// entityPaths maps entity types to their API collection paths.
var entityPaths = map[string]string{
	"customer":             "/customers",
	"category":             "/categories",
	"currency":             "/currencies",
	"manufacturer":         "/manufacturers",
	"newsletter_recipient": "/newsletter/subscribers",
}

// Client is a rate-limited, retrying API row source.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an API row source.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4
	}
	if config.RateBurst == 0 {
		config.RateBurst = 2
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	if config.Transport != nil {
		httpClient.Transport = config.Transport
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}, nil
}

// Read fetches one page of records for an entity type.
func (c *Client) Read(ctx context.Context, req *gateway.ReadRequest) (gateway.Iterator[gateway.Record], error) {
	path, ok := entityPaths[req.Entity]
	if !ok {
		return nil, fmt.Errorf("api: unsupported entity: %s", req.Entity)
	}

	query := url.Values{}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		query.Set("offset", strconv.Itoa(req.Offset))
	}

	var payload struct {
		Items []gateway.Record `json:"items"`
	}
	if err := c.getJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}
	return gateway.NewSliceIterator(payload.Items), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("api: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.config.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.Token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("api: decode %s: %w", path, err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			// Retryable; the limiter paces the next attempt.
			lastErr = fmt.Errorf("api: %s returned %d", path, resp.StatusCode)
			continue
		default:
			return fmt.Errorf("api: %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
		}
	}
	return fmt.Errorf("api: %s failed after %d attempts: %w", path, c.config.MaxRetries+1, lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
