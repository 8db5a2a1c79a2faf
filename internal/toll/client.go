// README: HTTP client for a live toll-rate API with bounded exponential retries.
package toll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoRate = errors.New("toll api returned no rate")

type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxElapsed time.Duration
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxElapsed bounds the total time spent retrying one lookup.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		http:       &http.Client{Timeout: 5 * time.Second},
		maxElapsed: 3 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rateResponse struct {
	RatePerKm decimal.Decimal `json:"rate_per_km"`
	Currency  string          `json:"currency"`
}

// TollRate returns the live per-km toll rate. 4xx responses are not retried.
func (c *Client) TollRate(ctx context.Context, country, vehicleType string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("country", country)
	q.Set("vehicle_type", vehicleType)
	endpoint := c.baseURL + "/rates?" + q.Encode()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = c.maxElapsed

	var rate decimal.Decimal
	err := backoff.RetryNotify(
		func() error {
			r, err := c.fetch(ctx, endpoint)
			if err != nil {
				return err
			}
			rate = r
			return nil
		},
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			c.logger.Warn("toll rate request failed, retrying",
				zap.String("country", country),
				zap.Error(err),
				zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("toll rate %s/%s: %w", country, vehicleType, err)
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, err
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return decimal.Zero, fmt.Errorf("toll api status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, backoff.Permanent(fmt.Errorf("toll api status %d: %s", resp.StatusCode, body))
	}

	var rr rateResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("decode toll response: %w", err))
	}
	if !rr.RatePerKm.IsPositive() {
		return decimal.Zero, backoff.Permanent(ErrNoRate)
	}
	return rr.RatePerKm, nil
}
