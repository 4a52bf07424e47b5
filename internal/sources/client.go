// Package sources holds the provider adapters that normalise external
// time-series feeds into canonical rows. Adapters know nothing about storage
// or the presentation tier.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// Adapter fetches canonical rows for one family. since is the family's
// watermark; a nil since means the full 2020-to-present history.
type Adapter interface {
	Family() models.Family
	Fetch(ctx context.Context, since *time.Time) ([]models.CanonicalRow, error)
}

// BackoffConfig controls exponential retry behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var defaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
)

// Client wraps outbound provider calls with retries, exponential backoff and
// a circuit breaker, one breaker per provider.
type Client struct {
	http    *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient builds a resilient client for the named provider.
func NewClient(name string, httpClient *http.Client) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &Client{
		http:    httpClient,
		backoff: defaultBackoff,
		circuit: cb,
	}
}

// GetJSON performs a GET against url and decodes the JSON body into out,
// retrying transient failures.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.getOnce(ctx, url, out)
		if err == nil {
			return nil
		}

		// An open circuit means the provider is already known bad; stop.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return err
		}
		if attempt >= c.backoff.MaxRetries {
			return err
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

func (c *Client) getOnce(ctx context.Context, url string, out any) error {
	_, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s", errServerError, resp.Status)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return nil, nil
	})
	return err
}
