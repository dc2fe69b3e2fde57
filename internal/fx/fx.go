// Package fx resolves currency conversion rates via exchangerate.host.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Converter resolves a multiplicative rate from one currency to another.
type Converter interface {
	Rate(ctx context.Context, from, to string) decimal.Decimal
}

// Client queries the /convert endpoint and memoises rates per pair.
// A failed lookup degrades to a rate of 1 so that totals stay additive.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.Mutex
	cache map[string]decimal.Decimal
}

// NewClient constructs an FX client.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "fx").Logger(),
		cache:      make(map[string]decimal.Decimal),
	}
}

type convertResponse struct {
	Result *float64 `json:"result"`
}

// Rate returns the conversion rate from one currency to another.
// Identical or blank currencies yield 1. Lookup failures also yield 1
// and are logged, never surfaced to the caller.
func (c *Client) Rate(ctx context.Context, from, to string) decimal.Decimal {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" || from == to {
		return decimal.NewFromInt(1)
	}

	key := from + "/" + to
	c.mu.Lock()
	if rate, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return rate
	}
	c.mu.Unlock()

	rate, err := c.fetchRate(ctx, from, to)
	if err != nil {
		c.logger.Warn().Err(err).Str("pair", key).Msg("fx lookup failed, falling back to 1")
		return decimal.NewFromInt(1)
	}

	c.mu.Lock()
	c.cache[key] = rate
	c.mu.Unlock()
	return rate
}

func (c *Client) fetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("amount", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/convert?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("request convert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("convert returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode convert response: %w", err)
	}
	if payload.Result == nil || *payload.Result <= 0 {
		return decimal.Zero, fmt.Errorf("convert response missing usable result")
	}
	return decimal.NewFromFloat(*payload.Result), nil
}
