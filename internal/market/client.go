// Package market implements the external market-data API client used by the
// enrichment cache.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/ratelimit"
)

// Service is the rate-governor service name for market-data calls.
const Service = "market"

// ErrThrottled is returned when the governor denied the call within the
// wait budget. Never a network error: no request was attempted.
var ErrThrottled = errors.New("market api call throttled by governor")

// chainID is the only ledger this client queries.
const chainID = "solana"

// Client fetches trading pairs from a DexScreener-shaped API. Every request
// is gated by the shared rate governor.
type Client struct {
	baseURL  string
	client   *http.Client
	governor *ratelimit.Governor
	maxWait  time.Duration
}

// NewClient creates a market-data client.
func NewClient(baseURL string, governor *ratelimit.Governor, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		governor: governor,
		maxWait:  2 * time.Second,
	}
}

// PairsByMint returns all known trading pairs for a mint across venues.
func (c *Client) PairsByMint(ctx context.Context, mint string) ([]Pair, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, mint)

	var resp tokenPairsResponse
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// PairByAddress returns a single pair looked up by venue and pair address.
// Returns nil (no error) when the pair is unknown.
func (c *Client) PairByAddress(ctx context.Context, pairAddress string) (*Pair, error) {
	url := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", c.baseURL, chainID, pairAddress)

	var resp pairResponse
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.Pair != nil {
		return resp.Pair, nil
	}
	if len(resp.Pairs) > 0 {
		return &resp.Pairs[0], nil
	}
	return nil, nil
}

// get performs a governed GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	if !c.governor.WaitIfNeeded(ctx, Service, c.maxWait) {
		observability.RecordGovernorDecision(Service, false)
		return ErrThrottled
	}
	observability.RecordGovernorDecision(Service, true)
	c.governor.Record(Service)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
