package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"solana-token-radar/internal/observability"
)

// enhancedTx is one per-signature object from the enhanced lookup API.
type enhancedTx struct {
	Signature       string           `json:"signature"`
	FeePayer        string           `json:"feePayer"`
	TokenTransfers  []tokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []nativeTransfer `json:"nativeTransfers"`
	TokenName       string           `json:"tokenName,omitempty"`
	TokenSymbol     string           `json:"tokenSymbol,omitempty"`
}

type tokenTransfer struct {
	FromUserAccount  string  `json:"fromUserAccount"`
	ToUserAccount    string  `json:"toUserAccount"`
	FromTokenAccount string  `json:"fromTokenAccount"`
	ToTokenAccount   string  `json:"toTokenAccount"`
	Mint             string  `json:"mint"`
	TokenAmount      float64 `json:"tokenAmount"`
}

type nativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          uint64 `json:"amount"` // lamports
}

// enhancedClient batches signature lookups against the enhanced transaction
// API. Signatures are queued and flushed when the batch fills or the batch
// window elapses, whichever comes first.
type enhancedClient struct {
	url     string
	apiKey  string
	client  *http.Client
	maxSize int
	window  time.Duration

	mu      sync.Mutex
	order   []string
	waiters map[string][]chan *enhancedTx
	timer   *time.Timer
}

func newEnhancedClient(url, apiKey string, httpClient *http.Client, maxSize int, window time.Duration) *enhancedClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	return &enhancedClient{
		url:     url,
		apiKey:  apiKey,
		client:  httpClient,
		maxSize: maxSize,
		window:  window,
		waiters: make(map[string][]chan *enhancedTx),
	}
}

// lookup queues the signature and waits for its batch to come back.
// Returns nil on any failure or when the batch response lacks the signature.
func (c *enhancedClient) lookup(ctx context.Context, signature string) *enhancedTx {
	ch := make(chan *enhancedTx, 1)

	c.mu.Lock()
	if _, queued := c.waiters[signature]; !queued {
		c.order = append(c.order, signature)
	}
	c.waiters[signature] = append(c.waiters[signature], ch)

	if len(c.order) >= c.maxSize {
		batch := c.takeBatchLocked()
		c.mu.Unlock()
		go c.flush(batch)
	} else {
		if c.timer == nil {
			c.timer = time.AfterFunc(c.window, c.flushTimer)
		}
		c.mu.Unlock()
	}

	select {
	case tx := <-ch:
		return tx
	case <-ctx.Done():
		return nil
	}
}

// flushTimer fires when the batch window elapses.
func (c *enhancedClient) flushTimer() {
	c.mu.Lock()
	batch := c.takeBatchLocked()
	c.mu.Unlock()
	if len(batch) > 0 {
		c.flush(batch)
	}
}

// takeBatchLocked detaches the current batch and resets the timer state.
// Caller holds c.mu.
func (c *enhancedClient) takeBatchLocked() map[string][]chan *enhancedTx {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.order) == 0 {
		return nil
	}

	batch := make(map[string][]chan *enhancedTx, len(c.order))
	for _, sig := range c.order {
		batch[sig] = c.waiters[sig]
		delete(c.waiters, sig)
	}
	c.order = c.order[:0]
	return batch
}

// flush posts one batch and distributes per-signature results to waiters.
// Missing or failed signatures deliver nil.
func (c *enhancedClient) flush(batch map[string][]chan *enhancedTx) {
	sigs := make([]string, 0, len(batch))
	for sig := range batch {
		sigs = append(sigs, sig)
	}

	observability.DefaultMetrics.EnhancedBatchesSent.Inc()
	results := c.post(sigs)

	for sig, waiters := range batch {
		tx := results[sig]
		for _, ch := range waiters {
			ch <- tx
		}
	}
}

// post performs the batched POST. Returns an empty map on failure so every
// waiter resolves to nil.
func (c *enhancedClient) post(sigs []string) map[string]*enhancedTx {
	results := make(map[string]*enhancedTx, len(sigs))

	body, err := json.Marshal(map[string]interface{}{"transactions": sigs})
	if err != nil {
		return results
	}

	url := fmt.Sprintf("%s?api-key=%s", c.url, c.apiKey)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return results
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return results
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return results
	}

	var txs []enhancedTx
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return results
	}

	for i := range txs {
		results[txs[i].Signature] = &txs[i]
	}
	return results
}
