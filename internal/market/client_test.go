package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/ratelimit"
)

func openGovernor() *ratelimit.Governor {
	return ratelimit.NewGovernor(map[string]ratelimit.ServiceLimit{
		Service: {Window: time.Minute, MaxRequests: 100},
	})
}

func TestClient_PairsByMint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/MintAAA", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pairs": []map[string]interface{}{
				{
					"chainId":     "solana",
					"dexId":       "raydium",
					"pairAddress": "Pair111",
					"baseToken":   map[string]string{"address": "MintAAA", "name": "Token A", "symbol": "TKA"},
					"priceUsd":    "0.0042",
					"txns": map[string]interface{}{
						"m5":  map[string]int{"buys": 3, "sells": 1},
						"h1":  map[string]int{"buys": 10, "sells": 5},
						"h24": map[string]int{"buys": 100, "sells": 80},
					},
					"volume":      map[string]float64{"m5": 500, "h1": 9000, "h24": 120000},
					"priceChange": map[string]float64{"m5": 1.5, "h1": -3.2, "h24": 40.0},
					"liquidity":   map[string]float64{"usd": 25000},
					"marketCap":   420000,
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, openGovernor(), nil)
	pairs, err := client.PairsByMint(context.Background(), "MintAAA")
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	p := pairs[0]
	assert.Equal(t, "raydium", p.DexID)
	assert.Equal(t, "0.0042", p.PriceUSD)
	assert.Equal(t, 3, p.Txns.M5.Buys)
	assert.Equal(t, 120000.0, p.Volume.H24)
	assert.Equal(t, 25000.0, p.Liquidity.USD)
}

func TestClient_PairByAddressSingleObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/pairs/solana/Pair111", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pair": map[string]interface{}{
				"dexId":       "raydium",
				"pairAddress": "Pair111",
				"priceUsd":    "1.25",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, openGovernor(), nil)
	pair, err := client.PairByAddress(context.Background(), "Pair111")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "1.25", pair.PriceUSD)
}

func TestClient_PairByAddressUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"pair": nil, "pairs": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, openGovernor(), nil)
	pair, err := client.PairByAddress(context.Background(), "NoSuchPair")
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestClient_GovernorThrottlesWithoutNetworkCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{"pairs": []interface{}{}})
	}))
	defer server.Close()

	governor := ratelimit.NewGovernor(map[string]ratelimit.ServiceLimit{
		Service: {Window: time.Hour, MaxRequests: 1},
	})
	client := NewClient(server.URL, governor, nil)
	client.maxWait = 50 * time.Millisecond

	_, err := client.PairsByMint(context.Background(), "m1")
	require.NoError(t, err)

	_, err = client.PairsByMint(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, int32(1), calls.Load(), "throttled call must not hit the network")
}
