package market

// Token identifies one side of a trading pair.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// WindowTxns contains buy and sell counts for one window.
type WindowTxns struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// PairTxns holds transaction counts per window.
type PairTxns struct {
	M5  WindowTxns `json:"m5"`
	H1  WindowTxns `json:"h1"`
	H24 WindowTxns `json:"h24"`
}

// PairVolume holds trading volume per window.
type PairVolume struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H24 float64 `json:"h24"`
}

// PairPriceChange holds price change percentages per window.
type PairPriceChange struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H24 float64 `json:"h24"`
}

// Liquidity is the pooled liquidity for a pair.
type Liquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// PairInfo carries optional presentation metadata.
type PairInfo struct {
	ImageURL string `json:"imageUrl"`
}

// Pair is one trading pair as returned by the market-data API.
type Pair struct {
	ChainID       string          `json:"chainId"`
	DexID         string          `json:"dexId"`
	PairAddress   string          `json:"pairAddress"`
	BaseToken     Token           `json:"baseToken"`
	QuoteToken    Token           `json:"quoteToken"`
	PriceUSD      string          `json:"priceUsd"`
	Txns          PairTxns        `json:"txns"`
	Volume        PairVolume      `json:"volume"`
	PriceChange   PairPriceChange `json:"priceChange"`
	Liquidity     *Liquidity      `json:"liquidity"`
	MarketCap     float64         `json:"marketCap"`
	Holders       int             `json:"holders,omitempty"`
	PairCreatedAt int64           `json:"pairCreatedAt"`
	Info          *PairInfo       `json:"info"`
}

// tokenPairsResponse is the GET-by-mint envelope.
type tokenPairsResponse struct {
	Pairs []Pair `json:"pairs"`
}

// pairResponse is the GET-by-pair-address envelope. Some deployments return
// a single object under "pair", others a one-element "pairs" list.
type pairResponse struct {
	Pair  *Pair  `json:"pair"`
	Pairs []Pair `json:"pairs"`
}
