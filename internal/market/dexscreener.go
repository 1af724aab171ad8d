package market

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

type dexscreenerPairsResponse struct {
	Pairs []dexscreenerPair `json:"pairs"`
	Pair  *dexscreenerPair  `json:"pair"`
}

type dexscreenerPair struct {
	ChainID       string                 `json:"chainId"`
	PairAddress   string                 `json:"pairAddress"`
	BaseToken     dexscreenerToken       `json:"baseToken"`
	QuoteToken    dexscreenerToken       `json:"quoteToken"`
	PriceUsd      string                 `json:"priceUsd"`
	PriceNative   string                 `json:"priceNative"`
	Txns          dexscreenerTxns        `json:"txns"`
	Volume        dexscreenerVolumes     `json:"volume"`
	Liquidity     dexscreenerLiquidity   `json:"liquidity"`
	PriceChange   dexscreenerPriceChange `json:"priceChange"`
	FDV           float64                `json:"fdv"`
	MarketCap     float64                `json:"marketCap"`
	PairCreatedAt int64                  `json:"pairCreatedAt"` // ms epoch
}

type dexscreenerToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexscreenerTxns struct {
	M5  dexscreenerTxn `json:"m5"`
	H1  dexscreenerTxn `json:"h1"`
	H6  dexscreenerTxn `json:"h6"`
	H24 dexscreenerTxn `json:"h24"`
}

type dexscreenerTxn struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type dexscreenerVolumes struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type dexscreenerLiquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

type dexscreenerPriceChange struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

func (r *dexscreenerPairsResponse) firstPair() (*dexscreenerPair, bool) {
	if len(r.Pairs) > 0 {
		return &r.Pairs[0], true
	}
	if r.Pair != nil {
		return r.Pair, true
	}
	return nil, false
}

func parsePairPrice(pair *dexscreenerPair) (float64, error) {
	if pair == nil {
		return 0, fmt.Errorf("pair missing")
	}
	if pair.PriceUsd != "" {
		if px, err := strconv.ParseFloat(pair.PriceUsd, 64); err == nil && px > 0 {
			return px, nil
		}
	}
	if pair.PriceNative != "" {
		if px, err := strconv.ParseFloat(pair.PriceNative, 64); err == nil && px > 0 {
			return px, nil
		}
	}
	return 0, fmt.Errorf("pair missing price")
}

func pairMarketCap(pair *dexscreenerPair) float64 {
	if pair.MarketCap > 0 {
		return pair.MarketCap
	}
	return pair.FDV
}

func pairAgeHours(pair *dexscreenerPair, now time.Time) float64 {
	if pair.PairCreatedAt <= 0 {
		return 0
	}
	age := now.Sub(time.UnixMilli(pair.PairCreatedAt))
	if age < 0 {
		return 0
	}
	return age.Hours()
}

// ownershipRisk proxies holder concentration: when the tradable pool is a
// sliver of the market cap, most supply sits in few wallets.
func ownershipRisk(liquidityUSD, marketCapUSD float64) float64 {
	if marketCapUSD <= 0 {
		return 100
	}
	ratio := liquidityUSD / marketCapUSD
	risk := 100 * (1 - math.Min(1, ratio*10)) // 10%+ pool depth reads as fully distributed
	return clampScore(risk)
}

// confidenceScore folds buy pressure, liquidity depth, volume trend, and pair
// age into a 0-100 quality estimate.
func confidenceScore(pair *dexscreenerPair, ageHours float64) float64 {
	score := 50.0

	buys := float64(pair.Txns.H1.Buys)
	sells := float64(pair.Txns.H1.Sells)
	if buys+sells > 0 {
		score += 20 * (buys - sells) / (buys + sells)
	}

	if pair.Liquidity.USD > 0 {
		score += math.Min(15, math.Log10(pair.Liquidity.USD+1)*2.5)
	}

	hourly := pair.Volume.H24 / 24
	if hourly > 0 && pair.Volume.H1 > hourly {
		score += math.Min(10, (pair.Volume.H1/hourly-1)*5)
	}

	if ageHours > 0 && ageHours < 1 {
		score -= 10 // too fresh to trust the prints
	}

	return clampScore(score)
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// normalizePair converts a raw venue pair into an Opportunity record.
func normalizePair(pair *dexscreenerPair, now time.Time) (Opportunity, error) {
	price, err := parsePairPrice(pair)
	if err != nil {
		return Opportunity{}, err
	}
	symbol := pair.BaseToken.Symbol
	if symbol == "" {
		symbol = pair.BaseToken.Name
	}
	mcap := pairMarketCap(pair)
	age := pairAgeHours(pair, now)
	return Opportunity{
		Mint:          pair.BaseToken.Address,
		Symbol:        symbol,
		PairAddress:   pair.PairAddress,
		Chain:         pair.ChainID,
		PriceUSD:      price,
		MarketCapUSD:  mcap,
		Volume1h:      pair.Volume.H1,
		Volume24h:     pair.Volume.H24,
		LiquidityUSD:  pair.Liquidity.USD,
		Change1h:      pair.PriceChange.H1,
		AgeHours:      age,
		OwnershipRisk: ownershipRisk(pair.Liquidity.USD, mcap),
		Confidence:    confidenceScore(pair, age),
		ObservedAt:    now,
	}, nil
}
