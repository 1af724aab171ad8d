// Package market discovers candidate assets on permissionless venues and
// streams price marks for assets the bot already holds.
package market

import "time"

// Opportunity is an immutable snapshot of a candidate asset at scan time.
// Produced by the Gateway and consumed by the filter within one scan cycle.
type Opportunity struct {
	Mint         string
	Symbol       string
	PairAddress  string
	Chain        string
	PriceUSD     float64
	MarketCapUSD float64
	Volume1h     float64
	Volume24h    float64
	LiquidityUSD float64
	Change1h     float64 // percent price change over the last hour
	AgeHours     float64
	// OwnershipRisk estimates holder concentration on a 0-100 scale;
	// thin liquidity relative to market cap reads as concentrated supply.
	OwnershipRisk float64
	Confidence    float64 // composite 0-100 quality score
	ObservedAt    time.Time
}

// PairSnapshot is a point lookup of a tracked pair, used by position
// monitoring and rotation checks.
type PairSnapshot struct {
	PriceUSD     float64
	MarketCapUSD float64
	Volume24h    float64
	LiquidityUSD float64
	ObservedAt   time.Time
}

// Tick is a single price observation for a held asset.
type Tick struct {
	Symbol      string
	Mint        string
	PairAddress string
	Chain       string
	Price       float64
	Volume      float64
	Ts          time.Time
}

// Target identifies a pair the feed should mark.
type Target struct {
	Symbol      string
	Mint        string
	Chain       string
	PairAddress string
}
