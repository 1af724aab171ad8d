// Package filter applies the hard exclusion rules and composite scoring that
// turn a raw discovery batch into a ranked entry list.
package filter

import (
	"math"
	"sort"

	"snipebot-go/internal/config"
	"snipebot-go/internal/market"
	"snipebot-go/internal/metrics"
)

// Rule names retained on dropped signals for observability.
const (
	RuleMarketCap   = "market_cap"
	RuleAge         = "age"
	RuleVolatility  = "volatility"
	RuleVolumeSpike = "volume_spike"
	RuleConfidence  = "confidence"
	RuleLiquidity   = "liquidity"
	RuleOwnership   = "ownership_risk"
)

// Scored is a surviving opportunity with its composite score and the derived
// terms that fed it.
type Scored struct {
	market.Opportunity
	Volatility  float64 // abs 1h price change, percent
	VolumeSpike float64 // 1h volume vs hourly average of 24h volume
	Score       float64
}

// Drop records why a signal was excluded.
type Drop struct {
	Symbol string
	Mint   string
	Rule   string
}

// Apply runs the hard rules in fixed order and ranks survivors by descending
// composite score. Pure function of input plus configuration; an empty batch
// yields empty output.
func Apply(rules config.Filter, batch []market.Opportunity) ([]Scored, []Drop) {
	ranked := make([]Scored, 0, len(batch))
	var drops []Drop

	for _, opp := range batch {
		volatility := math.Abs(opp.Change1h)
		spike := volumeSpike(opp.Volume1h, opp.Volume24h)

		if rule := exclusionRule(rules, opp, volatility, spike); rule != "" {
			drops = append(drops, Drop{Symbol: opp.Symbol, Mint: opp.Mint, Rule: rule})
			metrics.SignalsDropped.WithLabelValues(rule).Inc()
			continue
		}

		ranked = append(ranked, Scored{
			Opportunity: opp,
			Volatility:  volatility,
			VolumeSpike: spike,
			Score:       compositeScore(rules.Weights, opp, volatility, spike),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].LiquidityUSD > ranked[j].LiquidityUSD
	})
	return ranked, drops
}

// exclusionRule returns the name of the first failing hard rule, or "".
func exclusionRule(rules config.Filter, opp market.Opportunity, volatility, spike float64) string {
	if rules.MaxMarketCapUSD > 0 && opp.MarketCapUSD > rules.MaxMarketCapUSD {
		return RuleMarketCap
	}
	if rules.MaxAgeHours > 0 && opp.AgeHours > rules.MaxAgeHours {
		return RuleAge
	}
	if rules.MinVolatilityPct > 0 && volatility < rules.MinVolatilityPct {
		return RuleVolatility
	}
	if rules.MinVolumeSpike > 0 && spike < rules.MinVolumeSpike {
		return RuleVolumeSpike
	}
	if rules.MinConfidence > 0 && opp.Confidence < rules.MinConfidence {
		return RuleConfidence
	}
	if rules.MinLiquidityUSD > 0 && opp.LiquidityUSD < rules.MinLiquidityUSD {
		return RuleLiquidity
	}
	if rules.MaxOwnershipRisk > 0 && opp.OwnershipRisk > rules.MaxOwnershipRisk {
		return RuleOwnership
	}
	return ""
}

func volumeSpike(volume1h, volume24h float64) float64 {
	hourly := volume24h / 24
	if hourly <= 0 {
		return 0
	}
	return volume1h / hourly
}

// compositeScore = weighted confidence + volatility + volume spike + an
// inverse-market-cap term + an age-decay term favoring newer pairs.
func compositeScore(w config.FilterWeights, opp market.Opportunity, volatility, spike float64) float64 {
	score := w.Confidence * opp.Confidence
	score += w.Volatility * math.Min(100, volatility)
	score += w.VolumeSpike * math.Min(100, spike*10)
	if opp.MarketCapUSD > 0 {
		score += w.MarketCap * (100 / math.Log10(math.Max(10, opp.MarketCapUSD)))
	}
	score += w.AgeDecay * 100 * math.Exp(-opp.AgeHours/6)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}
