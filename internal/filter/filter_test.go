package filter

import (
	"testing"

	"snipebot-go/internal/config"
	"snipebot-go/internal/market"
)

func testRules() config.Filter {
	return config.Filter{
		MaxMarketCapUSD:  50_000_000,
		MaxAgeHours:      72,
		MinVolatilityPct: 5,
		MinVolumeSpike:   1.5,
		MinConfidence:    60,
		MinLiquidityUSD:  10_000,
		MaxOwnershipRisk: 70,
		Weights: config.FilterWeights{
			Confidence:  0.35,
			Volatility:  0.2,
			VolumeSpike: 0.2,
			MarketCap:   0.15,
			AgeDecay:    0.1,
		},
	}
}

func goodOpportunity(symbol string) market.Opportunity {
	return market.Opportunity{
		Mint:          symbol + "_MINT",
		Symbol:        symbol,
		MarketCapUSD:  2_000_000,
		Volume1h:      5000,
		Volume24h:     24_000, // hourly avg 1000, spike 5x
		LiquidityUSD:  50_000,
		Change1h:      12,
		AgeHours:      4,
		OwnershipRisk: 30,
		Confidence:    80,
	}
}

func TestApplyEmptyInput(t *testing.T) {
	ranked, drops := Apply(testRules(), nil)
	if len(ranked) != 0 || len(drops) != 0 {
		t.Fatalf("empty input must yield empty output, got %d/%d", len(ranked), len(drops))
	}
}

func TestApplyMarketCapCeiling(t *testing.T) {
	opp := goodOpportunity("BIG")
	opp.MarketCapUSD = 60_000_000 // ceiling is 50M; everything else is pristine

	ranked, drops := Apply(testRules(), []market.Opportunity{opp})
	if len(ranked) != 0 {
		t.Fatalf("expected rejection regardless of other attributes, got %+v", ranked)
	}
	if len(drops) != 1 || drops[0].Rule != RuleMarketCap {
		t.Fatalf("expected market_cap drop, got %+v", drops)
	}
}

func TestApplyDropReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*market.Opportunity)
		rule   string
	}{
		{"age", func(o *market.Opportunity) { o.AgeHours = 100 }, RuleAge},
		{"volatility", func(o *market.Opportunity) { o.Change1h = 1 }, RuleVolatility},
		{"spike", func(o *market.Opportunity) { o.Volume1h = 500 }, RuleVolumeSpike},
		{"confidence", func(o *market.Opportunity) { o.Confidence = 40 }, RuleConfidence},
		{"liquidity", func(o *market.Opportunity) { o.LiquidityUSD = 500 }, RuleLiquidity},
		{"ownership", func(o *market.Opportunity) { o.OwnershipRisk = 95 }, RuleOwnership},
	}
	for _, tc := range cases {
		opp := goodOpportunity("X")
		tc.mutate(&opp)
		ranked, drops := Apply(testRules(), []market.Opportunity{opp})
		if len(ranked) != 0 {
			t.Fatalf("%s: expected drop, survived with %+v", tc.name, ranked)
		}
		if len(drops) != 1 || drops[0].Rule != tc.rule {
			t.Fatalf("%s: expected rule %s, got %+v", tc.name, tc.rule, drops)
		}
	}
}

func TestApplySortsByScoreDescending(t *testing.T) {
	strong := goodOpportunity("STRONG")
	weak := goodOpportunity("WEAK")
	weak.Confidence = 62
	weak.Change1h = 6
	weak.Volume1h = 2000

	ranked, drops := Apply(testRules(), []market.Opportunity{weak, strong})
	if len(drops) != 0 {
		t.Fatalf("unexpected drops: %+v", drops)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected both to survive, got %d", len(ranked))
	}
	if ranked[0].Symbol != "STRONG" {
		t.Fatalf("expected STRONG ranked first, got %s", ranked[0].Symbol)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Fatalf("scores not descending: %.2f <= %.2f", ranked[0].Score, ranked[1].Score)
	}
}

func TestApplyPure(t *testing.T) {
	batch := []market.Opportunity{goodOpportunity("A"), goodOpportunity("B")}
	first, _ := Apply(testRules(), batch)
	second, _ := Apply(testRules(), batch)
	if len(first) != len(second) {
		t.Fatalf("repeat application diverged: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Score != second[i].Score || first[i].Symbol != second[i].Symbol {
			t.Fatalf("repeat application diverged at %d", i)
		}
	}
}
