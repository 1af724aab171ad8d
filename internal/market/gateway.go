package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"snipebot-go/internal/config"
	"snipebot-go/internal/metrics"
)

const defaultDiscoveryBaseURL = "https://api.dexscreener.com"

// Gateway pulls candidate asset metadata from a Dexscreener-compatible
// discovery service and normalizes it into Opportunity records.
type Gateway struct {
	log          zerolog.Logger
	client       *http.Client
	baseURL      string
	defaultChain string
	cfg          config.Discovery
}

// NewGateway constructs a discovery gateway from configuration.
func NewGateway(log zerolog.Logger, cfg config.Discovery) *Gateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultDiscoveryBaseURL
	}
	return &Gateway{
		log:          log,
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultChain: strings.ToLower(cfg.DefaultChain),
		cfg:          cfg,
	}
}

// Discover runs one scan cycle and returns the normalized candidate batch.
// Per-keyword search failures are logged and skipped, not fatal.
func (g *Gateway) Discover(ctx context.Context) ([]Opportunity, error) {
	limit := g.cfg.MaxPairs
	if limit <= 0 {
		limit = 12
	}
	perKeyword := g.cfg.MaxPairsPerKeyword
	if perKeyword <= 0 {
		perKeyword = limit
	}
	keywords := g.cfg.Keywords
	if len(keywords) == 0 {
		keywords = []string{"sol", "pepe", "doge"}
	}
	chainAllow := make(map[string]struct{}, len(g.cfg.Chains))
	for _, chain := range g.cfg.Chains {
		chainAllow[strings.ToLower(strings.TrimSpace(chain))] = struct{}{}
	}
	if len(chainAllow) == 0 && g.defaultChain != "" {
		chainAllow[g.defaultChain] = struct{}{}
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{})
	batch := make([]Opportunity, 0, limit)
	for _, keyword := range keywords {
		if len(batch) >= limit {
			break
		}
		pairs, err := g.search(ctx, keyword)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Debug().Err(err).Str("keyword", keyword).Msg("discovery search failed")
			continue
		}
		added := 0
		for i := range pairs {
			if len(batch) >= limit || added >= perKeyword {
				break
			}
			pair := &pairs[i]
			chain := strings.ToLower(pair.ChainID)
			if len(chainAllow) > 0 {
				if _, ok := chainAllow[chain]; !ok {
					continue
				}
			}
			if pair.PairAddress == "" || pair.BaseToken.Address == "" {
				continue
			}
			if _, ok := seen[pair.PairAddress]; ok {
				continue
			}
			opp, err := normalizePair(pair, now)
			if err != nil {
				g.log.Debug().Err(err).Str("pair", pair.PairAddress).Msg("skipping malformed pair")
				continue
			}
			batch = append(batch, opp)
			seen[pair.PairAddress] = struct{}{}
			added++
		}
	}
	metrics.SignalsScanned.Add(float64(len(batch)))
	return batch, nil
}

// Snapshot fetches current price, market cap, volume, and liquidity for a
// single tracked pair.
func (g *Gateway) Snapshot(ctx context.Context, chain, pairAddress string) (PairSnapshot, error) {
	if chain == "" {
		chain = g.defaultChain
	}
	endpoint := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", g.baseURL, chain, pairAddress)
	var payload dexscreenerPairsResponse
	if err := g.getJSON(ctx, endpoint, &payload); err != nil {
		return PairSnapshot{}, err
	}
	pair, ok := payload.firstPair()
	if !ok {
		return PairSnapshot{}, fmt.Errorf("no pair data for %s", pairAddress)
	}
	price, err := parsePairPrice(pair)
	if err != nil {
		return PairSnapshot{}, err
	}
	return PairSnapshot{
		PriceUSD:     price,
		MarketCapUSD: pairMarketCap(pair),
		Volume24h:    pair.Volume.H24,
		LiquidityUSD: pair.Liquidity.USD,
		ObservedAt:   time.Now().UTC(),
	}, nil
}

func (g *Gateway) search(ctx context.Context, keyword string) ([]dexscreenerPair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/search?q=%s", g.baseURL, url.QueryEscape(keyword))
	var payload dexscreenerPairsResponse
	if err := g.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if len(payload.Pairs) > 0 {
		return payload.Pairs, nil
	}
	if payload.Pair != nil {
		return []dexscreenerPair{*payload.Pair}, nil
	}
	return nil, nil
}

func (g *Gateway) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "snipebot-go/1.0 (discovery)")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
