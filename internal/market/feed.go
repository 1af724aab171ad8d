package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"snipebot-go/internal/config"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderDexScreener polls pair endpoints for tracked assets.
	ProviderDexScreener = "dexscreener"
	// ProviderWS subscribes to a websocket price relay.
	ProviderWS = "ws"
)

const defaultPollInterval = 5 * time.Second

// Feed streams price marks for the assets the bot currently holds. Targets
// are swapped in and out as positions open and close.
type Feed struct {
	provider     string
	relayURL     string
	baseURL      string
	pollInterval time.Duration
	log          zerolog.Logger
	mu           sync.RWMutex
	targets      []Target
}

// NewFeed constructs a feed backed by the configured provider.
func NewFeed(log zerolog.Logger, cfg config.Feed, discoveryBaseURL string) *Feed {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderStub
	}
	baseURL := discoveryBaseURL
	if baseURL == "" {
		baseURL = defaultDiscoveryBaseURL
	}
	interval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Feed{
		provider:     provider,
		relayURL:     cfg.RelayURL,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		pollInterval: interval,
		log:          log,
	}
}

// SetTargets replaces the tracked asset list.
func (f *Feed) SetTargets(targets []Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets[:0], targets...)
}

func (f *Feed) snapshotTargets() []Target {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Target, len(f.targets))
	copy(out, f.targets)
	return out
}

// Run pushes ticks onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- Tick) error {
	switch f.provider {
	case ProviderWS:
		return f.runRelay(ctx, out)
	case ProviderDexScreener:
		return f.runPoll(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- Tick) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	px := 100.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			px += 0.1
			for _, target := range f.snapshotTargets() {
				tick := Tick{
					Symbol:      target.Symbol,
					Mint:        target.Mint,
					PairAddress: target.PairAddress,
					Chain:       target.Chain,
					Price:       px,
					Volume:      1,
					Ts:          ts,
				}
				select {
				case out <- tick:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (f *Feed) runPoll(ctx context.Context, out chan<- Tick) error {
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, target := range f.snapshotTargets() {
				tick, err := f.fetchPair(ctx, client, target)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					f.log.Warn().Err(err).Str("symbol", target.Symbol).Msg("pair fetch failed")
					continue
				}
				select {
				case out <- *tick:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (f *Feed) fetchPair(ctx context.Context, client *http.Client, target Target) (*Tick, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", f.baseURL, target.Chain, target.PairAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "snipebot-go/1.0 (feed)")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload dexscreenerPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	pair, ok := payload.firstPair()
	if !ok {
		return nil, fmt.Errorf("no pair data returned")
	}
	price, err := parsePairPrice(pair)
	if err != nil {
		return nil, err
	}
	return &Tick{
		Symbol:      target.Symbol,
		Mint:        target.Mint,
		PairAddress: target.PairAddress,
		Chain:       target.Chain,
		Price:       price,
		Volume:      pair.Volume.H24,
		Ts:          time.Now().UTC(),
	}, nil
}
