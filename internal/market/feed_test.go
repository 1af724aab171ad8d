package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"snipebot-go/internal/config"
)

func TestFeedStubEmitsTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(zerolog.Nop(), config.Feed{Provider: ProviderStub}, "")
	feed.SetTargets([]Target{{Symbol: "WIF", Mint: "MINT1", Chain: "solana", PairAddress: "PAIR1"}})
	ticks := make(chan Tick, 1)

	go func() {
		_ = feed.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Symbol != "WIF" || tk.Mint != "MINT1" {
			t.Fatalf("unexpected tick %+v", tk)
		}
		if tk.Price <= 0 {
			t.Fatalf("expected positive price, got %.2f", tk.Price)
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}
}

func TestFeedPollFetchesPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/pairs/solana/PAIR1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(pairJSON))
	}))
	defer server.Close()

	feed := NewFeed(zerolog.Nop(), config.Feed{Provider: ProviderDexScreener, PollIntervalMs: 50}, server.URL)
	feed.SetTargets([]Target{{Symbol: "WIF", Mint: "MINT1", Chain: "solana", PairAddress: "PAIR1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ticks := make(chan Tick, 1)
	go func() {
		_ = feed.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Price != 0.12 {
			t.Fatalf("unexpected price %.4f", tk.Price)
		}
		if tk.Volume != 24000 {
			t.Fatalf("unexpected volume %.0f", tk.Volume)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for poll tick")
	}
}

func TestFeedTargetSwap(t *testing.T) {
	feed := NewFeed(zerolog.Nop(), config.Feed{}, "")
	feed.SetTargets([]Target{{Symbol: "A"}, {Symbol: "B"}})
	feed.SetTargets([]Target{{Symbol: "C"}})
	targets := feed.snapshotTargets()
	if len(targets) != 1 || targets[0].Symbol != "C" {
		t.Fatalf("expected swapped target list, got %+v", targets)
	}
}
