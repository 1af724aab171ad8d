// Command swap runs a single quoted swap through the full router fallback
// chain. Useful for smoke-testing endpoints and the signing key.
package main

import (
	"context"
	"flag"
	"time"

	"snipebot-go/internal/config"
	dex "snipebot-go/internal/dex/solana"
	"snipebot-go/internal/execution"
	"snipebot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	mint := flag.String("mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "output mint")
	side := flag.String("side", "buy", "buy or sell")
	amount := flag.Uint64("amount", 10_000_000, "input amount in smallest units")
	slippage := flag.Int("slippage-bps", 150, "slippage tolerance")
	flag.Parse()

	log := util.NewLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	key, err := dex.LoadPrivateKey(cfg.Wallet)
	if err != nil {
		log.Fatal().Err(err).Msg("load signing key")
	}
	router, err := dex.NewRouter(log, cfg.Endpoints, key)
	if err != nil {
		log.Fatal().Err(err).Msg("build swap router")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	intent := execution.Intent{
		Side:        execution.Buy,
		Mint:        *mint,
		Symbol:      *mint,
		Amount:      *amount,
		SlippageBps: *slippage,
	}
	if *side == "sell" {
		intent.Side = execution.Sell
	}

	exec := execution.NewVenueExecutor(log, router)
	res, err := exec.Execute(ctx, intent)
	if err != nil {
		log.Fatal().Err(err).Msg("swap failed")
	}
	log.Info().
		Str("status", string(res.Status)).
		Str("sig", res.Signature).
		Str("endpoint", res.Endpoint).
		Str("rpc", res.RPCEndpoint).
		Uint64("out", res.OutAmount).
		Msg("swap complete")
}
