package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"snipebot-go/internal/config"
	dex "snipebot-go/internal/dex/solana"
	"snipebot-go/internal/engine"
	"snipebot-go/internal/execution"
	"snipebot-go/internal/history"
	"snipebot-go/internal/market"
	"snipebot-go/internal/metrics"
	"snipebot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	boot := util.NewLogger("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	// The only fatal startup condition besides config: no signing key.
	key, err := dex.LoadPrivateKey(cfg.Wallet)
	if err != nil {
		log.Fatal().Err(err).Msg("load signing key")
	}

	router, err := dex.NewRouter(util.Component(log, "dex"), cfg.Endpoints, key)
	if err != nil {
		log.Fatal().Err(err).Msg("build swap router")
	}
	exec := execution.NewVenueExecutor(util.Component(log, "execution"), router)

	var recorder *history.JSONLRecorder
	if cfg.History.Path != "" {
		recorder, err = history.NewJSONLRecorder(cfg.History.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("open trade history")
		}
		defer recorder.Close()
	}

	gateway := market.NewGateway(util.Component(log, "discovery"), cfg.Discovery)
	feed := market.NewFeed(util.Component(log, "feed"), cfg.Feed, cfg.Discovery.BaseURL)

	eng := engine.New(log, cfg, gateway, feed, exec, recorder)

	mux := metrics.NewMux()
	eng.RegisterHandlers(mux)
	_ = metrics.Serve(cfg.App.MetricsAddr, mux)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("engine stopped")
	}
	log.Info().Msg("shutting down")
}
