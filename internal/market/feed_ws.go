package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"
)

type relaySubscribe struct {
	Op    string   `json:"op"`
	Mints []string `json:"mints"`
}

type relayTrade struct {
	Mint      string  `json:"mint"`
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"priceUsd"`
	VolumeUSD float64 `json:"volumeUsd"`
	Ts        int64   `json:"ts"` // ms epoch
}

func (f *Feed) runRelay(ctx context.Context, out chan<- Tick) error {
	if f.relayURL == "" {
		return fmt.Errorf("ws feed requires a relay url")
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeRelay(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("price relay disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeRelay(ctx context.Context, out chan<- Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.relayURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	targets := f.snapshotTargets()
	byMint := make(map[string]Target, len(targets))
	mints := make([]string, 0, len(targets))
	for _, target := range targets {
		byMint[target.Mint] = target
		mints = append(mints, target.Mint)
	}
	if err := conn.WriteJSON(relaySubscribe{Op: "subscribe", Mints: mints}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.log.Info().Str("provider", ProviderWS).Int("mints", len(mints)).Msg("connected price relay")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("relay ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var trade relayTrade
		if err := json.Unmarshal(message, &trade); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode relay message")
			continue
		}
		target, ok := byMint[trade.Mint]
		if !ok || trade.PriceUSD <= 0 {
			continue
		}
		tick := Tick{
			Symbol:      target.Symbol,
			Mint:        target.Mint,
			PairAddress: target.PairAddress,
			Chain:       target.Chain,
			Price:       trade.PriceUSD,
			Volume:      trade.VolumeUSD,
			Ts:          time.UnixMilli(trade.Ts),
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
