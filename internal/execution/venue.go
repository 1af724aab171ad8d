package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	dexsol "snipebot-go/internal/dex/solana"
	"snipebot-go/internal/metrics"
)

// WSOLMint is the wrapped-SOL mint used as the quote leg of every swap.
const WSOLMint = "So11111111111111111111111111111111111111112"

// venue is the router surface the executor drives; narrowed for testing.
type venue interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int, directOnly bool) (*dexsol.Quote, error)
	GetQuoteFallback(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*dexsol.Quote, error)
	BuildAndSend(ctx context.Context, quote *dexsol.Quote) (sol.Signature, string, error)
	Confirm(ctx context.Context, sig sol.Signature) (bool, error)
	TokenBalance(ctx context.Context, mint string) (uint64, error)
}

// VenueExecutor executes intents against the swap router with a layered
// fallback chain: primary routing pool, then direct-route quoting, then the
// alternative aggregator pool.
type VenueExecutor struct {
	log   zerolog.Logger
	venue venue
}

// NewVenueExecutor wraps a router for trade execution.
func NewVenueExecutor(log zerolog.Logger, router *dexsol.Router) *VenueExecutor {
	return &VenueExecutor{log: log, venue: router}
}

// Execute runs one intent to completion. A returned Result with
// StatusConfirmed or StatusUnconfirmed always carries the signature.
func (e *VenueExecutor) Execute(ctx context.Context, intent Intent) (Result, error) {
	if intent.Amount == 0 {
		return e.failed(intent, errors.New("zero amount"))
	}
	inputMint, outputMint := WSOLMint, intent.Mint
	if intent.Side == Sell {
		inputMint, outputMint = intent.Mint, WSOLMint
	}

	quote, err := e.quoteWithFallback(ctx, inputMint, outputMint, intent.Amount, intent.SlippageBps)
	if err != nil {
		return e.failed(intent, fmt.Errorf("quote: %w", err))
	}

	sig, rpcEndpoint, err := e.venue.BuildAndSend(ctx, quote)
	if err != nil {
		return e.failed(intent, fmt.Errorf("submit: %w", err))
	}

	confirmed, err := e.venue.Confirm(ctx, sig)
	if err != nil {
		// The chain rejected the transaction; the signature is kept for audit.
		res := Result{Status: StatusFailed, Signature: sig.String(), Endpoint: quote.Endpoint, RPCEndpoint: rpcEndpoint, Ts: time.Now().UTC()}
		metrics.ExecutionsTotal.WithLabelValues(string(intent.Side), string(StatusFailed)).Inc()
		return res, err
	}

	status := StatusUnconfirmed
	if confirmed {
		status = StatusConfirmed
	} else {
		metrics.UnconfirmedSubmissions.Inc()
	}
	metrics.ExecutionsTotal.WithLabelValues(string(intent.Side), string(status)).Inc()

	res := Result{
		Status:      status,
		Signature:   sig.String(),
		Endpoint:    quote.Endpoint,
		RPCEndpoint: rpcEndpoint,
		InAmount:    intent.Amount,
		OutAmount:   quote.OutLamports(),
		Ts:          time.Now().UTC(),
	}
	e.log.Info().
		Str("side", string(intent.Side)).
		Str("sym", intent.Symbol).
		Str("status", string(status)).
		Str("sig", res.Signature).
		Str("endpoint", res.Endpoint).
		Uint64("in", res.InAmount).
		Uint64("out", res.OutAmount).
		Msg("execution complete")
	return res, nil
}

func (e *VenueExecutor) quoteWithFallback(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*dexsol.Quote, error) {
	quote, err := e.venue.GetQuote(ctx, inputMint, outputMint, amount, slippageBps, false)
	if err == nil {
		return quote, nil
	}
	if !errors.Is(err, dexsol.ErrEndpointsExhausted) && !errors.Is(err, dexsol.ErrNoLiquidity) {
		return nil, err
	}
	e.log.Warn().Err(err).Msg("primary routing exhausted, trying direct route")

	quote, err = e.venue.GetQuote(ctx, inputMint, outputMint, amount, slippageBps, true)
	if err == nil {
		return quote, nil
	}
	e.log.Warn().Err(err).Msg("direct route failed, trying alternate aggregator")

	return e.venue.GetQuoteFallback(ctx, inputMint, outputMint, amount, slippageBps)
}

// Reconcile checks the owner's token balance against the expected fill.
func (e *VenueExecutor) Reconcile(ctx context.Context, mint string, minExpected uint64) (bool, error) {
	balance, err := e.venue.TokenBalance(ctx, mint)
	if err != nil {
		return false, err
	}
	return balance >= minExpected, nil
}

func (e *VenueExecutor) failed(intent Intent, err error) (Result, error) {
	metrics.ExecutionsTotal.WithLabelValues(string(intent.Side), string(StatusFailed)).Inc()
	return Result{Status: StatusFailed, Ts: time.Now().UTC()}, err
}
