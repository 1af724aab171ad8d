// Package solana executes swaps through routing-service and ledger endpoint
// pools, rotating on failure and backing off on rate limits.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"snipebot-go/internal/config"
	"snipebot-go/internal/metrics"
)

var (
	// ErrEndpointsExhausted means every base in the pool failed for this attempt.
	ErrEndpointsExhausted = errors.New("all routing endpoints exhausted")
	// ErrNoLiquidity marks a quote whose output is below the dust threshold.
	ErrNoLiquidity = errors.New("quote output below dust threshold")
)

const (
	backoffBase = 250 * time.Millisecond
	backoffMax  = 8 * time.Second
	confirmPoll = 2 * time.Second
)

// Quote is a routing-service price quote plus the base that served it.
type Quote struct {
	InputMint      string  `json:"inputMint"`
	OutputMint     string  `json:"outputMint"`
	InAmount       string  `json:"inAmount"`
	OutAmount      string  `json:"outAmount"`
	OtherAmount    string  `json:"otherAmountThreshold"`
	SlippageBps    int     `json:"slippageBps"`
	RoutePlan      any     `json:"routePlan"`
	PriceImpactPct float64 `json:"priceImpactPct"`

	Endpoint string `json:"-"` // base that produced this quote
}

// OutLamports parses the quoted output amount.
func (q *Quote) OutLamports() uint64 {
	v, _ := strconv.ParseUint(q.OutAmount, 10, 64)
	return v
}

// Router drives swap execution across redundant endpoint pools. The signing
// key never leaves the process.
type Router struct {
	log            zerolog.Logger
	bases          []string
	fallbackBases  []string
	limiters       map[string]*rate.Limiter
	rpcs           []*rpc.Client
	rpcURLs        []string
	owner          solana.PrivateKey
	commit         rpc.CommitmentType
	httpc          *http.Client
	retriesPerBase int
	confirmTimeout time.Duration
	minOut         uint64

	mu        sync.Mutex
	rpcCursor int
}

// NewRouter builds a router from endpoint configuration.
func NewRouter(log zerolog.Logger, cfg config.Endpoints, owner solana.PrivateKey) (*Router, error) {
	if len(cfg.RPCURLs) == 0 {
		return nil, errors.New("at least one rpc url required")
	}
	if len(cfg.RouterBases) == 0 {
		return nil, errors.New("at least one router base required")
	}

	commit := rpc.CommitmentConfirmed
	switch cfg.Commitment {
	case "processed":
		commit = rpc.CommitmentProcessed
	case "finalized":
		commit = rpc.CommitmentFinalized
	}

	retries := cfg.RetriesPerBase
	if retries <= 0 {
		retries = 3
	}
	confirmTimeout := time.Duration(cfg.ConfirmTimeoutSec) * time.Second
	if confirmTimeout <= 0 {
		confirmTimeout = 45 * time.Second
	}
	minOut := cfg.MinOutLamports
	if minOut == 0 {
		minOut = 1000
	}

	rpcs := make([]*rpc.Client, len(cfg.RPCURLs))
	for i, u := range cfg.RPCURLs {
		rpcs[i] = rpc.New(u)
	}

	limiters := make(map[string]*rate.Limiter)
	if cfg.QuoteRatePerSec > 0 {
		for _, base := range cfg.RouterBases {
			limiters[base] = rate.NewLimiter(rate.Limit(cfg.QuoteRatePerSec), 1)
		}
		for _, base := range cfg.FallbackBases {
			limiters[base] = rate.NewLimiter(rate.Limit(cfg.QuoteRatePerSec), 1)
		}
	}

	return &Router{
		log:            log,
		bases:          trimBases(cfg.RouterBases),
		fallbackBases:  trimBases(cfg.FallbackBases),
		limiters:       limiters,
		rpcs:           rpcs,
		rpcURLs:        cfg.RPCURLs,
		owner:          owner,
		commit:         commit,
		httpc:          &http.Client{Timeout: 8 * time.Second},
		retriesPerBase: retries,
		confirmTimeout: confirmTimeout,
		minOut:         minOut,
	}, nil
}

func trimBases(bases []string) []string {
	out := make([]string, 0, len(bases))
	for _, base := range bases {
		base = trimSlash(base)
		if base != "" {
			out = append(out, base)
		}
	}
	return out
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Owner returns the signing public key.
func (r *Router) Owner() solana.PublicKey { return r.owner.PublicKey() }

// GetQuote requests a quote from the primary routing pool. amount is in
// smallest units (lamports for SOL; token decimals apply).
func (r *Router) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int, directOnly bool) (*Quote, error) {
	return r.quoteFromPool(ctx, r.bases, inputMint, outputMint, amount, slippageBps, directOnly)
}

// GetQuoteFallback requests a quote from the alternative aggregator pool.
func (r *Router) GetQuoteFallback(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	if len(r.fallbackBases) == 0 {
		return nil, ErrEndpointsExhausted
	}
	return r.quoteFromPool(ctx, r.fallbackBases, inputMint, outputMint, amount, slippageBps, false)
}

func (r *Router) quoteFromPool(ctx context.Context, pool []string, inputMint, outputMint string, amount uint64, slippageBps int, directOnly bool) (*Quote, error) {
	lastErr := ErrEndpointsExhausted
	for _, base := range pool {
		if lim := r.limiters[base]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, err
			}
		}

		for attempt := 0; attempt < r.retriesPerBase; attempt++ {
			quote, retryable, err := r.quoteOnce(ctx, base, inputMint, outputMint, amount, slippageBps, directOnly)
			if err == nil {
				if quote.OutLamports() <= r.minOut {
					// A near-zero output means this venue cannot fill now.
					lastErr = ErrNoLiquidity
					break
				}
				quote.Endpoint = base
				return quote, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if !retryable || attempt == r.retriesPerBase-1 {
				break
			}
			metrics.QuoteRetries.Inc()
			delay := backoffDelay(attempt)
			r.log.Debug().Err(err).Str("base", base).Dur("backoff", delay).Msg("quote retry")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		metrics.EndpointRotations.WithLabelValues("router").Inc()
	}
	if errors.Is(lastErr, ErrEndpointsExhausted) || errors.Is(lastErr, ErrNoLiquidity) {
		return nil, lastErr
	}
	// Callers branch on the sentinel to engage fallback strategies, so the
	// pool's last raw error must not mask it.
	return nil, fmt.Errorf("%w: %v", ErrEndpointsExhausted, lastErr)
}

func (r *Router) quoteOnce(ctx context.Context, base, inputMint, outputMint string, amount uint64, slippageBps int, directOnly bool) (*Quote, bool, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	q.Set("onlyDirectRoutes", strconv.FormatBool(directOnly))
	endpoint := base + "/v6/quote?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient.
		return nil, true, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("quote status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("quote status %d", resp.StatusCode)
	}

	var out Quote
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, err
	}
	return &out, false, nil
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt)))
	if d > backoffMax {
		d = backoffMax
	}
	return d
}

// BuildAndSend asks the quoting base for a ready-to-sign transaction, signs
// it locally, then submits via the ledger pool, rotating on failure. Returns
// the signature and the rpc endpoint that accepted it.
func (r *Router) BuildAndSend(ctx context.Context, quote *Quote) (solana.Signature, string, error) {
	var sig solana.Signature
	payload := map[string]any{
		"userPublicKey":             r.owner.PublicKey().String(),
		"wrapAndUnwrapSol":          true,
		"asLegacyTransaction":       false,
		"useTokenLedger":            false,
		"prioritizationFeeLamports": 0,
		"quoteResponse":             quote,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return sig, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, quote.Endpoint+"/v6/swap", bytes.NewReader(body))
	if err != nil {
		return sig, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return sig, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sig, "", fmt.Errorf("swap status %d", resp.StatusCode)
	}
	var sr struct {
		SwapTransaction string `json:"swapTransaction"` // base64-encoded tx (unsigned)
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return sig, "", err
	}

	raw, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return sig, "", fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return sig, "", fmt.Errorf("unmarshal tx: %w", err)
	}
	if _, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(r.owner.PublicKey()) {
			return &r.owner
		}
		return nil
	}); err != nil {
		return sig, "", fmt.Errorf("sign: %w", err)
	}

	var lastErr error
	start := r.cursor()
	for i := 0; i < len(r.rpcs); i++ {
		idx := (start + i) % len(r.rpcs)
		sig, err = r.rpcs[idx].SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: r.commit,
		})
		if err == nil {
			r.setCursor(idx)
			return sig, r.rpcURLs[idx], nil
		}
		lastErr = err
		metrics.EndpointRotations.WithLabelValues("rpc").Inc()
		r.log.Warn().Err(err).Str("rpc", r.rpcURLs[idx]).Msg("submission failed, rotating")
		if ctx.Err() != nil {
			return sig, "", ctx.Err()
		}
	}
	return sig, "", fmt.Errorf("submit via %d endpoints: %w", len(r.rpcs), lastErr)
}

// Confirm polls signature status with a bounded budget. A timeout is not a
// failure: the transaction may still land, so (false, nil) is returned and
// the caller records the submission as unconfirmed.
func (r *Router) Confirm(ctx context.Context, sig solana.Signature) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPoll)
	defer ticker.Stop()
	for {
		out, err := r.rpc().GetSignatureStatuses(ctx, true, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return false, fmt.Errorf("transaction failed on chain: %v", st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return true, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

// TokenBalance reads the owner's balance for mint in smallest units.
func (r *Router) TokenBalance(ctx context.Context, mint string) (uint64, error) {
	mintPK, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("parse mint: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(r.owner.PublicKey(), mintPK)
	if err != nil {
		return 0, fmt.Errorf("derive ata: %w", err)
	}
	res, err := r.rpc().GetTokenAccountBalance(ctx, ata, r.commit)
	if err != nil {
		return 0, err
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance: %w", err)
	}
	return amount, nil
}

// SolBalance reads the owner's native balance in lamports.
func (r *Router) SolBalance(ctx context.Context) (uint64, error) {
	res, err := r.rpc().GetBalance(ctx, r.owner.PublicKey(), r.commit)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (r *Router) rpc() *rpc.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rpcs[r.rpcCursor]
}

func (r *Router) cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rpcCursor
}

func (r *Router) setCursor(idx int) {
	r.mu.Lock()
	r.rpcCursor = idx
	r.mu.Unlock()
}
