package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snipebot-go/internal/capital"
	"snipebot-go/internal/config"
	"snipebot-go/internal/execution"
	"snipebot-go/internal/filter"
	"snipebot-go/internal/metrics"
)

// CloseFn receives a copy of every position that reaches EXITED, together
// with the execution result that closed it.
type CloseFn func(p Position, res execution.Result)

// Manager owns the open position set. All state transitions go through its
// mutex; ticks for a position with an execution already in flight are
// skipped, not queued.
type Manager struct {
	log  zerolog.Logger
	book *capital.Book
	exec execution.Executor

	limits      Limits
	scalePct    float64
	reinvest    float64
	minNotional float64
	slippageBps int
	maxOpen     int
	onClose     CloseFn

	mu         sync.Mutex
	open       map[string]*Position // by mint
	inflight   map[string]bool      // by mint
	advisories map[string]Advisory
}

// NewManager wires the lifecycle state machine to the capital book and the
// executor. onClose may be nil.
func NewManager(log zerolog.Logger, book *capital.Book, exec execution.Executor, exits config.Exits, sizing config.Sizing, slippageBps int, onClose CloseFn) *Manager {
	return &Manager{
		log:  log.With().Str("component", "position").Logger(),
		book: book,
		exec: exec,
		limits: Limits{
			ProfitTargetPct: exits.TargetProfitPct,
			// Operators write the stop either way round; -15 and 15 mean
			// the same drawdown.
			StopLossPct: math.Abs(exits.StopLossPct),
			TrailingStopPct: exits.TrailingStopPct,
			TrailingArmPct:  exits.TrailingArmPct,
			MaxHold:         time.Duration(exits.MaxHoldMinutes) * time.Minute,
		},
		scalePct:    exits.ScaleThresholdPct,
		reinvest:    sizing.ReinvestRatio,
		minNotional: sizing.MinPositionSOL,
		slippageBps: slippageBps,
		maxOpen:     sizing.MaxOpenPositions,
		onClose:     onClose,
		open:        map[string]*Position{},
		inflight:    map[string]bool{},
		advisories:  map[string]Advisory{},
	}
}

// Holds reports whether a mint already has a live position.
func (m *Manager) Holds(mint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[mint] != nil
}

// OpenCount is the number of live positions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Open sizes, commits and executes an entry for a scored signal. The
// position starts PENDING when the fill is submitted but unconfirmed and
// ACTIVE on a confirmed fill. A failed execution releases the commitment
// and opens nothing.
func (m *Manager) Open(ctx context.Context, sig filter.Scored) error {
	m.mu.Lock()
	if m.open[sig.Mint] != nil || m.inflight[sig.Mint] {
		m.mu.Unlock()
		return fmt.Errorf("position for %s already live", sig.Symbol)
	}
	if m.maxOpen > 0 && len(m.open) >= m.maxOpen {
		m.mu.Unlock()
		return capital.ErrPositionLimit
	}
	m.inflight[sig.Mint] = true
	m.mu.Unlock()
	defer m.clearInflight(sig.Mint)

	notional, err := m.book.Size(sig.Score, sig.Confidence)
	if err != nil {
		return err
	}
	if err := m.book.Commit(notional); err != nil {
		return err
	}

	// Once submitted, a trade must run to its own timeout even if the
	// process is shutting down; an aborted submission can still land
	// on-chain while the book thinks it failed.
	res, err := m.exec.Execute(context.WithoutCancel(ctx), execution.Intent{
		Side:        execution.Buy,
		Mint:        sig.Mint,
		Symbol:      sig.Symbol,
		Amount:      uint64(notional * 1e9),
		SlippageBps: m.slippageBps,
	})
	if err != nil || res.Status == execution.StatusFailed {
		m.book.Release(notional)
		if err == nil {
			err = fmt.Errorf("entry for %s failed", sig.Symbol)
		}
		return err
	}

	p := New(uuid.NewString(), sig.Mint, sig.Symbol, notional, sig.PriceUSD, res.OutAmount,
		res.Signature, res.Status == execution.StatusConfirmed, m.limits, res.Ts)

	m.mu.Lock()
	m.open[sig.Mint] = p
	metrics.OpenPositions.Set(float64(len(m.open)))
	m.mu.Unlock()

	m.log.Info().
		Str("sym", p.Symbol).
		Str("status", string(p.Status)).
		Float64("notional", notional).
		Float64("entry", p.EntryPrice()).
		Str("sig", p.EntrySig).
		Msg("position opened")
	return nil
}

// Advise records the latest rotation verdict for a mint. It is consumed on
// the next tick.
func (m *Manager) Advise(mint string, a Advisory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open[mint] != nil {
		m.advisories[mint] = a
	}
}

// Tick folds a price observation into the position for mint and acts on the
// resulting transition: pending reconciliation, scale-up, or exit. A tick
// that arrives while an execution for the same position is in flight is
// dropped.
func (m *Manager) Tick(ctx context.Context, mint string, price float64) {
	m.mu.Lock()
	p := m.open[mint]
	if p == nil || m.inflight[mint] {
		m.mu.Unlock()
		return
	}

	if p.Status == StatusPending {
		m.inflight[mint] = true
		m.mu.Unlock()
		m.reconcilePending(ctx, p)
		m.clearInflight(mint)
		return
	}

	p.observe(price)
	advisory := m.advisories[mint]
	delete(m.advisories, mint)
	reason := p.exitTrigger(time.Now().UTC(), advisory)
	wantScale := reason == "" && !p.Scaled && m.scalePct > 0 && p.ChangePct(price) >= m.scalePct
	if reason == "" && !wantScale {
		m.mu.Unlock()
		return
	}
	m.inflight[mint] = true
	m.mu.Unlock()
	defer m.clearInflight(mint)

	if reason != "" {
		m.exit(ctx, p, reason)
		return
	}
	m.scaleUp(ctx, p, price)
}

func (m *Manager) reconcilePending(ctx context.Context, p *Position) {
	ok, err := m.exec.Reconcile(ctx, p.Mint, p.RawQuantity)
	if err != nil {
		m.log.Warn().Err(err).Str("sym", p.Symbol).Msg("pending reconciliation check failed")
		return
	}
	if !ok {
		return
	}
	m.mu.Lock()
	p.Activate()
	m.mu.Unlock()
	m.log.Info().Str("sym", p.Symbol).Msg("pending entry reconciled on-chain")
}

// scaleUp reinvests a share of the unrealized gain as a second tranche.
func (m *Manager) scaleUp(ctx context.Context, p *Position, price float64) {
	notional := p.Unrealized(price) * m.reinvest
	if notional < m.minNotional {
		return
	}
	if err := m.book.CommitScale(notional); err != nil {
		m.log.Debug().Err(err).Str("sym", p.Symbol).Msg("scale-up skipped")
		return
	}
	res, err := m.exec.Execute(context.WithoutCancel(ctx), execution.Intent{
		Side:        execution.Buy,
		Mint:        p.Mint,
		Symbol:      p.Symbol,
		Amount:      uint64(notional * 1e9),
		SlippageBps: m.slippageBps,
	})
	if err != nil || res.Status == execution.StatusFailed {
		m.book.Release(notional)
		m.log.Warn().Err(err).Str("sym", p.Symbol).Msg("scale-up execution failed")
		return
	}

	m.mu.Lock()
	p.ScaleUp(notional, price, res.OutAmount)
	m.mu.Unlock()
	m.log.Info().
		Str("sym", p.Symbol).
		Float64("added", notional).
		Float64("entry", p.EntryPrice()).
		Msg("position scaled up")
}

// exit sells the full holding. The position reaches EXITED only when the
// sell was accepted on-chain (confirmed or submitted-unconfirmed); a failed
// sell leaves it live so the next tick retries.
func (m *Manager) exit(ctx context.Context, p *Position, reason ExitReason) {
	res, err := m.exec.Execute(context.WithoutCancel(ctx), execution.Intent{
		Side:        execution.Sell,
		Mint:        p.Mint,
		Symbol:      p.Symbol,
		Amount:      p.RawQuantity,
		SlippageBps: m.slippageBps,
	})
	if err != nil || res.Status == execution.StatusFailed {
		m.log.Warn().Err(err).Str("sym", p.Symbol).Str("reason", string(reason)).Msg("exit execution failed, position stays live")
		return
	}

	proceeds := float64(res.OutAmount) / 1e9
	if proceeds == 0 {
		// Unconfirmed sells may not report an out amount; estimate from
		// the last mark so the book stays balanced.
		proceeds = p.Basis * p.Mark
	}

	m.mu.Lock()
	p.close(reason, res.Signature, proceeds, res.Ts)
	closed := *p
	delete(m.open, p.Mint)
	delete(m.advisories, p.Mint)
	metrics.OpenPositions.Set(float64(len(m.open)))
	m.mu.Unlock()

	m.book.Absorb(closed.Invested, proceeds)
	metrics.ExitsTotal.WithLabelValues(string(reason)).Inc()
	m.log.Info().
		Str("sym", closed.Symbol).
		Str("reason", string(reason)).
		Float64("invested", closed.Invested).
		Float64("proceeds", proceeds).
		Str("sig", closed.ExitSig).
		Msg("position closed")

	if m.onClose != nil {
		m.onClose(closed, res)
	}
}

func (m *Manager) clearInflight(mint string) {
	m.mu.Lock()
	delete(m.inflight, mint)
	m.mu.Unlock()
}

// View is a read-only copy of a live position for dashboards.
type View struct {
	ID         string  `json:"id"`
	Mint       string  `json:"mint"`
	Symbol     string  `json:"symbol"`
	Status     Status  `json:"status"`
	Invested   float64 `json:"invested_sol"`
	EntryPrice float64 `json:"entry_price"`
	Mark       float64 `json:"mark"`
	HighWater  float64 `json:"high_water"`
	ChangePct  float64 `json:"change_pct"`
	Unrealized float64 `json:"unrealized_sol"`
	Scaled     bool    `json:"scaled"`
	OpenedAt   string  `json:"opened_at"`
}

// Snapshot returns the live positions in no particular order.
func (m *Manager) Snapshot() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]View, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, View{
			ID:         p.ID,
			Mint:       p.Mint,
			Symbol:     p.Symbol,
			Status:     p.Status,
			Invested:   p.Invested,
			EntryPrice: p.EntryPrice(),
			Mark:       p.Mark,
			HighWater:  p.HighWater,
			ChangePct:  p.ChangePct(p.Mark),
			Unrealized: p.Unrealized(p.Mark),
			Scaled:     p.Scaled,
			OpenedAt:   p.OpenedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
