// Package engine wires discovery, filtering, execution and position
// lifecycle into the scan / monitor / rotation loops.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"snipebot-go/internal/capital"
	"snipebot-go/internal/config"
	"snipebot-go/internal/execution"
	"snipebot-go/internal/filter"
	"snipebot-go/internal/history"
	"snipebot-go/internal/market"
	"snipebot-go/internal/position"
	"snipebot-go/internal/rotation"
	"snipebot-go/internal/util"
)

// discovery is the market surface the engine scans and snapshots.
type discovery interface {
	Discover(ctx context.Context) ([]market.Opportunity, error)
	Snapshot(ctx context.Context, chain, pairAddress string) (market.PairSnapshot, error)
}

// holdingMeta carries the entry-time facts rotation needs but the position
// itself does not track.
type holdingMeta struct {
	chain       string
	pairAddress string
	entryMcap   float64
	entryVolume float64
	openedAt    time.Time
	lastTick    time.Time
}

// Engine runs the trading loops. Stop it by cancelling the context passed
// to Run.
type Engine struct {
	log      zerolog.Logger
	cfg      *config.Config
	gateway  discovery
	feed     *market.Feed
	book     *capital.Book
	manager  *position.Manager
	checker  *rotation.Checker
	recorder *history.JSONLRecorder

	mu     sync.Mutex
	meta   map[string]*holdingMeta // by mint
	recent []history.Closed
	drops  []filter.Drop
}

// New assembles an engine from already-constructed components. recorder may
// be nil when persistence is disabled.
func New(log zerolog.Logger, cfg *config.Config, gateway discovery, feed *market.Feed, exec execution.Executor, recorder *history.JSONLRecorder) *Engine {
	book := capital.NewBook(cfg.Sizing.StartingBalanceSOL, capital.Params{
		AllocationFraction: cfg.Sizing.AllocationFraction,
		MaxPositionSOL:     cfg.Sizing.MaxPositionSOL,
		MinPositionSOL:     cfg.Sizing.MinPositionSOL,
		AdvantageCap:       cfg.Sizing.AdvantageCap,
		ReinvestRatio:      cfg.Sizing.ReinvestRatio,
		MaxOpenPositions:   cfg.Sizing.MaxOpenPositions,
	})

	e := &Engine{
		log:      util.Component(log, "engine"),
		cfg:      cfg,
		gateway:  gateway,
		feed:     feed,
		book:     book,
		checker:  rotation.NewChecker(cfg.Rotation),
		recorder: recorder,
		meta:     map[string]*holdingMeta{},
	}
	e.manager = position.NewManager(log, book, exec, cfg.Exits, cfg.Sizing, cfg.Engine.MaxSlippageBps, e.onClose)
	return e
}

// Run blocks until ctx is cancelled, driving the scan, monitor and rotation
// loops plus the feed.
func (e *Engine) Run(ctx context.Context) error {
	ticks := make(chan market.Tick, 1024)
	if e.feed != nil {
		go func() {
			if err := e.feed.Run(ctx, ticks); err != nil && ctx.Err() == nil {
				e.log.Error().Err(err).Msg("feed stopped")
			}
		}()
	}

	scan := time.NewTicker(msOrDefault(e.cfg.Engine.ScanIntervalMs, 30_000))
	defer scan.Stop()
	monitor := time.NewTicker(msOrDefault(e.cfg.Engine.MonitorIntervalMs, 5_000))
	defer monitor.Stop()
	rotate := time.NewTicker(msOrDefault(e.cfg.Rotation.IntervalMs, 60_000))
	defer rotate.Stop()

	e.log.Info().Msg("engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			return ctx.Err()
		case tk := <-ticks:
			e.onTick(ctx, tk)
		case <-scan.C:
			e.Scan(ctx)
		case <-monitor.C:
			e.Monitor(ctx)
		case <-rotate.C:
			e.Rotate(ctx)
		}
	}
}

// Scan runs one discovery pass: fetch, filter, and open entries for the
// top-ranked signals that are not already held.
func (e *Engine) Scan(ctx context.Context) {
	batch, err := e.gateway.Discover(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("discovery failed")
		return
	}

	// The gateway already counts scanned signals.
	ranked, drops := filter.Apply(e.cfg.Filter, batch)
	e.mu.Lock()
	e.drops = drops
	e.mu.Unlock()

	for _, sig := range ranked {
		if e.manager.Holds(sig.Mint) {
			continue
		}
		if err := e.manager.Open(ctx, sig); err != nil {
			e.log.Debug().Err(err).Str("sym", sig.Symbol).Msg("entry skipped")
			continue
		}
		e.mu.Lock()
		now := time.Now().UTC()
		e.meta[sig.Mint] = &holdingMeta{
			chain:       sig.Chain,
			pairAddress: sig.PairAddress,
			entryMcap:   sig.MarketCapUSD,
			entryVolume: sig.Volume24h,
			openedAt:    now,
			lastTick:    now,
		}
		e.mu.Unlock()
	}
	e.retarget()
}

// onTick feeds a live mark into the lifecycle manager. The tick is
// dispatched off the run loop: an exit execution can hold a position for
// the full confirm window, and that must not stall other positions' ticks
// or the timers. The manager's in-flight guard drops overlapping ticks.
func (e *Engine) onTick(ctx context.Context, tk market.Tick) {
	e.mu.Lock()
	if m := e.meta[tk.Mint]; m != nil {
		m.lastTick = tk.Ts
	}
	e.mu.Unlock()
	go e.manager.Tick(ctx, tk.Mint, tk.Price)
}

// Monitor marks positions whose feed has gone quiet using a direct pair
// snapshot, so exits still fire without a live stream. Positions are
// checked concurrently; a slow endpoint for one pair never stalls the
// others, and the manager's in-flight guard drops overlapping ticks.
func (e *Engine) Monitor(ctx context.Context) {
	staleAfter := 2 * msOrDefault(e.cfg.Engine.MonitorIntervalMs, 5_000)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for _, v := range e.manager.Snapshot() {
		e.mu.Lock()
		m := e.meta[v.Mint]
		e.mu.Unlock()
		if m == nil || now.Sub(m.lastTick) < staleAfter {
			continue
		}
		wg.Add(1)
		go func(mint, symbol string, m *holdingMeta) {
			defer wg.Done()
			snap, err := e.gateway.Snapshot(ctx, m.chain, m.pairAddress)
			if err != nil {
				e.log.Warn().Err(err).Str("sym", symbol).Msg("pair snapshot failed")
				return
			}
			e.mu.Lock()
			m.lastTick = now
			e.mu.Unlock()
			e.manager.Tick(ctx, mint, snap.PriceUSD)
		}(v.Mint, v.Symbol, m)
	}
	wg.Wait()
}

// Rotate runs the health checks over open positions and hands exit
// advisories to the lifecycle manager. Reduce verdicts are surfaced but not
// acted on automatically.
func (e *Engine) Rotate(ctx context.Context) {
	for _, v := range e.manager.Snapshot() {
		e.mu.Lock()
		m := e.meta[v.Mint]
		e.mu.Unlock()
		if m == nil {
			continue
		}
		snap, err := e.gateway.Snapshot(ctx, m.chain, m.pairAddress)
		if err != nil {
			continue
		}

		multiple := 0.0
		if v.EntryPrice > 0 {
			multiple = v.Mark / v.EntryPrice
		}
		sig := e.checker.Evaluate(rotation.Holding{
			Mint:        v.Mint,
			Symbol:      v.Symbol,
			EntryMcap:   m.entryMcap,
			EntryVolume: m.entryVolume,
			Multiple:    multiple,
			OpenedAt:    m.openedAt,
		}, snap, time.Now().UTC())

		if sig.Action == rotation.ActionHold {
			continue
		}
		e.log.Info().
			Str("sym", sig.Symbol).
			Str("action", string(sig.Action)).
			Str("urgency", string(sig.Urgency)).
			Str("reason", sig.Reason).
			Msg("rotation verdict")

		// Only urgent exits are acted on; reductions and medium-grade
		// verdicts stay advisory.
		if sig.Action != rotation.ActionExit {
			continue
		}
		switch sig.Urgency {
		case rotation.UrgencyCritical:
			e.manager.Advise(v.Mint, position.AdvisoryCritical)
		case rotation.UrgencyHigh:
			e.manager.Advise(v.Mint, position.AdvisoryHigh)
		default:
			continue
		}
		e.manager.Tick(ctx, v.Mint, snap.PriceUSD)
	}
}

// retarget points the feed at the currently held pairs.
func (e *Engine) retarget() {
	if e.feed == nil {
		return
	}
	views := e.manager.Snapshot()
	targets := make([]market.Target, 0, len(views))
	e.mu.Lock()
	for _, v := range views {
		m := e.meta[v.Mint]
		if m == nil {
			continue
		}
		targets = append(targets, market.Target{
			Symbol:      v.Symbol,
			Mint:        v.Mint,
			Chain:       m.chain,
			PairAddress: m.pairAddress,
		})
	}
	e.mu.Unlock()
	e.feed.SetTargets(targets)
}

func (e *Engine) onClose(p position.Position, res execution.Result) {
	exitPrice := 0.0
	if p.Basis > 0 {
		exitPrice = p.Proceeds / p.Basis
	}
	rec := history.Closed{
		ID:          p.ID,
		Mint:        p.Mint,
		Symbol:      p.Symbol,
		Reason:      string(p.Reason),
		InvestedSOL: p.Invested,
		ProceedsSOL: p.Proceeds,
		PnLSOL:      p.Proceeds - p.Invested,
		EntryPrice:  p.EntryPrice(),
		ExitPrice:   exitPrice,
		Scaled:      p.Scaled,
		EntrySig:    p.EntrySig,
		ExitSig:     p.ExitSig,
		ExitStatus:  string(res.Status),
		OpenedAt:    p.OpenedAt,
		ClosedAt:    p.ClosedAt,
	}
	if e.recorder != nil {
		e.recorder.Record(rec)
	}
	e.mu.Lock()
	delete(e.meta, p.Mint)
	e.recent = append(e.recent, rec)
	if len(e.recent) > 200 {
		e.recent = e.recent[len(e.recent)-200:]
	}
	e.mu.Unlock()
	e.retarget()
}

func msOrDefault(ms, def int) time.Duration {
	if ms <= 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}
