package position

import (
	"math"
	"time"
)

// Status is the lifecycle state of a position. EXITED is terminal.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusScaled  Status = "SCALED"
	StatusExited  Status = "EXITED"
)

// ExitReason records which rule closed a position.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "PROFIT_TARGET"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitTimeLimit    ExitReason = "TIME_LIMIT"
	ExitRotation     ExitReason = "ROTATION_SIGNAL"
)

// Advisory is a rotation verdict handed down to the lifecycle check.
type Advisory int

const (
	AdvisoryNone Advisory = iota
	AdvisoryHigh
	AdvisoryCritical
)

// Limits are the per-position exit parameters, fixed at open.
type Limits struct {
	ProfitTargetPct float64 // e.g. 35 means +35%
	StopLossPct     float64 // e.g. 15 means -15%
	TrailingStopPct float64 // giveback from high-water once armed
	TrailingArmPct  float64 // favorable move required to arm the trail
	MaxHold         time.Duration
}

// Position tracks one token holding across entry, optional scale-up and exit.
// Entry price is derived from tranche accounting: invested SOL over summed
// basis, so a scale-up reprices the whole position.
type Position struct {
	ID     string
	Mint   string
	Symbol string
	Status Status

	Invested    float64 // SOL committed across all tranches
	Basis       float64 // sum of notional/price per tranche
	RawQuantity uint64  // token lamports held, for sell intents

	EntrySig  string
	OpenedAt  time.Time
	ClosedAt  time.Time
	Reason    ExitReason
	ExitSig   string
	Proceeds  float64 // SOL realized on close
	Scaled    bool
	Mark      float64
	HighWater float64
	armed     bool

	Limits Limits
}

// New creates a PENDING position for a submitted-unconfirmed entry or an
// ACTIVE one for a confirmed fill.
func New(id, mint, symbol string, notional, price float64, rawQty uint64, sig string, confirmed bool, limits Limits, now time.Time) *Position {
	p := &Position{
		ID:       id,
		Mint:     mint,
		Symbol:   symbol,
		Status:   StatusPending,
		EntrySig: sig,
		OpenedAt: now,
		Limits:   limits,
	}
	p.addTranche(notional, price, rawQty)
	p.Mark = price
	p.HighWater = price
	if confirmed {
		p.Status = StatusActive
	}
	return p
}

func (p *Position) addTranche(notional, price float64, rawQty uint64) {
	if notional <= 0 || price <= 0 {
		return
	}
	p.Invested += notional
	p.Basis += notional / price
	p.RawQuantity += rawQty
}

// EntryPrice is the blended cost across tranches.
func (p *Position) EntryPrice() float64 {
	if p.Basis == 0 {
		return 0
	}
	return p.Invested / p.Basis
}

// Unrealized is the mark-to-market P/L in SOL at the given price.
func (p *Position) Unrealized(price float64) float64 {
	return p.Basis*price - p.Invested
}

// ChangePct is the percent move from blended entry to the given price.
func (p *Position) ChangePct(price float64) float64 {
	entry := p.EntryPrice()
	if entry == 0 {
		return 0
	}
	return (price - entry) / entry * 100
}

// Terminal reports whether the position can no longer change state.
func (p *Position) Terminal() bool {
	return p.Status == StatusExited
}

// Activate promotes a PENDING position whose entry was reconciled on-chain.
func (p *Position) Activate() {
	if p.Status == StatusPending {
		p.Status = StatusActive
	}
}

// ScaleUp folds a confirmed additional tranche into the position. Only one
// scale-up is allowed per position.
func (p *Position) ScaleUp(notional, price float64, rawQty uint64) bool {
	if p.Status != StatusActive || p.Scaled {
		return false
	}
	p.addTranche(notional, price, rawQty)
	p.Scaled = true
	p.Status = StatusScaled
	return true
}

// observe folds a new mark into the position. High-water only ever rises,
// and the trailing stop arms once the move from entry clears the threshold.
func (p *Position) observe(price float64) {
	if p.Terminal() || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	p.Mark = price
	if price > p.HighWater {
		p.HighWater = price
	}
	if !p.armed && p.Limits.TrailingStopPct > 0 && p.ChangePct(p.HighWater) >= p.Limits.TrailingArmPct {
		p.armed = true
	}
}

// exitTrigger evaluates the exit rules in fixed priority order: stop-loss,
// trailing stop, profit target, max hold, rotation advisory. Returns the
// first rule that fires, or "".
func (p *Position) exitTrigger(now time.Time, advisory Advisory) ExitReason {
	if p.Terminal() || p.Status == StatusPending {
		return ""
	}
	change := p.ChangePct(p.Mark)
	if p.Limits.StopLossPct > 0 && change <= -p.Limits.StopLossPct {
		return ExitStopLoss
	}
	if p.armed && p.HighWater > 0 {
		giveback := (p.HighWater - p.Mark) / p.HighWater * 100
		if giveback >= p.Limits.TrailingStopPct {
			return ExitTrailingStop
		}
	}
	if p.Limits.ProfitTargetPct > 0 && change >= p.Limits.ProfitTargetPct {
		return ExitProfitTarget
	}
	if p.Limits.MaxHold > 0 && now.Sub(p.OpenedAt) >= p.Limits.MaxHold {
		return ExitTimeLimit
	}
	if advisory == AdvisoryHigh || advisory == AdvisoryCritical {
		return ExitRotation
	}
	return ""
}

// close marks the position EXITED. Further transitions are ignored.
func (p *Position) close(reason ExitReason, sig string, proceeds float64, now time.Time) {
	if p.Terminal() {
		return
	}
	p.Status = StatusExited
	p.Reason = reason
	p.ExitSig = sig
	p.Proceeds = proceeds
	p.ClosedAt = now
}
