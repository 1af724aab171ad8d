// Package capital owns the single-writer book of portfolio value, committed
// notional, and realized profit across all positions.
package capital

import (
	"errors"
	"math"
	"sync"
)

var (
	// ErrInsufficientCapital reports a skipped cycle, not a failure.
	ErrInsufficientCapital = errors.New("insufficient free capital")
	// ErrPositionLimit rejects sizing while the open-position ceiling is hit.
	ErrPositionLimit = errors.New("open position limit reached")
)

const epsilon = 1e-9

// Params bounds entry sizing. Notional values are denominated in SOL.
type Params struct {
	AllocationFraction float64
	MaxPositionSOL     float64
	MinPositionSOL     float64
	AdvantageCap       float64 // cap on advantage/100 scaling term
	ReinvestRatio      float64 // share of realized profit freed for redeployment
	MaxOpenPositions   int
}

// Book tracks portfolio capital under a single mutex. Every mutation is one
// critical section so concurrent entries and exits never interleave partial
// updates.
type Book struct {
	mu        sync.Mutex
	params    Params
	total     float64 // portfolio value: free + committed + banked
	free      float64 // deployable capital
	committed float64 // entry notional of open positions
	banked    float64 // realized profit withheld from redeployment
	realized  float64 // cumulative realized PnL, reporting only
	open      int
}

// Snapshot is a consistent read of the book.
type Snapshot struct {
	Total         float64
	Free          float64
	Committed     float64
	Banked        float64
	RealizedPnL   float64
	OpenPositions int
}

// NewBook seeds the book with starting capital.
func NewBook(startingSOL float64, params Params) *Book {
	if startingSOL < 0 {
		startingSOL = 0
	}
	return &Book{
		params: params,
		total:  startingSOL,
		free:   startingSOL,
	}
}

// Size computes the notional for a new entry from estimated advantage and
// confidence (both 0-100). It does not commit capital.
func (b *Book) Size(advantage, confidence float64) (float64, error) {
	advantage = sanitize(advantage)
	confidence = sanitize(confidence)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.params.MaxOpenPositions > 0 && b.open >= b.params.MaxOpenPositions {
		return 0, ErrPositionLimit
	}
	if b.free < b.params.MinPositionSOL {
		return 0, ErrInsufficientCapital
	}

	base := b.free * b.params.AllocationFraction
	if b.params.MaxPositionSOL > 0 && base > b.params.MaxPositionSOL {
		base = b.params.MaxPositionSOL
	}
	edge := advantage / 100
	if b.params.AdvantageCap > 0 && edge > b.params.AdvantageCap {
		edge = b.params.AdvantageCap
	}
	notional := base * edge * (confidence / 100)
	if notional < b.params.MinPositionSOL {
		notional = b.params.MinPositionSOL
	}
	if notional > b.free {
		return 0, ErrInsufficientCapital
	}
	return notional, nil
}

// Commit moves notional from free to committed for a new or scaled entry.
func (b *Book) Commit(notional float64) error {
	notional = sanitize(notional)
	if notional <= 0 {
		return ErrInsufficientCapital
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if notional > b.free+epsilon {
		return ErrInsufficientCapital
	}
	b.free -= notional
	b.committed += notional
	b.open++
	return nil
}

// CommitScale is Commit without counting a new open position.
func (b *Book) CommitScale(notional float64) error {
	notional = sanitize(notional)
	if notional <= 0 {
		return ErrInsufficientCapital
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if notional > b.free+epsilon {
		return ErrInsufficientCapital
	}
	b.free -= notional
	b.committed += notional
	return nil
}

// Release returns committed notional to free after a failed entry.
func (b *Book) Release(notional float64) {
	notional = sanitize(notional)
	b.mu.Lock()
	defer b.mu.Unlock()
	if notional > b.committed {
		notional = b.committed
	}
	b.committed -= notional
	b.free += notional
	if b.open > 0 {
		b.open--
	}
}

// Absorb reabsorbs exit proceeds. The entry notional plus the reinvestable
// share of any profit returns to free capital; the remainder of the profit is
// banked. Losses reduce free capital directly.
func (b *Book) Absorb(entryNotional, proceeds float64) {
	entryNotional = sanitize(entryNotional)
	proceeds = sanitize(proceeds)

	b.mu.Lock()
	defer b.mu.Unlock()

	pnl := proceeds - entryNotional
	b.committed -= entryNotional
	if b.committed < 0 {
		b.committed = 0
	}
	if pnl > 0 {
		reinvested := pnl * b.params.ReinvestRatio
		b.free += entryNotional + reinvested
		b.banked += pnl - reinvested
	} else {
		b.free += proceeds
	}
	b.total += pnl
	b.realized += pnl
	if b.open > 0 {
		b.open--
	}
}

// Snapshot returns a consistent copy of the book.
func (b *Book) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Total:         b.total,
		Free:          b.free,
		Committed:     b.committed,
		Banked:        b.banked,
		RealizedPnL:   b.realized,
		OpenPositions: b.open,
	}
}

// Imbalance reports total - (free + committed + banked); zero when the book
// invariant holds.
func (b *Book) Imbalance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total - (b.free + b.committed + b.banked)
}

// sanitize clamps NaN, infinite, and negative values to zero. Propagating
// them into sizing math is the most damaging failure mode in this domain.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
