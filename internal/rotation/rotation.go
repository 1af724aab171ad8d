// Package rotation runs health checks over open holdings and emits advisory
// signals for capital redeployment. It never executes trades itself.
package rotation

import (
	"time"

	"snipebot-go/internal/config"
	"snipebot-go/internal/market"
)

// Action is the advised response to a holding's health check.
type Action string

const (
	ActionHold   Action = "HOLD"
	ActionReduce Action = "REDUCE"
	ActionExit   Action = "EXIT"
)

// Urgency grades how quickly the advice should be acted on. The lifecycle
// manager only acts on high and critical; the rest are surfaced for the
// dashboard and logs.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Signal is one advisory verdict for a holding.
type Signal struct {
	Mint      string
	Symbol    string
	Action    Action
	Urgency   Urgency
	UnwindPct float64 // for REDUCE: share of the holding to unwind
	Reason    string
	Ts        time.Time
}

// Holding is the rotation view of an open position: what was entered, at
// what basis, and the gain multiple so far.
type Holding struct {
	Mint        string
	Symbol      string
	EntryMcap   float64
	EntryVolume float64
	Multiple    float64 // current mark over blended entry price
	OpenedAt    time.Time
}

// Checker evaluates holdings against configured graduation and decay
// thresholds.
type Checker struct {
	graduationMcap float64
	staleAfter     time.Duration
	volumeDecay    float64
	moonbagMult    float64
	unwindPct      float64
}

// NewChecker builds a Checker from config. Zero thresholds disable the
// corresponding check.
func NewChecker(cfg config.Rotation) *Checker {
	return &Checker{
		graduationMcap: cfg.GraduationMcapUSD,
		staleAfter:     time.Duration(cfg.StaleAfterMinutes) * time.Minute,
		volumeDecay:    cfg.VolumeDecayRatio,
		moonbagMult:    cfg.MoonbagMultiple,
		unwindPct:      cfg.UnwindPct,
	}
}

// Evaluate runs the checks in severity order and returns the first verdict
// that is not HOLD. Checks, most to least severe: graduation past twice the
// ceiling, graduation past the ceiling, moonbag multiple reached, 24h volume
// decayed below the entry ratio, holding gone stale.
func (c *Checker) Evaluate(h Holding, snap market.PairSnapshot, now time.Time) Signal {
	sig := Signal{Mint: h.Mint, Symbol: h.Symbol, Action: ActionHold, Urgency: UrgencyLow, Ts: now}

	if c.graduationMcap > 0 && snap.MarketCapUSD >= 2*c.graduationMcap {
		sig.Action = ActionExit
		sig.Urgency = UrgencyCritical
		sig.Reason = "market cap far past graduation ceiling"
		return sig
	}
	if c.graduationMcap > 0 && snap.MarketCapUSD >= c.graduationMcap {
		sig.Action = ActionExit
		sig.Urgency = UrgencyHigh
		sig.Reason = "market cap past graduation ceiling"
		return sig
	}
	if c.moonbagMult > 0 && h.Multiple >= c.moonbagMult {
		sig.Action = ActionReduce
		sig.Urgency = UrgencyHigh
		sig.UnwindPct = c.unwindPct
		sig.Reason = "moonbag multiple reached"
		return sig
	}
	if c.volumeDecay > 0 && h.EntryVolume > 0 && snap.Volume24h < h.EntryVolume*c.volumeDecay {
		sig.Action = ActionReduce
		sig.Urgency = UrgencyMedium
		sig.UnwindPct = c.unwindPct
		sig.Reason = "volume decayed from entry"
		return sig
	}
	if c.staleAfter > 0 && !h.OpenedAt.IsZero() && now.Sub(h.OpenedAt) >= c.staleAfter {
		sig.Action = ActionExit
		sig.Urgency = UrgencyMedium
		sig.Reason = "holding gone stale"
		return sig
	}
	return sig
}
