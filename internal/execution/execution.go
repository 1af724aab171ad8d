// Package execution turns trade intents into confirmed (or explicitly
// unconfirmed) venue transactions.
package execution

import (
	"context"
	"time"
)

// Side enumerates trade directions.
type Side string

const (
	// Buy swaps SOL into the target asset.
	Buy Side = "BUY"
	// Sell swaps the target asset back into SOL.
	Sell Side = "SELL"
)

// Status is the outcome taxonomy for an execution attempt. A success result
// always carries a transaction signature; there is no code path that
// fabricates one.
type Status string

const (
	// StatusConfirmed means the transaction reached confirmed commitment.
	StatusConfirmed Status = "confirmed"
	// StatusUnconfirmed means the submission succeeded but the confirmation
	// poll timed out. The trade may still land; it is resolved by a later
	// balance reconciliation, never by blind resubmission.
	StatusUnconfirmed Status = "submitted-unconfirmed"
	// StatusFailed means no transaction was accepted by any endpoint.
	StatusFailed Status = "failed"
)

// Intent describes one trade to execute. Amount is in smallest units:
// lamports of SOL for buys, raw token units for sells.
type Intent struct {
	Side        Side
	Mint        string
	Symbol      string
	Amount      uint64
	SlippageBps int
}

// Result reports the outcome of an execution attempt.
type Result struct {
	Status      Status
	Signature   string
	Endpoint    string // routing base that produced the quote
	RPCEndpoint string // ledger endpoint that accepted the submission
	InAmount    uint64
	OutAmount   uint64
	Ts          time.Time
}

// Executor is the narrow surface the lifecycle manager and engine depend on.
type Executor interface {
	Execute(ctx context.Context, intent Intent) (Result, error)
	// Reconcile reports whether the owner's balance for mint has reached
	// minExpected, converting an unconfirmed submission into a confirmed one.
	Reconcile(ctx context.Context, mint string, minExpected uint64) (bool, error)
}
