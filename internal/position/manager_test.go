package position

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"snipebot-go/internal/capital"
	"snipebot-go/internal/config"
	"snipebot-go/internal/execution"
	"snipebot-go/internal/filter"
	"snipebot-go/internal/market"
)

type fakeExec struct {
	status      execution.Status
	out         uint64
	err         error
	reconciled  bool
	calls       []execution.Intent
	ctxErrs     []error
	reconCalls  int
	failNextBuy bool
}

func (f *fakeExec) Execute(ctx context.Context, intent execution.Intent) (execution.Result, error) {
	f.calls = append(f.calls, intent)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.err != nil {
		return execution.Result{Status: execution.StatusFailed, Ts: time.Now().UTC()}, f.err
	}
	if f.failNextBuy && intent.Side == execution.Buy {
		f.failNextBuy = false
		return execution.Result{Status: execution.StatusFailed, Ts: time.Now().UTC()}, errors.New("submit failed")
	}
	return execution.Result{
		Status:    f.status,
		Signature: "5KtP9fake",
		InAmount:  intent.Amount,
		OutAmount: f.out,
		Ts:        time.Now().UTC(),
	}, nil
}

func (f *fakeExec) Reconcile(_ context.Context, _ string, _ uint64) (bool, error) {
	f.reconCalls++
	return f.reconciled, nil
}

func testBook() *capital.Book {
	return capital.NewBook(10, capital.Params{
		AllocationFraction: 0.2,
		MaxPositionSOL:     2,
		MinPositionSOL:     0.1,
		AdvantageCap:       1,
		ReinvestRatio:      0.7,
		MaxOpenPositions:   5,
	})
}

func testManager(exec execution.Executor, onClose CloseFn) *Manager {
	exits := config.Exits{
		TargetProfitPct:   35,
		StopLossPct:       15,
		TrailingStopPct:   10,
		TrailingArmPct:    20,
		MaxHoldMinutes:    30,
		ScaleThresholdPct: 0, // off unless a test enables it
	}
	sizing := config.Sizing{MaxOpenPositions: 5, ReinvestRatio: 0.7, MinPositionSOL: 0.05}
	return NewManager(zerolog.Nop(), testBook(), exec, exits, sizing, 150, onClose)
}

func testSignal() filter.Scored {
	return filter.Scored{
		Opportunity: market.Opportunity{
			Mint:       "MINT1",
			Symbol:     "TEST",
			PriceUSD:   1.0,
			Confidence: 80,
		},
		Score: 60,
	}
}

func TestOpenThenStopLossExit(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1_000_000}
	var closed []Position
	m := testManager(exec, func(p Position, _ execution.Result) { closed = append(closed, p) })

	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !m.Holds("MINT1") || m.OpenCount() != 1 {
		t.Fatalf("position not registered")
	}

	// A -16% mark fires the stop before any other rule can.
	m.Tick(context.Background(), "MINT1", 0.84)

	if m.Holds("MINT1") {
		t.Fatalf("position still live after stop-loss")
	}
	if len(closed) != 1 {
		t.Fatalf("expected one close callback, got %d", len(closed))
	}
	if closed[0].Reason != ExitStopLoss {
		t.Fatalf("reason = %s, want STOP_LOSS", closed[0].Reason)
	}
	if closed[0].ExitSig == "" {
		t.Fatalf("closed position must carry the sell signature")
	}
	if len(exec.calls) != 2 || exec.calls[1].Side != execution.Sell {
		t.Fatalf("expected buy then sell, got %+v", exec.calls)
	}
}

func TestDuplicateOpenRejected(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1}
	m := testManager(exec, nil)
	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Open(context.Background(), testSignal()); err == nil {
		t.Fatalf("duplicate open must be rejected")
	}
}

func TestFailedEntryReleasesCommitment(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1, failNextBuy: true}
	m := testManager(exec, nil)

	before := m.book.Snapshot()
	if err := m.Open(context.Background(), testSignal()); err == nil {
		t.Fatalf("expected entry failure")
	}
	after := m.book.Snapshot()
	if m.OpenCount() != 0 {
		t.Fatalf("failed entry left a position open")
	}
	if math.Abs(after.Free-before.Free) > 1e-9 || after.Committed != 0 {
		t.Fatalf("commitment not released: %+v", after)
	}
}

func TestPendingEntryReconcilesOnTick(t *testing.T) {
	exec := &fakeExec{status: execution.StatusUnconfirmed, out: 1_000_000}
	m := testManager(exec, nil)
	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	views := m.Snapshot()
	if len(views) != 1 || views[0].Status != StatusPending {
		t.Fatalf("unconfirmed entry should be PENDING: %+v", views)
	}

	// Balance not landed yet: stays PENDING, no exit evaluation.
	m.Tick(context.Background(), "MINT1", 0.5)
	if m.Snapshot()[0].Status != StatusPending {
		t.Fatalf("position activated without reconciliation")
	}

	exec.reconciled = true
	m.Tick(context.Background(), "MINT1", 1.0)
	if m.Snapshot()[0].Status != StatusActive {
		t.Fatalf("reconciled position should be ACTIVE")
	}
	if exec.reconCalls != 2 {
		t.Fatalf("reconcile calls = %d, want 2", exec.reconCalls)
	}
	// Crucially: reconciliation never resubmits the entry.
	if len(exec.calls) != 1 {
		t.Fatalf("resubmission detected: %d executions", len(exec.calls))
	}
}

func TestFailedExitLeavesPositionLive(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1_000_000}
	m := testManager(exec, nil)
	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	exec.err = errors.New("rpc down")
	m.Tick(context.Background(), "MINT1", 0.80)
	if !m.Holds("MINT1") {
		t.Fatalf("position closed despite failed sell")
	}

	// Venue recovers: the next tick retries and closes.
	exec.err = nil
	m.Tick(context.Background(), "MINT1", 0.80)
	if m.Holds("MINT1") {
		t.Fatalf("position not closed after retry")
	}
}

func TestScaleUpOnceOnFavorableMove(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1_000_000}
	m := testManager(exec, nil)
	m.scalePct = 25

	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.Tick(context.Background(), "MINT1", 1.30)

	views := m.Snapshot()
	if len(views) != 1 || !views[0].Scaled || views[0].Status != StatusScaled {
		t.Fatalf("expected scaled position, got %+v", views)
	}
	buys := 0
	for _, c := range exec.calls {
		if c.Side == execution.Buy {
			buys++
		}
	}
	if buys != 2 {
		t.Fatalf("buy count = %d, want 2", buys)
	}

	// Another favorable tick must not stack a third tranche.
	m.Tick(context.Background(), "MINT1", 1.32)
	if len(exec.calls) != 2 {
		t.Fatalf("second scale-up executed")
	}
}

func TestAbsorbUpdatesBookOnClose(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 2_000_000_000} // 2 SOL proceeds
	m := testManager(exec, nil)
	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	invested := m.Snapshot()[0].Invested

	m.Tick(context.Background(), "MINT1", 1.40)

	snap := m.book.Snapshot()
	wantPnL := 2.0 - invested
	if math.Abs(snap.RealizedPnL-wantPnL) > 1e-9 {
		t.Fatalf("realized = %f, want %f", snap.RealizedPnL, wantPnL)
	}
	if snap.Committed != 0 {
		t.Fatalf("committed not zeroed: %f", snap.Committed)
	}
	if math.Abs(m.book.Imbalance()) > 1e-6 {
		t.Fatalf("book imbalance %g", m.book.Imbalance())
	}
}

func TestAdvisoryConsumedByEvaluatingTick(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1_000_000}
	m := testManager(exec, nil)
	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// The advisory is evaluated once; a failed sell burns it rather than
	// leaving it armed forever.
	m.Advise("MINT1", AdvisoryHigh)
	exec.err = errors.New("rpc down")
	m.Tick(context.Background(), "MINT1", 1.05)
	if !m.Holds("MINT1") {
		t.Fatalf("position closed despite failed sell")
	}

	exec.err = nil
	m.Tick(context.Background(), "MINT1", 1.05)
	if !m.Holds("MINT1") {
		t.Fatalf("stale advisory forced an exit on a healthy tick")
	}

	// A fresh advisory still closes.
	m.Advise("MINT1", AdvisoryHigh)
	m.Tick(context.Background(), "MINT1", 1.05)
	if m.Holds("MINT1") {
		t.Fatalf("fresh advisory ignored")
	}
}

func TestExecutionOutlivesCancelledContext(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1_000_000}
	m := testManager(exec, nil)
	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Shutdown races a stop-loss: the sell must run on a context that the
	// cancelled parent cannot abort mid-submission.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Tick(ctx, "MINT1", 0.80)

	if m.Holds("MINT1") {
		t.Fatalf("exit did not complete under cancelled parent")
	}
	if len(exec.ctxErrs) == 0 || exec.ctxErrs[len(exec.ctxErrs)-1] != nil {
		t.Fatalf("execution context was cancelled: %v", exec.ctxErrs)
	}
}

func TestRotationAdvisoryClosesPosition(t *testing.T) {
	exec := &fakeExec{status: execution.StatusConfirmed, out: 1_000_000}
	var reasons []ExitReason
	m := testManager(exec, func(p Position, _ execution.Result) { reasons = append(reasons, p.Reason) })
	if err := m.Open(context.Background(), testSignal()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m.Advise("MINT1", AdvisoryCritical)
	m.Tick(context.Background(), "MINT1", 1.05)

	if len(reasons) != 1 || reasons[0] != ExitRotation {
		t.Fatalf("expected ROTATION_SIGNAL close, got %+v", reasons)
	}
}
