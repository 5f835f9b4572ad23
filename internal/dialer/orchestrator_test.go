package dialer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
	"github.com/asterisk-tools/outbound-dialer/internal/config"
	"github.com/asterisk-tools/outbound-dialer/internal/correlator"
	"github.com/asterisk-tools/outbound-dialer/internal/recording"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(maxCC int) (*Orchestrator, *ari.MockAdapter) {
	cfg := config.Config{
		MaxCC:       maxCC,
		ARITrunk:    "trunk0",
		StasisApp:   "outbound_dialer",
		CallTimeout: 30,
	}
	adapter := ari.NewMockAdapter()
	store := callstate.New()
	logger := discardLogger()
	rec := recording.New(adapter, "/tmp/recordings", "wav", logger, func(fn func()) { fn() })
	corr := correlator.New(store, adapter, cfg, rec, nil, nil, logger)
	o := New(cfg, adapter, corr, logger)

	n := 0
	o.uuidFn = func() string {
		n++
		return []string{"call-1", "call-2", "call-3", "call-4", "call-5"}[n-1]
	}
	return o, adapter
}

func TestMaybeOriginateNextBoundsConcurrency(t *testing.T) {
	o, adapter := newTestOrchestrator(2)
	o.numbersQueue = []string{"1001", "1002", "1003"}

	o.maybeOriginateNext(context.Background())

	if got := adapter.OriginateCount(); got != 2 {
		t.Fatalf("expected 2 originations at MAX_CC=2, got %d", got)
	}
	if len(o.inFlight) != 2 {
		t.Fatalf("expected 2 in-flight calls, got %d", len(o.inFlight))
	}
	if len(o.numbersQueue) != 1 || o.numbersQueue[0] != "1003" {
		t.Fatalf("expected one number still queued, got %v", o.numbersQueue)
	}

	o.markCallCompleted("call-1")
	o.maybeOriginateNext(context.Background())

	if got := adapter.OriginateCount(); got != 3 {
		t.Fatalf("expected the freed slot to start the third call, got %d originations", got)
	}
	if len(o.numbersQueue) != 0 {
		t.Fatalf("expected the queue to be drained, got %v", o.numbersQueue)
	}
}

func TestOriginateFailureReleasesSlot(t *testing.T) {
	o, adapter := newTestOrchestrator(1)
	adapter.OriginateErr = context.DeadlineExceeded
	o.numbersQueue = []string{"1001"}

	o.maybeOriginateNext(context.Background())

	if len(o.inFlight) != 0 {
		t.Fatalf("expected no in-flight calls after an origination failure, got %d", len(o.inFlight))
	}
	if !o.sem.TryAcquire(1) {
		t.Fatal("expected the concurrency slot to have been released back to the semaphore")
	}
}

func TestMarkCallCompletedIsIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(1)
	o.numbersQueue = []string{"1001"}
	o.maybeOriginateNext(context.Background())

	if len(o.inFlight) != 1 {
		t.Fatalf("expected one in-flight call, got %d", len(o.inFlight))
	}

	o.markCallCompleted("call-1")
	if !o.sem.TryAcquire(1) {
		t.Fatal("expected the slot released on first completion")
	}
	o.sem.Release(1)

	// A duplicate completion (e.g. watchdog racing a normal teardown)
	// must not release the slot a second time.
	o.markCallCompleted("call-1")
	if !o.sem.TryAcquire(1) {
		t.Fatal("expected only one free slot after a duplicate markCallCompleted")
	}
}

func TestHasOutstandingWork(t *testing.T) {
	o, _ := newTestOrchestrator(1)
	if o.HasOutstandingWork() {
		t.Fatal("expected no outstanding work on a fresh orchestrator")
	}
	o.numbersQueue = []string{"1001"}
	if !o.HasOutstandingWork() {
		t.Fatal("expected a queued number to count as outstanding work")
	}
}
