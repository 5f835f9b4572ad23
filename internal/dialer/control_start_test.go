package dialer

import (
	"context"
	"testing"
	"time"
)

func TestHandleControlStartFirstRunStartsTheLoop(t *testing.T) {
	o, adapter := newTestOrchestrator(1)
	o.cfg.OutboundNumber = "5551234"
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	status, message, err := o.HandleControlStart(ctx, o.cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != 201 || message != "Dialer started." {
		t.Fatalf("expected 201 Dialer started., got %d %q", status, message)
	}
	if !o.Started() {
		t.Fatal("expected the orchestrator to be marked started")
	}

	// Give the background Run goroutine a moment to pick up the queued
	// number before the context expires and the adapter's mock event
	// stream closes.
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		if adapter.OriginateCount() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if adapter.OriginateCount() == 0 {
		t.Fatal("expected the first run to originate the queued number")
	}
}

func TestHandleControlStartAlreadyRunningWithWork(t *testing.T) {
	o, _ := newTestOrchestrator(1)
	o.started.Store(true)
	o.inFlight["call-1"] = struct{}{}
	go func() {
		for fn := range o.cmds {
			fn()
		}
	}()

	status, message, err := o.HandleControlStart(context.Background(), o.cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != 200 || message != "Dialer already running." {
		t.Fatalf("expected 200 Dialer already running., got %d %q", status, message)
	}
	close(o.cmds)
}

func TestHandleControlStartRestartsDepletedRun(t *testing.T) {
	o, adapter := newTestOrchestrator(1)
	o.started.Store(true)
	o.cmds = make(chan func(), 8)
	go func() {
		for fn := range o.cmds {
			fn()
		}
	}()

	o.cfg.OutboundNumber = "5559999"
	status, message, err := o.HandleControlStart(context.Background(), o.cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != 200 || message != "Dialer run restarted." {
		t.Fatalf("expected 200 Dialer run restarted., got %d %q", status, message)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if adapter.OriginateCount() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if adapter.OriginateCount() == 0 {
		t.Fatal("expected the restarted run to originate the reloaded number")
	}
	close(o.cmds)
}
