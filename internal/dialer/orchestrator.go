// Package dialer implements the dial orchestrator (§4.2): it owns the
// outbound number queue, bounds outstanding originations at MAX_CC,
// and is the single goroutine that also drains the correlator's ARI
// event stream — everything that touches call state in this process
// runs here, in program order, never behind a lock.
package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/config"
	"github.com/asterisk-tools/outbound-dialer/internal/correlator"
	"github.com/google/uuid"
)

// Orchestrator is the process's single event-loop owner.
type Orchestrator struct {
	cfg     config.Config
	adapter ari.Adapter
	corr    *correlator.Correlator
	logger  *slog.Logger

	sem *semaphore.Weighted

	numbersQueue []string
	inFlight     map[string]struct{}
	callNumberMap map[string]string
	depletionLogged bool

	cmds   chan func()
	clock  func() time.Time
	uuidFn func() string

	started atomic.Bool
}

// New creates an Orchestrator. Call Run to start its event loop.
func New(cfg config.Config, adapter ari.Adapter, corr *correlator.Correlator, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:           cfg,
		adapter:       adapter,
		corr:          corr,
		logger:        logger,
		sem:           semaphore.NewWeighted(int64(cfg.MaxCC)),
		inFlight:      make(map[string]struct{}),
		callNumberMap: make(map[string]string),
		cmds:          make(chan func(), 64),
		clock:         time.Now,
		uuidFn:        func() string { return uuid.NewString() },
	}
	corr.OnCompleted = func(callID string) {
		o.Submit(func() { o.markCallCompleted(callID) })
	}
	return o
}

// Submit posts fn to run on the orchestrator's single loop goroutine.
// It is the only safe way for another goroutine (a watchdog timer,
// the HTTP control surface, a recording retry) to touch call state.
func (o *Orchestrator) Submit(fn func()) {
	o.cmds <- fn
}

// LoadNumbers populates the queue from configuration. Call before Run
// (or from the control surface, which calls it directly via Submit
// when restarting a depleted run).
func (o *Orchestrator) LoadNumbers() error {
	numbers, err := loadNumbers(o.cfg, func(line, reason string) {
		o.logger.Warn("skipping invalid destination number", "line", line, "reason", reason)
	})
	if err != nil {
		return err
	}
	o.numbersQueue = numbers
	o.depletionLogged = false
	return nil
}

// HasOutstandingWork reports whether the queue or in-flight set is
// non-empty — used by the control surface's restart decision (§4.6).
func (o *Orchestrator) HasOutstandingWork() bool {
	return len(o.numbersQueue) > 0 || len(o.inFlight) > 0
}

// Run drains the ARI event stream and the internal command channel
// until ctx is cancelled or the adapter's event stream closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	events, errs, err := o.adapter.Start(ctx, o.cfg.StasisApp)
	if err != nil {
		return fmt.Errorf("starting ARI event stream: %w", err)
	}

	o.maybeOriginateNext(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return fmt.Errorf("ARI event stream closed")
			}
			o.corr.Process(ctx, evt)
		case err, ok := <-errs:
			if !ok {
				continue
			}
			o.logger.Error("ARI event stream error", "err", err)
		case fn := <-o.cmds:
			fn()
			o.maybeOriginateNext(ctx)
		}
	}
}

// maybeOriginateNext pops numbers off the queue while a concurrency
// slot is free, per §4.2. Acquiring the slot and popping the number
// happen together so |inFlight| <= MAX_CC always holds.
func (o *Orchestrator) maybeOriginateNext(ctx context.Context) {
	for len(o.numbersQueue) > 0 {
		if !o.sem.TryAcquire(1) {
			return
		}
		number := o.numbersQueue[0]
		o.numbersQueue = o.numbersQueue[1:]
		o.originate(ctx, number)
	}

	if len(o.numbersQueue) == 0 && len(o.inFlight) == 0 && !o.depletionLogged {
		o.logger.Info("number queue depleted, no calls in flight")
		o.depletionLogged = true
	}
}

// originate implements §4.2's origination sequence.
func (o *Orchestrator) originate(ctx context.Context, number string) {
	callID := o.uuidFn()
	o.inFlight[callID] = struct{}{}
	o.callNumberMap[callID] = number

	createdAt := o.clock()
	call := o.corr.BeginCall(callID, number, createdAt)

	delay := time.Duration(o.cfg.WatchdogDelayMs()) * time.Millisecond
	timer := time.AfterFunc(delay, func() {
		o.Submit(func() { o.corr.ForceCleanup(context.Background(), callID) })
	})
	call.CleanupWatchdog = func() { timer.Stop() }

	endpoint := fmt.Sprintf("PJSIP/%s@%s", number, o.cfg.ARITrunk)
	_, err := o.adapter.Originate(ctx, ari.OriginateRequest{
		Endpoint: endpoint,
		App:      o.cfg.StasisApp,
		AppArgs:  []string{"dialer", callID},
		CallerID: o.cfg.CallerID,
		Timeout:  o.cfg.CallTimeout,
	})
	if err != nil {
		o.logger.Error("originate failed", "call_id", callID, "number", number, "err", err)
		timer.Stop()
		delete(o.inFlight, callID)
		delete(o.callNumberMap, callID)
		o.sem.Release(1)
		return
	}
}

// markCallCompleted releases callID's concurrency slot and considers
// starting the next origination. Invoked via the correlator's
// OnCompleted callback, always through Submit so it runs on the loop.
func (o *Orchestrator) markCallCompleted(callID string) {
	if _, ok := o.inFlight[callID]; !ok {
		return
	}
	delete(o.inFlight, callID)
	delete(o.callNumberMap, callID)
	o.sem.Release(1)
}

// Started reports whether Run has ever been launched for this
// orchestrator.
func (o *Orchestrator) Started() bool {
	return o.started.Load()
}

// Ask runs fn on the orchestrator's single loop goroutine and blocks
// until it has finished, giving another goroutine (here, the HTTP
// control surface) a safe way to read or mutate state without ever
// taking a lock on it directly — the request/response channel pair
// described in §5. Only call this once the orchestrator has started;
// calling it before anything is draining cmds blocks forever.
func (o *Orchestrator) Ask(fn func()) {
	done := make(chan struct{})
	o.Submit(func() {
		fn()
		close(done)
	})
	<-done
}

// HandleControlStart implements the control surface's start/restart
// decision (§4.6 steps 3-5). cfg has already been re-read from the
// environment by the caller; ctx is the process's long-lived root
// context, not the HTTP request's.
func (o *Orchestrator) HandleControlStart(ctx context.Context, cfg config.Config) (status int, message string, err error) {
	if !o.Started() {
		o.cfg = cfg
		if err := o.LoadNumbers(); err != nil {
			return 0, "", err
		}
		o.started.Store(true)
		go func() {
			if runErr := o.Run(ctx); runErr != nil {
				o.logger.Error("dialer run exited", "err", runErr)
			}
		}()
		return 201, "Dialer started.", nil
	}

	var hasWork bool
	o.Ask(func() { hasWork = o.HasOutstandingWork() })
	if hasWork {
		return 200, "Dialer already running.", nil
	}

	var loadErr error
	o.Ask(func() {
		o.cfg = cfg
		loadErr = o.LoadNumbers()
		if loadErr == nil {
			o.maybeOriginateNext(ctx)
		}
	})
	if loadErr != nil {
		return 0, "", loadErr
	}
	return 200, "Dialer run restarted.", nil
}
