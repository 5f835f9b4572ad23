// Package correlator implements the event correlator (§4.3): the
// single-goroutine-owned piece that turns an ambiguous stream of ARI
// events referring to multiple channels and bridges into a coherent
// per-call timeline. It is the only mutator of the callstate.Store;
// every method here assumes it runs on the one logical executor
// goroutine described in §5 and takes no locks of its own.
package correlator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
	"github.com/asterisk-tools/outbound-dialer/internal/config"
	"github.com/asterisk-tools/outbound-dialer/internal/publisher"
	"github.com/asterisk-tools/outbound-dialer/internal/recording"
	"github.com/asterisk-tools/outbound-dialer/internal/summary"
)

// Correlator owns the call state store and drives it from ARI events.
type Correlator struct {
	store   *callstate.Store
	adapter ari.Adapter
	cfg     config.Config
	rec     *recording.Manager
	persist *summary.Store
	feed    *publisher.Feed
	logger  *slog.Logger
	clock   func() time.Time

	// OnCompleted is invoked once cleanup has fully finished for a
	// call, so the dial orchestrator can release its concurrency slot
	// and consider starting the next origination. It is optional; nil
	// is a valid no-op for tests that only exercise correlation.
	OnCompleted func(callID string)
}

// New creates a Correlator wired against its collaborators.
func New(store *callstate.Store, adapter ari.Adapter, cfg config.Config, rec *recording.Manager, persist *summary.Store, feed *publisher.Feed, logger *slog.Logger) *Correlator {
	return &Correlator{
		store:   store,
		adapter: adapter,
		cfg:     cfg,
		rec:     rec,
		persist: persist,
		feed:    feed,
		logger:  logger,
		clock:   time.Now,
	}
}

// Process dispatches a single event to its kind-specific handler.
func (c *Correlator) Process(ctx context.Context, evt ari.Event) {
	switch evt.Kind {
	case ari.KindStasisStart:
		c.handleStasisStart(ctx, evt)
	case ari.KindStasisEnd:
		c.handleStasisEndOrDestroyed(ctx, evt, true)
	case ari.KindChannelDestroyed:
		c.handleStasisEndOrDestroyed(ctx, evt, false)
	case ari.KindChannelStateChange:
		c.handleChannelStateChange(ctx, evt)
	case ari.KindDial:
		c.handleDial(ctx, evt)
	case ari.KindBridgeEnter:
		c.handleBridgeEnter(ctx, evt)
	case ari.KindRecordingFinished:
		c.handleRecordingFinished(ctx, evt)
	default:
		c.logger.Warn("unhandled event kind", "kind", evt.Kind)
	}
}

// BeginCall seeds call state for a freshly-originated call. The dial
// orchestrator calls this synchronously, on the same goroutine, before
// issuing the originate command, so that by the time any event for
// callID arrives the call already exists in the store.
func (c *Correlator) BeginCall(callID, number string, createdAt time.Time) *callstate.Call {
	return c.store.GetOrCreate(callID, number, createdAt)
}

// ForceCleanup is invoked by the dial orchestrator's cleanup watchdog
// when it fires. It is safe to call on a call that has already been
// cleaned up: a call no longer in the store is ignored, and
// CleanupStarted stops cleanupCall from running twice.
func (c *Correlator) ForceCleanup(ctx context.Context, callID string) {
	call, ok := c.store.Get(callID)
	if !ok {
		return
	}
	c.logger.Warn("cleanup watchdog fired", "call_id", callID)
	c.cleanupCall(ctx, call)
}

// parseAppArgs splits a StasisStart/originate appArgs payload into
// its role and callId components. ARI always delivers args as an
// array; a single comma-joined element is tolerated too.
func parseAppArgs(args []string) (role, callID string, ok bool) {
	if len(args) >= 2 {
		return args[0], args[1], true
	}
	if len(args) == 1 {
		parts := strings.SplitN(args[0], ",", 2)
		if len(parts) == 2 {
			return parts[0], parts[1], true
		}
	}
	return "", "", false
}
