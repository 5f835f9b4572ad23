package correlator

import (
	"context"

	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
	"github.com/asterisk-tools/outbound-dialer/internal/summary"
)

// cleanupCall runs terminal teardown for call: hang up any surviving
// channels, stop and resolve its recording (possibly asynchronously,
// via retries — see internal/recording), then finish. Guarded by
// CleanupStarted so a watchdog race or a duplicate terminal event
// never re-enters teardown for the same call.
func (c *Correlator) cleanupCall(ctx context.Context, call *callstate.Call) {
	if call.CleanupStarted {
		return
	}
	call.CleanupStarted = true

	if call.CleanupWatchdog != nil {
		call.CleanupWatchdog()
		call.CleanupWatchdog = nil
	}

	for channelID := range call.Channels {
		if err := c.adapter.Hangup(ctx, channelID); err != nil {
			c.logger.Debug("hangup during cleanup failed", "call_id", call.CallID, "channel_id", channelID, "err", err)
		}
	}

	if call.CompletedAt.IsZero() {
		call.CompletedAt = c.clock()
	}

	c.rec.Stop(ctx, call.CallID, call.Bridge, call.RecordingName, func(path string) {
		call.RecordingPath = path
		c.finishCleanup(ctx, call)
	})
}

// finishCleanup computes and emits the summary exactly once, persists
// it, destroys the bridge, purges the call from the store, and
// notifies the dial orchestrator that the concurrency slot is free.
func (c *Correlator) finishCleanup(ctx context.Context, call *callstate.Call) {
	if !call.SummaryLogged {
		result := summary.Compute(call, c.clock())
		c.logger.Info("call completed", "call_id", call.CallID, "summary", result.Line())

		if c.persist != nil {
			if err := c.persist.Upsert(ctx, buildRow(call, result)); err != nil {
				c.logger.Warn("persisting call summary failed", "call_id", call.CallID, "err", err)
			}
		}
		if c.feed != nil {
			c.feed.Completed(ctx, call.CallID, result.Line(), c.clock())
		}
		call.SummaryLogged = true
	}

	if call.Bridge != "" {
		if err := c.adapter.DestroyBridge(ctx, call.Bridge); err != nil {
			c.logger.Debug("bridge destroy failed", "call_id", call.CallID, "bridge_id", call.Bridge, "err", err)
		}
	}

	callID := call.CallID
	c.store.Delete(callID)

	if c.OnCompleted != nil {
		c.OnCompleted(callID)
	}
}

// buildRow maps a call and its computed summary onto the persistence
// schema described in §6.
func buildRow(call *callstate.Call, result summary.Result) summary.Row {
	return summary.Row{
		CallID:        call.CallID,
		RecordingPath: call.RecordingPath,
		LegA: summary.RowLeg{
			Status:        result.LegA.Status,
			Number:        call.Number,
			Channel:       call.LegATimeline.ChannelID,
			PairedChannel: call.LegATimeline.PairedChannelID,
			Peer:          call.LegATimeline.PeerName,
			Caller:        call.LegATimeline.CallerName,
			DialString:    call.LegATimeline.DialString,
			AnsweredBy:    call.LegATimeline.AnsweredBy,
			Start:         call.LegATimeline.StartedAt,
			Answer:        call.DialerConnectedAt,
			End:           call.DialerHangupAt,
		},
		LegB: summary.RowLeg{
			Status:        result.LegB.Status,
			Number:        call.LegBTimeline.TargetNumber,
			Channel:       call.LegBTimeline.ChannelID,
			PairedChannel: call.LegBTimeline.PairedChannelID,
			Peer:          call.LegBTimeline.PeerName,
			Caller:        call.LegBTimeline.CallerName,
			DialString:    call.LegBTimeline.DialString,
			AnsweredBy:    firstNonEmpty(result.AgentIdentity, call.LegBTimeline.AnsweredBy),
			Start:         call.LegBTimeline.StartedAt,
			Answer:        call.DialedConnectedAt,
			End:           call.DialedHangupAt,
		},
	}
}
