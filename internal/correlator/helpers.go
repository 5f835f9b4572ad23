package correlator

import (
	"context"
	"time"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
)

// firstNonEmpty returns the first non-empty string among vals.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// stampDialerConnected records the first time the dialer leg reaches
// Up, per §4.3.3's "first value wins" rule, and recomputes the call's
// connection timestamps.
func (c *Correlator) stampDialerConnected(call *callstate.Call, at time.Time) {
	if call.DialerConnectedAt.IsZero() {
		call.DialerConnectedAt = callstate.TruncateToSecond(at)
	}
	if call.LegATimeline.AnsweredAt.IsZero() {
		call.LegATimeline.AnsweredAt = call.DialerConnectedAt
	}
	call.DialerUp = true
	call.RecomputeConnectedAt()
}

// stampDialedConnected records the dialed leg reaching Up.
func (c *Correlator) stampDialedConnected(call *callstate.Call, at time.Time) {
	if call.DialedConnectedAt.IsZero() {
		call.DialedConnectedAt = at
	}
	if call.LegBTimeline.AnsweredAt.IsZero() {
		call.LegBTimeline.AnsweredAt = call.DialedConnectedAt
	}
	call.RecomputeConnectedAt()
}

// maybeStartRecording starts the call's single bridge recording on
// the first of dialer Up, dialed Up, or either leg's StasisStart with
// state Up (§4.4) — guarded by RecordingName so it only ever happens
// once per call.
func (c *Correlator) maybeStartRecording(ctx context.Context, call *callstate.Call) {
	if call.RecordingName != "" || call.Bridge == "" {
		return
	}
	rec, err := c.rec.Start(ctx, call.CallID, call.Bridge)
	if err != nil {
		c.logger.Warn("starting recording failed", "call_id", call.CallID, "err", err)
		return
	}
	call.RecordingName = rec.Name
	call.RecordingFormatUsed = rec.Format
	c.store.IndexRecording(call.CallID, rec.Name)
	if rec.ID != "" {
		c.store.IndexRecording(call.CallID, rec.ID)
		call.RecordingID = rec.ID
	}
}

// ensureAgentLeg returns the AgentLeg for channelID, creating it (and
// registering the channel as an agent channel on the call) if this is
// the first time it's been seen.
func (c *Correlator) ensureAgentLeg(call *callstate.Call, channelID string, ch *ari.Channel) *callstate.AgentLeg {
	if leg, ok := call.AgentLegs[channelID]; ok {
		return leg
	}
	identity := channelID
	if ch != nil {
		identity = firstNonEmpty(ch.ConnectedNam, ch.ConnectedNum, ch.Name)
	}
	leg := &callstate.AgentLeg{Identity: identity}
	call.AgentLegs[channelID] = leg
	call.AgentChannels[channelID] = struct{}{}
	return leg
}
