package correlator

import (
	"context"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
)

// handleChannelStateChange implements §4.3.3.
func (c *Correlator) handleChannelStateChange(ctx context.Context, evt ari.Event) {
	if evt.Channel == nil {
		c.logger.Warn("ChannelStateChange without a channel")
		return
	}
	call, ok := c.resolveByChannel(evt.Channel.ID, evt.Channel.Linkedid, evt.Bridge)
	if !ok {
		c.logger.Debug("ChannelStateChange for unresolvable channel", "channel_id", evt.Channel.ID)
		return
	}

	switch call.RoleOf(evt.Channel.ID) {
	case callstate.RoleDialer:
		if evt.Channel.State == "Up" {
			c.stampDialerConnected(call, c.clock())
			c.maybeStartRecording(ctx, call)
		}
	case callstate.RoleDialed:
		if evt.Channel.State == "Up" {
			c.stampDialedConnected(call, c.clock())
			identity := firstNonEmpty(evt.Channel.ConnectedNam, evt.Channel.ConnectedNum, evt.Channel.Name)
			call.SetAnsweredBy(identity, callstate.AnsweredBySourceDialed)
			c.maybeStartRecording(ctx, call)
		}
	case callstate.RoleAgent:
		c.handleAgentStateChange(ctx, call, evt.Channel)
	}
}

func (c *Correlator) handleAgentStateChange(ctx context.Context, call *callstate.Call, ch *ari.Channel) {
	leg := c.ensureAgentLeg(call, ch.ID, ch)
	switch ch.State {
	case "Up":
		if leg.AnsweredAt.IsZero() {
			leg.AnsweredAt = c.clock()
		}
		if call.AgentChannelID == "" {
			call.AgentChannelID = ch.ID
		}
		if call.AgentAnsweredAt.IsZero() || leg.AnsweredAt.Before(call.AgentAnsweredAt) {
			call.AgentAnsweredAt = leg.AnsweredAt
		}
		call.SetAnsweredBy(leg.Identity, callstate.AnsweredBySourceAgent)
		call.RecomputeConnectedAt()
		if c.feed != nil {
			c.feed.AgentAnswered(ctx, call.CallID, leg.Identity, c.clock())
		}
	case "Down", "Hungup":
		if leg.HangupAt.IsZero() {
			leg.HangupAt = c.clock()
		}
	}
}
