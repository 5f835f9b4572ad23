package correlator

import (
	"context"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
)

// handleBridgeEnter implements §4.3.5.
func (c *Correlator) handleBridgeEnter(ctx context.Context, evt ari.Event) {
	if evt.Bridge == nil || evt.Channel == nil {
		c.logger.Warn("BridgeEnter missing bridge or channel")
		return
	}
	call, ok := c.resolveByChannel(evt.Channel.ID, evt.Channel.Linkedid, evt.Bridge)
	if !ok {
		c.logger.Debug("BridgeEnter for unresolvable channel", "channel_id", evt.Channel.ID, "bridge_id", evt.Bridge.ID)
		return
	}

	c.store.IndexBridge(call.CallID, evt.Bridge.ID)
	c.store.IndexChannel(call.CallID, evt.Channel.ID)

	channelID := evt.Channel.ID
	if role := call.RoleOf(channelID); role == callstate.RoleDialer || role == callstate.RoleDialed {
		return
	}

	if isTargetLocalName(evt.Channel.Name, c.cfg.TargetExtension, c.cfg.TargetContext) {
		call.AssignRole(channelID, callstate.RoleDialed)
		if call.DialedChannelID == "" {
			call.DialedChannelID = channelID
		}
		return
	}

	leg := c.ensureAgentLeg(call, channelID, evt.Channel)
	call.AssignRole(channelID, callstate.RoleAgent)
	call.SetAnsweredBy(leg.Identity, callstate.AnsweredBySourceAgent)
	if leg.AnsweredAt.IsZero() {
		leg.AnsweredAt = c.clock()
	}
	if call.AgentChannelID == "" {
		call.AgentChannelID = channelID
	}
	if call.AgentAnsweredAt.IsZero() || leg.AnsweredAt.Before(call.AgentAnsweredAt) {
		call.AgentAnsweredAt = leg.AnsweredAt
	}
	call.RecomputeConnectedAt()

	if c.feed != nil {
		c.feed.AgentAnswered(ctx, call.CallID, leg.Identity, c.clock())
	}
}
