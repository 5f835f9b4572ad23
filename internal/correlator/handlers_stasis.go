package correlator

import (
	"context"
	"strings"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
)

// handleStasisStart implements §4.3.1.
func (c *Correlator) handleStasisStart(ctx context.Context, evt ari.Event) {
	if evt.Channel == nil {
		c.logger.Warn("StasisStart without a channel")
		return
	}
	role, callID, ok := parseAppArgs(evt.Args)
	if !ok {
		c.logger.Warn("StasisStart with unparseable app args", "args", evt.Args)
		return
	}
	call, ok := c.store.Get(callID)
	if !ok {
		c.logger.Warn("StasisStart for unknown call id", "call_id", callID)
		return
	}

	channelID := evt.Channel.ID
	c.store.IndexChannel(call.CallID, channelID)
	c.store.IndexLinkedID(call.CallID, evt.Channel.Linkedid)

	switch strings.ToLower(role) {
	case "dialer":
		c.handleDialerStart(ctx, call, evt.Channel)
	case "dialed":
		c.handleDialedStart(ctx, call, evt.Channel)
	default:
		c.logger.Warn("StasisStart with unrecognized role", "role", role, "call_id", call.CallID)
	}
}

func (c *Correlator) handleDialerStart(ctx context.Context, call *callstate.Call, ch *ari.Channel) {
	channelID := ch.ID
	call.AssignRole(channelID, callstate.RoleDialer)
	call.DialerChannelID = channelID
	call.LegATimeline.ChannelID = channelID
	call.LegATimeline.CallerName = ch.CallerName
	call.LegATimeline.PeerName = firstNonEmpty(call.LegATimeline.PeerName, ch.ConnectedNam, ch.ConnectedNum)
	if call.LegATimeline.StartedAt.IsZero() {
		call.LegATimeline.StartedAt = call.CreatedAt
	}

	if call.Bridge == "" {
		bridge, err := c.adapter.CreateBridge(ctx, "bridge-"+call.CallID)
		if err != nil {
			c.logger.Error("creating bridge failed", "call_id", call.CallID, "err", err)
		} else {
			call.Bridge = bridge.ID
			c.store.IndexBridge(call.CallID, bridge.ID)
		}
	}
	if call.Bridge != "" {
		if err := c.adapter.AddChannelToBridge(ctx, call.Bridge, channelID); err != nil {
			c.logger.Warn("adding dialer channel to bridge failed", "call_id", call.CallID, "err", err)
		}
	}

	if ch.State == "Up" {
		c.stampDialerConnected(call, c.clock())
		c.maybeStartRecording(ctx, call)
	}

	if !call.OriginatedPartner {
		c.originatePartner(ctx, call)
	}
}

// originatePartner issues the call's single partner-originate command
// (§4.3.1), guarded by OriginatedPartner so it happens exactly once.
func (c *Correlator) originatePartner(ctx context.Context, call *callstate.Call) {
	call.OriginatedPartner = true
	endpoint := c.cfg.TargetEndpointOrDefault()

	_, err := c.adapter.Originate(ctx, ari.OriginateRequest{
		Endpoint: endpoint,
		App:      c.cfg.StasisApp,
		AppArgs:  []string{"dialed", call.CallID},
		CallerID: call.Number,
		Timeout:  c.cfg.CallTimeout,
	})
	if err != nil {
		c.logger.Error("partner originate failed", "call_id", call.CallID, "endpoint", endpoint, "err", err)
		c.cleanupCall(ctx, call)
		return
	}

	call.LegBTimeline.DialString = endpoint
	// The target is the dial string's extension: "Local/777@default2" -> "777".
	target := endpoint
	if i := strings.Index(target, "/"); i >= 0 {
		target = target[i+1:]
	}
	if i := strings.Index(target, "@"); i >= 0 {
		target = target[:i]
	}
	call.LegBTimeline.TargetNumber = target
	if c.feed != nil {
		c.feed.PartnerDialed(ctx, call.CallID, call.Number, c.clock())
	}
}

func (c *Correlator) handleDialedStart(ctx context.Context, call *callstate.Call, ch *ari.Channel) {
	channelID := ch.ID
	call.AssignRole(channelID, callstate.RoleDialed)
	call.DialedChannelID = channelID
	call.LegBTimeline.ChannelID = channelID
	call.LegBTimeline.CallerName = ch.CallerName
	if call.LegBTimeline.StartedAt.IsZero() {
		call.LegBTimeline.StartedAt = c.clock()
	}

	if err := c.adapter.Answer(ctx, channelID); err != nil {
		c.logger.Warn("answering dialed channel failed", "call_id", call.CallID, "err", err)
	}

	if call.Bridge != "" {
		if err := c.adapter.AddChannelToBridge(ctx, call.Bridge, channelID); err != nil {
			c.logger.Warn("adding dialed channel to bridge failed", "call_id", call.CallID, "err", err)
		}
	}

	c.stampDialedConnected(call, c.clock())
	identity := firstNonEmpty(ch.ConnectedNam, ch.ConnectedNum, ch.Name)
	call.SetAnsweredBy(identity, callstate.AnsweredBySourceDialed)
	c.maybeStartRecording(ctx, call)
}

// handleStasisEndOrDestroyed implements §4.3.2. Both event kinds
// share role resolution and hangup-cause stamping; only
// ChannelDestroyed removes the channel from state and can trigger
// terminal cleanup.
func (c *Correlator) handleStasisEndOrDestroyed(ctx context.Context, evt ari.Event, isStasisEnd bool) {
	if evt.Channel == nil {
		c.logger.Warn("StasisEnd/ChannelDestroyed without a channel")
		return
	}
	channelID := evt.Channel.ID
	call, ok := c.resolveByChannel(channelID, evt.Channel.Linkedid, evt.Bridge)
	if !ok {
		c.logger.Debug("StasisEnd/ChannelDestroyed for unresolvable channel", "channel_id", channelID)
		return
	}

	role := call.RoleOf(channelID)
	if role == callstate.RoleUnknown {
		switch {
		case call.DialerChannelID == "":
			role = callstate.RoleDialer
			call.AssignRole(channelID, role)
			call.DialerChannelID = channelID
		case call.DialedChannelID == "":
			role = callstate.RoleDialed
			call.AssignRole(channelID, role)
			call.DialedChannelID = channelID
		}
	}

	if isStasisEnd && (role == callstate.RoleDialer || role == callstate.RoleDialed) {
		for ch := range call.Channels {
			if ch == channelID {
				continue
			}
			if err := c.adapter.Hangup(ctx, ch); err != nil {
				c.logger.Debug("hangup during StasisEnd teardown failed", "call_id", call.CallID, "channel_id", ch, "err", err)
			}
		}
	}

	causeText := hangupCauseText(evt.Cause, evt.CauseTxt)
	switch role {
	case callstate.RoleDialer:
		if call.DialerHangupAt.IsZero() {
			call.DialerHangupAt = c.clock()
		}
		if call.LegATimeline.LastStatus != "ANSWERED" {
			call.LegATimeline.LastStatus = causeText
			call.DialerHangupCause = causeText
		}
	case callstate.RoleDialed:
		if call.DialedHangupAt.IsZero() {
			call.DialedHangupAt = c.clock()
		}
		if call.LegBTimeline.LastStatus != "ANSWERED" {
			call.LegBTimeline.LastStatus = causeText
			call.DialedHangupCause = causeText
		}
	case callstate.RoleAgent:
		if leg, ok := call.AgentLegs[channelID]; ok {
			if leg.HangupAt.IsZero() {
				leg.HangupAt = c.clock()
			}
			if leg.LastStatus != "ANSWERED" {
				leg.LastStatus = causeText
			}
		}
	}

	if !isStasisEnd {
		c.store.RemoveChannel(call.CallID, channelID)
		delete(call.AgentChannels, channelID)
		if len(call.Channels) == 0 {
			c.cleanupCall(ctx, call)
		}
	}
}
