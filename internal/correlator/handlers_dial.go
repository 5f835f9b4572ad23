package correlator

import (
	"context"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
)

// handleDial implements §4.3.4.
func (c *Correlator) handleDial(ctx context.Context, evt ari.Event) {
	status := normalizeStatus(evt.DialStatus)

	call, ok := c.resolveDialCall(evt)
	if !ok {
		c.logger.Warn("Dial event resolution failed", "dialstring", evt.DialString)
		return
	}

	for _, ch := range []*ari.Channel{evt.Caller, evt.Peer} {
		if ch == nil {
			continue
		}
		c.applyDialCandidate(call, ch, evt.DialString, status)
	}
	call.RecomputeConnectedAt()
}

func (c *Correlator) resolveDialCall(evt ari.Event) (*callstate.Call, bool) {
	if evt.Caller != nil {
		if call, ok := c.resolveDialCandidate(evt.Caller.ID, evt.Caller.Name, evt.Caller.Linkedid, evt.DialString, evt.Bridge); ok {
			return call, true
		}
	}
	if evt.Peer != nil {
		if call, ok := c.resolveDialCandidate(evt.Peer.ID, evt.Peer.Name, evt.Peer.Linkedid, evt.DialString, evt.Bridge); ok {
			return call, true
		}
	}
	return nil, false
}

// applyDialCandidate classifies a single Dial event channel (caller
// or peer) as leg A, leg B, or a candidate agent channel, and updates
// the matching timeline.
func (c *Correlator) applyDialCandidate(call *callstate.Call, ch *ari.Channel, dialString, status string) {
	c.store.IndexChannel(call.CallID, ch.ID)
	c.store.IndexLinkedID(call.CallID, ch.Linkedid)

	switch {
	case c.isLegAChannel(call, ch):
		c.applyLegADial(call, ch, dialString, status)
	case c.isLegBChannel(call, ch):
		c.applyLegBDial(call, ch, dialString, status)
		if !isHalfOne(ch.Name) {
			call.AssignRole(ch.ID, callstate.RoleDialed)
			if call.DialedChannelID == "" {
				call.DialedChannelID = ch.ID
			}
		}
	default:
		// Only the ;1 half of a local channel has been observed so
		// far; it is never the real endpoint, so withhold agent
		// tagging until a terminal channel appears (§4.3.4).
		if isHalfOne(ch.Name) {
			return
		}
		c.applyAgentDial(call, ch, status)
	}
}

func (c *Correlator) isLegAChannel(call *callstate.Call, ch *ari.Channel) bool {
	if ch.ID == call.DialerChannelID {
		return true
	}
	return matchesName(call.LegATimeline, ch.Name, swapHalfSuffix(ch.Name))
}

func (c *Correlator) isLegBChannel(call *callstate.Call, ch *ari.Channel) bool {
	if ch.ID == call.DialedChannelID {
		return true
	}
	if isTargetLocalName(ch.Name, c.cfg.TargetExtension, c.cfg.TargetContext) {
		return true
	}
	return matchesName(call.LegBTimeline, ch.Name, swapHalfSuffix(ch.Name))
}

func (c *Correlator) applyLegADial(call *callstate.Call, ch *ari.Channel, dialString, status string) {
	call.LegATimeline.DialString = dialString
	call.LegATimeline.PeerName = firstNonEmpty(call.LegATimeline.PeerName, ch.Name)
	call.LegATimeline.PairedChannelName = ch.Name
	call.LegATimeline.LastStatus = combineStatus(call.LegATimeline.LastStatus, status)

	switch status {
	case "ANSWERED":
		if call.LegATimeline.AnsweredAt.IsZero() {
			call.LegATimeline.AnsweredAt = c.clock()
		}
	case "":
		if call.LegATimeline.StartedAt.IsZero() {
			call.LegATimeline.StartedAt = c.clock()
		}
	}
}

func (c *Correlator) applyLegBDial(call *callstate.Call, ch *ari.Channel, dialString, status string) {
	call.LegBTimeline.DialString = dialString
	call.LegBTimeline.PeerName = firstNonEmpty(call.LegBTimeline.PeerName, ch.Name)
	call.LegBTimeline.PairedChannelName = ch.Name
	call.LegBTimeline.LastStatus = combineStatus(call.LegBTimeline.LastStatus, status)

	switch status {
	case "ANSWERED":
		if call.LegBTimeline.AnsweredAt.IsZero() {
			call.LegBTimeline.AnsweredAt = c.clock()
		}
		call.LegBTimeline.AnsweredBy = firstNonEmpty(dialString, ch.Name)
	case "":
		if call.LegBTimeline.StartedAt.IsZero() {
			call.LegBTimeline.StartedAt = c.clock()
		}
	}
}

// applyAgentDial implements the AgentLeg mapping table in §4.3.4:
// ANSWER sets answeredAt; anything other than RINGING (and the empty
// "no status yet" case) sets hangupAt.
func (c *Correlator) applyAgentDial(call *callstate.Call, ch *ari.Channel, status string) {
	leg := c.ensureAgentLeg(call, ch.ID, ch)
	leg.LastStatus = status

	switch status {
	case "ANSWERED":
		if leg.AnsweredAt.IsZero() {
			leg.AnsweredAt = c.clock()
		}
		call.SetAnsweredBy(leg.Identity, callstate.AnsweredBySourceAgent)
		if call.AgentChannelID == "" {
			call.AgentChannelID = ch.ID
		}
		if call.AgentAnsweredAt.IsZero() || leg.AnsweredAt.Before(call.AgentAnsweredAt) {
			call.AgentAnsweredAt = leg.AnsweredAt
		}
	case "RINGING", "":
		// in progress; nothing to stamp yet
	default:
		if leg.HangupAt.IsZero() {
			leg.HangupAt = c.clock()
		}
	}
}
