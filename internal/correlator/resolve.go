package correlator

import (
	"strings"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
)

// stripHalfSuffix removes a local channel's ";1"/";2" two-leg suffix,
// if present. Every other local-channel heuristic goes through this
// helper rather than scattering the regex (§9 DESIGN NOTES).
func stripHalfSuffix(name string) string {
	if i := strings.LastIndex(name, ";"); i != -1 {
		suffix := name[i+1:]
		if suffix == "1" || suffix == "2" {
			return name[:i]
		}
	}
	return name
}

// swapHalfSuffix returns the other half of a local channel pair
// (";1" <-> ";2"), or name unchanged if it carries neither suffix.
func swapHalfSuffix(name string) string {
	switch {
	case strings.HasSuffix(name, ";1"):
		return strings.TrimSuffix(name, ";1") + ";2"
	case strings.HasSuffix(name, ";2"):
		return strings.TrimSuffix(name, ";2") + ";1"
	default:
		return name
	}
}

// isHalfOne reports whether name is explicitly the ";1" half of a
// local channel pair — only the ";2" half (or a non-local channel)
// ever reaches a real endpoint.
func isHalfOne(name string) bool {
	return strings.HasSuffix(name, ";1")
}

// isTargetLocalName reports whether name (ignoring its ;1/;2 suffix)
// is the dialed-destination local channel: Local/<TARGET_EXTENSION>@*
// — the context is not constrained, per the Local/<ext>@* form named
// alongside the exact Local/<ext>@<ctx> form.
func isTargetLocalName(name, targetExtension, _ string) bool {
	base := stripHalfSuffix(name)
	if !strings.HasPrefix(base, "Local/") {
		return false
	}
	rest := strings.TrimPrefix(base, "Local/")
	at := strings.Index(rest, "@")
	if at == -1 {
		return false
	}
	return rest[:at] == targetExtension
}

// resolveByChannel implements resolution steps 1-3 for a single
// channel id/name/linked id, shared by every event kind.
func (c *Correlator) resolveByChannel(channelID, linkedID string, bridge *ari.Bridge) (*callstate.Call, bool) {
	if call, ok := c.store.CallByChannel(channelID); ok {
		return call, true
	}
	if bridge != nil {
		if call, ok := c.store.CallByBridge(bridge.ID); ok {
			return call, true
		}
	}
	if call, ok := c.store.CallByLinkedID(linkedID); ok {
		return call, true
	}
	return nil, false
}

// resolveDialCandidate implements resolution steps 4-6, which only
// apply to Dial event candidates (the event's caller/peer channels).
func (c *Correlator) resolveDialCandidate(channelID, channelName, linkedID, dialString string, bridge *ari.Bridge) (*callstate.Call, bool) {
	if call, ok := c.resolveByChannel(channelID, linkedID, bridge); ok {
		return call, true
	}

	// Step 4: dialstring prefix against in-flight numbers.
	if call, ok := c.resolveByDialstring(dialString); ok {
		return call, true
	}

	// Step 5: local-channel destination heuristic.
	if call, ok := c.resolveByLocalChannelHeuristic(channelName); ok {
		return call, true
	}

	// Step 6: name-variant match (;1 <-> ;2) against known peer/paired names.
	if call, ok := c.resolveByNameVariant(channelName); ok {
		return call, true
	}

	return nil, false
}

// resolveByDialstring matches a Dial event's dialstring's leading
// "<number>@" segment against every in-flight call's number. Per the
// open question recorded in §9, two or more matches means "do not
// associate" — deliberately preserved, not an error condition.
func (c *Correlator) resolveByDialstring(dialString string) (*callstate.Call, bool) {
	if dialString == "" {
		return nil, false
	}
	at := strings.Index(dialString, "@")
	if at == -1 {
		return nil, false
	}
	number := dialString[:at]
	number = strings.TrimPrefix(number, "PJSIP/")
	number = strings.TrimPrefix(number, "SIP/")

	var match *callstate.Call
	matches := 0
	for _, call := range c.store.AllCalls() {
		if call.Number == number {
			match = call
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	return nil, false
}

// resolveByLocalChannelHeuristic implements step 5: a channel whose
// name (ignoring its ;1/;2 suffix) is the configured target local
// channel is assigned to the single call that has originated its
// partner but has no dialed leg yet and no channel currently roled
// dialed.
func (c *Correlator) resolveByLocalChannelHeuristic(channelName string) (*callstate.Call, bool) {
	if !isTargetLocalName(channelName, c.cfg.TargetExtension, c.cfg.TargetContext) {
		return nil, false
	}

	var match *callstate.Call
	matches := 0
	for _, call := range c.store.AllCalls() {
		if !call.OriginatedPartner {
			continue
		}
		if call.LegBTimeline.ChannelID != "" || call.DialedChannelID != "" {
			continue
		}
		if hasRole(call, callstate.RoleDialed) {
			continue
		}
		match = call
		matches++
	}
	if matches == 1 {
		return match, true
	}
	return nil, false
}

// resolveByNameVariant implements step 6: swap the ;1/;2 suffix and
// look for a match against any call's recorded peer/paired channel
// names on either leg.
func (c *Correlator) resolveByNameVariant(channelName string) (*callstate.Call, bool) {
	variant := swapHalfSuffix(channelName)
	for _, call := range c.store.AllCalls() {
		if matchesName(call.LegATimeline, channelName, variant) || matchesName(call.LegBTimeline, channelName, variant) {
			return call, true
		}
	}
	return nil, false
}

func matchesName(leg callstate.LegTimeline, name, variant string) bool {
	for _, candidate := range []string{leg.PeerName, leg.PairedChannelName} {
		if candidate == "" {
			continue
		}
		if candidate == name || candidate == variant {
			return true
		}
	}
	return false
}

func hasRole(call *callstate.Call, role callstate.Role) bool {
	for _, r := range call.ChannelRoles {
		if r == role {
			return true
		}
	}
	return false
}
