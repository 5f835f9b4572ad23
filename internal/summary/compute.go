// Package summary computes the per-call summary line and persists it
// (§4.5). It has no notion of channels or events: it consumes a
// snapshot of a callstate.Call and turns it into the line format and
// the row upserted into MySQL.
package summary

import (
	"fmt"
	"time"

	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
)

// Leg is the computed status/duration pair for one leg of a call.
type Leg struct {
	Status      string
	WaitSeconds int
	TalkSeconds int
}

// Result is everything needed to emit the summary line and upsert the
// persistence row.
type Result struct {
	CallID         string
	Number         string
	CreatedAt      time.Time
	LegA           Leg
	LegB           Leg
	AgentIdentity  string
	RecordingPath  string
}

// Line renders the single-line summary format from §4.5:
// createdAt_iso;number;legA.status;legA.wait;legA.talk;legB.status;
// agentIdentity|unknown;legB.wait;legB.talk;recordingPath.
func (r Result) Line() string {
	agent := r.AgentIdentity
	if agent == "" {
		agent = "unknown"
	}
	return fmt.Sprintf("%s;%s;%s;%d;%d;%s;%s;%d;%d;%s",
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.Number,
		r.LegA.Status, r.LegA.WaitSeconds, r.LegA.TalkSeconds,
		r.LegB.Status, agent, r.LegB.WaitSeconds, r.LegB.TalkSeconds,
		r.RecordingPath,
	)
}

// Compute derives the summary from a call's final state, per §4.5.
func Compute(c *callstate.Call, now time.Time) Result {
	completedAt := c.CompletedAt
	if completedAt.IsZero() {
		completedAt = now
	}

	legA := computeLegA(c, completedAt)
	legB := computeLegB(c, completedAt)

	return Result{
		CallID:        c.CallID,
		Number:        c.Number,
		CreatedAt:     c.CreatedAt,
		LegA:          legA,
		LegB:          legB,
		AgentIdentity: agentIdentity(c),
		RecordingPath: c.RecordingPath,
	}
}

func agentIdentity(c *callstate.Call) string {
	if c.AnsweredBySource == callstate.AnsweredBySourceAgent {
		return c.AnsweredBy
	}
	return ""
}

func computeLegA(c *callstate.Call, completedAt time.Time) Leg {
	answered := !c.DialerConnectedAt.IsZero() && !c.DialedConnectedAt.IsZero()

	status := "NO ANSWER"
	if answered {
		status = "ANSWERED"
	} else {
		status = firstNonEmpty(c.DialerHangupCause, c.DialedHangupCause, c.LegATimeline.LastStatus, "NO ANSWER")
	}

	wait := 0
	if !c.DialerConnectedAt.IsZero() {
		wait = secondsBetween(c.CreatedAt, c.DialerConnectedAt)
	} else {
		wait = secondsBetween(c.CreatedAt, completedAt)
	}

	talkStart := c.AgentAnsweredAt
	if talkStart.IsZero() {
		talkStart = c.CallConnectedAt
	}
	talk := 0
	if !c.DialerHangupAt.IsZero() && !talkStart.IsZero() {
		talk = secondsBetween(talkStart, c.DialerHangupAt)
	}

	return Leg{Status: status, WaitSeconds: clampNonNegative(wait), TalkSeconds: clampNonNegative(talk)}
}

func computeLegB(c *callstate.Call, completedAt time.Time) Leg {
	answered := !c.DialedConnectedAt.IsZero() && !c.AgentAnsweredAt.IsZero()

	status := "NO ANSWER"
	if answered {
		status = "ANSWERED"
	} else {
		status = firstNonEmpty(c.DialedHangupCause, c.LegBTimeline.LastStatus, "NO ANSWER")
	}

	agentDialedAt := c.LegBTimeline.StartedAt
	wait := 0
	if !c.AgentAnsweredAt.IsZero() {
		wait = secondsBetween(agentDialedAt, c.AgentAnsweredAt)
	} else if !agentDialedAt.IsZero() {
		wait = secondsBetween(agentDialedAt, completedAt)
	}

	agentHangupAt := c.DialedHangupAt
	if leg, ok := c.AgentLegs[c.AgentChannelID]; ok && !leg.HangupAt.IsZero() {
		agentHangupAt = leg.HangupAt
	}

	talk := 0
	if !c.AgentAnsweredAt.IsZero() && !agentHangupAt.IsZero() {
		talk = secondsBetween(c.AgentAnsweredAt, agentHangupAt)
	}

	return Leg{Status: status, WaitSeconds: clampNonNegative(wait), TalkSeconds: clampNonNegative(talk)}
}

func secondsBetween(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return int(end.Sub(start).Round(time.Second) / time.Second)
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
