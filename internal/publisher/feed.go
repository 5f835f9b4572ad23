package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Feed mirrors major call-lifecycle transitions onto
// "<prefix>/call/<callId>/<event>" topics, per §4.7. It never returns
// an error to its caller: publish failures are logged at debug level
// and otherwise swallowed, since the live feed has no bearing on any
// correctness invariant of the dialer itself.
type Feed struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewFeed wraps pub as a lifecycle feed. Pass a NoopPublisher to
// disable the feed without special-casing callers.
func NewFeed(pub Publisher, topicPrefix string, logger *slog.Logger) *Feed {
	return &Feed{pub: pub, prefix: topicPrefix, logger: logger}
}

type lifecyclePayload struct {
	CallID  string `json:"call_id"`
	Number  string `json:"number,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Summary string `json:"summary,omitempty"`
	At      string `json:"at"`
}

func (f *Feed) publish(ctx context.Context, callID, event string, payload lifecyclePayload) {
	topic := f.prefix + "/call/" + callID + "/" + event
	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Debug("live feed payload marshal failed", "topic", topic, "err", err)
		return
	}
	if err := f.pub.Publish(ctx, topic, body); err != nil {
		f.logger.Debug("live feed publish failed", "topic", topic, "err", err)
	}
}

// CallConnected announces the dialer leg first reaching Up.
func (f *Feed) CallConnected(ctx context.Context, callID, number string, at time.Time) {
	f.publish(ctx, callID, "connected", lifecyclePayload{CallID: callID, Number: number, At: at.UTC().Format(time.RFC3339)})
}

// PartnerDialed announces the partner-originate command being issued.
func (f *Feed) PartnerDialed(ctx context.Context, callID, number string, at time.Time) {
	f.publish(ctx, callID, "partner-dialed", lifecyclePayload{CallID: callID, Number: number, At: at.UTC().Format(time.RFC3339)})
}

// AgentAnswered announces an agent leg reaching Up.
func (f *Feed) AgentAnswered(ctx context.Context, callID, identity string, at time.Time) {
	f.publish(ctx, callID, "agent-answered", lifecyclePayload{CallID: callID, Agent: identity, At: at.UTC().Format(time.RFC3339)})
}

// Completed announces terminal cleanup, carrying the final summary line.
func (f *Feed) Completed(ctx context.Context, callID, summaryLine string, at time.Time) {
	f.publish(ctx, callID, "completed", lifecyclePayload{CallID: callID, Summary: summaryLine, At: at.UTC().Format(time.RFC3339)})
}
