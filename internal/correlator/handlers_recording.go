package correlator

import (
	"context"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
)

// handleRecordingFinished implements the consuming side of §4.4: it
// confirms which call a finished recording belongs to and makes sure
// both of its possible names (the name we asked Asterisk to use, and
// whatever id it reports back) are indexed, so a later stop/verify
// cycle can find the call either way.
func (c *Correlator) handleRecordingFinished(ctx context.Context, evt ari.Event) {
	if evt.Recording == nil {
		c.logger.Warn("RecordingFinished without a recording payload")
		return
	}
	name := firstNonEmpty(evt.Recording.Name, evt.Recording.ID)
	if name == "" {
		return
	}

	call, ok := c.store.CallByRecording(name)
	if !ok {
		for _, candidate := range c.store.AllCalls() {
			if candidate.RecordingName == name {
				call, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		c.logger.Debug("RecordingFinished for unknown recording", "recording", name)
		return
	}

	c.logger.Debug("recording finished", "call_id", call.CallID, "recording", name)
	if evt.Recording.ID != "" && evt.Recording.ID != call.RecordingID {
		c.store.IndexRecording(call.CallID, evt.Recording.ID)
		call.RecordingID = evt.Recording.ID
	}
}
