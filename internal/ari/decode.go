package ari

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Decoder turns a sequence of raw JSON frames into normalized Events.
// It mirrors the shape of a line-oriented protocol reader: repeated
// calls to Next return one Event at a time until the underlying
// source is exhausted, so the event loop that drives it looks the
// same regardless of framing.
type Decoder struct {
	frames <-chan []byte
	errs   <-chan error
}

// NewDecoder wraps a channel of raw frames (as delivered by a
// transport such as a WebSocket connection) in a Decoder.
func NewDecoder(frames <-chan []byte, errs <-chan error) *Decoder {
	return &Decoder{frames: frames, errs: errs}
}

// Next blocks until the next frame is decoded into an Event, the
// source reports an error, or the source closes. ok is false only
// when the source is exhausted; a frame that doesn't decode as a
// known event kind is logged at debug level and skipped (not surfaced
// as an error) so an unrecognized or future ARI event type never
// stalls the stream.
func (d *Decoder) Next() (Event, error, bool) {
	for {
		select {
		case err, open := <-d.errs:
			if !open {
				return Event{}, nil, false
			}
			return Event{}, err, true
		case frame, open := <-d.frames:
			if !open {
				return Event{}, nil, false
			}
			var raw rawEvent
			if err := json.Unmarshal(frame, &raw); err != nil {
				return Event{}, fmt.Errorf("decoding ARI frame: %w", err), true
			}
			if _, ok := raw.kind(); !ok {
				slog.Debug("ignoring unrecognized ARI event", "type", raw.Type)
				continue
			}
			return raw.normalize(), nil, true
		}
	}
}

// DecodeAll drains a static list of raw frames into Events, skipping
// unrecognized kinds. Used by tests to replay a recorded session
// without a live connection.
func DecodeAll(frames [][]byte) ([]Event, error) {
	var events []Event
	for _, frame := range frames {
		var raw rawEvent
		if err := json.Unmarshal(frame, &raw); err != nil {
			return nil, fmt.Errorf("decoding ARI frame: %w", err)
		}
		if _, ok := raw.kind(); !ok {
			continue
		}
		events = append(events, raw.normalize())
	}
	return events, nil
}
