// Package ari models the Asterisk REST Interface as a small, opaque
// adapter: a command surface for driving channels and bridges, and a
// typed event stream decoded from the platform's WebSocket feed.
//
// The wire protocol itself (HTTP basic auth, JSON framing) is treated
// as a swappable implementation detail behind the Adapter interface;
// nothing above this package should know it is talking to a WebSocket.
package ari

import "time"

// Kind discriminates the event union. Using a discriminant plus a
// single concrete struct per kind (rather than dispatch on a raw
// string pulled out of a generic map) keeps every event's fields
// typed end to end.
type Kind string

const (
	KindStasisStart        Kind = "StasisStart"
	KindStasisEnd          Kind = "StasisEnd"
	KindChannelDestroyed   Kind = "ChannelDestroyed"
	KindChannelStateChange Kind = "ChannelStateChange"
	KindDial               Kind = "Dial"
	KindBridgeEnter        Kind = "BridgeEnter"
	KindRecordingFinished  Kind = "RecordingFinished"
)

// Channel is the subset of Asterisk's Channel object the correlator
// needs. Name carries the full dialplan channel name, e.g.
// "PJSIP/5551234-00000012" or "Local/777@default2-0000001b;1".
type Channel struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	CallerNumber string `json:"caller_number"`
	CallerName   string `json:"caller_name"`
	ConnectedNum string `json:"connected_number"`
	ConnectedNam string `json:"connected_name"`
	Linkedid     string `json:"linkedid"`
}

// Bridge is the subset of Asterisk's Bridge object the correlator needs.
type Bridge struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"bridge_type"`
	Class string `json:"bridge_class"`
}

// Recording is the subset of the LiveRecording/StoredRecording object
// carried on a RecordingFinished event.
type Recording struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Format string `json:"format"`
}

// Event is the tagged union over every ARI event kind this adapter
// consumes. Only the payload fields that belong to Kind are populated
// (some kinds carry several, e.g. BridgeEnter sets both Bridge and
// Channel); callers should switch on Kind, never on field presence.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	// StasisStart
	Args []string

	// shared across several kinds
	Channel *Channel
	Bridge  *Bridge

	// StasisEnd / ChannelDestroyed
	Cause    int
	CauseTxt string

	// Dial
	Caller      *Channel
	Peer        *Channel
	DialString  string
	DialStatus  string

	// RecordingFinished
	Recording *Recording
}

// rawEvent is the wire shape of an ARI WebSocket frame before it is
// normalized into Event. Asterisk emits a flat JSON object per frame
// with a "type" discriminant and kind-specific top-level fields.
type rawEvent struct {
	Type      string     `json:"type"`
	Timestamp string     `json:"timestamp"`
	Channel   *Channel   `json:"channel"`
	Bridge    *Bridge    `json:"bridge"`
	Args      []string   `json:"args"`
	Cause     int        `json:"cause"`
	CauseTxt  string     `json:"cause_txt"`
	Caller    *Channel   `json:"caller"`
	Peer      *Channel   `json:"peer"`
	Dialstring string    `json:"dialstring"`
	Dialstatus string    `json:"dialstatus"`
	Recording *Recording `json:"recording"`
}

func (r rawEvent) kind() (Kind, bool) {
	switch Kind(r.Type) {
	case KindStasisStart, KindStasisEnd, KindChannelDestroyed, KindChannelStateChange,
		KindDial, KindBridgeEnter, KindRecordingFinished:
		return Kind(r.Type), true
	default:
		return "", false
	}
}

func (r rawEvent) normalize() Event {
	ts, _ := time.Parse(time.RFC3339, r.Timestamp)
	kind, _ := r.kind()
	return Event{
		Kind:       kind,
		Timestamp:  ts,
		Args:       r.Args,
		Channel:    r.Channel,
		Bridge:     r.Bridge,
		Cause:      r.Cause,
		CauseTxt:   r.CauseTxt,
		Caller:     r.Caller,
		Peer:       r.Peer,
		DialString: r.Dialstring,
		DialStatus: r.Dialstatus,
		Recording:  r.Recording,
	}
}
