package ari

import (
	"encoding/json"
	"testing"
)

func TestDecodeAllSkipsUnknownKinds(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"type":"StasisStart","channel":{"id":"c1","name":"PJSIP/555-1"},"args":["dialer","call-1"]}`),
		[]byte(`{"type":"ChannelVarset","channel":{"id":"c1"}}`),
		[]byte(`{"type":"ChannelStateChange","channel":{"id":"c1","state":"Up"}}`),
	}

	events, err := DecodeAll(frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 recognized events, got %d", len(events))
	}
	if events[0].Kind != KindStasisStart {
		t.Errorf("expected first event StasisStart, got %s", events[0].Kind)
	}
	if events[0].Channel == nil || events[0].Channel.ID != "c1" {
		t.Errorf("expected channel id c1, got %+v", events[0].Channel)
	}
	if len(events[0].Args) != 2 || events[0].Args[0] != "dialer" || events[0].Args[1] != "call-1" {
		t.Errorf("unexpected args: %v", events[0].Args)
	}
	if events[1].Kind != KindChannelStateChange {
		t.Errorf("expected second event ChannelStateChange, got %s", events[1].Kind)
	}
}

func TestDecodeAllInvalidJSON(t *testing.T) {
	_, err := DecodeAll([][]byte{[]byte(`{not json`)})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeDialEvent(t *testing.T) {
	raw := map[string]any{
		"type":       "Dial",
		"caller":     map[string]any{"id": "c1", "name": "PJSIP/555-1"},
		"peer":       map[string]any{"id": "c2", "name": "Local/777@default2-1;1"},
		"dialstring": "Local/777@default2",
		"dialstatus": "ANSWER",
	}
	b, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	events, err := DecodeAll([][]byte{b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Kind != KindDial {
		t.Fatalf("expected Dial, got %s", e.Kind)
	}
	if e.Caller == nil || e.Caller.ID != "c1" {
		t.Errorf("unexpected caller: %+v", e.Caller)
	}
	if e.Peer == nil || e.Peer.Name != "Local/777@default2-1;1" {
		t.Errorf("unexpected peer: %+v", e.Peer)
	}
	if e.DialStatus != "ANSWER" {
		t.Errorf("expected dialstatus ANSWER, got %s", e.DialStatus)
	}
}
