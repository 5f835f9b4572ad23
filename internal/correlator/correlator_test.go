package correlator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
	"github.com/asterisk-tools/outbound-dialer/internal/config"
	"github.com/asterisk-tools/outbound-dialer/internal/publisher"
	"github.com/asterisk-tools/outbound-dialer/internal/recording"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testRig struct {
	corr     *Correlator
	adapter  *ari.MockAdapter
	store    *callstate.Store
	rec      *recording.Manager
	feedPub  *publisher.MockPublisher
	recDir   string
}

func newTestRig(t *testing.T) *testRig {
	dir := t.TempDir()
	store := callstate.New()
	adapter := ari.NewMockAdapter()
	logger := discardLogger()
	cfg := config.Config{
		TargetExtension: "777",
		TargetContext:   "default2",
		StasisApp:       "outbound_dialer",
		CallTimeout:     30,
	}
	rec := recording.New(adapter, dir, "wav", logger, func(fn func()) { fn() })
	mockPub := publisher.NewMockPublisher()
	feed := publisher.NewFeed(mockPub, "dialer", logger)

	corr := New(store, adapter, cfg, rec, nil, feed, logger)
	return &testRig{corr: corr, adapter: adapter, store: store, rec: rec, feedPub: mockPub, recDir: dir}
}

// TestHappyPathFullLifecycle drives the correlator through the
// scenario in SPEC_FULL §8's scenario 1: dialer answers, the partner
// local channel is originated, an agent channel answers in the
// bridge, and every channel tears down cleanly with the recording
// already present on disk.
func TestHappyPathFullLifecycle(t *testing.T) {
	rig := newTestRig(t)
	c := rig.corr
	ctx := context.Background()

	createdAt := time.Now()
	call := c.BeginCall("call-1", "5551234", createdAt)

	c.Process(ctx, ari.Event{
		Kind:    ari.KindStasisStart,
		Args:    []string{"dialer", "call-1"},
		Channel: &ari.Channel{ID: "chan-dialer", Name: "PJSIP/5551234-1", State: "Ring", Linkedid: "link-1"},
	})
	if len(rig.adapter.Bridges) != 1 {
		t.Fatalf("expected a bridge to be created on dialer StasisStart, got %d", len(rig.adapter.Bridges))
	}
	if len(rig.adapter.Originated) != 1 {
		t.Fatalf("expected the partner to be originated exactly once, got %d", len(rig.adapter.Originated))
	}
	if !call.OriginatedPartner {
		t.Fatal("expected OriginatedPartner to be set")
	}

	c.Process(ctx, ari.Event{
		Kind:    ari.KindChannelStateChange,
		Channel: &ari.Channel{ID: "chan-dialer", Name: "PJSIP/5551234-1", State: "Up", Linkedid: "link-1"},
	})
	if call.DialerConnectedAt.IsZero() {
		t.Fatal("expected DialerConnectedAt to be stamped")
	}
	if call.RecordingName == "" {
		t.Fatal("expected a recording to have been started once the bridge and dialer leg are both up")
	}

	c.Process(ctx, ari.Event{
		Kind:    ari.KindStasisStart,
		Args:    []string{"dialed", "call-1"},
		Channel: &ari.Channel{ID: "chan-dialed", Name: "Local/777@default2-1;2", State: "Ring", Linkedid: "link-2"},
	})
	if call.DialedConnectedAt.IsZero() {
		t.Fatal("expected the dialed leg to be stamped connected on StasisStart")
	}
	if len(rig.adapter.Answered) != 1 || rig.adapter.Answered[0] != "chan-dialed" {
		t.Fatal("expected the dialed channel to be answered")
	}

	c.Process(ctx, ari.Event{
		Kind:    ari.KindBridgeEnter,
		Bridge:  &ari.Bridge{ID: call.Bridge},
		Channel: &ari.Channel{ID: "chan-agent", Name: "PJSIP/2001-1", ConnectedNam: "Agent-42"},
	})
	if call.RoleOf("chan-agent") != callstate.RoleAgent {
		t.Fatalf("expected chan-agent to be classified as agent, got %v", call.RoleOf("chan-agent"))
	}

	c.Process(ctx, ari.Event{
		Kind:    ari.KindChannelStateChange,
		Channel: &ari.Channel{ID: "chan-agent", Name: "PJSIP/2001-1", State: "Up", ConnectedNam: "Agent-42"},
	})
	if call.AgentAnsweredAt.IsZero() {
		t.Fatal("expected AgentAnsweredAt to be stamped")
	}
	if call.AnsweredBy != "Agent-42" {
		t.Fatalf("expected AnsweredBy to be Agent-42, got %q", call.AnsweredBy)
	}

	msgs := rig.feedPub.Messages()
	foundAgentAnswered := false
	for _, m := range msgs {
		if m.Topic == "dialer/call/call-1/agent-answered" {
			foundAgentAnswered = true
		}
	}
	if !foundAgentAnswered {
		t.Fatal("expected an agent-answered live feed event")
	}

	// Drop a recording file into place before teardown so Stop resolves
	// the canonical path on its first verification attempt.
	if err := os.WriteFile(filepath.Join(rig.recDir, call.RecordingName+".wav"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	c.Process(ctx, ari.Event{Kind: ari.KindStasisEnd, Channel: &ari.Channel{ID: "chan-dialer"}, Cause: 16, CauseTxt: "Normal Clearing"})
	c.Process(ctx, ari.Event{Kind: ari.KindChannelDestroyed, Channel: &ari.Channel{ID: "chan-dialer"}, Cause: 16, CauseTxt: "Normal Clearing"})
	c.Process(ctx, ari.Event{Kind: ari.KindChannelDestroyed, Channel: &ari.Channel{ID: "chan-dialed"}, Cause: 16, CauseTxt: "Normal Clearing"})
	c.Process(ctx, ari.Event{Kind: ari.KindChannelDestroyed, Channel: &ari.Channel{ID: "chan-agent"}, Cause: 16, CauseTxt: "Normal Clearing"})

	if _, ok := rig.store.Get("call-1"); ok {
		t.Fatal("expected the call to be purged from the store after cleanup")
	}

	completed := false
	for _, m := range rig.feedPub.Messages() {
		if m.Topic == "dialer/call/call-1/completed" {
			completed = true
		}
	}
	if !completed {
		t.Fatal("expected a completed live feed event")
	}
}

// TestDialerNoAnswerStatusNormalization covers SPEC_FULL §8 scenario
// 2: the dialer leg hangs up before ever reaching Up, and its status
// normalizes to "NO ANSWER".
func TestDialerNoAnswerStatusNormalization(t *testing.T) {
	rig := newTestRig(t)
	c := rig.corr
	ctx := context.Background()

	call := c.BeginCall("call-2", "5552222", time.Now())
	c.Process(ctx, ari.Event{
		Kind:    ari.KindStasisStart,
		Args:    []string{"dialer", "call-2"},
		Channel: &ari.Channel{ID: "chan-dialer-2", Name: "PJSIP/5552222-1", State: "Ring", Linkedid: "link-x"},
	})

	c.Process(ctx, ari.Event{
		Kind:     ari.KindStasisEnd,
		Channel:  &ari.Channel{ID: "chan-dialer-2"},
		Cause:    19,
		CauseTxt: "",
	})

	if call.LegATimeline.LastStatus != "NO ANSWER" {
		t.Fatalf("expected leg A status NO ANSWER, got %q", call.LegATimeline.LastStatus)
	}
	if call.DialerHangupCause != "NO ANSWER" {
		t.Fatalf("expected DialerHangupCause NO ANSWER, got %q", call.DialerHangupCause)
	}
}

// TestCleanupCallIsGuardedAgainstReentry covers the CleanupStarted
// invariant: a watchdog firing after normal teardown has already
// begun must not restart it.
func TestCleanupCallIsGuardedAgainstReentry(t *testing.T) {
	rig := newTestRig(t)
	c := rig.corr
	ctx := context.Background()

	call := c.BeginCall("call-3", "5553333", time.Now())
	call.Bridge = "bridge-3"

	c.cleanupCall(ctx, call)
	if !call.CleanupStarted {
		t.Fatal("expected CleanupStarted to be set")
	}
	firstCompletedAt := call.CompletedAt

	// A second call (simulating a racing watchdog) must be a no-op.
	c.cleanupCall(ctx, call)
	if call.CompletedAt != firstCompletedAt {
		t.Fatal("expected a second cleanupCall to be a no-op")
	}
}

// TestHandleDialClassifiesKnownDialerChannelAsLegA exercises the Dial
// event path once the dialer channel is already on record: the
// caller candidate is matched by channel id and leg A's status moves
// to ANSWERED.
func TestHandleDialClassifiesKnownDialerChannelAsLegA(t *testing.T) {
	rig := newTestRig(t)
	c := rig.corr
	ctx := context.Background()

	call := c.BeginCall("call-4", "5554444", time.Now())
	c.Process(ctx, ari.Event{
		Kind:    ari.KindStasisStart,
		Args:    []string{"dialer", "call-4"},
		Channel: &ari.Channel{ID: "chan-caller-4", Name: "PJSIP/5554444-1", State: "Ring", Linkedid: "link-4"},
	})

	c.Process(ctx, ari.Event{
		Kind:       ari.KindDial,
		DialString: "PJSIP/5554444@trunk0",
		DialStatus: "ANSWER",
		Caller:     &ari.Channel{ID: "chan-caller-4", Name: "PJSIP/5554444-1"},
	})

	if call.LegATimeline.LastStatus != "ANSWERED" {
		t.Fatalf("expected leg A to be marked ANSWERED, got %q", call.LegATimeline.LastStatus)
	}
}

// TestHandleDialResolvesUnindexedCandidateByDialstring exercises
// resolution step 4: a Dial event for a channel not yet indexed by
// id/bridge/linkedid resolves to the unique in-flight call whose
// number matches the dialstring prefix, and is classified as a
// candidate agent channel since it matches neither leg's recorded
// identity.
func TestHandleDialResolvesUnindexedCandidateByDialstring(t *testing.T) {
	rig := newTestRig(t)
	c := rig.corr
	ctx := context.Background()

	call := c.BeginCall("call-5", "5555555", time.Now())

	c.Process(ctx, ari.Event{
		Kind:       ari.KindDial,
		DialString: "PJSIP/5555555@trunk0",
		DialStatus: "RINGING",
		Caller:     &ari.Channel{ID: "chan-unindexed-5", Name: "PJSIP/2002-1"},
	})

	if _, ok := call.AgentLegs["chan-unindexed-5"]; !ok {
		t.Fatal("expected the dialstring-resolved candidate to be tracked as an agent leg")
	}
}
