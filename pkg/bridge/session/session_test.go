package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/voicelink/voicelink/pkg/bridge/aiproto"
	"github.com/voicelink/voicelink/pkg/bridge/telephony"
)

type fakeLink struct {
	sent   []any
	closed bool
}

func (f *fakeLink) SendJSON(v any) error {
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeLink) Close() error {
	f.closed = true
	return nil
}

func (f *fakeLink) IsClosed() bool { return f.closed }

type evictionCall struct {
	callID string
	delay  time.Duration
}

type fakeRegistry struct {
	registered []string
	evictions  []evictionCall
}

func (f *fakeRegistry) Register(callID string, s *Session) {
	f.registered = append(f.registered, callID)
}

func (f *fakeRegistry) ScheduleEviction(callID string, delay time.Duration) {
	f.evictions = append(f.evictions, evictionCall{callID: callID, delay: delay})
}

func newTestSession(t *testing.T) (*Session, *fakeLink, *fakeLink, *fakeRegistry) {
	t.Helper()
	tel := &fakeLink{}
	ai := &fakeLink{}
	reg := &fakeRegistry{}
	markCounter := 0
	s := New(Deps{
		Telephony: tel,
		AI:        ai,
		Registry:  reg,
		NewMarkName: func() string {
			markCounter++
			return fmt.Sprintf("mark_%d", markCounter)
		},
	})
	return s, tel, ai, reg
}

func startFrame(streamSID string) []byte {
	return []byte(`{"event":"start","start":{"streamSid":"` + streamSID + `","callSid":"CA_test"}}`)
}

func mediaFrame(timestamp int64, payload string) []byte {
	return []byte(fmt.Sprintf(`{"event":"media","media":{"timestamp":%d,"payload":"%s"}}`, timestamp, payload))
}

func audioDelta(itemID, delta string) []byte {
	return []byte(`{"type":"response.audio.delta","item_id":"` + itemID + `","delta":"` + delta + `"}`)
}

var speechStarted = []byte(`{"type":"input_audio_buffer.speech_started","audio_start_ms":100}`)

func TestSession_LatestMediaTimestampTracksLastFrame(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	for _, ts := range []int64{0, 20, 40, 40, 160} {
		s.OnTelephonyFrame(mediaFrame(ts, "cGNt"))
	}

	if s.latestMediaTimestamp != 160 {
		t.Fatalf("latestMediaTimestamp=%d, want 160", s.latestMediaTimestamp)
	}
}

func TestSession_StartRegistersAndResetsClock(t *testing.T) {
	s, _, _, reg := newTestSession(t)

	s.OnTelephonyFrame(mediaFrame(500, "cGNt"))
	s.OnTelephonyFrame(startFrame("MZ1"))

	if s.CallID() != "MZ1" {
		t.Fatalf("callID=%q", s.CallID())
	}
	if s.CallSID() != "CA_test" {
		t.Fatalf("callSID=%q", s.CallSID())
	}
	if len(reg.registered) != 1 || reg.registered[0] != "MZ1" {
		t.Fatalf("registered=%v", reg.registered)
	}
	if s.latestMediaTimestamp != 0 {
		t.Fatalf("latestMediaTimestamp=%d, want 0 after start", s.latestMediaTimestamp)
	}
	if s.responseStart != nil {
		t.Fatal("responseStart should be nil after start")
	}
}

func TestSession_MediaForwardedAsAudioAppend(t *testing.T) {
	s, _, ai, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyFrame(mediaFrame(20, "cGNt"))

	if len(ai.sent) != 1 {
		t.Fatalf("ai sent=%d, want 1", len(ai.sent))
	}
	app, ok := ai.sent[0].(aiproto.InputAudioAppend)
	if !ok {
		t.Fatalf("sent type = %T", ai.sent[0])
	}
	if app.Audio != "cGNt" {
		t.Fatalf("audio=%q", app.Audio)
	}
}

func TestSession_MediaNotForwardedAfterAIClose(t *testing.T) {
	s, _, ai, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnAIClose()
	sentBefore := len(ai.sent)
	s.OnTelephonyFrame(mediaFrame(20, "cGNt"))

	if len(ai.sent) != sentBefore {
		t.Fatalf("audio forwarded on closed ai link: %v", ai.sent)
	}
}

func TestSession_AudioDeltaForwardsAndBooksPlayback(t *testing.T) {
	s, tel, _, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyFrame(mediaFrame(1000, "cGNt"))
	s.OnAIEvent(audioDelta("item_1", "QUJD"))

	// Outbound: media frame then mark request.
	if len(tel.sent) != 2 {
		t.Fatalf("telephony sent=%d, want 2", len(tel.sent))
	}
	media, ok := tel.sent[0].(telephony.OutboundMedia)
	if !ok {
		t.Fatalf("first sent type = %T", tel.sent[0])
	}
	if media.StreamSID != "MZ1" || media.Media.Payload != "QUJD" {
		t.Fatalf("media=%+v", media)
	}
	mark, ok := tel.sent[1].(telephony.OutboundMark)
	if !ok {
		t.Fatalf("second sent type = %T", tel.sent[1])
	}
	if mark.Mark.Name != "mark_1" {
		t.Fatalf("mark=%+v", mark)
	}

	if s.responseStart == nil || *s.responseStart != 1000 {
		t.Fatalf("responseStart=%v, want 1000", s.responseStart)
	}
	if s.lastAssistantItemID != "item_1" {
		t.Fatalf("lastAssistantItemID=%q", s.lastAssistantItemID)
	}
	if s.marks.len() != 1 {
		t.Fatalf("marks=%d, want 1", s.marks.len())
	}
}

func TestSession_ResponseStartSetOnlyOnce(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyFrame(mediaFrame(1000, "cGNt"))
	s.OnAIEvent(audioDelta("item_1", "QUJD"))
	s.OnTelephonyFrame(mediaFrame(1400, "cGNt"))
	s.OnAIEvent(audioDelta("item_1", "REVG"))

	if *s.responseStart != 1000 {
		t.Fatalf("responseStart=%d, want 1000", *s.responseStart)
	}
	if s.marks.len() != 2 {
		t.Fatalf("marks=%d, want 2", s.marks.len())
	}
}

func TestSession_MarkAckPopsOneToken(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnAIEvent(audioDelta("item_1", "QUJD"))
	s.OnAIEvent(audioDelta("item_1", "REVG"))
	if s.marks.len() != 2 {
		t.Fatalf("marks=%d, want 2", s.marks.len())
	}

	s.OnTelephonyFrame([]byte(`{"event":"mark","mark":{"name":"mark_1"}}`))
	if s.marks.len() != 1 {
		t.Fatalf("marks=%d, want 1 after ack", s.marks.len())
	}

	// Ack on an empty queue is harmless.
	s.OnTelephonyFrame([]byte(`{"event":"mark","mark":{"name":"x"}}`))
	s.OnTelephonyFrame([]byte(`{"event":"mark","mark":{"name":"y"}}`))
	if s.marks.len() != 0 {
		t.Fatalf("marks=%d, want 0", s.marks.len())
	}
}

func TestSession_BargeInNoOpWithoutActiveResponse(t *testing.T) {
	s, tel, ai, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyFrame(mediaFrame(500, "cGNt"))
	telSent, aiSent := len(tel.sent), len(ai.sent)

	s.OnAIEvent(speechStarted)

	if len(tel.sent) != telSent || len(ai.sent) != aiSent {
		t.Fatalf("commands emitted for no-op barge-in: tel=%v ai=%v", tel.sent, ai.sent)
	}
}

func TestSession_BargeInTruncatesAndClears(t *testing.T) {
	s, tel, ai, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyFrame(mediaFrame(1000, "cGNt"))
	s.OnAIEvent(audioDelta("I1", "QUJD"))
	s.OnTelephonyFrame(mediaFrame(1800, "cGNt"))

	s.OnAIEvent(speechStarted)

	var truncate *aiproto.ItemTruncate
	for _, v := range ai.sent {
		if tr, ok := v.(aiproto.ItemTruncate); ok {
			truncate = &tr
		}
	}
	if truncate == nil {
		t.Fatal("no truncate command emitted")
	}
	if truncate.ItemID != "I1" {
		t.Fatalf("truncate item=%q, want I1", truncate.ItemID)
	}
	if truncate.AudioEndMS != 800 {
		t.Fatalf("cutoff=%d, want 800", truncate.AudioEndMS)
	}

	var cleared bool
	for _, v := range tel.sent {
		if clear, ok := v.(telephony.OutboundClear); ok {
			cleared = true
			if clear.StreamSID != "MZ1" {
				t.Fatalf("clear=%+v", clear)
			}
		}
	}
	if !cleared {
		t.Fatal("no clear command emitted")
	}

	if s.marks.len() != 0 {
		t.Fatalf("marks=%d, want 0 after interruption", s.marks.len())
	}
	if s.lastAssistantItemID != "" {
		t.Fatalf("lastAssistantItemID=%q, want empty", s.lastAssistantItemID)
	}
	if s.responseStart != nil {
		t.Fatal("responseStart should be nil after interruption")
	}
}

func TestSession_BargeInImmediatelyAfterFirstDelta(t *testing.T) {
	// Response audio arrives while the media clock still reads zero. The
	// response start is recorded at 0, so speech-started triggers a truncate
	// with a zero cutoff plus a clear, and resets the playback state.
	s, tel, ai, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("CA1"))
	s.OnTelephonyFrame(mediaFrame(0, "YQ=="))
	s.OnAIEvent(audioDelta("I1", "QUJD"))

	if s.marks.len() != 1 {
		t.Fatalf("marks=%d, want 1 before barge-in", s.marks.len())
	}

	s.OnAIEvent(speechStarted)

	var truncate *aiproto.ItemTruncate
	for _, v := range ai.sent {
		if tr, ok := v.(aiproto.ItemTruncate); ok {
			truncate = &tr
		}
	}
	if truncate == nil {
		t.Fatal("no truncate command emitted")
	}
	if truncate.ItemID != "I1" || truncate.AudioEndMS != 0 {
		t.Fatalf("truncate=%+v, want I1 at 0ms", truncate)
	}

	var cleared bool
	for _, v := range tel.sent {
		if _, ok := v.(telephony.OutboundClear); ok {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("no clear command emitted")
	}
	if s.marks.len() != 0 || s.responseStart != nil || s.lastAssistantItemID != "" {
		t.Fatal("playback state not reset")
	}
}

func TestSession_SecondBargeInIsNoOp(t *testing.T) {
	s, tel, ai, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyFrame(mediaFrame(1000, "cGNt"))
	s.OnAIEvent(audioDelta("I1", "QUJD"))
	s.OnAIEvent(speechStarted)

	telSent, aiSent := len(tel.sent), len(ai.sent)
	s.OnAIEvent(speechStarted)

	if len(tel.sent) != telSent || len(ai.sent) != aiSent {
		t.Fatal("second barge-in emitted commands")
	}
}

func TestSession_MalformedTelephonyFrameDropped(t *testing.T) {
	s, _, ai, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyFrame([]byte(`{"event":`))
	s.OnTelephonyFrame([]byte(`{"no_event":true}`))
	s.OnTelephonyFrame(mediaFrame(40, "cGNt"))

	if s.latestMediaTimestamp != 40 {
		t.Fatalf("session did not continue past malformed frames: ts=%d", s.latestMediaTimestamp)
	}
	if len(ai.sent) != 1 {
		t.Fatalf("ai sent=%d, want 1", len(ai.sent))
	}
}

func TestSession_MalformedAIEventDroppedSilently(t *testing.T) {
	s, tel, _, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnAIEvent([]byte(`{"type":`))
	s.OnAIEvent(audioDelta("I1", "QUJD"))

	if len(tel.sent) != 2 {
		t.Fatalf("telephony sent=%d, want 2", len(tel.sent))
	}
}

func TestSession_TelephonyCloseClosesAIAndSchedulesEviction(t *testing.T) {
	s, _, ai, reg := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnTelephonyClose()

	if !ai.closed {
		t.Fatal("ai link not closed")
	}
	if len(reg.evictions) != 1 {
		t.Fatalf("evictions=%v", reg.evictions)
	}
	if reg.evictions[0].callID != "MZ1" || reg.evictions[0].delay != DefaultEvictionGrace {
		t.Fatalf("eviction=%+v", reg.evictions[0])
	}

	// A later AI-side close must not schedule twice.
	s.OnAIClose()
	if len(reg.evictions) != 1 {
		t.Fatalf("evictions=%v, want exactly one", reg.evictions)
	}
}

func TestSession_AICloseClosesTelephony(t *testing.T) {
	s, tel, _, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnAIClose()

	if !tel.closed {
		t.Fatal("telephony link not closed")
	}
	if s.Active() {
		t.Fatal("session still reported active")
	}
}

func TestSession_TranscriptReadableAfterClose(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	s.OnTelephonyFrame(startFrame("MZ1"))
	s.OnAIEvent([]byte(`{"type":"conversation.item.created","item":{"id":"a","type":"message","role":"assistant"}}`))
	s.OnAIEvent([]byte(`{"type":"response.audio_transcript.delta","item_id":"a","delta":"Hi there."}`))
	s.OnTelephonyClose()

	items := s.Transcript()
	if len(items) != 1 {
		t.Fatalf("transcript=%d items, want 1", len(items))
	}
	if items[0].Transcript != "Hi there." {
		t.Fatalf("transcript=%q", items[0].Transcript)
	}
}
