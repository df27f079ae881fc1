// Package session implements the per-call bridging session: the state machine
// that relays audio between the telephony link and the AI link, handles
// barge-in, and maintains playback and transcript bookkeeping.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicelink/voicelink/pkg/bridge/aiproto"
	"github.com/voicelink/voicelink/pkg/bridge/convo"
	"github.com/voicelink/voicelink/pkg/bridge/telephony"
	"github.com/voicelink/voicelink/pkg/metrics"
)

// DefaultEvictionGrace is how long a finished session stays queryable in the
// registry after its telephony link closes.
const DefaultEvictionGrace = 5 * time.Minute

// Link is one full-duplex message connection owned exclusively by the session.
type Link interface {
	SendJSON(v any) error
	Close() error
	IsClosed() bool
}

// Registry is the session's view of the cross-call registry.
type Registry interface {
	Register(callID string, s *Session)
	ScheduleEviction(callID string, delay time.Duration)
}

// Deps carries the session's collaborators. The session is constructed with
// no identifiers; it learns its call id from the first stream-start frame.
type Deps struct {
	Telephony Link
	AI        Link
	Logger    *slog.Logger
	Registry  Registry
	Metrics   *metrics.Metrics

	// EvictionGrace defaults to DefaultEvictionGrace.
	EvictionGrace time.Duration

	// NewMarkName mints playback marker tokens; defaults to uuid.NewString.
	NewMarkName func() string

	Now func() time.Time
}

// Session bridges one call. Both link handlers may be driven from separate
// read goroutines; a single mutex serializes all state access so no two
// callbacks mutate the session concurrently.
type Session struct {
	telephony Link
	ai        Link
	logger    *slog.Logger
	registry  Registry
	metrics   *metrics.Metrics
	grace     time.Duration
	markName  func() string
	now       func() time.Time

	mu sync.Mutex

	callID  string
	callSID string

	latestMediaTimestamp int64
	responseStart        *int64
	lastAssistantItemID  string
	marks                markQueue
	tracker              *convo.Tracker

	startedAt         time.Time
	telephonyClosed   bool
	aiClosed          bool
	evictionScheduled bool
}

func New(deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.EvictionGrace <= 0 {
		deps.EvictionGrace = DefaultEvictionGrace
	}
	if deps.NewMarkName == nil {
		deps.NewMarkName = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		telephony: deps.Telephony,
		ai:        deps.AI,
		logger:    deps.Logger,
		registry:  deps.Registry,
		metrics:   deps.Metrics,
		grace:     deps.EvictionGrace,
		markName:  deps.NewMarkName,
		now:       deps.Now,
		tracker:   convo.NewTracker(),
		startedAt: deps.Now(),
	}
}

// OnTelephonyFrame handles one raw inbound frame from the telephony link.
// Malformed frames are dropped and logged; the session continues.
func (s *Session) OnTelephonyFrame(data []byte) {
	decoded, err := telephony.Decode(data)
	if err != nil {
		s.logger.Warn("dropping malformed telephony frame", "call_id", s.CallID(), "err", err)
		s.metrics.RecordMalformedFrame("telephony")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame := decoded.(type) {
	case telephony.Start:
		s.callID = frame.StreamSID
		s.callSID = frame.CallSID
		s.latestMediaTimestamp = 0
		s.responseStart = nil
		if s.registry != nil {
			s.registry.Register(s.callID, s)
		}
		s.metrics.RecordCallStart()
		s.logger.Info("media stream started", "call_id", s.callID, "call_sid", s.callSID)
	case telephony.Media:
		s.latestMediaTimestamp = int64(frame.Timestamp)
		if s.ai != nil && !s.aiClosed {
			if err := s.ai.SendJSON(aiproto.NewInputAudioAppend(frame.Payload)); err != nil {
				s.logger.Warn("forward caller audio failed", "call_id", s.callID, "err", err)
			}
		}
		s.metrics.RecordAudio("caller_to_ai", len(frame.Payload))
	case telephony.Mark:
		s.marks.popFront()
	case telephony.Stop:
		s.logger.Info("media stream stopped", "call_id", s.callID)
	case telephony.Connected:
		s.logger.Debug("telephony link connected", "protocol", frame.Protocol)
	case telephony.Unknown:
		s.logger.Debug("ignoring telephony frame", "event", frame.Event, "call_id", s.callID)
	}
}

// OnAIEvent handles one raw inbound event from the AI link. Undecodable
// events are dropped without killing the session; a misbehaving AI protocol
// must never crash the bridge.
func (s *Session) OnAIEvent(data []byte) {
	decoded, err := aiproto.Decode(data)
	if err != nil {
		s.metrics.RecordMalformedFrame("ai")
		return
	}

	res := s.tracker.ProcessEvent(decoded)

	switch ev := decoded.(type) {
	case aiproto.AudioDelta:
		s.forwardResponseAudio(res, ev)
	case aiproto.SpeechStarted:
		s.handleBargeIn()
	case aiproto.ErrorEvent:
		s.logger.Warn("ai service error", "call_id", s.CallID(), "code", ev.Code, "message", ev.Message)
	default:
		// Lifecycle events are already folded into the transcript.
	}
}

// forwardResponseAudio re-frames one AI audio chunk for the telephony link
// and updates the playback bookkeeping that barge-in truncation depends on.
func (s *Session) forwardResponseAudio(res convo.Result, ev aiproto.AudioDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callID == "" || s.telephony == nil || s.telephonyClosed {
		return
	}

	if err := s.telephony.SendJSON(telephony.NewMedia(s.callID, ev.Delta)); err != nil {
		s.logger.Warn("forward response audio failed", "call_id", s.callID, "err", err)
	}
	s.metrics.RecordAudio("ai_to_caller", len(ev.Delta))

	if s.responseStart == nil {
		start := s.latestMediaTimestamp
		s.responseStart = &start
	}
	if res.Item != nil {
		s.lastAssistantItemID = res.Item.ID
	}

	name := s.markName()
	s.marks.push(name)
	if err := s.telephony.SendJSON(telephony.NewMark(s.callID, name)); err != nil {
		s.logger.Warn("send playback mark failed", "call_id", s.callID, "err", err)
	}
}

// OnTelephonyClose handles the telephony link closing.
func (s *Session) OnTelephonyClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.telephonyClosed {
		return
	}
	s.telephonyClosed = true
	if s.ai != nil && !s.ai.IsClosed() {
		_ = s.ai.Close()
	}
	s.finishLocked("telephony_closed")
}

// OnAIClose handles the AI link closing.
func (s *Session) OnAIClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aiClosed {
		return
	}
	s.aiClosed = true
	if s.telephony != nil && !s.telephony.IsClosed() {
		_ = s.telephony.Close()
	}
	s.finishLocked("ai_closed")
}

// finishLocked schedules delayed eviction exactly once. Session state stays
// readable for transcript queries until the registry drops it.
func (s *Session) finishLocked(status string) {
	if s.evictionScheduled {
		return
	}
	s.evictionScheduled = true
	s.metrics.RecordCallEnd(status, s.now().Sub(s.startedAt))
	if s.registry != nil && s.callID != "" {
		s.registry.ScheduleEviction(s.callID, s.grace)
	}
	s.logger.Info("session finished", "call_id", s.callID, "status", status, "eviction_in", s.grace)
}

// CallID returns the telephony-assigned call identifier, empty until the
// stream-start frame arrives.
func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// CallSID returns the platform call resource id carried by the start frame.
func (s *Session) CallSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSID
}

// Transcript returns the ordered conversation transcript.
func (s *Session) Transcript() []convo.Item {
	return s.tracker.Items()
}

// StartedAt returns when the session was constructed.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Active reports whether both links are still open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.telephonyClosed && !s.aiClosed
}
