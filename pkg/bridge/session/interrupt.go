package session

import (
	"github.com/voicelink/voicelink/pkg/bridge/aiproto"
	"github.com/voicelink/voicelink/pkg/bridge/telephony"
)

// handleBargeIn implements the interruption flow: when the caller starts
// speaking while a response is actively streaming, tell the AI service how
// much of the response was actually heard and flush unplayed audio from the
// telephony side.
//
// Triggered only when the mark queue is non-empty AND a response start has
// been recorded; otherwise there is nothing to truncate and this is a no-op.
func (s *Session) handleBargeIn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marks.len() == 0 || s.responseStart == nil {
		return
	}

	elapsed := s.latestMediaTimestamp - *s.responseStart
	if elapsed < 0 {
		// Media timestamps are monotonic and the response start is sampled
		// from the same clock, so this should not happen.
		elapsed = 0
	}

	if s.lastAssistantItemID != "" && s.ai != nil && !s.aiClosed {
		if err := s.ai.SendJSON(aiproto.NewItemTruncate(s.lastAssistantItemID, elapsed)); err != nil {
			s.logger.Warn("send truncate failed", "call_id", s.callID, "item_id", s.lastAssistantItemID, "err", err)
		}
	}

	if s.telephony != nil && !s.telephonyClosed {
		if err := s.telephony.SendJSON(telephony.NewClear(s.callID)); err != nil {
			s.logger.Warn("send clear failed", "call_id", s.callID, "err", err)
		}
	}

	s.marks.reset()
	s.lastAssistantItemID = ""
	s.responseStart = nil

	s.metrics.RecordInterruption()
	s.logger.Info("barge-in handled", "call_id", s.callID, "elapsed_ms", elapsed)
}
