package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/voicelink/voicelink/pkg/bridge/registry"
	"github.com/voicelink/voicelink/pkg/gateway/apierror"
	"github.com/voicelink/voicelink/pkg/gateway/mw"
)

type callSummary struct {
	CallID    string    `json:"call_id"`
	CallSID   string    `json:"call_sid,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Active    bool      `json:"active"`
	Items     int       `json:"items"`
}

type transcriptItem struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	HasAudio   bool   `json:"has_audio"`
}

// CallsHandler lists the calls the registry still holds, including recently
// finished ones awaiting eviction.
type CallsHandler struct {
	Registry *registry.Registry
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Calls []callSummary `json:"calls"`
	}{Calls: make([]callSummary, 0, 8)}

	for _, id := range h.Registry.Active() {
		s, ok := h.Registry.Get(id)
		if !ok {
			continue
		}
		out.Calls = append(out.Calls, callSummary{
			CallID:    s.CallID(),
			CallSID:   s.CallSID(),
			StartedAt: s.StartedAt(),
			Active:    s.Active(),
			Items:     len(s.Transcript()),
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// TranscriptHandler returns one call's conversation transcript.
type TranscriptHandler struct {
	Registry *registry.Registry
}

func (h TranscriptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	callID := r.PathValue("id")

	s, ok := h.Registry.Get(callID)
	if !ok {
		apierror.WriteStatus(w, http.StatusNotFound, &apierror.Error{
			Type:      apierror.ErrNotFound,
			Message:   "unknown call",
			Param:     "id",
			RequestID: reqID,
		})
		return
	}

	items := s.Transcript()
	out := struct {
		CallID string           `json:"call_id"`
		Active bool             `json:"active"`
		Items  []transcriptItem `json:"items"`
	}{CallID: s.CallID(), Active: s.Active(), Items: make([]transcriptItem, 0, len(items))}

	for _, it := range items {
		out.Items = append(out.Items, transcriptItem{
			ID:         it.ID,
			Role:       it.Role,
			Kind:       it.Kind,
			Status:     it.Status,
			Text:       it.Text,
			Transcript: it.Transcript,
			HasAudio:   it.HasAudio,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}
