package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/voicelink/voicelink/pkg/gateway/apierror"
	"github.com/voicelink/voicelink/pkg/gateway/config"
	"github.com/voicelink/voicelink/pkg/gateway/mw"
)

// CallCreator places a call through the telephony platform's REST API.
type CallCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// OutboundCallHandler places an outbound call that, when answered, streams
// its media back to this bridge.
type OutboundCallHandler struct {
	Config config.Config
	Logger *slog.Logger
	Calls  CallCreator
}

type outboundRequest struct {
	To string `json:"to"`
}

func (h OutboundCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if h.Calls == nil || !h.Config.OutboundCallsEnabled() {
		apierror.WriteStatus(w, http.StatusNotImplemented, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "outbound calls are not configured",
			RequestID: reqID,
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		apierror.WriteStatus(w, http.StatusBadRequest, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "read request body",
			RequestID: reqID,
		})
		return
	}
	var req outboundRequest
	if err := json.Unmarshal(body, &req); err != nil {
		apierror.WriteStatus(w, http.StatusBadRequest, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "invalid JSON body",
			RequestID: reqID,
		})
		return
	}
	if strings.TrimSpace(req.To) == "" {
		apierror.WriteStatus(w, http.StatusBadRequest, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "to is required",
			Param:     "to",
			RequestID: reqID,
		})
		return
	}

	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: h.Config.StreamURL(r.Host)},
			},
		},
	})
	if err != nil {
		apierror.WriteStatus(w, http.StatusInternalServerError, &apierror.Error{
			Type:      apierror.ErrAPI,
			Message:   "internal error",
			RequestID: reqID,
		})
		return
	}

	params := &api.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(h.Config.TwilioCallerID)
	params.SetTwiml(doc)

	call, err := h.Calls.CreateCall(params)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("create outbound call", "error", err, "to", req.To)
		}
		apierror.WriteStatus(w, http.StatusBadGateway, &apierror.Error{
			Type:      apierror.ErrUpstream,
			Message:   "telephony provider rejected the call",
			RequestID: reqID,
		})
		return
	}

	sid := ""
	if call != nil && call.Sid != nil {
		sid = *call.Sid
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		CallSID string `json:"call_sid"`
		To      string `json:"to"`
	}{CallSID: sid, To: req.To})
}
