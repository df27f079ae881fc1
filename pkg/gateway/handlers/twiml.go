package handlers

import (
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"github.com/voicelink/voicelink/pkg/gateway/config"
)

// IncomingCallHandler answers the telephony platform's call webhook with a
// voice document that connects the call's media stream to this bridge.
type IncomingCallHandler struct {
	Config config.Config
	Logger *slog.Logger
}

func (h IncomingCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: "Please wait while we connect your call to the A. I. voice assistant."},
		&twiml.VoicePause{Length: "1"},
		&twiml.VoiceSay{Message: "O.K. you can start talking!"},
		&twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: h.Config.StreamURL(r.Host)},
			},
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("render voice document", "error", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
