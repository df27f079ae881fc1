package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/voicelink/voicelink/pkg/bridge/aiclient"
	"github.com/voicelink/voicelink/pkg/bridge/link"
	"github.com/voicelink/voicelink/pkg/bridge/registry"
	"github.com/voicelink/voicelink/pkg/bridge/session"
	"github.com/voicelink/voicelink/pkg/gateway/config"
	"github.com/voicelink/voicelink/pkg/metrics"
)

// StreamHandler accepts the telephony platform's media-stream websocket,
// opens a matching AI link, and runs the bridge session until either side
// hangs up.
type StreamHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Metrics  *metrics.Metrics

	// DialAI overrides the AI link constructor in tests.
	DialAI func(ctx context.Context, cfg aiclient.Config) (*link.Conn, error)
}

func (h StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.WSHandshakeTimeout,
		// The telephony platform's media stream carries no Origin header.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error response.
		logger.Warn("media-stream upgrade failed", "error", err)
		return
	}
	telephony := link.New(ws, h.Config.WSWriteTimeout)

	dial := h.DialAI
	if dial == nil {
		dial = aiclient.Dial
	}
	aiCfg := aiclient.Config{
		APIKey:             h.Config.AIAPIKey,
		Model:              h.Config.AIModel,
		BaseURL:            h.Config.AIBaseURL,
		Voice:              h.Config.AIVoice,
		Instructions:       h.Config.AIInstructions,
		Temperature:        h.Config.AITemperature,
		TranscriptionModel: h.Config.AITranscriptionModel,
		Greeting:           h.Config.AIGreeting,
		HandshakeTimeout:   h.Config.WSHandshakeTimeout,
		WriteTimeout:       h.Config.WSWriteTimeout,
	}

	// The request context ends when this handler returns, which is before
	// the bridge finishes; the AI link gets its own lifetime.
	ai, err := dial(context.Background(), aiCfg)
	if err != nil {
		logger.Error("dial ai service", "error", err)
		_ = telephony.Close()
		return
	}
	if err := aiclient.Initialize(ai, aiCfg); err != nil {
		logger.Error("initialize ai session", "error", err)
		_ = ai.Close()
		_ = telephony.Close()
		return
	}

	sess := session.New(session.Deps{
		Telephony:     telephony,
		AI:            ai,
		Logger:        logger,
		Registry:      h.Registry,
		Metrics:       h.Metrics,
		EvictionGrace: h.Config.EvictionGrace,
	})

	go func() {
		_ = ai.ReadLoop(sess.OnAIEvent)
		sess.OnAIClose()
	}()

	_ = telephony.ReadLoop(sess.OnTelephonyFrame)
	sess.OnTelephonyClose()
}
