// Package aiclient dials the hosted realtime voice-AI service and performs
// the one-time session initialization.
package aiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicelink/voicelink/pkg/bridge/aiproto"
	"github.com/voicelink/voicelink/pkg/bridge/link"
)

const DefaultBaseURL = "wss://api.openai.com/v1/realtime"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	Voice              string
	Instructions       string
	Temperature        float64
	TranscriptionModel string

	// Greeting, when set, seeds a user item after initialization so the AI
	// speaks first on connect.
	Greeting string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Dial opens the AI websocket link.
func Dial(ctx context.Context, cfg Config) (*link.Conn, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("ai api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("ai model is required")
	}
	baseURL := cfg.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	handshakeTimeout := cfg.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := dialer.DialContext(ctx, baseURL+"?model="+cfg.Model, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial ai service: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial ai service: %w", err)
	}
	return link.New(ws, cfg.WriteTimeout), nil
}

type sender interface {
	SendJSON(v any) error
}

// Initialize sends the fixed session configuration, and the optional opening
// greeting. Called once shortly after the link opens; the configuration is
// never re-negotiated mid-call.
func Initialize(l sender, cfg Config) error {
	update := aiproto.NewSessionUpdate(aiproto.SessionConfig{
		TurnDetection:     aiproto.TurnDetection{Type: "server_vad"},
		InputAudioFormat:  "g711_ulaw",
		OutputAudioFormat: "g711_ulaw",
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		Modalities:        []string{"text", "audio"},
		Temperature:       cfg.Temperature,
		InputTranscription: &aiproto.Transcription{
			Model: cfg.TranscriptionModel,
		},
	})
	if err := l.SendJSON(update); err != nil {
		return fmt.Errorf("send session update: %w", err)
	}

	if strings.TrimSpace(cfg.Greeting) != "" {
		if err := l.SendJSON(aiproto.NewGreetingItem(cfg.Greeting)); err != nil {
			return fmt.Errorf("send greeting item: %w", err)
		}
		if err := l.SendJSON(aiproto.NewResponseCreate()); err != nil {
			return fmt.Errorf("request greeting response: %w", err)
		}
	}
	return nil
}
