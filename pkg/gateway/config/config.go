// Package config loads the bridge configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host used to build the
	// media-stream callback URL handed to the telephony platform.
	PublicHost string

	// AI service.
	AIAPIKey             string
	AIModel              string
	AIBaseURL            string
	AIVoice              string
	AIInstructions       string
	AITemperature        float64
	AITranscriptionModel string
	AIGreeting           string

	// Telephony credentials, needed only for outbound call placement.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioCallerID   string

	// Session lifecycle.
	EvictionGrace time.Duration

	// Websocket and server timing.
	WSWriteTimeout      time.Duration
	WSHandshakeTimeout  time.Duration
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

const defaultInstructions = "You are a helpful and bubbly AI assistant on a phone call. Keep your answers short and conversational."

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:       envOr("VOICELINK_ADDR", ":8080"),
		PublicHost: envOr("VOICELINK_PUBLIC_HOST", ""),

		AIAPIKey:             envOr("OPENAI_API_KEY", ""),
		AIModel:              envOr("VOICELINK_AI_MODEL", "gpt-4o-realtime-preview-2024-10-01"),
		AIBaseURL:            envOr("VOICELINK_AI_BASE_URL", ""),
		AIVoice:              envOr("VOICELINK_AI_VOICE", "alloy"),
		AIInstructions:       envOr("VOICELINK_AI_INSTRUCTIONS", defaultInstructions),
		AITemperature:        envFloatOr("VOICELINK_AI_TEMPERATURE", 0.8),
		AITranscriptionModel: envOr("VOICELINK_AI_TRANSCRIPTION_MODEL", "whisper-1"),
		AIGreeting:           envOr("VOICELINK_AI_GREETING", ""),

		TwilioAccountSID: envOr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  envOr("TWILIO_AUTH_TOKEN", ""),
		TwilioCallerID:   envOr("TWILIO_CALLER_ID", ""),

		EvictionGrace: envDurationOr("VOICELINK_EVICTION_GRACE", 5*time.Minute),

		WSWriteTimeout:      envDurationOr("VOICELINK_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:  envDurationOr("VOICELINK_WS_HANDSHAKE_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:   envDurationOr("VOICELINK_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICELINK_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if strings.TrimSpace(cfg.AIAPIKey) == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.AIModel) == "" {
		return Config{}, fmt.Errorf("VOICELINK_AI_MODEL must not be empty")
	}
	if cfg.AITemperature < 0 || cfg.AITemperature > 2 {
		return Config{}, fmt.Errorf("VOICELINK_AI_TEMPERATURE must be in [0, 2]")
	}
	if cfg.EvictionGrace <= 0 {
		return Config{}, fmt.Errorf("VOICELINK_EVICTION_GRACE must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICELINK_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICELINK_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICELINK_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICELINK_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	// Outbound call placement is optional; when any telephony knob is set,
	// all three are required.
	twilioSet := strings.TrimSpace(cfg.TwilioAccountSID) != "" ||
		strings.TrimSpace(cfg.TwilioAuthToken) != "" ||
		strings.TrimSpace(cfg.TwilioCallerID) != ""
	if twilioSet && !cfg.OutboundCallsEnabled() {
		return Config{}, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_CALLER_ID must all be set to enable outbound calls")
	}

	return cfg, nil
}

// OutboundCallsEnabled reports whether telephony credentials are configured.
func (c Config) OutboundCallsEnabled() bool {
	return strings.TrimSpace(c.TwilioAccountSID) != "" &&
		strings.TrimSpace(c.TwilioAuthToken) != "" &&
		strings.TrimSpace(c.TwilioCallerID) != ""
}

// StreamURL returns the websocket URL the telephony platform should connect
// its media stream to. requestHost is the fallback when no public host is
// configured.
func (c Config) StreamURL(requestHost string) string {
	host := strings.TrimSpace(c.PublicHost)
	if host == "" {
		host = requestHost
	}
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	return "wss://" + host + "/media-stream"
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
