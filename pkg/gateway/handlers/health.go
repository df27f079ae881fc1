package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/voicelink/voicelink/pkg/bridge/registry"
	"github.com/voicelink/voicelink/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config   config.Config
	Registry *registry.Registry
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK              bool     `json:"ok"`
		ActiveCalls     int      `json:"active_calls"`
		OutboundEnabled bool     `json:"outbound_enabled"`
		Issues          []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.AIAPIKey) == "" {
		issues = append(issues, "ai api key not configured")
	}
	if strings.TrimSpace(h.Config.AIModel) == "" {
		issues = append(issues, "ai model not configured")
	}
	if h.Config.EvictionGrace <= 0 {
		issues = append(issues, "eviction grace must be > 0")
	}
	if h.Config.WSWriteTimeout <= 0 || h.Config.WSHandshakeTimeout <= 0 {
		issues = append(issues, "websocket timeouts must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "server timeouts must be > 0")
	}

	active := 0
	if h.Registry != nil {
		active = h.Registry.Count()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:              ok,
		ActiveCalls:     active,
		OutboundEnabled: h.Config.OutboundCallsEnabled(),
		Issues:          issues,
	})
}
