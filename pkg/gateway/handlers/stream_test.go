package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicelink/voicelink/pkg/bridge/aiclient"
	"github.com/voicelink/voicelink/pkg/bridge/link"
	"github.com/voicelink/voicelink/pkg/bridge/registry"
)

// fakeAIServer upgrades one websocket, records inbound command types, and
// plays a scripted audio delta after the session update arrives.
func fakeAIServer(t *testing.T, gotCommands chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("ai upgrade: %v", err)
			return
		}
		defer ws.Close()

		sentDelta := false
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			select {
			case gotCommands <- msg.Type:
			default:
			}
			if msg.Type == "session.update" && !sentDelta {
				sentDelta = true
				// Give the handler time to process the stream-start frame
				// so the outbound media names the right stream.
				time.Sleep(150 * time.Millisecond)
				_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.audio.delta","item_id":"item_1","delta":"QUJD"}`))
			}
		}
	}))
}

func TestStreamHandler_BridgesAudioToCaller(t *testing.T) {
	gotCommands := make(chan string, 16)
	aiSrv := fakeAIServer(t, gotCommands)
	defer aiSrv.Close()

	reg := registry.New()
	cfg := validConfig()
	h := StreamHandler{
		Config:   cfg,
		Registry: reg,
		DialAI: func(ctx context.Context, _ aiclient.Config) (*link.Conn, error) {
			dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
			ws, _, err := dialer.DialContext(ctx, "ws"+strings.TrimPrefix(aiSrv.URL, "http"), nil)
			if err != nil {
				return nil, err
			}
			return link.New(ws, cfg.WSWriteTimeout), nil
		},
	}

	srv := httptest.NewServer(h)
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	caller, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/media-stream", nil)
	if err != nil {
		t.Fatalf("dial media-stream: %v", err)
	}
	defer caller.Close()

	if err := caller.WriteMessage(websocket.TextMessage, []byte(`{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1"}}`)); err != nil {
		t.Fatalf("send start: %v", err)
	}

	// The handler initializes the AI session before bridging.
	select {
	case typ := <-gotCommands:
		if typ != "session.update" {
			t.Fatalf("first ai command = %q, want session.update", typ)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ai server never received session.update")
	}

	// The scripted delta comes back as a media frame followed by a mark.
	var sawMedia, sawMark bool
	deadline := time.Now().Add(2 * time.Second)
	for !(sawMedia && sawMark) {
		_ = caller.SetReadDeadline(deadline)
		_, data, err := caller.ReadMessage()
		if err != nil {
			t.Fatalf("read outbound frame: %v (media=%v mark=%v)", err, sawMedia, sawMark)
		}
		var frame struct {
			Event     string `json:"event"`
			StreamSID string `json:"streamSid"`
			Media     *struct {
				Payload string `json:"payload"`
			} `json:"media"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal outbound frame %q: %v", data, err)
		}
		switch frame.Event {
		case "media":
			if frame.StreamSID != "MZ1" || frame.Media == nil || frame.Media.Payload != "QUJD" {
				t.Fatalf("media frame = %s", data)
			}
			sawMedia = true
		case "mark":
			sawMark = true
		}
	}

	if _, ok := reg.Get("MZ1"); !ok {
		t.Fatal("session not registered under its stream id")
	}
}

func TestStreamHandler_AIDialFailureClosesCaller(t *testing.T) {
	h := StreamHandler{
		Config:   validConfig(),
		Registry: registry.New(),
		DialAI: func(context.Context, aiclient.Config) (*link.Conn, error) {
			return nil, context.DeadlineExceeded
		},
	}

	srv := httptest.NewServer(h)
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	caller, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/media-stream", nil)
	if err != nil {
		t.Fatalf("dial media-stream: %v", err)
	}
	defer caller.Close()

	_ = caller.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := caller.ReadMessage(); err == nil {
		t.Fatal("expected telephony link to be closed after ai dial failure")
	}
}
