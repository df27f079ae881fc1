// Package aiproto implements the realtime voice-AI wire protocol: inbound
// server events and outbound client commands, JSON over websocket.
package aiproto

import (
	"encoding/json"
	"strings"
)

// Item statuses as reported by the AI service.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusTruncated  = "truncated"
)

// ContentPart is one content block of a conversation item.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Audio      string `json:"audio,omitempty"`
}

// Item is a conversational item as shaped by the AI service.
type Item struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Status  string        `json:"status,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// AudioDelta carries one base64 chunk of synthesized response audio.
type AudioDelta struct {
	EventID      string `json:"event_id"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

// SpeechStarted fires when server-side voice-activity detection hears the
// caller begin talking.
type SpeechStarted struct {
	AudioStartMS int64  `json:"audio_start_ms"`
	ItemID       string `json:"item_id,omitempty"`
}

// ItemCreated announces a new conversation item.
type ItemCreated struct {
	Item Item `json:"item"`
}

// TranscriptDelta appends a fragment to an assistant item's spoken transcript.
type TranscriptDelta struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// TranscriptDone finalizes an assistant item's spoken transcript.
type TranscriptDone struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// InputTranscriptionCompleted carries the transcription of caller audio for a
// user item.
type InputTranscriptionCompleted struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// OutputItemDone marks an assistant item as finished.
type OutputItemDone struct {
	Item Item `json:"item"`
}

// ItemTruncated confirms a truncate command.
type ItemTruncated struct {
	ItemID     string `json:"item_id"`
	AudioEndMS int64  `json:"audio_end_ms"`
}

// SessionCreated acknowledges the realtime session.
type SessionCreated struct {
	SessionID string
}

// ErrorEvent is a protocol-level error reported by the AI service.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Unknown is any event kind the bridge does not act on directly.
type Unknown struct {
	Type string
}

// Decode parses one inbound AI event into its typed variant. The error return
// is reserved for undecodable frames; unrecognized event types decode to
// Unknown.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	typ := strings.TrimSpace(envelope.Type)

	switch typ {
	case "response.audio.delta":
		var msg AudioDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "input_audio_buffer.speech_started":
		var msg SpeechStarted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "conversation.item.created":
		var msg ItemCreated
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "response.audio_transcript.delta":
		var msg TranscriptDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "response.audio_transcript.done":
		var msg TranscriptDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "conversation.item.input_audio_transcription.completed":
		var msg InputTranscriptionCompleted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "response.output_item.done":
		var msg OutputItemDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "conversation.item.truncated":
		var msg ItemTruncated
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "session.created":
		var msg struct {
			Session struct {
				ID string `json:"id"`
			} `json:"session"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return SessionCreated{SessionID: msg.Session.ID}, nil
	case "error":
		var msg struct {
			Error ErrorEvent `json:"error"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg.Error, nil
	default:
		return Unknown{Type: typ}, nil
	}
}

// TurnDetection selects the service-side voice-activity detection mode.
type TurnDetection struct {
	Type string `json:"type"`
}

// Transcription selects the model used to transcribe caller audio.
type Transcription struct {
	Model string `json:"model"`
}

// SessionConfig is the fixed session-initialization payload, sent once per
// session and never re-negotiated mid-call.
type SessionConfig struct {
	TurnDetection      TurnDetection  `json:"turn_detection"`
	InputAudioFormat   string         `json:"input_audio_format"`
	OutputAudioFormat  string         `json:"output_audio_format"`
	Voice              string         `json:"voice"`
	Instructions       string         `json:"instructions"`
	Modalities         []string       `json:"modalities"`
	Temperature        float64        `json:"temperature"`
	InputTranscription *Transcription `json:"input_audio_transcription,omitempty"`
}

// SessionUpdate declares the session configuration.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{Type: "session.update", Session: cfg}
}

// InputAudioAppend feeds one caller audio chunk to the AI input buffer.
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func NewInputAudioAppend(audio string) InputAudioAppend {
	return InputAudioAppend{Type: "input_audio_buffer.append", Audio: audio}
}

// ItemTruncate tells the AI service that only audio_end_ms of the named
// item's audio was actually heard.
type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int64  `json:"audio_end_ms"`
}

func NewItemTruncate(itemID string, audioEndMS int64) ItemTruncate {
	return ItemTruncate{Type: "conversation.item.truncate", ItemID: itemID, ContentIndex: 0, AudioEndMS: audioEndMS}
}

// ItemCreate seeds a conversation item, used for the optional opening
// greeting prompt.
type ItemCreate struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

func NewGreetingItem(prompt string) ItemCreate {
	return ItemCreate{
		Type: "conversation.item.create",
		Item: Item{
			Type: "message",
			Role: "user",
			Content: []ContentPart{
				{Type: "input_text", Text: prompt},
			},
		},
	}
}

// ResponseCreate asks the AI service to produce a response now.
type ResponseCreate struct {
	Type string `json:"type"`
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: "response.create"}
}
