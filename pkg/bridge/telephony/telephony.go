// Package telephony implements the media-stream wire protocol spoken by the
// telephony platform: JSON control/media frames, one per websocket message.
package telephony

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// Milliseconds is an integer millisecond value that the telephony platform
// emits either as a JSON number or as a quoted decimal string.
type Milliseconds int64

func (m *Milliseconds) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid millisecond value %q", s)
	}
	*m = Milliseconds(v)
	return nil
}

// Connected is the handshake frame sent when the media socket opens.
type Connected struct {
	Protocol string `json:"protocol,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Start announces a new media stream and assigns the call its identifier.
type Start struct {
	StreamSID string `json:"streamSid"`
	CallSID   string `json:"callSid,omitempty"`
	Tracks    []string
}

// Media carries one inbound audio chunk with its embedded timestamp.
type Media struct {
	Timestamp Milliseconds `json:"timestamp"`
	Payload   string       `json:"payload"`
	Track     string       `json:"track,omitempty"`
	Chunk     string       `json:"chunk,omitempty"`
}

// Mark acknowledges one previously-sent outbound audio chunk.
type Mark struct {
	Name string `json:"name,omitempty"`
}

// Stop signals the end of the media stream.
type Stop struct {
	StreamSID string `json:"streamSid,omitempty"`
}

// Unknown is any control frame the bridge does not act on.
type Unknown struct {
	Event string
}

// Decode parses one inbound telephony frame into its typed variant.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	event := strings.TrimSpace(envelope.Event)
	if event == "" {
		return nil, badFrame("missing event", "event")
	}

	switch event {
	case "connected":
		var msg struct {
			Protocol string `json:"protocol"`
			Version  string `json:"version"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid connected frame", "")
		}
		return Connected{Protocol: msg.Protocol, Version: msg.Version}, nil
	case "start":
		var msg struct {
			Start struct {
				StreamSID string   `json:"streamSid"`
				CallSID   string   `json:"callSid"`
				Tracks    []string `json:"tracks"`
			} `json:"start"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid start frame", "")
		}
		if strings.TrimSpace(msg.Start.StreamSID) == "" {
			return nil, badFrame("start.streamSid is required", "start.streamSid")
		}
		return Start{StreamSID: msg.Start.StreamSID, CallSID: msg.Start.CallSID, Tracks: msg.Start.Tracks}, nil
	case "media":
		var msg struct {
			Media Media `json:"media"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid media frame", "")
		}
		if msg.Media.Payload == "" {
			return nil, badFrame("media.payload is required", "media.payload")
		}
		return msg.Media, nil
	case "mark":
		var msg struct {
			Mark Mark `json:"mark"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid mark frame", "")
		}
		return msg.Mark, nil
	case "stop":
		var msg struct {
			StreamSID string `json:"streamSid"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid stop frame", "")
		}
		return Stop{StreamSID: msg.StreamSID}, nil
	default:
		return Unknown{Event: event}, nil
	}
}

type outboundMediaPayload struct {
	Payload string `json:"payload"`
}

// OutboundMedia re-frames one AI audio chunk for the telephony link.
type OutboundMedia struct {
	Event     string               `json:"event"`
	StreamSID string               `json:"streamSid"`
	Media     outboundMediaPayload `json:"media"`
}

type outboundMarkName struct {
	Name string `json:"name"`
}

// OutboundMark asks the platform to acknowledge playback of everything sent
// before it.
type OutboundMark struct {
	Event     string           `json:"event"`
	StreamSID string           `json:"streamSid"`
	Mark      outboundMarkName `json:"mark"`
}

// OutboundClear instructs the platform to discard buffered, unplayed audio.
type OutboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

func NewMedia(streamSID, payload string) OutboundMedia {
	return OutboundMedia{Event: "media", StreamSID: streamSID, Media: outboundMediaPayload{Payload: payload}}
}

func NewMark(streamSID, name string) OutboundMark {
	return OutboundMark{Event: "mark", StreamSID: streamSID, Mark: outboundMarkName{Name: name}}
}

func NewClear(streamSID string) OutboundClear {
	return OutboundClear{Event: "clear", StreamSID: streamSID}
}
