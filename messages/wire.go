package messages

import (
	"fmt"

	"github.com/bytedance/sonic"
)

var jsonAPI = sonic.ConfigStd

// Mime types understood by the agent
const (
	MimeText = "text/plain"
	MimePCM  = "audio/pcm"
	MimeJPEG = "image/jpeg"
)

// FrameMetadata describes an outbound image frame
type FrameMetadata struct {
	Source string `json:"source"` // "camera" or "screen"
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Envelope is one outbound message to the agent
type Envelope struct {
	MimeType string         `json:"mime_type"`
	Data     string         `json:"data"` // Base64 for binary payloads
	Metadata *FrameMetadata `json:"metadata,omitempty"`
}

// NewTextEnvelope wraps a plain text message
func NewTextEnvelope(text string) Envelope {
	return Envelope{MimeType: MimeText, Data: text}
}

// NewAudioEnvelope wraps base64-encoded PCM16LE audio
func NewAudioEnvelope(base64PCM string) Envelope {
	return Envelope{MimeType: MimePCM, Data: base64PCM}
}

// NewImageEnvelope wraps a base64-encoded JPEG frame
func NewImageEnvelope(base64JPEG string, meta FrameMetadata) Envelope {
	return Envelope{MimeType: MimeJPEG, Data: base64JPEG, Metadata: &meta}
}

// Encode serializes the envelope for the socket
func (e Envelope) Encode() ([]byte, error) {
	return jsonAPI.Marshal(e)
}

// InboundKind classifies a message received from the agent
type InboundKind int

const (
	KindUnknown InboundKind = iota
	KindText
	KindAudio
	KindInterrupted
	KindTurnComplete
)

func (k InboundKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAudio:
		return "audio"
	case KindInterrupted:
		return "interrupted"
	case KindTurnComplete:
		return "turn_complete"
	default:
		return "unknown"
	}
}

// Inbound is one message received from the agent. Control messages may
// carry both flags; interruption takes precedence.
type Inbound struct {
	MimeType     string `json:"mime_type,omitempty"`
	Data         string `json:"data,omitempty"`
	Interrupted  bool   `json:"interrupted,omitempty"`
	TurnComplete bool   `json:"turn_complete,omitempty"`
}

// Kind reports how the message should be dispatched
func (m Inbound) Kind() InboundKind {
	switch {
	case m.Interrupted:
		return KindInterrupted
	case m.TurnComplete:
		return KindTurnComplete
	case m.MimeType == MimeText:
		return KindText
	case m.MimeType == MimePCM:
		return KindAudio
	default:
		return KindUnknown
	}
}

// DecodeInbound parses one agent message
func DecodeInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := jsonAPI.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("invalid agent message: %w", err)
	}
	return msg, nil
}
