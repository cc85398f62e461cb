package messages

import (
	"encoding/json"
	"fmt"
)

// Command types sent by the local UI
const (
	CmdText          = "text"
	CmdAudio         = "audio"
	CmdVideo         = "video"
	CmdRolePlayStart = "roleplay_start"
	CmdRolePlayEnd   = "roleplay_end"
	CmdCalibrate     = "calibrate"
)

// ClientMessage represents a command from the local UI
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TextPayload carries a typed user message
type TextPayload struct {
	Text string `json:"text"`
}

// ToggleAudioPayload starts or stops microphone streaming
type ToggleAudioPayload struct {
	Action string `json:"action"` // "start", "stop"
}

// ToggleVideoPayload starts or stops a video source
type ToggleVideoPayload struct {
	Action string `json:"action"` // "start", "stop"
	Source string `json:"source"` // "camera", "screen"
}

// RolePlayStartPayload starts a role-play from a ready scenario or from a
// free-text request handed to the scenario generator
type RolePlayStartPayload struct {
	Prompt   string          `json:"prompt,omitempty"`
	Scenario json.RawMessage `json:"scenario,omitempty"`
}

// DecodeClientMessage parses a UI command envelope
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := jsonAPI.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("invalid command: missing type")
	}
	return &msg, nil
}

// DecodePayload parses the command payload into v
func (m *ClientMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("invalid %s command: missing payload", m.Type)
	}
	if err := jsonAPI.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", m.Type, err)
	}
	return nil
}
