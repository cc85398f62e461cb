package messages

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeAnalysisFailed   = "ANALYSIS_FAILED"
	ErrCodeScenarioFailed   = "SCENARIO_FAILED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeMediaUnavailable = "MEDIA_UNAVAILABLE"
	ErrCodeCalibration      = "CALIBRATION_FAILED"
)

// Message types
const (
	TypeStatus   = "status"
	TypeNotice   = "notice"
	TypeText     = "text"
	TypeTurn     = "turn"
	TypeSpeech   = "speech"
	TypeAnalysis = "analysis"
	TypeRolePlay = "roleplay"
	TypeError    = "error"
)

// ServerMessage represents a message sent to the local UI
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload"`
}

// StatusPayload contains connection and phase updates
type StatusPayload struct {
	Status  string `json:"status"` // "connecting", "open", "closed", "reconnecting"
	Mode    string `json:"mode,omitempty"`
	Message string `json:"message,omitempty"`
}

// NoticePayload is a blocking user-facing notice
type NoticePayload struct {
	Message string `json:"message"`
}

// TextResponsePayload carries a streamed text delta
type TextResponsePayload struct {
	TurnID string `json:"turnId"`
	Text   string `json:"text"`
}

// TurnPayload carries a completed turn
type TurnPayload struct {
	TurnID  string `json:"turnId,omitempty"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// SpeechPayload reports the microphone gate state
type SpeechPayload struct {
	Speaking bool `json:"speaking"`
}

// AnalysisPayload reports analysis progress and results
type AnalysisPayload struct {
	Phase            string   `json:"phase"`
	Strengths        []string `json:"strengths,omitempty"`
	Improvements     []string `json:"improvements,omitempty"`
	DetailedFeedback string   `json:"detailed_feedback,omitempty"`
	Degraded         bool     `json:"degraded,omitempty"`
	Strategy         string   `json:"strategy,omitempty"`
	ReportID         string   `json:"reportId,omitempty"`
	Message          string   `json:"message,omitempty"`
}

// RolePlayPayload reports role-play session progress
type RolePlayPayload struct {
	State   string `json:"state"` // "preparing", "context_sent", "ready", "ended"
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, mode, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Mode:    mode,
			Message: message,
		},
	}
}

// NewNoticeMessage creates a blocking notice
func NewNoticeMessage(sessionID, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeNotice,
		SessionID: sessionID,
		Payload:   NoticePayload{Message: message},
	}
}

// NewTextMessage creates a streamed text delta message
func NewTextMessage(sessionID, turnID, text string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeText,
		SessionID: sessionID,
		Payload: TextResponsePayload{
			TurnID: turnID,
			Text:   text,
		},
	}
}

// NewTurnMessage creates a completed turn message
func NewTurnMessage(sessionID, turnID, speaker, text string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTurn,
		SessionID: sessionID,
		Payload: TurnPayload{
			TurnID:  turnID,
			Speaker: speaker,
			Text:    text,
		},
	}
}

// NewSpeechMessage creates a speech gate message
func NewSpeechMessage(sessionID string, speaking bool) *ServerMessage {
	return &ServerMessage{
		Type:      TypeSpeech,
		SessionID: sessionID,
		Payload:   SpeechPayload{Speaking: speaking},
	}
}

// NewAnalysisMessage creates an analysis message
func NewAnalysisMessage(sessionID string, payload AnalysisPayload) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAnalysis,
		SessionID: sessionID,
		Payload:   payload,
	}
}

// NewRolePlayMessage creates a role-play progress message
func NewRolePlayMessage(sessionID, state, title, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeRolePlay,
		SessionID: sessionID,
		Payload: RolePlayPayload{
			State:   state,
			Title:   title,
			Message: message,
		},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// Encode serializes the message for a UI subscriber
func (m *ServerMessage) Encode() ([]byte, error) {
	return jsonAPI.Marshal(m)
}
