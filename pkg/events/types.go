package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	SessionStarted     EventType = "session.started"
	SessionEnded       EventType = "session.ended"
	CommandClassified  EventType = "command.classified"
	StepAdvanced       EventType = "step.advanced"
	ProcedureCompleted EventType = "procedure.completed"
	TTSStarted         EventType = "tts.started"
	TTSCompleted       EventType = "tts.completed"
	TTSFailed          EventType = "tts.failed"
	STTFinal           EventType = "stt.final"
	SystemError        EventType = "error"
	WebhookTest        EventType = "webhook.test"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionStartedData is the payload for session.started events.
type SessionStartedData struct {
	Issue       string `json:"issue"`
	ModelNumber string `json:"model_number,omitempty"`
	ProcedureID string `json:"procedure_id"`
	DemoMode    bool   `json:"demo_mode"`
}

// SessionEndedData is the payload for session.ended events.
type SessionEndedData struct {
	Reason     string `json:"reason"`
	DurationMs int64  `json:"duration_ms"`
}

// CommandClassifiedData is the payload for command.classified events.
type CommandClassifiedData struct {
	Raw     string `json:"raw,omitempty"`
	Command string `json:"command"`
	Matched bool   `json:"matched"`
	Source  string `json:"source"` // "typed" or "voice"
}

// StepAdvancedData is the payload for step.advanced events.
type StepAdvancedData struct {
	StepID    string `json:"step_id"`
	StepIndex int    `json:"step_index"`
	Skipped   bool   `json:"skipped"`
}

// ProcedureCompletedData is the payload for procedure.completed events.
type ProcedureCompletedData struct {
	ProcedureID string `json:"procedure_id"`
	TotalSteps  int    `json:"total_steps"`
}

// TTSStartedData is the payload for tts.started events.
type TTSStartedData struct {
	StreamID string `json:"stream_id"`
	Provider string `json:"provider"`
	Chars    int    `json:"chars"`
}

// TTSCompletedData is the payload for tts.completed events.
type TTSCompletedData struct {
	StreamID         string `json:"stream_id"`
	Reason           string `json:"reason"` // complete, stopped, error
	TimeToFirstAudio int64  `json:"time_to_first_audio_ms"`
	Chunks           int    `json:"chunks"`
}

// TTSFailedData is the payload for tts.failed events.
type TTSFailedData struct {
	StreamID     string `json:"stream_id"`
	Provider     string `json:"provider"`
	Retryable    bool   `json:"retryable"`
	FallbackUsed bool   `json:"fallback_used"`
	Message      string `json:"message"`
}

// STTFinalData is the payload for stt.final events.
type STTFinalData struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
	DurationMs int64   `json:"duration_ms"`
}
