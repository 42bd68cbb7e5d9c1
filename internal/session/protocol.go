// Package session implements the websocket protocol that carries a guided
// repair conversation: envelope codec, per-connection session state and
// TTS/STT streaming.
package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fixmate/fixmate/pkg/command"
	"github.com/fixmate/fixmate/pkg/procedure"
)

// Client message types.
const (
	TypeSessionStart = "session.start"
	TypeUserText     = "user.text"
	TypeVoiceCommand = "voice.command"
	TypeBargeIn      = "barge.in"
	TypeAudioStart   = "audio.start"
	TypeAudioChunk   = "audio.chunk"
	TypeAudioEnd     = "audio.end"
	TypeSessionStop  = "session.stop"
)

// Server message types.
const (
	TypeSessionReady      = "session.ready"
	TypeEngineState       = "engine.state"
	TypeAssistantMessage  = "assistant.message"
	TypeTranscriptPartial = "transcript.partial"
	TypeTranscriptFinal   = "transcript.final"
	TypeTTSStart          = "tts.start"
	TypeTTSChunk          = "tts.chunk"
	TypeTTSEnd            = "tts.end"
	TypeTTSStatus         = "tts.status"
	TypeTTSError          = "tts.error"
	TypeMetrics           = "metrics"
	TypeSTTMetrics        = "stt.metrics"
	TypeError             = "error"
)

// Error codes carried on error frames.
const (
	CodeBadRequest     = "bad_request"
	CodeUnsupported    = "unsupported"
	CodeNoSession      = "no_session"
	CodeAlreadyStarted = "already_started"
)

// EncodingLinear16 is the only supported audio encoding: raw PCM16 LE mono.
const EncodingLinear16 = "linear16"

// DefaultSampleRate is used when the client does not declare one.
const DefaultSampleRate = 16000

// MimeType renders the audio mime type for a sample rate.
func MimeType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// DecodeError describes why an inbound frame was rejected. It maps directly
// onto an error frame; it never closes the connection.
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

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: CodeUnsupported, Message: message, Param: param}
}

// Envelope is the wire shape of every JSON frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- client payloads ---

// SessionStart opens a session and names the appliance issue to look up.
type SessionStart struct {
	Issue       string `json:"issue"`
	ModelNumber string `json:"modelNumber,omitempty"`
	DemoMode    bool   `json:"demoMode,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// UserText carries a free-text utterance, typed or transcribed.
type UserText struct {
	Text    string `json:"text"`
	Source  string `json:"source,omitempty"` // "typed" or "voice"
	IsFinal bool   `json:"isFinal,omitempty"`
}

// VoiceCommand carries an already-classified command from the client.
type VoiceCommand struct {
	Command string `json:"command"`
	Raw     string `json:"raw,omitempty"`
}

// BargeIn interrupts in-progress speech output.
type BargeIn struct {
	Reason string `json:"reason,omitempty"`
}

// AudioStart opens an inbound audio segment.
type AudioStart struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Language   string `json:"language,omitempty"`
}

// AudioChunk is the base64 fallback for transports without binary framing.
type AudioChunk struct {
	Seq         *int64 `json:"seq,omitempty"`
	ChunkBase64 string `json:"chunkBase64"`
}

// AudioEnd closes an inbound audio segment.
type AudioEnd struct {
	Reason string `json:"reason,omitempty"`
}

// --- server payloads ---

// VoiceInfo describes the active TTS voice for session.ready.
type VoiceInfo struct {
	Provider string `json:"provider"`
	Voice    string `json:"voice,omitempty"`
}

type SessionReady struct {
	SessionID      string    `json:"sessionId"`
	DemoMode       bool      `json:"demoMode"`
	ProcedureTitle string    `json:"procedureTitle"`
	ManualTitle    string    `json:"manualTitle,omitempty"`
	Voice          VoiceInfo `json:"voice"`
}

type EngineState struct {
	State procedure.Snapshot `json:"state"`
}

type AssistantMessage struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
}

type Transcript struct {
	Text string `json:"text"`
	From string `json:"from"` // "stt"
}

type TTSStart struct {
	StreamID   string `json:"streamId"`
	MimeType   string `json:"mimeType"`
	SampleRate int    `json:"sampleRate"`
}

type TTSChunk struct {
	StreamID    string `json:"streamId"`
	Seq         int64  `json:"seq"`
	ChunkBase64 string `json:"chunkBase64"`
	MimeType    string `json:"mimeType"`
}

// Terminal stream reasons.
const (
	ReasonComplete = "complete"
	ReasonStopped  = "stopped"
	ReasonError    = "error"
)

type TTSEnd struct {
	StreamID string `json:"streamId"`
	Reason   string `json:"reason"`
}

type TTSStatus struct {
	Stage    string `json:"stage"`
	Provider string `json:"provider"`
	Attempt  int    `json:"attempt"`
	Message  string `json:"message,omitempty"`
}

type TTSError struct {
	Code         string `json:"code"`
	Provider     string `json:"provider"`
	Retryable    bool   `json:"retryable"`
	FallbackUsed bool   `json:"fallbackUsed"`
	Message      string `json:"message"`
}

type Metrics struct {
	StreamID             string  `json:"streamId"`
	TimeToFirstAudioMs   int64   `json:"timeToFirstAudioMs"`
	ApproxCharsPerSecond float64 `json:"approxCharsPerSecond,omitempty"`
}

type STTMetrics struct {
	Segments     int   `json:"segments"`
	Bytes        int64 `json:"bytes"`
	LastDecodeMs int64 `json:"lastDecodeMs"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Encode marshals a server frame.
func Encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// DecodeClient parses an inbound text frame into its typed payload. The
// second return is the decoded payload (nil for payload-less types).
func DecodeClient(data []byte) (string, any, *DecodeError) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, badRequest("malformed JSON frame", "")
	}
	if env.Type == "" {
		return "", nil, badRequest("missing message type", "type")
	}

	switch env.Type {
	case TypeSessionStart:
		var p SessionStart
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return env.Type, nil, err
		}
		if strings.TrimSpace(p.Issue) == "" {
			return env.Type, nil, badRequest("issue is required", "issue")
		}
		return env.Type, &p, nil

	case TypeUserText:
		var p UserText
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return env.Type, nil, err
		}
		if strings.TrimSpace(p.Text) == "" {
			return env.Type, nil, badRequest("text is required", "text")
		}
		return env.Type, &p, nil

	case TypeVoiceCommand:
		var p VoiceCommand
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return env.Type, nil, err
		}
		if p.Command == "" {
			return env.Type, nil, badRequest("command is required", "command")
		}
		if !command.Valid(p.Command) {
			return env.Type, nil, unsupported("unknown command", "command")
		}
		return env.Type, &p, nil

	case TypeBargeIn:
		var p BargeIn
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return env.Type, nil, err
		}
		return env.Type, &p, nil

	case TypeAudioStart:
		var p AudioStart
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return env.Type, nil, err
		}
		if p.Encoding != EncodingLinear16 {
			return env.Type, nil, unsupported("only linear16 audio is supported", "encoding")
		}
		if p.SampleRate == 0 {
			p.SampleRate = DefaultSampleRate
		}
		return env.Type, &p, nil

	case TypeAudioChunk:
		var p AudioChunk
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return env.Type, nil, err
		}
		if p.ChunkBase64 == "" {
			return env.Type, nil, badRequest("chunkBase64 is required", "chunkBase64")
		}
		return env.Type, &p, nil

	case TypeAudioEnd:
		var p AudioEnd
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return env.Type, nil, err
		}
		return env.Type, &p, nil

	case TypeSessionStop:
		return env.Type, nil, nil

	default:
		return env.Type, nil, unsupported("unknown message type", "type")
	}
}

func unmarshalPayload(raw json.RawMessage, dest any) *DecodeError {
	if len(raw) == 0 {
		return badRequest("missing payload", "payload")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return badRequest("malformed payload", "payload")
	}
	return nil
}
