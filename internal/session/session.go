package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/fixmate/fixmate/internal/retrieval"
	"github.com/fixmate/fixmate/internal/speech/engine"
	"github.com/fixmate/fixmate/pkg/command"
	"github.com/fixmate/fixmate/pkg/events"
	"github.com/fixmate/fixmate/pkg/procedure"
)

// Config tunes per-session streaming behavior.
type Config struct {
	ChunkSize  int    // bytes of PCM per tts.chunk, default 4096
	SampleRate int    // outbound audio sample rate, default 16000
	Voice      string // provider voice id, empty for provider default
}

// Deps bundles the collaborators a session needs.
type Deps struct {
	Resolver     retrieval.Resolver // remote retrieval service, may be nil
	DemoResolver retrieval.Resolver // local procedure library
	Speaker      *engine.Speaker
	ASR          engine.ASREngine
	Publisher    *events.Publisher
}

// Session owns one connection's conversation: one procedure engine and at
// most one active TTS stream. All Handle* methods are called from the
// connection's read loop; only the stream goroutine runs concurrently and
// it touches nothing but its own stream state and the outbound channel.
type Session struct {
	ID string

	ctx  context.Context
	out  chan []byte
	deps Deps
	cfg  Config

	engine    *procedure.Engine
	started   atomic.Bool
	demoMode  bool
	startedAt time.Time

	mu      sync.Mutex
	stream  *ttsStream
	stopped bool

	audio *audioSegment
	stt   STTMetrics

	lastMetrics Metrics
	lastState   procedure.Snapshot
}

// newSession creates a session bound to ctx. Frames written to the returned
// session's outbound channel stop flowing once ctx is cancelled.
func newSession(ctx context.Context, deps Deps, cfg Config) *Session {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	return &Session{
		ID:   xid.New().String(),
		ctx:  ctx,
		out:  make(chan []byte, 64),
		deps: deps,
		cfg:  cfg,
	}
}

// Outbound returns the channel of encoded server frames.
func (s *Session) Outbound() <-chan []byte { return s.out }

// Started reports whether session.start has succeeded.
func (s *Session) Started() bool { return s.started.Load() }

// StateSnapshot returns the engine state as of the last response. Safe to
// call from outside the session actor.
func (s *Session) StateSnapshot() procedure.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastState
}

func (s *Session) send(msgType string, payload any) {
	data, err := Encode(msgType, payload)
	if err != nil {
		slog.ErrorContext(s.ctx, "encode frame", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}
	select {
	case s.out <- data:
	case <-s.ctx.Done():
	}
}

func (s *Session) sendError(code, message string, retryable bool) {
	s.send(TypeError, &ErrorPayload{Code: code, Message: message, Retryable: retryable})
}

func (s *Session) emit(eventType events.EventType, data interface{}) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Emit(s.ctx, eventType, s.ID, data); err != nil {
		slog.WarnContext(s.ctx, "emit event failed", slog.String("event", string(eventType)), slog.String("error", err.Error()))
	}
}

// HandleStart resolves a procedure for the described issue and builds the
// engine. A second start on the same session is rejected.
func (s *Session) HandleStart(p *SessionStart) {
	if s.engine != nil {
		s.sendError(CodeAlreadyStarted, "session already started", false)
		return
	}

	resolver := s.deps.Resolver
	s.demoMode = p.DemoMode || resolver == nil
	if s.demoMode {
		resolver = s.deps.DemoResolver
	}

	def, err := resolver.Resolve(s.ctx, p.Issue, p.ModelNumber)
	if err != nil {
		slog.WarnContext(s.ctx, "procedure resolution failed",
			slog.String("session_id", s.ID), slog.String("issue", p.Issue), slog.String("error", err.Error()))
		s.sendError(CodeBadRequest, "no procedure found for that issue", false)
		return
	}

	s.engine = procedure.NewEngine(def)
	s.started.Store(true)
	s.startedAt = time.Now()
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	voice := VoiceInfo{Voice: s.cfg.Voice}
	if s.deps.Speaker != nil {
		voice.Provider = s.deps.Speaker.PrimaryName()
		if voice.Voice == "" {
			voice.Voice = s.deps.Speaker.Voice()
		}
	}
	s.send(TypeSessionReady, &SessionReady{
		SessionID:      s.ID,
		DemoMode:       s.demoMode,
		ProcedureTitle: def.Title,
		ManualTitle:    def.Manual.Title,
		Voice:          voice,
	})

	s.emit(events.SessionStarted, &events.SessionStartedData{
		Issue:       p.Issue,
		ModelNumber: p.ModelNumber,
		ProcedureID: def.ID,
		DemoMode:    s.demoMode,
	})

	s.respond(s.engine.Start(), false)
}

// HandleUserText classifies free text and drives the engine. Arriving text
// barges in on any in-flight speech first, so the user never hears audio
// for a stale turn.
func (s *Session) HandleUserText(p *UserText) {
	if s.engine == nil {
		s.sendError(CodeNoSession, "start a session first", false)
		return
	}
	s.interruptStream(ReasonStopped)

	cmd, matched := command.Classify(p.Text)
	source := p.Source
	if source == "" {
		source = "typed"
	}
	s.emit(events.CommandClassified, &events.CommandClassifiedData{
		Raw:     p.Text,
		Command: string(cmd),
		Matched: matched,
		Source:  source,
	})

	s.dispatch(cmd)
}

// HandleVoiceCommand drives the engine with an already-classified command.
func (s *Session) HandleVoiceCommand(p *VoiceCommand) {
	if s.engine == nil {
		s.sendError(CodeNoSession, "start a session first", false)
		return
	}
	s.interruptStream(ReasonStopped)

	cmd := command.Command(p.Command)
	s.emit(events.CommandClassified, &events.CommandClassifiedData{
		Raw:     p.Raw,
		Command: p.Command,
		Matched: true,
		Source:  "voice",
	})

	s.dispatch(cmd)
}

// HandleBargeIn interrupts in-flight speech. A no-op when nothing plays.
func (s *Session) HandleBargeIn(_ *BargeIn) {
	s.interruptStream(ReasonStopped)
}

// HandleStop tears the session down: the active stream ends, the engine is
// discarded and further text/command/audio frames get no_session. The
// socket stays usable; a later session.start opens a fresh conversation.
// Idempotent.
func (s *Session) HandleStop(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.interruptStream(ReasonStopped)

	if s.engine != nil {
		var durationMs int64
		if !s.startedAt.IsZero() {
			durationMs = time.Since(s.startedAt).Milliseconds()
		}
		s.emit(events.SessionEnded, &events.SessionEndedData{
			Reason:     reason,
			DurationMs: durationMs,
		})
	}
	s.engine = nil
	s.audio = nil
}

func (s *Session) dispatch(cmd command.Command) {
	before := s.engine.Snapshot()
	res := s.engine.HandleCommand(cmd)
	skipped := cmd == command.Skip || cmd == command.SkipConfirm
	s.respondWithDiff(before, res, skipped)
}

// respond sends assistant.message + engine.state for a result and, when
// speech is due, opens a TTS stream for the speech text.
func (s *Session) respond(res procedure.Result, skipped bool) {
	s.respondWithDiff(procedure.Snapshot{Status: procedure.StatusIdle}, res, skipped)
}

func (s *Session) respondWithDiff(before procedure.Snapshot, res procedure.Result, skipped bool) {
	s.send(TypeAssistantMessage, &AssistantMessage{Text: res.Text})
	s.send(TypeEngineState, &EngineState{State: res.State})

	s.mu.Lock()
	s.lastState = res.State
	s.mu.Unlock()

	if res.State.CurrentStepIndex > before.CurrentStepIndex && len(res.State.CompletedSteps) > 0 {
		s.emit(events.StepAdvanced, &events.StepAdvancedData{
			StepID:    res.State.CompletedSteps[len(res.State.CompletedSteps)-1],
			StepIndex: before.CurrentStepIndex,
			Skipped:   skipped,
		})
	}
	if res.State.Status == procedure.StatusCompleted && before.Status != procedure.StatusCompleted {
		s.emit(events.ProcedureCompleted, &events.ProcedureCompletedData{
			ProcedureID: s.engine.Definition().ID,
			TotalSteps:  res.State.TotalSteps,
		})
	}

	if res.ShouldSpeak && res.SpeechText != "" && s.deps.Speaker != nil {
		s.startSpeech(res.SpeechText)
	}
}
