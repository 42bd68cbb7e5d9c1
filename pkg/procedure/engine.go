// Package procedure implements the step-by-step repair procedure engine:
// a small state machine that walks a user through a procedure one step at
// a time, with pause/resume, repeat, explanation, and a two-step
// confirmation gate for skipping safety-critical steps.
package procedure

import (
	"fmt"

	"github.com/fixmate/fixmate/pkg/command"
)

// Status is the engine lifecycle state.
type Status string

const (
	StatusIdle                 Status = "idle"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusPaused               Status = "paused"
	StatusCompleted            Status = "completed"
)

// Fixed response texts. Optional step fields fall back to these; they are
// named here rather than inlined so the defaulting policy is explicit.
const (
	msgHelp = "You can say: confirm when a step is done, repeat to hear it again, " +
		"skip to move on, explain for more detail, safety check for hazards, " +
		"stop to pause, or resume to continue."
	msgAlreadyStarted    = "We've already started. Say repeat to hear the current step again."
	msgStartWhilePaused  = "The procedure is paused. Say resume to continue."
	msgResumeNotPaused   = "We're not paused. Say repeat to hear the current step again."
	msgConfirmPaused     = "The procedure is paused. Say resume first, then confirm the step."
	msgNoSkipPending     = "There's no skip waiting for confirmation. Say skip if you want to skip the current step."
	msgNotStarted        = "We haven't started yet. Say start when you're ready."
	msgNoCurrentStep     = "There's no active step right now."
	msgAlreadyCompleted  = "This procedure is already complete."
	msgEmptyProcedure    = "This procedure has no steps, so there's nothing to do. You're all set."
	genericExplanation   = "This step keeps the repair on track and prevents damage to the appliance. Follow it as written."
	genericSafetyNote    = "No specific hazards are listed for this step. Work carefully and keep the appliance unplugged unless the step says otherwise."
	safetyFallbackLine   = "Disconnect power and keep hands clear of moving parts."
	completedMessage     = "That was the last step. The procedure is complete. Run a quick safety check, then test the appliance."
	completedSkippedLast = "That was the last step, and you skipped it. The procedure is complete, but run a safety check before testing the appliance."
)

// Safety lines spoken aloud are capped so turn-taking stays tight.
const speechSafetyMaxChars = 140

// State is the engine's mutable state. It is a plain value so transitions
// can be expressed as a pure function over it.
type State struct {
	Status         Status
	StepIndex      int
	SkipPending    bool
	CompletedSteps []string
}

// Snapshot is the client-facing view of engine state. It is always a
// copy; callers cannot reach engine internals through it.
type Snapshot struct {
	Status                Status   `json:"status"`
	CurrentStepIndex      int      `json:"currentStepIndex"`
	TotalSteps            int      `json:"totalSteps"`
	AwaitingConfirmation  bool     `json:"awaitingConfirmation"`
	SkipNeedsConfirmation bool     `json:"skipNeedsConfirmation"`
	CompletedSteps        []string `json:"completedSteps"`
}

// Result is returned by every engine operation.
type Result struct {
	Text        string
	SpeechText  string
	State       Snapshot
	ShouldSpeak bool
}

// Engine owns one procedure's progress for one session. It is driven by a
// single goroutine (the session actor) and is not safe for concurrent use.
type Engine struct {
	def   *Definition
	state State
}

// NewEngine creates an engine in the idle state.
func NewEngine(def *Definition) *Engine {
	return &Engine{
		def:   def,
		state: State{Status: StatusIdle},
	}
}

// Definition returns the procedure being executed.
func (e *Engine) Definition() *Definition { return e.def }

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot { return snapshot(e.def, e.state) }

// Start begins the procedure. Valid only from idle; any other status gets
// an informational response and no state change.
func (e *Engine) Start() Result {
	next, res := start(e.def, e.state)
	e.state = next
	return res
}

// HandleCommand applies one classified command. Invalid commands for the
// current status degrade to informational, state-preserving responses;
// the engine never returns an error to the caller.
func (e *Engine) HandleCommand(cmd command.Command) Result {
	next, res := transition(e.def, e.state, cmd)
	e.state = next
	return res
}

func start(def *Definition, s State) (State, Result) {
	switch s.Status {
	case StatusIdle:
		if len(def.Steps) == 0 {
			s.Status = StatusCompleted
			return s, result(def, s, msgEmptyProcedure, msgEmptyProcedure)
		}
		s.Status = StatusAwaitingConfirmation
		text, speech := renderStep(def, s.StepIndex, "")
		return s, result(def, s, text, speech)
	case StatusPaused:
		return s, result(def, s, msgStartWhilePaused, msgStartWhilePaused)
	case StatusCompleted:
		return s, result(def, s, msgAlreadyCompleted, msgAlreadyCompleted)
	default:
		return s, result(def, s, msgAlreadyStarted, msgAlreadyStarted)
	}
}

// transition is the pure step function: (state, command) -> (state, result).
func transition(def *Definition, s State, cmd command.Command) (State, Result) {
	if s.Status == StatusCompleted {
		return s, result(def, s, msgAlreadyCompleted, msgAlreadyCompleted)
	}

	switch cmd {
	case command.Start:
		return start(def, s)

	case command.Stop:
		s.Status = StatusPaused
		s.SkipPending = false
		text := fmt.Sprintf("Paused at step %d of %d. Say resume when you're ready to continue.",
			s.StepIndex+1, len(def.Steps))
		return s, result(def, s, text, text)

	case command.Resume:
		if s.Status != StatusPaused {
			return s, result(def, s, msgResumeNotPaused, msgResumeNotPaused)
		}
		s.Status = StatusAwaitingConfirmation
		text, speech := renderStep(def, s.StepIndex, "Resuming. ")
		return s, result(def, s, text, speech)

	case command.Repeat:
		if _, ok := currentStep(def, s); !ok {
			return s, result(def, s, msgNoCurrentStep, msgNoCurrentStep)
		}
		text, speech := renderStep(def, s.StepIndex, "")
		return s, result(def, s, text, speech)

	case command.Explain:
		step, ok := currentStep(def, s)
		if !ok {
			return s, result(def, s, msgNoCurrentStep, msgNoCurrentStep)
		}
		text := step.Explanation
		if text == "" {
			text = genericExplanation
		}
		return s, result(def, s, text, ShortenForSpeech(text, speechSafetyMaxChars*2))

	case command.SafetyCheck:
		step, ok := currentStep(def, s)
		if !ok {
			return s, result(def, s, msgNoCurrentStep, msgNoCurrentStep)
		}
		text := step.SafetyNotes
		if text == "" {
			text = genericSafetyNote
		}
		return s, result(def, s, text, ShortenForSpeech(text, speechSafetyMaxChars*2))

	case command.Skip:
		if s.Status == StatusPaused {
			return s, result(def, s, msgConfirmPaused, msgConfirmPaused)
		}
		if s.Status != StatusAwaitingConfirmation {
			return s, result(def, s, msgNotStarted, msgNotStarted)
		}
		step, ok := currentStep(def, s)
		if !ok {
			return s, result(def, s, msgNoCurrentStep, msgNoCurrentStep)
		}
		if step.SafetyCritical {
			s.SkipPending = true
			text := "This step is safety-critical. If you really want to skip it, say skip confirm."
			return s, result(def, s, text, text)
		}
		return advance(def, s, true)

	case command.SkipConfirm:
		if !s.SkipPending || s.Status != StatusAwaitingConfirmation {
			return s, result(def, s, msgNoSkipPending, msgNoSkipPending)
		}
		return advance(def, s, true)

	case command.Confirm:
		if s.Status == StatusPaused {
			return s, result(def, s, msgConfirmPaused, msgConfirmPaused)
		}
		if s.Status != StatusAwaitingConfirmation {
			return s, result(def, s, msgHelp, msgHelp)
		}
		return advance(def, s, false)

	default:
		return s, result(def, s, msgHelp, msgHelp)
	}
}

// advance moves past the current step, either confirmed or skipped.
func advance(def *Definition, s State, skipped bool) (State, Result) {
	step := def.Steps[s.StepIndex]
	s.CompletedSteps = append(append([]string(nil), s.CompletedSteps...), step.ID)
	s.StepIndex++
	s.SkipPending = false

	if s.StepIndex >= len(def.Steps) {
		s.Status = StatusCompleted
		msg := completedMessage
		if skipped {
			msg = completedSkippedLast
		}
		return s, result(def, s, msg, msg)
	}

	s.Status = StatusAwaitingConfirmation
	prefix := ""
	if skipped {
		prefix = "Step skipped. "
	}
	text, speech := renderStep(def, s.StepIndex, prefix)
	return s, result(def, s, text, speech)
}

func currentStep(def *Definition, s State) (Step, bool) {
	if s.StepIndex < 0 || s.StepIndex >= len(def.Steps) {
		return Step{}, false
	}
	return def.Steps[s.StepIndex], true
}

// renderStep composes the display and speech texts for one step.
func renderStep(def *Definition, idx int, prefix string) (text, speech string) {
	step := def.Steps[idx]
	n, total := idx+1, len(def.Steps)

	prompt := "Say confirm to continue, or skip to move on."
	if step.RequiresConfirmation {
		prompt = "Say confirm once you've completed this step."
	}

	text = fmt.Sprintf("%sStep %d of %d: %s", prefix, n, total, step.Instruction)
	if line := safetyLine(step); line != "" {
		text += fmt.Sprintf(" Safety: %s", line)
	}
	text += " " + prompt

	// Speech is terser than display, and the safety line is always
	// shortened even when the display line is not.
	speech = fmt.Sprintf("%sStep %d. %s", prefix, n, step.Instruction)
	if line := safetyLine(step); line != "" {
		speech += " " + ShortenForSpeech(line, speechSafetyMaxChars)
	}
	speech += " When you're done, say confirm."
	return text, speech
}

// safetyLine returns the safety text to render for a step, or "" when the
// step carries no safety content at all.
func safetyLine(step Step) string {
	if step.SafetyNotes != "" {
		return ShortenForSpeech(step.SafetyNotes, speechSafetyMaxChars)
	}
	if step.SafetyCritical {
		return safetyFallbackLine
	}
	return ""
}

func snapshot(def *Definition, s State) Snapshot {
	return Snapshot{
		Status:                s.Status,
		CurrentStepIndex:      s.StepIndex,
		TotalSteps:            len(def.Steps),
		AwaitingConfirmation:  s.Status == StatusAwaitingConfirmation,
		SkipNeedsConfirmation: s.SkipPending,
		CompletedSteps:        append([]string(nil), s.CompletedSteps...),
	}
}

func result(def *Definition, s State, text, speech string) Result {
	if speech == "" {
		speech = text
	}
	return Result{
		Text:        text,
		SpeechText:  speech,
		State:       snapshot(def, s),
		ShouldSpeak: true,
	}
}
