package procedure

import (
	"reflect"
	"strings"
	"testing"

	"github.com/fixmate/fixmate/pkg/command"
)

func sampleDefinition() *Definition {
	return &Definition{
		ID:     "dryer-belt",
		Title:  "Replace dryer drive belt",
		Manual: ManualRef{ID: "man-001", Title: "Dryer Service Manual"},
		Steps: []Step{
			{ID: "s1", Instruction: "Unplug the dryer from the wall outlet.", SafetyCritical: true,
				SafetyNotes: "The heating element stays hot for several minutes after use."},
			{ID: "s2", Instruction: "Remove the two screws securing the top panel.", RequiresConfirmation: true},
			{ID: "s3", Instruction: "Slide the new belt over the drum.",
				Explanation: "The belt grooves must face the drum or it will slip off under load."},
		},
	}
}

func TestConfirmThroughToCompleted(t *testing.T) {
	def := sampleDefinition()
	e := NewEngine(def)

	res := e.Start()
	if res.State.Status != StatusAwaitingConfirmation {
		t.Fatalf("status after start = %q", res.State.Status)
	}
	if !strings.Contains(res.Text, "Step 1 of 3") {
		t.Errorf("start text = %q", res.Text)
	}

	for i := 0; i < len(def.Steps); i++ {
		res = e.HandleCommand(command.Confirm)
	}
	if res.State.Status != StatusCompleted {
		t.Fatalf("status after %d confirms = %q", len(def.Steps), res.State.Status)
	}
	if res.State.CurrentStepIndex != 3 {
		t.Errorf("currentStepIndex = %d, want 3", res.State.CurrentStepIndex)
	}
	if want := []string{"s1", "s2", "s3"}; !reflect.DeepEqual(res.State.CompletedSteps, want) {
		t.Errorf("completedSteps = %v, want %v", res.State.CompletedSteps, want)
	}

	// Terminal: nothing leaves completed.
	res = e.HandleCommand(command.Confirm)
	if res.State.Status != StatusCompleted || res.State.CurrentStepIndex != 3 {
		t.Errorf("confirm after completion changed state: %+v", res.State)
	}
}

func TestSafetyCriticalSkipGate(t *testing.T) {
	def := &Definition{
		ID: "p", Title: "p",
		Steps: []Step{
			{ID: "s1", Instruction: "Disconnect the capacitor.", SafetyCritical: true},
			{ID: "s2", Instruction: "Remove the rear cover."},
		},
	}
	e := NewEngine(def)
	e.Start()

	res := e.HandleCommand(command.Skip)
	if !res.State.SkipNeedsConfirmation {
		t.Fatal("skipNeedsConfirmation = false after skipping safety-critical step")
	}
	if res.State.CurrentStepIndex != 0 || len(res.State.CompletedSteps) != 0 {
		t.Fatalf("skip advanced a safety-critical step: %+v", res.State)
	}
	if !strings.Contains(res.Text, "skip confirm") {
		t.Errorf("skip response = %q", res.Text)
	}

	res = e.HandleCommand(command.SkipConfirm)
	if res.State.CurrentStepIndex != 1 || res.State.SkipNeedsConfirmation {
		t.Fatalf("skip_confirm did not advance exactly one step: %+v", res.State)
	}
	if want := []string{"s1"}; !reflect.DeepEqual(res.State.CompletedSteps, want) {
		t.Errorf("completedSteps = %v, want %v", res.State.CompletedSteps, want)
	}
	if !strings.Contains(res.Text, "Step skipped.") {
		t.Errorf("advance text = %q", res.Text)
	}

	res = e.HandleCommand(command.Confirm)
	if res.State.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", res.State.Status)
	}
	if want := []string{"s1", "s2"}; !reflect.DeepEqual(res.State.CompletedSteps, want) {
		t.Errorf("completedSteps = %v, want %v", res.State.CompletedSteps, want)
	}
}

func TestSkipConfirmWithoutPendingSkip(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()

	res := e.HandleCommand(command.SkipConfirm)
	if res.State.CurrentStepIndex != 0 || res.State.SkipNeedsConfirmation {
		t.Errorf("skip_confirm with nothing pending mutated state: %+v", res.State)
	}
}

func TestNonSafetyCriticalSkipAdvancesImmediately(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()
	e.HandleCommand(command.Confirm) // past the safety-critical step

	res := e.HandleCommand(command.Skip)
	if res.State.CurrentStepIndex != 2 {
		t.Errorf("currentStepIndex = %d, want 2", res.State.CurrentStepIndex)
	}
	if res.State.SkipNeedsConfirmation {
		t.Error("skipNeedsConfirmation set for a non-critical skip")
	}
}

func TestPauseResumeConfirm(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()

	res := e.HandleCommand(command.Stop)
	if res.State.Status != StatusPaused || res.State.AwaitingConfirmation {
		t.Fatalf("state after stop: %+v", res.State)
	}
	if !strings.Contains(res.Text, "step 1") {
		t.Errorf("pause text = %q", res.Text)
	}

	// Confirm is rejected while paused.
	res = e.HandleCommand(command.Confirm)
	if res.State.CurrentStepIndex != 0 || res.State.Status != StatusPaused {
		t.Fatalf("confirm while paused mutated state: %+v", res.State)
	}

	res = e.HandleCommand(command.Resume)
	if res.State.Status != StatusAwaitingConfirmation {
		t.Fatalf("status after resume = %q", res.State.Status)
	}

	res = e.HandleCommand(command.Confirm)
	if res.State.CurrentStepIndex != 1 {
		t.Errorf("currentStepIndex = %d, want 1", res.State.CurrentStepIndex)
	}
}

func TestRepeatIsIdempotent(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()
	before := e.Snapshot()

	first := e.HandleCommand(command.Repeat)
	second := e.HandleCommand(command.Repeat)

	if !reflect.DeepEqual(first.State, before) || !reflect.DeepEqual(second.State, before) {
		t.Errorf("repeat mutated state: before=%+v after=%+v", before, second.State)
	}
	if first.Text != second.Text {
		t.Errorf("repeat texts differ: %q vs %q", first.Text, second.Text)
	}
}

func TestExplainAndSafetyCheck(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()

	res := e.HandleCommand(command.SafetyCheck)
	if !strings.Contains(res.Text, "heating element") {
		t.Errorf("safety_check = %q, want step notes", res.Text)
	}

	// No explanation on step 1: generic fallback.
	res = e.HandleCommand(command.Explain)
	if res.Text != genericExplanation {
		t.Errorf("explain = %q, want generic fallback", res.Text)
	}

	e.HandleCommand(command.Confirm)
	e.HandleCommand(command.Confirm)

	// Step 3 has its own explanation; step 2 had no safety content.
	res = e.HandleCommand(command.Explain)
	if !strings.Contains(res.Text, "grooves") {
		t.Errorf("explain = %q, want step explanation", res.Text)
	}
	res = e.HandleCommand(command.SafetyCheck)
	if res.Text != genericSafetyNote {
		t.Errorf("safety_check = %q, want generic fallback", res.Text)
	}
}

func TestStartEdgeCases(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()

	res := e.HandleCommand(command.Start)
	if res.Text != msgAlreadyStarted || res.State.CurrentStepIndex != 0 {
		t.Errorf("start while started: %q %+v", res.Text, res.State)
	}

	e.HandleCommand(command.Stop)
	res = e.HandleCommand(command.Start)
	if res.Text != msgStartWhilePaused || res.State.Status != StatusPaused {
		t.Errorf("start while paused: %q %+v", res.Text, res.State)
	}
}

func TestSkipBeforeStartDoesNotAdvance(t *testing.T) {
	// Non-safety first step: skip used to walk straight into advance.
	e := NewEngine(&Definition{
		ID: "p", Title: "p",
		Steps: []Step{
			{ID: "s1", Instruction: "Remove the rear cover."},
			{ID: "s2", Instruction: "Check the wiring harness."},
		},
	})

	res := e.HandleCommand(command.Skip)
	if res.State.Status != StatusIdle || res.State.CurrentStepIndex != 0 || len(res.State.CompletedSteps) != 0 {
		t.Fatalf("skip before start mutated state: %+v", res.State)
	}
	if res.Text != msgNotStarted {
		t.Errorf("text = %q, want not-started response", res.Text)
	}

	// Safety-critical first step: skip must not arm the confirmation gate
	// either, or skip_confirm would advance from idle.
	e = NewEngine(sampleDefinition())
	res = e.HandleCommand(command.Skip)
	if res.State.SkipNeedsConfirmation {
		t.Fatal("skip before start armed skipNeedsConfirmation")
	}
	res = e.HandleCommand(command.SkipConfirm)
	if res.State.Status != StatusIdle || res.State.CurrentStepIndex != 0 {
		t.Fatalf("skip_confirm before start mutated state: %+v", res.State)
	}
}

func TestZeroStepProcedure(t *testing.T) {
	e := NewEngine(&Definition{ID: "empty", Title: "empty"})

	res := e.Start()
	if res.State.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", res.State.Status)
	}
	if res.Text != msgEmptyProcedure {
		t.Errorf("text = %q", res.Text)
	}
	if res.State.TotalSteps != 0 || len(res.State.CompletedSteps) != 0 {
		t.Errorf("state = %+v", res.State)
	}
}

func TestSkippingLastStepWarnsBeforeTesting(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()
	e.HandleCommand(command.Confirm)
	e.HandleCommand(command.Confirm)

	res := e.HandleCommand(command.Skip)
	if res.State.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", res.State.Status)
	}
	if res.Text != completedSkippedLast {
		t.Errorf("text = %q, want skip-variant closing message", res.Text)
	}
}

func TestUnrecognizedCommandIsHelp(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()

	res := e.HandleCommand(command.Command("gibberish"))
	if res.Text != msgHelp {
		t.Errorf("text = %q, want help", res.Text)
	}
	if res.State.CurrentStepIndex != 0 || res.State.Status != StatusAwaitingConfirmation {
		t.Errorf("help response mutated state: %+v", res.State)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	e := NewEngine(sampleDefinition())
	e.Start()
	e.HandleCommand(command.Confirm)

	snap := e.Snapshot()
	snap.CompletedSteps[0] = "tampered"
	snap.CurrentStepIndex = 99

	again := e.Snapshot()
	if again.CompletedSteps[0] != "s1" || again.CurrentStepIndex != 1 {
		t.Errorf("snapshot aliased engine state: %+v", again)
	}
}

func TestSpeechTextIsTerserThanDisplay(t *testing.T) {
	e := NewEngine(sampleDefinition())
	res := e.Start()
	if res.SpeechText == "" || !res.ShouldSpeak {
		t.Fatal("no speech text on step render")
	}
	if !strings.HasPrefix(res.SpeechText, "Step 1.") {
		t.Errorf("speechText = %q", res.SpeechText)
	}
	if strings.Contains(res.SpeechText, "Step 1 of 3") {
		t.Errorf("speechText carries display framing: %q", res.SpeechText)
	}
}
