package procedure

import "fmt"

// ManualRef identifies the source manual a procedure was extracted from.
type ManualRef struct {
	ID    string `yaml:"id"    json:"id"`
	Title string `yaml:"title" json:"title"`
}

// Step is a single instruction in a repair procedure. Steps are built by
// the retrieval layer before the engine is constructed and never mutated.
type Step struct {
	ID                   string `yaml:"id"                    json:"id"`
	Instruction          string `yaml:"instruction"           json:"instruction"`
	RequiresConfirmation bool   `yaml:"requires_confirmation" json:"requiresConfirmation"`
	SafetyCritical       bool   `yaml:"safety_critical"       json:"safetyCritical"`
	SafetyNotes          string `yaml:"safety_notes"          json:"safetyNotes,omitempty"`
	Explanation          string `yaml:"explanation"           json:"explanation,omitempty"`
}

// Definition is an ordered repair procedure. Step order is execution order.
type Definition struct {
	ID       string    `yaml:"id"       json:"id"`
	Title    string    `yaml:"title"    json:"title"`
	Manual   ManualRef `yaml:"manual"   json:"manual"`
	Keywords []string  `yaml:"keywords" json:"keywords,omitempty"`
	Steps    []Step    `yaml:"steps"    json:"steps"`
}

// Validate checks a definition for consistency.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("procedure: id is required")
	}
	if d.Title == "" {
		return fmt.Errorf("procedure %q: title is required", d.ID)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("procedure %q step %d: id is required", d.ID, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("procedure %q step %d: duplicate id %q", d.ID, i, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Instruction == "" {
			return fmt.Errorf("procedure %q step %q: instruction is required", d.ID, s.ID)
		}
	}
	return nil
}
