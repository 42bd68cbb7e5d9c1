package command

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"ready", Start, true},
		{"I'm ready", Start, true},
		{"let's start", Start, true},
		{"Begin!", Start, true},
		// "start" inside an unrelated sentence must not trigger start.
		{"when do we start the dryer", "", false},

		{"stop", Stop, true},
		{"okay hold on a second", Stop, true},
		{"please pause for a moment", Stop, true},

		{"resume", Resume, true},
		{"let's continue now", Resume, true},
		{"go on", Resume, true},

		{"repeat", Repeat, true},
		{"can you say that again", Repeat, true},

		// Combined skip phrasing outranks both skip and confirm.
		{"skip confirm", SkipConfirm, true},
		{"confirm skip", SkipConfirm, true},
		{"skip confirm this one", SkipConfirm, true},

		{"skip", Skip, true},
		{"okay let's skip this one", Skip, true},
		{"move on please", Skip, true},

		{"explain", Explain, true},
		{"why do I need to do that", Explain, true},
		{"give me more detail", Explain, true},

		{"safety check", SafetyCheck, true},
		{"is this safe?", SafetyCheck, true},
		{"safe to touch the heating element", SafetyCheck, true},
		{"any risk here", SafetyCheck, true},
		// "safe" mid-sentence must not trigger.
		{"I put the screws somewhere safe earlier", "", false},

		{"confirm", Confirm, true},
		{"done", Confirm, true},
		{"that's done", Confirm, true},
		{"Finished.", Confirm, true},
		// "done" mid-sentence must not trigger confirm.
		{"I think the motor is done for", "", false},

		{"", "", false},
		{"   ", "", false},
		{"what is the weather like", "", false},
	}

	for _, tt := range tests {
		got, ok := Classify(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// "stop" outranks later categories even when their triggers co-occur.
	got, ok := Classify("stop, then skip")
	if !ok || got != Stop {
		t.Fatalf("Classify = (%q, %v), want (%q, true)", got, ok, Stop)
	}
}

func TestValid(t *testing.T) {
	if !Valid("skip_confirm") {
		t.Error("Valid(skip_confirm) = false")
	}
	if Valid("dance") {
		t.Error("Valid(dance) = true")
	}
}
