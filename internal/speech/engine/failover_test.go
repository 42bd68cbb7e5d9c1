package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type fakeHTTPErr struct{ status int }

func (e *fakeHTTPErr) Error() string   { return "http error" }
func (e *fakeHTTPErr) HTTPStatus() int { return e.status }

// fakeTTS fails a configured number of times before succeeding.
type fakeTTS struct {
	failures int
	failWith error
	calls    int
	voices   []Voice
}

func (f *fakeTTS) Synthesize(_ context.Context, text string, _ string) (io.Reader, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.failWith
	}
	return strings.NewReader("pcm:" + text), nil
}

func (f *fakeTTS) Voices() []Voice { return f.voices }
func (f *fakeTTS) Close() error    { return nil }

func fastConfig() SpeakerConfig {
	return SpeakerConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Cooldown:       50 * time.Millisecond,
	}
}

func TestSpeakPrimarySucceedsFirstTry(t *testing.T) {
	primary := &fakeTTS{}
	s := NewSpeaker(Provider{Name: "a", Engine: primary}, nil, fastConfig())

	audio, provider, err := s.Speak(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if provider != "a" {
		t.Errorf("provider = %q, want %q", provider, "a")
	}
	b, _ := io.ReadAll(audio)
	if string(b) != "pcm:hello" {
		t.Errorf("audio = %q", b)
	}
}

func TestSpeakRetriesTransientError(t *testing.T) {
	primary := &fakeTTS{failures: 1, failWith: &fakeHTTPErr{status: 503}}
	s := NewSpeaker(Provider{Name: "a", Engine: primary}, nil, fastConfig())

	var stages []Stage
	_, _, err := s.Speak(context.Background(), "hi", func(stage Stage, _ string, _ int, _ string) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("calls = %d, want 2", primary.calls)
	}
	if len(stages) != 2 || stages[0] != StageAttempting || stages[1] != StageRetrying {
		t.Errorf("stages = %v", stages)
	}
}

func TestSpeakNonRetryableSkipsRetry(t *testing.T) {
	primary := &fakeTTS{failures: 10, failWith: &fakeHTTPErr{status: 401}}
	s := NewSpeaker(Provider{Name: "a", Engine: primary}, nil, fastConfig())

	_, _, err := s.Speak(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if primary.calls != 1 {
		t.Errorf("calls = %d, want 1 (auth errors must not be retried)", primary.calls)
	}
	var se *SpeakError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *SpeakError", err)
	}
	if se.Retryable {
		t.Error("Retryable = true for HTTP 401")
	}
}

func TestSpeakFallsBackAfterPrimaryExhausted(t *testing.T) {
	primary := &fakeTTS{failures: 10, failWith: &fakeHTTPErr{status: 500}}
	fallback := &fakeTTS{}
	s := NewSpeaker(
		Provider{Name: "a", Engine: primary},
		&Provider{Name: "b", Engine: fallback},
		fastConfig(),
	)

	var sawFallback bool
	_, provider, err := s.Speak(context.Background(), "hi", func(stage Stage, _ string, _ int, _ string) {
		if stage == StageFallback {
			sawFallback = true
		}
	})
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if provider != "b" {
		t.Errorf("provider = %q, want %q", provider, "b")
	}
	if !sawFallback {
		t.Error("fallback stage never reported")
	}
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want 2", primary.calls)
	}
}

func TestSpeakBothProvidersFail(t *testing.T) {
	primary := &fakeTTS{failures: 10, failWith: &fakeHTTPErr{status: 500}}
	fallback := &fakeTTS{failures: 10, failWith: errors.New("connection refused")}
	s := NewSpeaker(
		Provider{Name: "a", Engine: primary},
		&Provider{Name: "b", Engine: fallback},
		fastConfig(),
	)

	_, _, err := s.Speak(context.Background(), "hi", nil)
	var se *SpeakError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *SpeakError", err)
	}
	if se.Provider != "b" {
		t.Errorf("Provider = %q, want %q", se.Provider, "b")
	}
	if !se.FallbackUsed {
		t.Error("FallbackUsed = false")
	}
	if !se.Retryable {
		t.Error("Retryable = false for a network error")
	}
}

func TestSpeakCooldownSkipsFailedPrimary(t *testing.T) {
	primary := &fakeTTS{failures: 10, failWith: &fakeHTTPErr{status: 500}}
	fallback := &fakeTTS{}
	s := NewSpeaker(
		Provider{Name: "a", Engine: primary},
		&Provider{Name: "b", Engine: fallback},
		fastConfig(),
	)

	if _, _, err := s.Speak(context.Background(), "one", nil); err != nil {
		t.Fatalf("first Speak() error = %v", err)
	}
	callsAfterFirst := primary.calls

	// Within the cooldown window the primary must not be attempted again.
	if _, provider, err := s.Speak(context.Background(), "two", nil); err != nil {
		t.Fatalf("second Speak() error = %v", err)
	} else if provider != "b" {
		t.Errorf("provider = %q, want %q", provider, "b")
	}
	if primary.calls != callsAfterFirst {
		t.Errorf("primary retried during cooldown: calls = %d, want %d", primary.calls, callsAfterFirst)
	}
}

func TestSpeakerVoice(t *testing.T) {
	primary := &fakeTTS{voices: []Voice{{ID: "amy", Name: "Amy"}, {ID: "joe", Name: "Joe"}}}

	cfg := fastConfig()
	cfg.Voice = "rachel"
	s := NewSpeaker(Provider{Name: "a", Engine: primary}, nil, cfg)
	if got := s.Voice(); got != "rachel" {
		t.Errorf("Voice() = %q, want configured voice", got)
	}

	s = NewSpeaker(Provider{Name: "a", Engine: primary}, nil, fastConfig())
	if got := s.Voice(); got != "amy" {
		t.Errorf("Voice() = %q, want first advertised voice", got)
	}

	s = NewSpeaker(Provider{Name: "a", Engine: &fakeTTS{}}, nil, fastConfig())
	if got := s.Voice(); got != "" {
		t.Errorf("Voice() = %q, want empty when nothing is advertised", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &fakeHTTPErr{status: 429}, true},
		{"server error", &fakeHTTPErr{status: 502}, true},
		{"unauthorized", &fakeHTTPErr{status: 401}, false},
		{"bad request", &fakeHTTPErr{status: 400}, false},
		{"network", errors.New("dial tcp: timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
