package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Stage names the phase of a synthesis attempt, reported to the caller so
// the client can surface delivery progress.
type Stage string

const (
	StageAttempting Stage = "attempting"
	StageRetrying   Stage = "retrying"
	StageFallback   Stage = "fallback"
)

// StageFunc receives progress reports during Speak.
type StageFunc func(stage Stage, provider string, attempt int, message string)

// Provider pairs a TTS engine with its registry name.
type Provider struct {
	Name   string
	Engine TTSEngine
}

// SpeakerConfig tunes the retry/failover policy.
type SpeakerConfig struct {
	MaxAttempts    int           // attempts per provider, including the first
	InitialBackoff time.Duration // doubled per retry
	MaxBackoff     time.Duration
	Cooldown       time.Duration // how long a fully-failed provider is skipped
	Voice          string
}

// DefaultSpeakerConfig returns the retry policy used when config leaves it
// unset: two attempts per provider with a short backoff, so a transient
// provider hiccup does not stall the conversational turn.
func DefaultSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{
		MaxAttempts:    2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Cooldown:       30 * time.Second,
	}
}

// SpeakError is the terminal failure of a Speak call.
type SpeakError struct {
	Provider     string
	Retryable    bool
	FallbackUsed bool
	Err          error
}

func (e *SpeakError) Error() string {
	return fmt.Sprintf("tts %s: %v", e.Provider, e.Err)
}

func (e *SpeakError) Unwrap() error { return e.Err }

// Speaker synthesizes speech through a primary provider with retries,
// falling back to a secondary provider when the primary is exhausted.
// A provider that exhausts all attempts is skipped for a cooldown period
// on subsequent utterances.
type Speaker struct {
	primary  Provider
	fallback *Provider
	cfg      SpeakerConfig

	mu       sync.Mutex
	downTill map[string]time.Time
}

// NewSpeaker creates a speaker. fallback may be nil.
func NewSpeaker(primary Provider, fallback *Provider, cfg SpeakerConfig) *Speaker {
	def := DefaultSpeakerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Speaker{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		downTill: make(map[string]time.Time),
	}
}

// PrimaryName returns the primary provider's registry name.
func (s *Speaker) PrimaryName() string { return s.primary.Name }

// Voice returns the voice id passed to providers: the configured voice
// when set, else the primary provider's first advertised voice.
func (s *Speaker) Voice() string {
	if s.cfg.Voice != "" {
		return s.cfg.Voice
	}
	if voices := s.primary.Engine.Voices(); len(voices) > 0 {
		return voices[0].ID
	}
	return ""
}

// Speak synthesizes text, returning the audio reader and the name of the
// provider that produced it. onStage may be nil.
func (s *Speaker) Speak(ctx context.Context, text string, onStage StageFunc) (io.Reader, string, error) {
	report := onStage
	if report == nil {
		report = func(Stage, string, int, string) {}
	}

	primaryErr := errors.New("provider cooling down")
	if s.available(s.primary.Name) {
		audio, err := s.tryProvider(ctx, s.primary, StageAttempting, text, report)
		if err == nil {
			return audio, s.primary.Name, nil
		}
		if ctx.Err() != nil {
			return nil, s.primary.Name, &SpeakError{Provider: s.primary.Name, Err: ctx.Err()}
		}
		primaryErr = err
		s.markDown(s.primary.Name)
		slog.WarnContext(ctx, "tts primary exhausted",
			slog.String("provider", s.primary.Name), slog.String("error", err.Error()))
	}

	if s.fallback != nil {
		report(StageFallback, s.fallback.Name, 1, "switching to fallback provider")
		audio, err := s.tryProvider(ctx, *s.fallback, StageFallback, text, report)
		if err == nil {
			return audio, s.fallback.Name, nil
		}
		s.markDown(s.fallback.Name)
		return nil, s.fallback.Name, &SpeakError{
			Provider:     s.fallback.Name,
			Retryable:    retryable(err),
			FallbackUsed: true,
			Err:          err,
		}
	}

	return nil, s.primary.Name, &SpeakError{
		Provider:  s.primary.Name,
		Retryable: retryable(primaryErr),
		Err:       primaryErr,
	}
}

// tryProvider runs up to MaxAttempts against one provider with backoff.
func (s *Speaker) tryProvider(ctx context.Context, p Provider, firstStage Stage, text string, report StageFunc) (io.Reader, error) {
	backoff := s.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		stage := firstStage
		if attempt > 1 {
			stage = StageRetrying
		}
		report(stage, p.Name, attempt, "")

		audio, err := p.Engine.Synthesize(ctx, text, s.cfg.Voice)
		if err == nil {
			return audio, nil
		}
		lastErr = err

		if !retryable(err) || attempt == s.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
	return nil, lastErr
}

func (s *Speaker) available(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.downTill[name])
}

func (s *Speaker) markDown(name string) {
	s.mu.Lock()
	s.downTill[name] = time.Now().Add(s.cfg.Cooldown)
	s.mu.Unlock()
}

// Retryable reports whether a synthesis error is worth retrying against
// the same provider. Client errors other than rate limiting are not.
func Retryable(err error) bool { return retryable(err) }

func retryable(err error) bool {
	var he interface{ HTTPStatus() int }
	if errors.As(err, &he) {
		status := he.HTTPStatus()
		if status == 429 {
			return true
		}
		return status >= 500
	}
	// Network-level failures are retryable.
	return true
}
