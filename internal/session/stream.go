package session

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/fixmate/fixmate/internal/speech/engine"
	"github.com/fixmate/fixmate/pkg/events"
)

// ttsStream is one utterance's delivery state. A session has at most one;
// a new stream opens only after the previous one reached its terminal frame.
type ttsStream struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	reason string // terminal reason set by the interrupter
}

func (st *ttsStream) interrupt(reason string) {
	st.mu.Lock()
	st.reason = reason
	st.mu.Unlock()
	st.cancel()
}

// interruptReason returns the reason the stream was cancelled with,
// defaulting to stopped for parent-context teardown.
func (st *ttsStream) interruptReason() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.reason == "" {
		return ReasonStopped
	}
	return st.reason
}

// startSpeech opens a TTS stream for the speech text. Any stream still in
// flight is stopped first.
func (s *Session) startSpeech(text string) {
	s.interruptStream(ReasonStopped)

	ctx, cancel := context.WithCancel(s.ctx)
	st := &ttsStream{
		id:     xid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()

	go s.runStream(ctx, st, text)
}

// interruptStream cancels the active stream and waits for its terminal
// frame to be written. A no-op when nothing is streaming.
func (s *Session) interruptStream(reason string) {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()

	if st == nil {
		return
	}
	st.interrupt(reason)
	<-st.done
}

func (s *Session) runStream(ctx context.Context, st *ttsStream, text string) {
	defer close(st.done)
	defer func() {
		s.mu.Lock()
		if s.stream == st {
			s.stream = nil
		}
		s.mu.Unlock()
	}()

	start := time.Now()

	onStage := func(stage engine.Stage, provider string, attempt int, message string) {
		s.send(TypeTTSStatus, &TTSStatus{
			Stage:    string(stage),
			Provider: provider,
			Attempt:  attempt,
			Message:  message,
		})
	}

	audio, provider, err := s.deps.Speaker.Speak(ctx, text, onStage)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var se *engine.SpeakError
		tErr := &TTSError{Code: "synthesis_failed", Message: err.Error()}
		if errors.As(err, &se) {
			tErr.Provider = se.Provider
			tErr.Retryable = se.Retryable
			tErr.FallbackUsed = se.FallbackUsed
		}
		s.send(TypeTTSError, tErr)
		s.emit(events.TTSFailed, &events.TTSFailedData{
			StreamID:     st.id,
			Provider:     tErr.Provider,
			Retryable:    tErr.Retryable,
			FallbackUsed: tErr.FallbackUsed,
			Message:      tErr.Message,
		})
		return
	}

	// Backends hand back live HTTP bodies; release the connection when the
	// stream ends for any reason.
	defer func() {
		if c, ok := audio.(io.Closer); ok {
			c.Close()
		}
	}()

	mimeType := MimeType(s.cfg.SampleRate)
	s.send(TypeTTSStart, &TTSStart{
		StreamID:   st.id,
		MimeType:   mimeType,
		SampleRate: s.cfg.SampleRate,
	})
	s.emit(events.TTSStarted, &events.TTSStartedData{
		StreamID: st.id,
		Provider: provider,
		Chars:    len(text),
	})

	var (
		seq     int64
		chunks  int
		ttfaMs  int64 = -1
		buf           = make([]byte, s.cfg.ChunkSize)
	)

	for {
		if ctx.Err() != nil {
			s.finishStream(st, st.interruptReason(), ttfaMs, chunks)
			return
		}

		n, readErr := audio.Read(buf)
		if n > 0 {
			if ttfaMs < 0 {
				ttfaMs = time.Since(start).Milliseconds()
			}
			s.send(TypeTTSChunk, &TTSChunk{
				StreamID:    st.id,
				Seq:         seq,
				ChunkBase64: base64.StdEncoding.EncodeToString(buf[:n]),
				MimeType:    mimeType,
			})
			seq++
			chunks++
		}

		if readErr != nil {
			// Backend readers are HTTP bodies bound to the stream context;
			// a barge-in surfaces here as a non-EOF read error, not a clean
			// return. That is an interruption, not a delivery failure.
			if ctx.Err() != nil {
				s.finishStream(st, st.interruptReason(), ttfaMs, chunks)
				return
			}
			if readErr == io.EOF {
				s.finishStream(st, ReasonComplete, ttfaMs, chunks)
				metrics := Metrics{StreamID: st.id, TimeToFirstAudioMs: ttfaMs}
				if elapsed := time.Since(start).Seconds(); elapsed > 0 {
					metrics.ApproxCharsPerSecond = float64(len(text)) / elapsed
				}
				s.send(TypeMetrics, &metrics)
				s.mu.Lock()
				s.lastMetrics = metrics
				s.mu.Unlock()
				return
			}
			slog.WarnContext(s.ctx, "tts stream read failed",
				slog.String("stream_id", st.id), slog.String("error", readErr.Error()))
			s.finishStream(st, ReasonError, ttfaMs, chunks)
			return
		}
	}
}

func (s *Session) finishStream(st *ttsStream, reason string, ttfaMs int64, chunks int) {
	s.send(TypeTTSEnd, &TTSEnd{StreamID: st.id, Reason: reason})
	if ttfaMs < 0 {
		ttfaMs = 0
	}
	s.emit(events.TTSCompleted, &events.TTSCompletedData{
		StreamID:         st.id,
		Reason:           reason,
		TimeToFirstAudio: ttfaMs,
		Chunks:           chunks,
	})
}

// LastMetrics returns the most recent completed stream's metrics.
func (s *Session) LastMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMetrics
}
