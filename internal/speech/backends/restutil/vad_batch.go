package restutil

import (
	"context"
	"io"

	"github.com/fixmate/fixmate/internal/speech/engine"
)

// TranscribeFunc transcribes a single utterance of raw PCM audio and returns
// the transcription text with confidence. Called once per VAD-detected utterance.
type TranscribeFunc func(ctx context.Context, pcm []byte) (string, float32, error)

// VADBatchTranscribe reads PCM audio from the reader, uses VAD to detect
// utterance boundaries, and calls transcribeFn for each complete utterance.
// Results are sent on the returned channel, which is closed when the reader
// is exhausted or the context is cancelled.
func VADBatchTranscribe(ctx context.Context, audio io.Reader, transcribeFn TranscribeFunc) <-chan engine.ASRResult {
	results := make(chan engine.ASRResult, 8)

	go func() {
		defer close(results)

		vad := engine.NewVAD(engine.DefaultVADConfig())
		frameSize := 16000 * 30 / 1000 * 2 // 30ms at 16kHz, 16-bit
		buf := make([]byte, frameSize)
		var utterance []byte

		emit := func(pcm []byte) {
			text, conf, err := transcribeFn(ctx, pcm)
			if err == nil && text != "" {
				results <- engine.ASRResult{
					Text:       text,
					Confidence: conf,
					IsFinal:    true,
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := audio.Read(buf)
			if n > 0 {
				switch vad.ProcessFrame(buf[:n]) {
				case engine.VADSpeechStart:
					utterance = append(utterance[:0], buf[:n]...)

				case engine.VADSpeechEnd:
					if len(utterance) > 0 {
						emit(utterance)
						utterance = utterance[:0]
					}

				default:
					if vad.IsSpeaking() {
						utterance = append(utterance, buf[:n]...)
					}
				}
			}

			if err != nil {
				if err == io.EOF && len(utterance) > 0 {
					emit(utterance)
				}
				return
			}
		}
	}()

	return results
}
