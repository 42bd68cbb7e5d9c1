package engine

import (
	"context"
	"io"
)

// ASRResult represents a speech-to-text result.
type ASRResult struct {
	Text       string
	Confidence float32
	Language   string
	IsFinal    bool
}

// ASREngine transcribes PCM audio streams. The returned channel is closed
// when the reader is exhausted or the context is cancelled.
type ASREngine interface {
	Transcribe(ctx context.Context, audio io.Reader) (<-chan ASRResult, error)
	Close() error
}
