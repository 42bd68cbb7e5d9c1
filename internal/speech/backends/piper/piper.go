// Package piper provides an offline TTS backend on the local piper binary.
// It needs no network or keys, which makes it the fallback of last resort
// for spoken guidance and the default engine in demo mode.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/fixmate/fixmate/internal/speech/engine"
	"github.com/fixmate/fixmate/internal/speech/registry"
)

func init() {
	registry.TTS.Register("piper", func(config map[string]string) (engine.TTSEngine, error) {
		binary := config["binary_path"]
		if binary == "" {
			binary = "piper"
		}
		model := config["model_path"]
		if model == "" {
			model = "./models/en_US-amy-medium.onnx"
		}
		return &TTS{binary: binary, model: model}, nil
	})
}

// TTS synthesizes speech by running the piper binary per utterance. The
// model file decides the output sample rate, so the model configured here
// must match the session's audio contract.
type TTS struct {
	binary string
	model  string
}

// Synthesize runs piper with the text on stdin and raw PCM on stdout.
// A numeric voice selects a speaker in multi-speaker models.
func (t *TTS) Synthesize(ctx context.Context, text string, voice string) (io.Reader, error) {
	args := []string{"--model", t.model, "--output-raw"}
	if voice != "" && voice != "default" {
		args = append(args, "--speaker", voice)
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return &stdout, nil
}

func (t *TTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "default", Name: "Default", Language: "en-US"},
	}
}

func (t *TTS) Close() error { return nil }
