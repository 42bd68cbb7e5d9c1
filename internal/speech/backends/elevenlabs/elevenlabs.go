// Package elevenlabs provides a TTS backend on the ElevenLabs REST API,
// requesting raw PCM at the session sample rate so no transcoding sits
// between synthesis and the audio stream.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fixmate/fixmate/internal/speech/backends/restutil"
	"github.com/fixmate/fixmate/internal/speech/engine"
	"github.com/fixmate/fixmate/internal/speech/registry"
)

const defaultVoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel

func init() {
	registry.TTS.Register("elevenlabs", func(config map[string]string) (engine.TTSEngine, error) {
		key := config["elevenlabs_api_key"]
		if key == "" {
			key = config["api_key"]
		}
		if key == "" {
			return nil, fmt.Errorf("elevenlabs: api key required (set elevenlabs_api_key)")
		}
		t := &TTS{
			apiKey:     key,
			model:      config["model"],
			sampleRate: 16000,
		}
		if t.model == "" {
			t.model = "eleven_multilingual_v2"
		}
		if v := config["sample_rate"]; v != "" {
			rate, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: bad sample_rate %q: %w", v, err)
			}
			t.sampleRate = rate
		}
		return t, nil
	})
}

// TTS synthesizes speech through the ElevenLabs text-to-speech endpoint.
type TTS struct {
	apiKey     string
	model      string
	sampleRate int
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize requests linear PCM at the configured rate. The returned
// reader is the response body, so cancelling ctx aborts a synthesis that
// is still streaming (a barge-in lands here mid-read).
func (t *TTS) Synthesize(ctx context.Context, text string, voice string) (io.Reader, error) {
	if voice == "" {
		voice = defaultVoiceID
	}
	endpoint := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s?output_format=pcm_%d",
		voice, t.sampleRate)

	payload, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: t.model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	body, err := restutil.Post(ctx, endpoint, map[string]string{
		"xi-api-key":   t.apiKey,
		"Content-Type": "application/json",
	}, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	return body, nil
}

func (t *TTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: defaultVoiceID, Name: "Rachel", Language: "en"},
		{ID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Language: "en"},
		{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Language: "en"},
		{ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Language: "en"},
	}
}

func (t *TTS) Close() error { return nil }
