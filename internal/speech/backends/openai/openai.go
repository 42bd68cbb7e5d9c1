// Package openai provides ASR and TTS backends on OpenAI-compatible APIs.
// Either direction can point at a self-hosted server via base_url, which
// is how local Whisper deployments slot in.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/fixmate/fixmate/internal/speech/backends/restutil"
	"github.com/fixmate/fixmate/internal/speech/engine"
	"github.com/fixmate/fixmate/internal/speech/registry"
)

// The speech endpoint's pcm format is fixed at 24kHz regardless of what
// the session wants, so TTS output is always resampled.
const ttsNativeRate = 24000

type apiSettings struct {
	apiKey     string
	baseURL    string
	model      string
	sampleRate int
}

func settingsFrom(config map[string]string, defaultModel string) (apiSettings, error) {
	s := apiSettings{sampleRate: 16000}
	s.apiKey = config["openai_api_key"]
	if s.apiKey == "" {
		s.apiKey = config["api_key"]
	}
	if s.apiKey == "" {
		return s, fmt.Errorf("openai: api key required (set openai_api_key)")
	}
	s.baseURL = config["openai_base_url"]
	if s.baseURL == "" {
		s.baseURL = config["base_url"]
	}
	if s.baseURL == "" {
		s.baseURL = "https://api.openai.com/v1"
	}
	s.model = config["model"]
	if s.model == "" {
		s.model = defaultModel
	}
	if v := config["sample_rate"]; v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("openai: bad sample_rate %q: %w", v, err)
		}
		s.sampleRate = rate
	}
	return s, nil
}

func init() {
	registry.ASR.Register("openai", func(config map[string]string) (engine.ASREngine, error) {
		s, err := settingsFrom(config, "whisper-1")
		if err != nil {
			return nil, err
		}
		return &ASR{apiSettings: s}, nil
	})

	registry.TTS.Register("openai", func(config map[string]string) (engine.TTSEngine, error) {
		s, err := settingsFrom(config, "tts-1")
		if err != nil {
			return nil, err
		}
		return &TTS{apiSettings: s}, nil
	})
}

// ASR transcribes utterances through the transcriptions endpoint.
type ASR struct {
	apiSettings
}

func (a *ASR) Transcribe(ctx context.Context, audio io.Reader) (<-chan engine.ASRResult, error) {
	return restutil.VADBatchTranscribe(ctx, audio, a.transcribeUtterance), nil
}

func (a *ASR) transcribeUtterance(ctx context.Context, pcm []byte) (string, float32, error) {
	// The API wants a container, not bare samples; wrap the utterance
	// in a WAV shell declaring the session rate.
	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	part, err := w.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", 0, fmt.Errorf("openai: build form: %w", err)
	}
	if err := writeWAV(part, a.sampleRate, pcm); err != nil {
		return "", 0, fmt.Errorf("openai: encode wav: %w", err)
	}
	_ = w.WriteField("model", a.model)
	_ = w.WriteField("response_format", "json")
	w.Close()

	body, err := restutil.Post(ctx, a.baseURL+"/audio/transcriptions",
		map[string]string{
			"Authorization": "Bearer " + a.apiKey,
			"Content-Type":  w.FormDataContentType(),
		}, &form)
	if err != nil {
		return "", 0, fmt.Errorf("openai: %w", err)
	}
	defer body.Close()

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", 0, fmt.Errorf("openai: decode response: %w", err)
	}

	// Whisper reports no per-utterance confidence; use a fixed one.
	return resp.Text, 0.9, nil
}

func (a *ASR) Close() error { return nil }

// TTS synthesizes speech through the speech endpoint.
type TTS struct {
	apiSettings
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func (t *TTS) Synthesize(ctx context.Context, text string, voice string) (io.Reader, error) {
	if voice == "" {
		voice = "alloy"
	}

	payload, err := json.Marshal(speechRequest{
		Model:          t.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}

	body, err := restutil.Post(ctx, t.baseURL+"/audio/speech",
		map[string]string{
			"Authorization": "Bearer " + t.apiKey,
			"Content-Type":  "application/json",
		}, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	defer body.Close()

	pcm, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("openai: read audio: %w", err)
	}
	return bytes.NewReader(downsample(pcm, ttsNativeRate, t.sampleRate)), nil
}

func (t *TTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "alloy", Name: "Alloy", Language: "en"},
		{ID: "echo", Name: "Echo", Language: "en"},
		{ID: "fable", Name: "Fable", Language: "en"},
		{ID: "onyx", Name: "Onyx", Language: "en"},
		{ID: "nova", Name: "Nova", Language: "en"},
		{ID: "shimmer", Name: "Shimmer", Language: "en"},
	}
}

func (t *TTS) Close() error { return nil }
