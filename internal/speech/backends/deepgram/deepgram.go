// Package deepgram provides an ASR backend on the Deepgram prerecorded
// API, fed one VAD-segmented utterance at a time as headerless linear PCM.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/fixmate/fixmate/internal/speech/backends/restutil"
	"github.com/fixmate/fixmate/internal/speech/engine"
	"github.com/fixmate/fixmate/internal/speech/registry"
)

func init() {
	registry.ASR.Register("deepgram", func(config map[string]string) (engine.ASREngine, error) {
		key := config["deepgram_api_key"]
		if key == "" {
			key = config["api_key"]
		}
		if key == "" {
			return nil, fmt.Errorf("deepgram: api key required (set deepgram_api_key)")
		}
		a := &ASR{
			apiKey:     key,
			model:      config["model"],
			language:   config["language"],
			sampleRate: 16000,
		}
		if a.model == "" {
			a.model = "nova-2"
		}
		if a.language == "" {
			a.language = "en"
		}
		if v := config["sample_rate"]; v != "" {
			rate, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("deepgram: bad sample_rate %q: %w", v, err)
			}
			a.sampleRate = rate
		}
		return a, nil
	})
}

// ASR transcribes utterances through the Deepgram listen endpoint.
type ASR struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float32 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (a *ASR) Transcribe(ctx context.Context, audio io.Reader) (<-chan engine.ASRResult, error) {
	return restutil.VADBatchTranscribe(ctx, audio, a.transcribeUtterance), nil
}

func (a *ASR) transcribeUtterance(ctx context.Context, pcm []byte) (string, float32, error) {
	params := url.Values{}
	params.Set("model", a.model)
	params.Set("language", a.language)

	// Raw PCM carries no header, so rate and channel layout ride on the
	// content type.
	body, err := restutil.Post(ctx, "https://api.deepgram.com/v1/listen?"+params.Encode(),
		map[string]string{
			"Authorization": "Token " + a.apiKey,
			"Content-Type":  fmt.Sprintf("audio/l16;rate=%d;channels=1", a.sampleRate),
		}, bytes.NewReader(pcm))
	if err != nil {
		return "", 0, fmt.Errorf("deepgram: %w", err)
	}
	defer body.Close()

	var resp listenResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", 0, fmt.Errorf("deepgram: decode response: %w", err)
	}

	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", 0, nil
	}
	best := resp.Results.Channels[0].Alternatives[0]
	return best.Transcript, best.Confidence, nil
}

func (a *ASR) Close() error { return nil }
