// Package config holds the environment-driven service configuration.
package config

import (
	"strconv"

	"github.com/pitabwire/frame/config"
)

// FixmateConfig is the single-binary service configuration.
type FixmateConfig struct {
	config.ConfigurationDefault

	// Procedures
	ProcedureDir string `envDefault:"./procedures" env:"PROCEDURE_DIR"`

	// Retrieval service (empty URL means library-only resolution).
	RetrievalURL        string `envDefault:""   env:"RETRIEVAL_URL"`
	RetrievalAuthType   string `envDefault:""   env:"RETRIEVAL_AUTH_TYPE"` // bearer or basic
	RetrievalAuthSecret string `envDefault:""   env:"RETRIEVAL_AUTH_SECRET"`
	RetrievalTimeoutSec int    `envDefault:"10" env:"RETRIEVAL_TIMEOUT_SEC"`

	// Speech
	PrimaryTTSBackend  string `envDefault:"elevenlabs"                      env:"TTS_BACKEND"`
	FallbackTTSBackend string `envDefault:"piper"                           env:"TTS_FALLBACK_BACKEND"`
	STTBackend         string `envDefault:"deepgram"                        env:"STT_BACKEND"`
	TTSVoice           string `envDefault:""                                env:"TTS_VOICE"`
	PiperBinaryPath    string `envDefault:"piper"                           env:"PIPER_BINARY_PATH"`
	PiperModelPath     string `envDefault:"./models/en_US-amy-medium.onnx"  env:"PIPER_MODEL_PATH"`
	DeepgramAPIKey     string `envDefault:""                                env:"DEEPGRAM_API_KEY"`
	ElevenLabsAPIKey   string `envDefault:""                                env:"ELEVENLABS_API_KEY"`
	OpenAIAPIKey       string `envDefault:""                                env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envDefault:"https://api.openai.com/v1"       env:"OPENAI_BASE_URL"`

	// Streaming
	TTSChunkSize int `envDefault:"4096"  env:"TTS_CHUNK_SIZE"`
	SampleRate   int `envDefault:"16000" env:"AUDIO_SAMPLE_RATE"`

	// Demo mode forces the local library resolver and the piper TTS path.
	DemoMode bool `envDefault:"false" env:"DEMO_MODE"`

	// Logging
	LogFile string `envDefault:"" env:"LOG_FILE"`

	// Worker pool
	WorkerPoolCount    int `envDefault:"4"   env:"WORKER_POOL_COUNT"`
	WorkerPoolCapacity int `envDefault:"100" env:"WORKER_POOL_CAPACITY"`

	// Webhooks
	WebhookMaxRetries int `envDefault:"5"   env:"WEBHOOK_MAX_RETRIES"`
	WebhookTimeoutSec int `envDefault:"10"  env:"WEBHOOK_TIMEOUT_SEC"`
	WebhookBackoffSec int `envDefault:"1"   env:"WEBHOOK_BACKOFF_INITIAL_SEC"`
	WebhookBackoffMax int `envDefault:"300" env:"WEBHOOK_BACKOFF_MAX_SEC"`
	CBFailThreshold   int `envDefault:"5"   env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec int `envDefault:"60"  env:"CB_RESET_TIMEOUT_SEC"`
}

// SpeechConfig builds the merged backend config map handed to registry
// factories. The sample rate rides along so every backend produces or
// declares audio at the session rate.
func (c *FixmateConfig) SpeechConfig() map[string]string {
	return map[string]string{
		"binary_path":        c.PiperBinaryPath,
		"model_path":         c.PiperModelPath,
		"deepgram_api_key":   c.DeepgramAPIKey,
		"elevenlabs_api_key": c.ElevenLabsAPIKey,
		"openai_api_key":     c.OpenAIAPIKey,
		"openai_base_url":    c.OpenAIBaseURL,
		"sample_rate":        strconv.Itoa(c.SampleRate),
	}
}
