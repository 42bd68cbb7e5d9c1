package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/pitabwire/frame"
	frameconfig "github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	fmconfig "github.com/fixmate/fixmate/config"
	"github.com/fixmate/fixmate/internal/httpapi"
	"github.com/fixmate/fixmate/internal/retrieval"
	"github.com/fixmate/fixmate/internal/session"
	"github.com/fixmate/fixmate/internal/speech/engine"
	"github.com/fixmate/fixmate/internal/speech/registry"
	"github.com/fixmate/fixmate/pkg/events"
	"github.com/fixmate/fixmate/pkg/procedure"
	"github.com/fixmate/fixmate/pkg/webhook"

	// Register speech backends via init().
	_ "github.com/fixmate/fixmate/internal/speech/backends/deepgram"
	_ "github.com/fixmate/fixmate/internal/speech/backends/elevenlabs"
	_ "github.com/fixmate/fixmate/internal/speech/backends/openai"
	_ "github.com/fixmate/fixmate/internal/speech/backends/piper"
)

func main() {
	ctx := context.Background()

	cfg, err := frameconfig.LoadWithOIDC[fmconfig.FixmateConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, closeLog := fmconfig.SetupLogger(cfg.LogFile, slog.LevelInfo)
	slog.SetDefault(logger)
	defer closeLog()

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("fixmate"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "fixmate", eventRef)

	// --- Procedure library ---
	library := procedure.NewLibrary(cfg.ProcedureDir)
	if _, err := library.LoadAll(); err != nil {
		slog.Warn("loading procedures", "error", err, "dir", cfg.ProcedureDir)
	}
	go func() {
		if err := library.WatchAndReload(ctx.Done()); err != nil {
			slog.Warn("procedure reload watcher stopped", "error", err)
		}
	}()

	// --- Retrieval ---
	var remote retrieval.Resolver
	if cfg.RetrievalURL != "" && !cfg.DemoMode {
		remote = retrieval.NewRemoteResolver(retrieval.RemoteConfig{
			URL:        cfg.RetrievalURL,
			AuthType:   cfg.RetrievalAuthType,
			AuthSecret: cfg.RetrievalAuthSecret,
			TimeoutSec: cfg.RetrievalTimeoutSec,
		})
	}
	demoResolver := retrieval.NewLibraryResolver(library)

	// --- Speech ---
	speechCfg := cfg.SpeechConfig()

	primaryName := cfg.PrimaryTTSBackend
	if cfg.DemoMode {
		primaryName = cfg.FallbackTTSBackend
	}
	speaker := buildSpeaker(primaryName, cfg.FallbackTTSBackend, cfg.TTSVoice, speechCfg)

	var asr engine.ASREngine
	if created, err := registry.ASR.Create(cfg.STTBackend, speechCfg); err != nil {
		slog.Warn("stt backend unavailable, voice input disabled", "backend", cfg.STTBackend, "error", err)
	} else {
		asr = created
	}

	// --- Webhooks ---
	whRepo := webhook.NewRepository(
		srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
	)
	whDeliverer := webhook.NewDeliverer(whRepo, webhook.DelivererConfig{
		MaxRetries:        cfg.WebhookMaxRetries,
		TimeoutSec:        cfg.WebhookTimeoutSec,
		BackoffInitialSec: cfg.WebhookBackoffSec,
		BackoffMaxSec:     cfg.WebhookBackoffMax,
		CBFailThreshold:   cfg.CBFailThreshold,
		CBResetTimeoutSec: cfg.CBResetTimeoutSec,
	})
	whSubscriber := &webhook.Subscriber{
		Repo:      whRepo,
		Deliverer: whDeliverer,
		Pool:      pool,
	}

	// --- Sessions + HTTP ---
	sessions := session.NewHandler(session.Deps{
		Resolver:     remote,
		DemoResolver: demoResolver,
		Speaker:      speaker,
		ASR:          asr,
		Publisher:    pub,
	}, session.Config{
		ChunkSize:  cfg.TTSChunkSize,
		SampleRate: cfg.SampleRate,
		Voice:      cfg.TTSVoice,
	})

	mux := httpapi.NewMux(sessions)

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".webhooks", eventURL, whSubscriber),
		frame.WithHTTPHandler(httpapi.H2CHandler(mux)),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

// buildSpeaker assembles the failover speaker. A backend that cannot be
// constructed (missing API key) is skipped; piper needs no credentials so
// the speaker always has at least one provider.
func buildSpeaker(primaryName, fallbackName, voice string, speechCfg map[string]string) *engine.Speaker {
	cfg := engine.DefaultSpeakerConfig()
	cfg.Voice = voice

	primary, err := registry.TTS.Create(primaryName, speechCfg)
	if err != nil {
		slog.Warn("primary tts backend unavailable, using fallback as primary",
			"backend", primaryName, "error", err)
		primaryName = fallbackName
		primary, err = registry.TTS.Create(fallbackName, speechCfg)
		if err != nil {
			log.Fatalf("no usable tts backend: %v", err)
		}
		return engine.NewSpeaker(engine.Provider{Name: primaryName, Engine: primary}, nil, cfg)
	}

	if fallbackName == "" || fallbackName == primaryName {
		return engine.NewSpeaker(engine.Provider{Name: primaryName, Engine: primary}, nil, cfg)
	}

	fallback, err := registry.TTS.Create(fallbackName, speechCfg)
	if err != nil {
		slog.Warn("fallback tts backend unavailable", "backend", fallbackName, "error", err)
		return engine.NewSpeaker(engine.Provider{Name: primaryName, Engine: primary}, nil, cfg)
	}

	return engine.NewSpeaker(
		engine.Provider{Name: primaryName, Engine: primary},
		&engine.Provider{Name: fallbackName, Engine: fallback},
		cfg,
	)
}
