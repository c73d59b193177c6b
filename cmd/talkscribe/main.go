package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	tsconfig "github.com/talkscribe/talkscribe/config"
	"github.com/talkscribe/talkscribe/internal/export"
	"github.com/talkscribe/talkscribe/internal/httpapi"
	"github.com/talkscribe/talkscribe/internal/httputil"
	"github.com/talkscribe/talkscribe/internal/identify"
	"github.com/talkscribe/talkscribe/internal/pipeline"
	"github.com/talkscribe/talkscribe/internal/session"
	"github.com/talkscribe/talkscribe/internal/speaker"
	"github.com/talkscribe/talkscribe/internal/speech/engine"
	"github.com/talkscribe/talkscribe/internal/speech/registry"
	"github.com/talkscribe/talkscribe/internal/store"
	"github.com/talkscribe/talkscribe/internal/ws"
	"github.com/talkscribe/talkscribe/pkg/events"
	"github.com/talkscribe/talkscribe/pkg/webhook"

	// Register speech backends via init().
	_ "github.com/talkscribe/talkscribe/internal/speech/backends/pyannote"
	_ "github.com/talkscribe/talkscribe/internal/speech/backends/whisperrest"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[tsconfig.TalkscribeConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("talkscribe"),
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

	pub := events.NewPublisher(srv.QueueManager(), "talkscribe", eventRef)

	// --- Speech engines ---
	engineConfig := map[string]string{
		"model":            cfg.WhisperModel,
		"whisper_url":      cfg.WhisperURL,
		"whisper_timeout":  fmt.Sprintf("%ds", cfg.WhisperTimeoutSec),
		"pyannote_url":     cfg.PyannoteURL,
		"pyannote_timeout": fmt.Sprintf("%ds", cfg.PyannoteTimeoutSec),
	}

	transcriber, err := registry.Transcribers.Create(cfg.TranscriberBackend, engineConfig)
	if err != nil {
		log.Fatalf("creating transcriber %q: %v", cfg.TranscriberBackend, err)
	}
	defer transcriber.Close()

	var diarizer engine.Diarizer
	if d, err := registry.Diarizers.Create(cfg.DiarizerBackend, engineConfig); err == nil {
		diarizer = d
		defer d.Close()
	} else {
		log.Printf("diarizer %q unavailable, falling back to single-speaker labels: %v", cfg.DiarizerBackend, err)
	}

	var embedder engine.EmbeddingExtractor
	if e, err := registry.Embedders.Create(cfg.EmbedderBackend, engineConfig); err == nil {
		embedder = e
		defer e.Close()
	} else {
		log.Printf("embedder %q unavailable, speaker identification disabled: %v", cfg.EmbedderBackend, err)
	}

	// --- Persistence ---
	dbPool := srv.DatastoreManager().GetPool(ctx, "__default__pool_name__")
	sessionRepo := store.NewSessionRepository(dbPool)
	speakerRepo := store.NewSpeakerRepository(dbPool)

	// --- Speaker identification ---
	speakerRegistry := identify.NewRegistry(cfg.SpeakerMatchThreshold)
	speakerSvc := speaker.NewService(speakerRepo, embedder, speakerRegistry, pub, cfg.SampleRate)
	if err := speakerSvc.WarmLoad(ctx); err != nil {
		log.Printf("warning: loading speaker profiles: %v", err)
	}

	// --- Ingest pipeline & sessions ---
	ingest := pipeline.New(transcriber, diarizer, embedder, speakerRegistry)
	hub := ws.NewHub()
	sessionSvc := session.NewService(sessionRepo, ingest, hub, pub)

	// --- Export ---
	templates := export.NewTemplateLoader(cfg.TemplateDir)
	if err := templates.LoadAll(); err != nil {
		log.Printf("warning: loading export templates: %v", err)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		if err := templates.WatchAndReload(done); err != nil {
			log.Printf("warning: template watcher stopped: %v", err)
		}
	}()
	exportSvc := export.NewService(sessionRepo, templates, cfg.ExportDir, pub)

	// --- Webhooks ---
	whRepo := webhook.NewRepository(dbPool)
	whDeliverer := webhook.NewDeliverer(whRepo, webhook.DelivererConfig{
		MaxRetries:        cfg.WebhookMaxRetries,
		TimeoutSec:        cfg.WebhookTimeoutSec,
		BackoffInitialSec: cfg.WebhookBackoffSec,
		BackoffMaxSec:     cfg.WebhookBackoffMax,
	}, pool)
	whSubscriber := &webhook.Subscriber{
		Repo:      whRepo,
		Deliverer: whDeliverer,
		Pool:      pool,
	}

	// --- HTTP surface ---
	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(hub, sessionSvc, speakerSvc, exportSvc, pool))
	httpapi.NewHandler(sessionSvc, speakerSvc, exportSvc, whRepo).RegisterRoutes(mux)

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".webhooks", eventURL, whSubscriber),
		frame.WithHTTPHandler(httputil.H2CHandler(httputil.LoggingMiddleware(mux))),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
