package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"agrox/internal/ai"
	"agrox/internal/api"
	"agrox/internal/classifier"
	"agrox/internal/config"
	"agrox/internal/knowledge"
	"agrox/internal/logging"
	"agrox/internal/metrics"
	"agrox/internal/pipeline"
	"agrox/internal/repository"
	"agrox/internal/storage"
	"agrox/internal/stt"
	"agrox/internal/tts"
)

// app owns every long-lived resource built at startup.
type app struct {
	engine      *gin.Engine
	modelLoaded bool
	sttProvider string

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logging.For("main")
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	kb, err := knowledge.Default()
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	// A missing model is not fatal: every diagnosis fails fast instead.
	var clf *classifier.Classifier
	if model, err := loadModel(cfg, kb); err != nil {
		log.Error("AI model not available, diagnosis disabled", "path", cfg.ModelPath, "error", err)
	} else {
		a.closers = append(a.closers, model.Close)
		clf = classifier.New(model, kb)
		a.modelLoaded = true
	}

	provider, err := stt.NewProvider(ctx, cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("failed to create STT provider: %w", err)
	}
	transcriber := stt.NewTranscriber(provider, &stt.Normalizer{
		FFmpegPath: cfg.STT.FFmpegPath,
		TempDir:    cfg.TempDir,
	})
	a.sttProvider = transcriber.Name()

	advisor := ai.NewAdvisor(cfg.LLM, m)
	advisor.Start(ctx)

	uploads, err := storage.NewUploads(cfg.UploadFolder)
	if err != nil {
		return nil, err
	}
	audio, err := storage.NewAudioStore(cfg.AudioDir, cfg.AudioTTL, m)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, audio.Close)

	history := openHistory(cfg)
	a.closers = append(a.closers, func() {
		if err := history.Close(); err != nil {
			log.Warn("Failed to close diagnosis history", "error", err)
		}
	})

	server, err := api.NewServer(api.Deps{
		Inference:     pipeline.NewInference(clf, kb, uploads, history, m, cfg.MaxContentLength, cfg.MaxPixels),
		Voice:         pipeline.NewVoice(transcriber, advisor, tts.New(cfg.TTS), audio, m, cfg.TempDir, cfg.MaxAudioBytes),
		Advisor:       advisor,
		Knowledge:     kb,
		Uploads:       uploads,
		Audio:         audio,
		History:       history,
		Metrics:       m,
		SessionSecret: cfg.SessionSecret,
		MaxImageBytes: cfg.MaxContentLength,
		MaxAudioBytes: cfg.MaxAudioBytes,
	})
	if err != nil {
		return nil, err
	}
	a.engine = server.NewEngine()

	ok = true
	return a, nil
}

func loadModel(cfg *config.Config, kb *knowledge.Base) (*classifier.TFLite, error) {
	model, err := classifier.LoadTFLite(cfg.ModelPath, cfg.ModelThreads)
	if err != nil {
		return nil, err
	}
	if model.Classes() != kb.Len() {
		model.Close()
		return nil, fmt.Errorf("model has %d classes but the disease table has %d", model.Classes(), kb.Len())
	}
	if w, h := model.InputSize(); w != cfg.ImageSize || h != cfg.ImageSize {
		logging.For("main").Warn("Model input size differs from IMAGE_SIZE, using the model's",
			"model_width", w, "model_height", h, "image_size", cfg.ImageSize)
	}
	return model, nil
}

// openHistory uses sqlite when DATABASE_PATH is set and falls back to
// process memory otherwise or when the database cannot be opened.
func openHistory(cfg *config.Config) repository.DiagnosisRepository {
	log := logging.For("main")
	if cfg.DatabasePath == "" {
		log.Info("DATABASE_PATH not set, keeping diagnosis history in memory")
		return repository.NewMemoryRepository()
	}
	repo, err := repository.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		log.Warn("Failed to open diagnosis database, continuing with in-memory history",
			"path", cfg.DatabasePath, "error", err)
		return repository.NewMemoryRepository()
	}
	log.Info("Diagnosis history database ready", "path", cfg.DatabasePath)
	return repo
}
