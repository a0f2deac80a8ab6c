package stt

import (
	"context"
	"fmt"

	"agrox/internal/config"
	"agrox/internal/logging"
)

// NewProvider creates the STT provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.STTConfig) (Provider, error) {
	log := logging.For("stt")

	switch cfg.Provider {
	case "", "whisper":
		log.Info("Creating Whisper STT provider", "base_url", cfg.WhisperBaseURL, "model", cfg.WhisperModel)
		return NewWhisperProvider(cfg.WhisperBaseURL, cfg.WhisperAPIKey, cfg.WhisperModel), nil
	case "google":
		return createGoogleProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported STT provider: %s. Supported: whisper, google", cfg.Provider)
	}
}

// createGoogleProvider creates a Google STT provider. The project id is
// optional when an API key is used.
func createGoogleProvider(ctx context.Context, cfg config.STTConfig) (Provider, error) {
	if !isGoogleAPIKey(cfg.GoogleKeyFile) && cfg.GoogleKeyFile != "" && cfg.GoogleProjectID == "" {
		return nil, fmt.Errorf("GOOGLE_STT_PROJECT_ID is required when using a service account")
	}

	logging.For("stt").Info("Creating Google STT provider", "project", cfg.GoogleProjectID)
	return NewGoogleProvider(ctx, cfg.GoogleProjectID, cfg.GoogleKeyFile)
}
