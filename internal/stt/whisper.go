package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"agrox/internal/logging"
)

// WhisperProvider implements STT against any OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI, faster-whisper-server, LocalAI).
type WhisperProvider struct {
	client *openai.Client
	model  string
}

// NewWhisperProvider creates a Whisper provider. apiKey may be empty for
// local servers.
func NewWhisperProvider(baseURL, apiKey, model string) *WhisperProvider {
	if apiKey == "" {
		apiKey = "local"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}

	return &WhisperProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name returns the provider name
func (p *WhisperProvider) Name() string {
	return "whisper"
}

// Transcribe uploads the audio file and returns the recognized text.
func (p *WhisperProvider) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	log := logging.For("stt")
	start := time.Now()

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	log.Debug("Calling Whisper transcription", "path", audioPath, "bytes", info.Size())

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		log.Warn("Whisper request failed", "error", err)
		return &Result{Provider: p.Name()}, fmt.Errorf("whisper transcription failed: %w", err)
	}

	raw, _ := json.Marshal(resp)
	transcript := strings.TrimSpace(resp.Text)
	if transcript == "" {
		return &Result{
			Provider:    p.Name(),
			RawResponse: string(raw),
		}, fmt.Errorf("empty transcript returned")
	}

	log.Info("Transcription successful",
		"provider", p.Name(),
		"language", resp.Language,
		"length", len(transcript),
		"duration", time.Since(start))

	return &Result{
		Transcript:  transcript,
		Language:    strings.ToLower(resp.Language),
		Confidence:  DefaultConfidence,
		Provider:    p.Name(),
		RawResponse: string(raw),
	}, nil
}
