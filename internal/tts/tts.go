// Package tts converts advisor answers into playable speech.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"agrox/internal/ai"
	"agrox/internal/config"
	"agrox/internal/logging"
)

// Format is the audio container produced by Synthesize.
const Format = "mp3"

// maxInputRunes bounds the text sent to the speech endpoint.
const maxInputRunes = 4096

// ErrEmptyText is returned when there is nothing to speak.
var ErrEmptyText = errors.New("no text to synthesize")

// Synthesizer speaks text through an OpenAI-compatible /audio/speech
// endpoint (OpenAI, openedai-speech, LocalAI, Kokoro-FastAPI).
type Synthesizer struct {
	client *openai.Client
	model  string
	voices map[ai.Language]string
}

func New(cfg config.TTSConfig) *Synthesizer {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "local"
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	return &Synthesizer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		voices: map[ai.Language]string{
			ai.English:  cfg.VoiceEN,
			ai.Hindi:    cfg.VoiceHI,
			ai.Hinglish: cfg.VoiceHI,
		},
	}
}

// Voice returns the voice used for lang.
func (s *Synthesizer) Voice(lang ai.Language) string {
	if v, ok := s.voices[lang]; ok && v != "" {
		return v
	}
	return s.voices[ai.English]
}

// Synthesize writes speech for text to w in the language's voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, lang ai.Language, w io.Writer) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if r := []rune(text); len(r) > maxInputRunes {
		text = string(r[:maxInputRunes])
	}

	voice := s.Voice(lang)
	start := time.Now()

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	n, err := io.Copy(w, resp)
	if err != nil {
		return fmt.Errorf("failed to read speech audio: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("speech service returned no audio")
	}

	logging.For("tts").Debug("Speech synthesized",
		"language", lang,
		"voice", voice,
		"bytes", n,
		"duration", time.Since(start))
	return nil
}
