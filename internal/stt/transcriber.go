package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"agrox/internal/logging"
)

// ErrNoSpeech is returned when neither attempt produced usable text.
var ErrNoSpeech = errors.New("could not understand the audio")

// normalizer produces a resampled copy of an audio file.
type normalizer interface {
	Normalize(ctx context.Context, src string) (string, error)
}

// Transcriber wraps a Provider with the single normalized retry: the audio is
// first sent as recorded, and only when that yields no usable text it is
// converted to 16 kHz mono PCM and sent once more.
type Transcriber struct {
	provider   Provider
	normalizer normalizer
}

func NewTranscriber(provider Provider, n *Normalizer) *Transcriber {
	return &Transcriber{provider: provider, normalizer: n}
}

// Name returns the wrapped provider's name.
func (t *Transcriber) Name() string {
	return t.provider.Name()
}

// Transcribe returns the recognized text for the audio at path.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (*Result, error) {
	log := logging.For("stt")

	res, firstErr := t.provider.Transcribe(ctx, path)
	if firstErr == nil && usable(res) {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("Direct transcription gave no text, retrying with normalized audio", "error", firstErr)

	normalized, err := t.normalizer.Normalize(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: normalization failed: %w", ErrNoSpeech, errors.Join(firstErr, err))
	}
	defer os.Remove(normalized)

	res, err = t.provider.Transcribe(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSpeech, err)
	}
	if !usable(res) {
		return nil, ErrNoSpeech
	}
	res.Retried = true
	return res, nil
}

func usable(r *Result) bool {
	return r != nil && strings.TrimSpace(r.Transcript) != ""
}
