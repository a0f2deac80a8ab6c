// Package pipeline runs the leaf diagnosis and voice question flows.
package pipeline

import "fmt"

// Kind classifies a pipeline failure.
type Kind string

const (
	KindNoFile                     Kind = "no_file"
	KindUnsupportedType            Kind = "unsupported_type"
	KindTooLarge                   Kind = "too_large"
	KindModelUnavailable           Kind = "model_unavailable"
	KindPreprocessFailed           Kind = "preprocess_failed"
	KindPredictionFailed           Kind = "prediction_failed"
	KindTranscriptionFailed        Kind = "transcription_failed"
	KindAdvisoryServiceUnavailable Kind = "advisory_unavailable"
	KindSynthesisFailed            Kind = "synthesis_failed"
	KindInternal                   Kind = "internal"
)

// User-facing messages.
const (
	MsgNoImage          = "No image file uploaded"
	MsgNoFileSelected   = "No file selected"
	MsgUnsupportedImage = "Please upload a valid image file (PNG, JPG, JPEG, GIF)"
	MsgModelUnavailable = "AI model not available. Please try again later."
	MsgPreprocessFailed = "Error processing image. Please try another image."
	MsgPredictionFailed = "Error analyzing image. Please try again."
	MsgSaveFailed       = "Error saving uploaded image. Please try again."
	MsgEmptyAudio       = "Empty audio file received"
	MsgNoSpeech         = "Could not understand the audio. Please speak clearly and try again."
	MsgAudioFailed      = "Error processing audio. Please try again."
)

// PipelineError carries the failure kind, the message shown to the user and
// the underlying cause.
type PipelineError struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, msg string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: msg, Err: err}
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the request cannot be answered at all. Advisory and
// synthesis failures only degrade the answer.
func (k Kind) Fatal() bool {
	return k != KindAdvisoryServiceUnavailable && k != KindSynthesisFailed
}
