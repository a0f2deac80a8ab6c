package stt

// DefaultConfidence is reported when the provider gives no score.
const DefaultConfidence = 0.9

// Result represents the result of a speech-to-text transcription
type Result struct {
	Transcript string // The transcribed text
	// Language is the provider's language hint ("english", "hi-in", ...),
	// empty when the provider does not report one.
	Language    string
	Confidence  float64 // Confidence score (0.0-1.0)
	Provider    string  // The provider used (e.g., "whisper", "google")
	RawResponse string  // Raw response from the provider (for debugging/logging)
	Retried     bool    // True when the text came from the normalized retry
}
