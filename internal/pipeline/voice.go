package pipeline

import (
	"context"
	"io"
	"strings"
	"time"

	"agrox/internal/ai"
	"agrox/internal/logging"
	"agrox/internal/metrics"
	"agrox/internal/model"
	"agrox/internal/storage"
	"agrox/internal/stt"
	"agrox/internal/tts"
)

// SpeechTranscriber turns a recorded question into text.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, path string) (*stt.Result, error)
}

// Responder answers a question. It always returns a reply.
type Responder interface {
	Available() bool
	Answer(ctx context.Context, question string, dc ai.DiseaseContext, lang ai.Language) ai.Reply
}

// SpeechSynthesizer writes spoken audio for text.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, lang ai.Language, w io.Writer) error
}

// AudioPrefix is the URL path answer audio is served under.
const AudioPrefix = "/audio/"

// Voice answers spoken questions: transcribe, detect language, ask the
// advisor and speak the answer.
type Voice struct {
	transcriber SpeechTranscriber
	responder   Responder
	synthesizer SpeechSynthesizer
	audio       *storage.AudioStore
	metrics     *metrics.Metrics
	tempDir     string
	maxBytes    int64
	now         func() time.Time
}

// NewVoice wires the voice flow. A nil synthesizer or audio store gives
// text-only answers.
func NewVoice(t SpeechTranscriber, r Responder, s SpeechSynthesizer, audio *storage.AudioStore,
	m *metrics.Metrics, tempDir string, maxBytes int64) *Voice {
	return &Voice{
		transcriber: t,
		responder:   r,
		synthesizer: s,
		audio:       audio,
		metrics:     m,
		tempDir:     tempDir,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

// Handle answers the question recorded in data. The temporary copy of the
// recording is removed before Handle returns.
func (v *Voice) Handle(ctx context.Context, data []byte, filename string) (*model.VoiceAnswer, *PipelineError) {
	answer, perr := v.handle(ctx, data, filename)
	if perr != nil {
		v.metrics.RecordPipeline("voice", string(perr.Kind))
		return nil, perr
	}
	v.metrics.RecordPipeline("voice", "ok")
	return answer, nil
}

func (v *Voice) handle(ctx context.Context, data []byte, filename string) (*model.VoiceAnswer, *PipelineError) {
	log := logging.For("voice")

	if len(data) == 0 {
		return nil, newError(KindNoFile, MsgEmptyAudio, nil)
	}
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return nil, newError(KindTooLarge, TooLargeMessage("Audio", v.maxBytes), nil)
	}
	if filename == "" {
		filename = "recording.webm"
	}

	path, cleanup, err := storage.WriteTemp(v.tempDir, filename, data)
	if err != nil {
		log.Error("Failed to store recording", "error", err)
		return nil, newError(KindInternal, MsgAudioFailed, err)
	}
	defer cleanup()

	res, err := v.transcriber.Transcribe(ctx, path)
	if err != nil {
		log.Warn("Transcription failed", "bytes", len(data), "error", err)
		return nil, newError(KindTranscriptionFailed, MsgNoSpeech, err)
	}
	if res.Retried {
		v.metrics.RecordTranscriptionRetry()
	}
	question := strings.TrimSpace(res.Transcript)
	lang := ai.DetectLanguage(question)
	log.Info("Question transcribed", "provider", res.Provider, "language", lang, "retried", res.Retried)

	reply := v.responder.Answer(ctx, question, ai.DiseaseContext{}, lang)
	if reply.Source == ai.SourceFallback {
		log.Warn("Answering with fallback text", "kind", KindAdvisoryServiceUnavailable, "language", lang)
	}

	return &model.VoiceAnswer{
		Transcription: question,
		Language:      string(lang),
		Response:      reply.Text,
		Source:        string(reply.Source),
		AudioURL:      v.speak(ctx, reply.Text, lang),
		Timestamp:     v.now().Format(model.TimestampLayout),
	}, nil
}

// speak stores spoken audio for text and returns its URL, or nil when no
// audio could be produced.
func (v *Voice) speak(ctx context.Context, text string, lang ai.Language) *string {
	if v.synthesizer == nil || v.audio == nil {
		return nil
	}
	name, err := v.audio.Save(tts.Format, func(w io.Writer) error {
		return v.synthesizer.Synthesize(ctx, text, lang, w)
	})
	if err != nil {
		logging.For("voice").Warn("Speech synthesis failed, answering with text only",
			"kind", KindSynthesisFailed, "language", lang, "error", err)
		return nil
	}
	url := AudioPrefix + name
	return &url
}
