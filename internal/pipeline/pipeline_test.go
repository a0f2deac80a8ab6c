package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrox/internal/ai"
	"agrox/internal/classifier"
	"agrox/internal/knowledge"
	"agrox/internal/repository"
	"agrox/internal/storage"
	"agrox/internal/stt"
)

type fakeClassifier struct {
	ready  bool
	result classifier.Result
	err    error
	calls  int
	input  classifier.Tensor
}

func (f *fakeClassifier) Ready() bool { return f.ready }
func (f *fakeClassifier) InputSize() (int, int) { return 224, 224 }

func (f *fakeClassifier) Classify(_ context.Context, in classifier.Tensor) (classifier.Result, error) {
	f.calls++
	f.input = in
	return f.result, f.err
}

// stubModel puts all probability mass on one class.
type stubModel struct {
	classes int
	winner  int
}

func (m stubModel) InputSize() (int, int) { return 32, 32 }

func (m stubModel) Predict(context.Context, classifier.Tensor) ([]float32, error) {
	out := make([]float32, m.classes)
	for i := range out {
		out[i] = 0.01
	}
	out[m.winner] = 1 - 0.01*float32(m.classes-1)
	return out, nil
}

func greenJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newTestInference(t *testing.T, c ImageClassifier) (*Inference, *storage.Uploads, repository.DiagnosisRepository) {
	t.Helper()
	kb, err := knowledge.Default()
	require.NoError(t, err)
	uploads, err := storage.NewUploads(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	history := repository.NewMemoryRepository()
	p := NewInference(c, kb, uploads, history, nil, 16<<20, 0)
	p.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }
	return p, uploads, history
}

func TestInferenceDiagnosesLeaf(t *testing.T) {
	fc := &fakeClassifier{ready: true, result: classifier.Result{Label: "Tomato__Late_blight", Confidence: 97.31}}
	p, _, history := newTestInference(t, fc)

	resp, perr := p.Handle(context.Background(), greenJPEG(t, 50, 50), "leaf.jpg")
	require.Nil(t, perr)

	assert.Regexp(t, `^uploads/[0-9a-f]{32}_leaf\.jpg$`, resp.ImagePath)
	assert.Equal(t, "Tomato__Late_blight", resp.DiseaseID)
	assert.Equal(t, "Tomato → Late_blight", resp.DiseaseName)
	assert.Equal(t, 97.31, resp.Confidence)
	assert.Equal(t, "2025-06-01 09:30:00", resp.Timestamp)
	assert.NotEmpty(t, resp.Treatment)
	assert.NotEmpty(t, resp.Steps)

	assert.Equal(t, 224, fc.input.Width)
	assert.Len(t, fc.input.Data, 224*224*3)

	recent, err := history.ListRecent(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, resp.ImagePath, recent[0].ImagePath)
}

func TestInferenceWithRealClassifier(t *testing.T) {
	kb, err := knowledge.Default()
	require.NoError(t, err)
	c := classifier.New(stubModel{classes: kb.Len(), winner: 3}, kb)
	p, _, _ := newTestInference(t, c)

	resp, perr := p.Handle(context.Background(), greenJPEG(t, 50, 50), "leaf.jpg")
	require.Nil(t, perr)

	want, _ := kb.ClassAt(3)
	assert.Equal(t, string(want), resp.DiseaseID)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 100.0)
	assert.Equal(t, resp.Confidence, float64(int(resp.Confidence*100+0.5))/100)
}

func TestInferenceUnknownLabelUsesFallback(t *testing.T) {
	fc := &fakeClassifier{ready: true, result: classifier.Result{Label: "Banana__Mystery", Confidence: 51}}
	p, _, _ := newTestInference(t, fc)

	resp, perr := p.Handle(context.Background(), greenJPEG(t, 20, 20), "leaf.png")
	require.Nil(t, perr)
	assert.Equal(t, knowledge.Fallback.Treatment, resp.Treatment)
	assert.Equal(t, knowledge.Fallback.Pesticide, resp.Pesticide)
	assert.Equal(t, knowledge.Fallback.Steps, resp.Steps)
	assert.Equal(t, knowledge.Fallback.Links, resp.Links)
}

func TestInferenceRejections(t *testing.T) {
	tests := []struct {
		name     string
		ready    bool
		data     []byte
		filename string
		kind     Kind
		msg      string
	}{
		{"no filename", true, []byte("x"), "", KindNoFile, MsgNoFileSelected},
		{"no bytes", true, nil, "leaf.jpg", KindNoFile, MsgNoImage},
		{"no bytes before model check", false, nil, "leaf.jpg", KindNoFile, MsgNoImage},
		{"bad extension", true, []byte("x"), "leaf.bmp", KindUnsupportedType, MsgUnsupportedImage},
		{"no extension", true, []byte("x"), "leaf", KindUnsupportedType, MsgUnsupportedImage},
		{"model missing", false, []byte("x"), "leaf.jpg", KindModelUnavailable, MsgModelUnavailable},
		{"too large", true, make([]byte, 17<<20), "leaf.jpg", KindTooLarge, "Image file too large (max 16 MB)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClassifier{ready: tt.ready}
			p, uploads, _ := newTestInference(t, fc)

			resp, perr := p.Handle(context.Background(), tt.data, tt.filename)
			assert.Nil(t, resp)
			require.NotNil(t, perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.msg, perr.Message)
			assert.Zero(t, fc.calls)

			entries, err := os.ReadDir(uploads.Dir())
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestInferencePreprocessFailureKeepsUpload(t *testing.T) {
	fc := &fakeClassifier{ready: true}
	p, uploads, _ := newTestInference(t, fc)

	_, perr := p.Handle(context.Background(), []byte("not an image"), "leaf.jpg")
	require.NotNil(t, perr)
	assert.Equal(t, KindPreprocessFailed, perr.Kind)
	assert.ErrorIs(t, perr, classifier.ErrDecode)
	assert.Zero(t, fc.calls)

	entries, err := os.ReadDir(uploads.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInferenceRejectsImageAbovePixelLimit(t *testing.T) {
	fc := &fakeClassifier{ready: true}
	p, _, history := newTestInference(t, fc)
	p.maxPixels = 40 * 40

	_, perr := p.Handle(context.Background(), greenJPEG(t, 50, 50), "leaf.jpg")
	require.NotNil(t, perr)
	assert.Equal(t, KindPreprocessFailed, perr.Kind)
	assert.Equal(t, MsgPreprocessFailed, perr.Message)
	assert.ErrorIs(t, perr, classifier.ErrDecode)
	assert.Zero(t, fc.calls)

	recent, err := history.ListRecent(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestInferencePredictionFailure(t *testing.T) {
	fc := &fakeClassifier{ready: true, err: errors.New("interpreter exploded")}
	p, _, history := newTestInference(t, fc)

	_, perr := p.Handle(context.Background(), greenJPEG(t, 10, 10), "leaf.gif")
	require.NotNil(t, perr)
	assert.Equal(t, KindPredictionFailed, perr.Kind)
	assert.Equal(t, MsgPredictionFailed, perr.Message)
	assert.ErrorContains(t, perr, "interpreter exploded")

	recent, err := history.ListRecent(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestPipelineErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindInternal, "Something broke", cause)

	var target *PipelineError
	require.True(t, errors.As(error(err), &target))
	assert.Equal(t, KindInternal, target.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal: Something broke: boom", err.Error())
	assert.Equal(t, "no_file: Empty audio file received", newError(KindNoFile, MsgEmptyAudio, nil).Error())

	assert.True(t, KindTranscriptionFailed.Fatal())
	assert.False(t, KindSynthesisFailed.Fatal())
	assert.False(t, KindAdvisoryServiceUnavailable.Fatal())
}

type fakeTranscriber struct {
	result *stt.Result
	err    error
	seen   []byte
	path   string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (*stt.Result, error) {
	f.path = path
	f.seen, _ = os.ReadFile(path)
	return f.result, f.err
}

type fakeResponder struct {
	available bool
	question  string
	lang      ai.Language
}

func (f *fakeResponder) Available() bool { return f.available }

func (f *fakeResponder) Answer(_ context.Context, question string, _ ai.DiseaseContext, lang ai.Language) ai.Reply {
	f.question = question
	f.lang = lang
	if !f.available {
		return ai.Reply{Text: "offline", Source: ai.SourceFallback, Language: lang}
	}
	return ai.Reply{Text: "Spray neem oil weekly.", Source: ai.SourceLLM, Language: lang}
}

type fakeSynthesizer struct {
	err  error
	lang ai.Language
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string, lang ai.Language, w io.Writer) error {
	f.lang = lang
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "mp3:"+text)
	return err
}

type voiceFixture struct {
	voice   *Voice
	tempDir string
	audio   *storage.AudioStore
}

func newTestVoice(t *testing.T, tr SpeechTranscriber, r Responder, s SpeechSynthesizer) voiceFixture {
	t.Helper()
	tempDir := t.TempDir()
	audio, err := storage.NewAudioStore(t.TempDir(), time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(audio.Close)

	v := NewVoice(tr, r, s, audio, nil, tempDir, 10<<20)
	v.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }
	return voiceFixture{voice: v, tempDir: tempDir, audio: audio}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVoiceAnswersQuestion(t *testing.T) {
	tr := &fakeTranscriber{result: &stt.Result{Transcript: " टमाटर के पत्ते पीले क्यों हैं ", Provider: "whisper"}}
	r := &fakeResponder{available: true}
	s := &fakeSynthesizer{}
	fx := newTestVoice(t, tr, r, s)

	answer, perr := fx.voice.Handle(context.Background(), []byte("RIFF-audio"), "question.wav")
	require.Nil(t, perr)

	assert.Equal(t, "टमाटर के पत्ते पीले क्यों हैं", answer.Transcription)
	assert.Equal(t, "hi", answer.Language)
	assert.Equal(t, "Spray neem oil weekly.", answer.Response)
	assert.Equal(t, "llm", answer.Source)
	assert.Equal(t, "2025-06-01 09:30:00", answer.Timestamp)
	assert.Equal(t, ai.Hindi, r.lang)
	assert.Equal(t, ai.Hindi, s.lang)

	require.NotNil(t, answer.AudioURL)
	assert.Regexp(t, `^/audio/[0-9a-f]{32}\.mp3$`, *answer.AudioURL)

	name := (*answer.AudioURL)[len(AudioPrefix):]
	path, release, err := fx.audio.Take(name)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mp3:Spray neem oil weekly.", string(data))
	release()

	assert.Equal(t, "RIFF-audio", string(tr.seen))
	assert.Equal(t, ".wav", filepath.Ext(tr.path))
	assertDirEmpty(t, fx.tempDir)
}

func TestVoiceSynthesisFailureDegradesToText(t *testing.T) {
	tr := &fakeTranscriber{result: &stt.Result{Transcript: "why are my leaves yellow"}}
	fx := newTestVoice(t, tr, &fakeResponder{available: true}, &fakeSynthesizer{err: errors.New("tts down")})

	answer, perr := fx.voice.Handle(context.Background(), []byte("audio"), "q.webm")
	require.Nil(t, perr)
	assert.Nil(t, answer.AudioURL)
	assert.Equal(t, "en", answer.Language)
	assert.Zero(t, fx.audio.Len())
	assertDirEmpty(t, fx.tempDir)
}

func TestVoiceWithoutSynthesizer(t *testing.T) {
	tr := &fakeTranscriber{result: &stt.Result{Transcript: "mere tamatar ke patte पीले hain"}}
	r := &fakeResponder{}
	fx := newTestVoice(t, tr, r, nil)

	answer, perr := fx.voice.Handle(context.Background(), []byte("audio"), "")
	require.Nil(t, perr)
	assert.Nil(t, answer.AudioURL)
	assert.Equal(t, "hinglish", answer.Language)
	assert.Equal(t, "fallback", answer.Source)
	assert.Equal(t, ".webm", filepath.Ext(tr.path))
}

func TestVoiceRejections(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
		kind Kind
		msg  string
	}{
		{"empty", nil, nil, KindNoFile, MsgEmptyAudio},
		{"too large", make([]byte, 10<<20+1), nil, KindTooLarge, "Audio file too large (max 10 MB)"},
		{"no speech", []byte("noise"), stt.ErrNoSpeech, KindTranscriptionFailed, MsgNoSpeech},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranscriber{err: tt.err}
			r := &fakeResponder{available: true}
			fx := newTestVoice(t, tr, r, &fakeSynthesizer{})

			answer, perr := fx.voice.Handle(context.Background(), tt.data, "q.webm")
			assert.Nil(t, answer)
			require.NotNil(t, perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.msg, perr.Message)
			assert.Empty(t, r.question)
			assertDirEmpty(t, fx.tempDir)
		})
	}
}
