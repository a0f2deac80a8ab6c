package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agrox/internal/classifier"
	"agrox/internal/knowledge"
	"agrox/internal/logging"
	"agrox/internal/metrics"
	"agrox/internal/model"
	"agrox/internal/repository"
	"agrox/internal/storage"
)

// ImageClassifier is the part of *classifier.Classifier the pipeline uses.
type ImageClassifier interface {
	Ready() bool
	InputSize() (width, height int)
	Classify(ctx context.Context, input classifier.Tensor) (classifier.Result, error)
}

// Inference turns an uploaded leaf image into a diagnosis.
type Inference struct {
	classifier ImageClassifier
	knowledge  *knowledge.Base
	uploads    *storage.Uploads
	history    repository.DiagnosisRepository
	metrics    *metrics.Metrics
	maxBytes   int64
	maxPixels  int64
	now        func() time.Time
}

// NewInference wires the diagnosis flow. history and m may be nil; a
// non-positive maxBytes disables the size check and a non-positive
// maxPixels uses classifier.DefaultMaxPixels.
func NewInference(c ImageClassifier, kb *knowledge.Base, uploads *storage.Uploads,
	history repository.DiagnosisRepository, m *metrics.Metrics, maxBytes, maxPixels int64) *Inference {
	return &Inference{
		classifier: c,
		knowledge:  kb,
		uploads:    uploads,
		history:    history,
		metrics:    m,
		maxBytes:   maxBytes,
		maxPixels:  maxPixels,
		now:        time.Now,
	}
}

// ModelLoaded reports whether classification is possible.
func (p *Inference) ModelLoaded() bool {
	return p.classifier != nil && p.classifier.Ready()
}

// Handle validates, stores and classifies one image. The stored upload is
// kept even when a later step fails.
func (p *Inference) Handle(ctx context.Context, data []byte, filename string) (*model.DiagnosisResponse, *PipelineError) {
	resp, perr := p.handle(ctx, data, filename)
	if perr != nil {
		p.metrics.RecordPipeline("inference", string(perr.Kind))
		return nil, perr
	}
	p.metrics.RecordPipeline("inference", "ok")
	return resp, nil
}

func (p *Inference) handle(ctx context.Context, data []byte, filename string) (*model.DiagnosisResponse, *PipelineError) {
	log := logging.For("inference")

	switch {
	case filename == "":
		return nil, newError(KindNoFile, MsgNoFileSelected, nil)
	case len(data) == 0:
		return nil, newError(KindNoFile, MsgNoImage, nil)
	case !storage.AllowedFile(filename):
		return nil, newError(KindUnsupportedType, MsgUnsupportedImage, storage.ErrUnsupportedType)
	case p.maxBytes > 0 && int64(len(data)) > p.maxBytes:
		return nil, newError(KindTooLarge, TooLargeMessage("Image", p.maxBytes), nil)
	case !p.ModelLoaded():
		return nil, newError(KindModelUnavailable, MsgModelUnavailable, classifier.ErrModelUnavailable)
	}

	asset, err := p.uploads.Save(filename, data)
	if err != nil {
		log.Error("Failed to store upload", "filename", filename, "error", err)
		return nil, newError(KindInternal, MsgSaveFailed, err)
	}
	log.Info("Image saved", "file", asset.Name, "bytes", asset.Size)

	width, height := p.classifier.InputSize()
	tensor, err := classifier.Preprocess(data, width, height, p.maxPixels)
	if err != nil {
		log.Warn("Failed to preprocess image", "file", asset.Name, "error", err)
		return nil, newError(KindPreprocessFailed, MsgPreprocessFailed, err)
	}

	start := time.Now()
	result, err := p.classifier.Classify(ctx, tensor)
	if err != nil {
		if errors.Is(err, classifier.ErrModelUnavailable) {
			return nil, newError(KindModelUnavailable, MsgModelUnavailable, err)
		}
		log.Error("Classification failed", "file", asset.Name, "error", err)
		return nil, newError(KindPredictionFailed, MsgPredictionFailed, err)
	}
	p.metrics.ObserveClassification(time.Since(start), string(result.Label))

	record, found := p.knowledge.Lookup(result.Label)
	if !found {
		log.Warn("No treatment entry for predicted class, using fallback", "label", result.Label)
	}
	log.Info("Image classified", "label", result.Label, "confidence", result.Confidence)

	now := p.now()
	resp := &model.DiagnosisResponse{
		DiseaseID:   string(result.Label),
		DiseaseName: result.Label.DisplayName(),
		Confidence:  result.Confidence,
		ImagePath:   asset.WebPath,
		Treatment:   record.Treatment,
		Prevention:  record.Prevention,
		Pesticide:   record.Pesticide,
		Dosage:      record.Dosage,
		Cost:        record.Cost,
		Steps:       record.Steps,
		Timing:      record.Timing,
		Safety:      record.Safety,
		Links:       record.Links,
		Timestamp:   now.Format(model.TimestampLayout),
	}

	p.record(ctx, resp, now)
	return resp, nil
}

func (p *Inference) record(ctx context.Context, resp *model.DiagnosisResponse, at time.Time) {
	if p.history == nil {
		return
	}
	err := p.history.Create(ctx, &model.Diagnosis{
		DiseaseID:   resp.DiseaseID,
		DiseaseName: resp.DiseaseName,
		Confidence:  resp.Confidence,
		ImagePath:   resp.ImagePath,
		CreatedAt:   at.UTC(),
	})
	if err != nil {
		logging.For("inference").Warn("Failed to record diagnosis", "label", resp.DiseaseID, "error", err)
	}
}

// TooLargeMessage is the message for a payload over limit bytes.
func TooLargeMessage(what string, limit int64) string {
	if limit < 1<<20 {
		return fmt.Sprintf("%s file too large (max %d KB)", what, limit>>10)
	}
	return fmt.Sprintf("%s file too large (max %d MB)", what, limit>>20)
}
