// Package classifier runs the pre-trained leaf image model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"agrox/internal/knowledge"
)

var (
	// ErrModelUnavailable is returned when no model was loaded at startup.
	ErrModelUnavailable = errors.New("classifier model not available")
	// ErrDecode is returned when the input is not a decodable image.
	ErrDecode = errors.New("cannot decode image")
)

// Tensor is a single NHWC RGB image with values in [0,1].
type Tensor struct {
	Data   []float32
	Width  int
	Height int
}

// Model produces one probability per class for a preprocessed image.
type Model interface {
	Predict(ctx context.Context, input Tensor) ([]float32, error)
	InputSize() (width, height int)
}

// Result is the top-1 prediction. Confidence is a percentage in [0,100]
// rounded to two decimals.
type Result struct {
	Label      knowledge.DiseaseID
	Index      int
	Confidence float64
}

// Classifier maps model outputs onto disease identifiers.
type Classifier struct {
	model  Model
	labels *knowledge.Base
}

func New(model Model, labels *knowledge.Base) *Classifier {
	return &Classifier{model: model, labels: labels}
}

// Ready reports whether a model is loaded.
func (c *Classifier) Ready() bool {
	return c != nil && c.model != nil
}

// InputSize returns the model input dimensions.
func (c *Classifier) InputSize() (int, int) {
	if !c.Ready() {
		return 0, 0
	}
	return c.model.InputSize()
}

// Classify runs the model and returns the arg-max class.
func (c *Classifier) Classify(ctx context.Context, input Tensor) (Result, error) {
	if !c.Ready() {
		return Result{}, ErrModelUnavailable
	}

	probs, err := c.model.Predict(ctx, input)
	if err != nil {
		return Result{}, fmt.Errorf("prediction failed: %w", err)
	}
	if len(probs) == 0 {
		return Result{}, fmt.Errorf("prediction failed: model returned no scores")
	}
	if len(probs) != c.labels.Len() {
		return Result{}, fmt.Errorf("prediction failed: model returned %d scores for %d classes", len(probs), c.labels.Len())
	}

	if !isDistribution(probs) {
		probs = softmax(probs)
	}

	idx, p := ArgMax(probs)
	label, _ := c.labels.ClassAt(idx)

	return Result{
		Label:      label,
		Index:      idx,
		Confidence: math.Round(clampPercent(float64(p)*100)*100) / 100,
	}, nil
}

// ArgMax returns the index and value of the largest element. Ties resolve to
// the lowest index.
func ArgMax(values []float32) (int, float32) {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best, values[best]
}

// isDistribution reports whether scores already look like softmax output.
func isDistribution(scores []float32) bool {
	var sum float64
	for _, s := range scores {
		if s < 0 || s > 1 || math.IsNaN(float64(s)) {
			return false
		}
		sum += float64(s)
	}
	return math.Abs(sum-1) < 1e-2
}

func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
