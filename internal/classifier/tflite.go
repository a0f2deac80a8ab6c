package classifier

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	tflite "github.com/tphakala/go-tflite"

	"agrox/internal/logging"
)

// TFLite runs a TensorFlow Lite image model. The interpreter is not safe for
// concurrent use, so Predict serializes calls.
type TFLite struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	width       int
	height      int
	classes     int
}

// LoadTFLite loads the model at path. threads <= 0 uses all CPUs.
func LoadTFLite(path string, threads int) (*TFLite, error) {
	log := logging.For("classifier")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", path)
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		logging.For("classifier").Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("tensor allocation failed")
	}

	t := &TFLite{model: model, options: options, interpreter: interpreter}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 || input.Dim(3) != 3 {
		t.Close()
		return nil, fmt.Errorf("model input must be a [1,H,W,3] tensor")
	}
	t.height = input.Dim(1)
	t.width = input.Dim(2)

	output := interpreter.GetOutputTensor(0)
	if output == nil {
		t.Close()
		return nil, fmt.Errorf("model has no output tensor")
	}
	t.classes = output.Dim(output.NumDims() - 1)

	log.Info("Image model loaded",
		"path", path,
		"input_width", t.width,
		"input_height", t.height,
		"classes", t.classes,
		"threads", threads)

	return t, nil
}

func (t *TFLite) InputSize() (int, int) {
	return t.width, t.height
}

// Classes returns the size of the output layer.
func (t *TFLite) Classes() int {
	return t.classes
}

// Predict copies the tensor into the interpreter and returns the scores.
func (t *TFLite) Predict(ctx context.Context, input Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.Width != t.width || input.Height != t.height {
		return nil, fmt.Errorf("input is %dx%d, model expects %dx%d", input.Width, input.Height, t.width, t.height)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter == nil {
		return nil, ErrModelUnavailable
	}

	in := t.interpreter.GetInputTensor(0)
	buf := in.Float32s()
	if len(buf) != len(input.Data) {
		return nil, fmt.Errorf("input tensor holds %d values, got %d", len(buf), len(input.Data))
	}
	copy(buf, input.Data)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	out := t.interpreter.GetOutputTensor(0)
	scores := make([]float32, t.classes)
	copy(scores, out.Float32s())
	return scores, nil
}

// Close releases the native interpreter resources.
func (t *TFLite) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
}
