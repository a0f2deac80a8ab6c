package classifier

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrox/internal/knowledge"
)

type fakeModel struct {
	scores []float32
	err    error
	calls  int
}

func (f *fakeModel) Predict(_ context.Context, _ Tensor) ([]float32, error) {
	f.calls++
	return f.scores, f.err
}

func (f *fakeModel) InputSize() (int, int) { return 224, 224 }

func testBase(t *testing.T) *knowledge.Base {
	t.Helper()
	base, err := knowledge.Default()
	require.NoError(t, err)
	return base
}

func oneHot(n, idx int, p float32) []float32 {
	out := make([]float32, n)
	rest := (1 - p) / float32(n-1)
	for i := range out {
		out[i] = rest
	}
	out[idx] = p
	return out
}

func TestClassifyPicksArgMax(t *testing.T) {
	base := testBase(t)
	want, _ := base.ClassAt(10)

	c := New(&fakeModel{scores: oneHot(base.Len(), 10, 0.9731)}, base)
	res, err := c.Classify(context.Background(), Tensor{})
	require.NoError(t, err)

	assert.Equal(t, want, res.Label)
	assert.Equal(t, 10, res.Index)
	assert.InDelta(t, 97.31, res.Confidence, 0.01)
}

func TestClassifyAppliesSoftmaxToLogits(t *testing.T) {
	base := testBase(t)
	logits := make([]float32, base.Len())
	logits[3] = 12

	c := New(&fakeModel{scores: logits}, base)
	res, err := c.Classify(context.Background(), Tensor{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Index)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 100.0)
	assert.Greater(t, res.Confidence, 99.0)
}

func TestClassifyWithoutModel(t *testing.T) {
	c := New(nil, testBase(t))
	assert.False(t, c.Ready())

	_, err := c.Classify(context.Background(), Tensor{})
	assert.ErrorIs(t, err, ErrModelUnavailable)

	var nilClassifier *Classifier
	assert.False(t, nilClassifier.Ready())
}

func TestClassifyErrors(t *testing.T) {
	base := testBase(t)

	tests := map[string]*fakeModel{
		"model error":    {err: errors.New("boom")},
		"no scores":      {scores: nil},
		"wrong num outs": {scores: []float32{0.5, 0.5}},
	}
	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(m, base).Classify(context.Background(), Tensor{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "prediction failed")
		})
	}
}

func TestArgMax(t *testing.T) {
	idx, v := ArgMax([]float32{0.1, 0.7, 0.7, 0.2})
	assert.Equal(t, 1, idx)
	assert.Equal(t, float32(0.7), v)

	idx, _ = ArgMax([]float32{0.3})
	assert.Equal(t, 0, idx)
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, clampPercent(-3))
	assert.Equal(t, 100.0, clampPercent(100.0001))
	assert.Equal(t, 42.5, clampPercent(42.5))
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessResizesAndScales(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(50, 30, color.RGBA{R: 0, G: 255, B: 0, A: 255})))

	tensor, err := Preprocess(buf.Bytes(), 224, 224, 0)
	require.NoError(t, err)

	assert.Equal(t, 224, tensor.Width)
	assert.Equal(t, 224, tensor.Height)
	require.Len(t, tensor.Data, 224*224*3)

	for _, v := range tensor.Data {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
	// Centre pixel of a solid green image.
	centre := (112*224 + 112) * 3
	assert.InDelta(t, 0.0, tensor.Data[centre], 0.01)
	assert.InDelta(t, 1.0, tensor.Data[centre+1], 0.01)
	assert.InDelta(t, 0.0, tensor.Data[centre+2], 0.01)
}

func TestPreprocessJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(300, 300, color.White), nil))

	tensor, err := Preprocess(buf.Bytes(), 64, 64, 0)
	require.NoError(t, err)
	assert.Len(t, tensor.Data, 64*64*3)
	assert.InDelta(t, 1.0, tensor.Data[0], 0.02)
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("definitely not an image"), 224, 224, 0)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Preprocess(nil, 224, 224, 0)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestPreprocessInvalidSize(t *testing.T) {
	_, err := Preprocess([]byte{}, 0, 224, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDecode)
}

// pngHeader returns a PNG that declares width x height but carries no pixel
// data. DecodeConfig accepts it.
func pngHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	chunk := func(kind string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		buf.WriteString(kind)
		buf.Write(data)
		crc := crc32.NewIEEE()
		crc.Write([]byte(kind))
		crc.Write(data)
		_ = binary.Write(&buf, binary.BigEndian, crc.Sum32())
	}
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestPreprocessRejectsOversizedDimensions(t *testing.T) {
	tests := []struct {
		name      string
		data      func(t *testing.T) []byte
		maxPixels int64
	}{
		{
			name:      "declared size above default limit",
			data:      func(*testing.T) []byte { return pngHeader(12000, 12000) },
			maxPixels: 0,
		},
		{
			name:      "dimensions that overflow 32 bits",
			data:      func(*testing.T) []byte { return pngHeader(100000, 100000) },
			maxPixels: 0,
		},
		{
			name: "real image above configured limit",
			data: func(t *testing.T) []byte {
				var buf bytes.Buffer
				require.NoError(t, png.Encode(&buf, solidImage(64, 64, color.White)))
				return buf.Bytes()
			},
			maxPixels: 64*64 - 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Preprocess(tt.data(t), 224, 224, tt.maxPixels)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Contains(t, err.Error(), "pixel limit")
		})
	}
}

func TestPreprocessAcceptsImageAtLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(64, 64, color.White)))

	_, err := Preprocess(buf.Bytes(), 32, 32, 64*64)
	assert.NoError(t, err)
}

func TestPreprocessKeepsColourOfTransparentPixels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	tensor, err := Preprocess(buf.Bytes(), 8, 8, 0)
	require.NoError(t, err)

	centre := (4*8 + 4) * 3
	assert.InDelta(t, 200.0/255, tensor.Data[centre], 0.01)
	assert.InDelta(t, 100.0/255, tensor.Data[centre+1], 0.01)
	assert.InDelta(t, 50.0/255, tensor.Data[centre+2], 0.01)
}
