package classifier

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // GIF decoder registration.
	_ "image/jpeg" // JPEG decoder registration.
	_ "image/png"  // PNG decoder registration.

	"golang.org/x/image/draw"
)

// DefaultMaxPixels bounds the decoded size of an upload when no other limit
// is configured.
const DefaultMaxPixels = 40_000_000

// Preprocess decodes an image and returns it resized to width x height as an
// NHWC tensor with channel values scaled to [0,1]. Images with more than
// maxPixels pixels are rejected before decoding; a non-positive maxPixels
// means DefaultMaxPixels.
func Preprocess(data []byte, width, height int, maxPixels int64) (Tensor, error) {
	if width <= 0 || height <= 0 {
		return Tensor{}, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Tensor{}, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return Tensor{}, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return Tensor{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), opaque(src), src.Bounds(), draw.Src, nil)

	out := make([]float32, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := dst.PixOffset(x, y)
			base := (y*width + x) * 3
			out[base+0] = float32(dst.Pix[i+0]) / 255.0
			out[base+1] = float32(dst.Pix[i+1]) / 255.0
			out[base+2] = float32(dst.Pix[i+2]) / 255.0
		}
	}

	return Tensor{Data: out, Width: width, Height: height}, nil
}

// opaque drops the alpha channel and keeps the stored colour of transparent
// pixels, so a transparent background is not scaled in as black.
func opaque(src image.Image) image.Image {
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		return src
	}

	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok {
		out := &image.NRGBA{Pix: make([]uint8, len(n.Pix)), Stride: n.Stride, Rect: n.Rect}
		copy(out.Pix, n.Pix)
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = 0xff
		}
		return out
	}

	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
