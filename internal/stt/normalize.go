package stt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Speech models expect 16 kHz mono 16-bit PCM.
const (
	TargetSampleRate = 16000
	TargetBitDepth   = 16
	TargetChannels   = 1
)

var (
	errNotWAV         = errors.New("input is not a valid WAV audio file")
	errUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
const wavFormatPCM = 1

// Normalizer rewrites audio into the target layout. WAV input is converted
// in-process; anything else goes through ffmpeg.
type Normalizer struct {
	FFmpegPath string
	TempDir    string
}

// Normalize writes a normalized copy of src and returns its path. The caller
// owns the returned file.
func (n *Normalizer) Normalize(ctx context.Context, src string) (string, error) {
	out, err := os.CreateTemp(n.TempDir, "agrox-normalized-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create normalized file: %w", err)
	}
	dst := out.Name()
	out.Close()

	err = normalizeWAV(src, dst)
	if errors.Is(err, errNotWAV) || errors.Is(err, errUnsupportedWAV) {
		err = n.ffmpeg(ctx, src, dst)
	}
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func normalizeWAV(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer in.Close()

	decoder := wav.NewDecoder(in)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return errNotWAV
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return fmt.Errorf("%w: format tag %d", errUnsupportedWAV, decoder.WavAudioFormat)
	}
	divisor, err := audioDivisor(int(decoder.BitDepth))
	if err != nil {
		return err
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("failed to decode WAV: %w", err)
	}

	mono := downmix(buf.Data, int(decoder.NumChans), divisor)
	if len(mono) < 4 {
		return fmt.Errorf("audio too short to normalize (%d samples)", len(mono))
	}

	resampled, err := resample(mono, int(decoder.SampleRate), TargetSampleRate)
	if err != nil {
		return fmt.Errorf("error resampling audio: %w", err)
	}
	applyPeakGain(resampled, 0.9)

	return writePCM16(dst, resampled)
}

func (n *Normalizer) ffmpeg(ctx context.Context, src, dst string) error {
	bin := n.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("ffmpeg not available for audio conversion: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-ar", fmt.Sprint(TargetSampleRate),
		"-ac", fmt.Sprint(TargetChannels),
		"-c:a", "pcm_s16le",
		dst)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg conversion failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func audioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("%w: bit depth %d", errUnsupportedWAV, bitDepth)
	}
}

// downmix averages interleaved channels into one float channel in [-1,1].
func downmix(samples []int, channels int, divisor float32) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(samples[i*channels+c]) / divisor
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample converts between sample rates with cubic interpolation.
func resample(samples []float32, originalRate, targetRate int) ([]float32, error) {
	if originalRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", originalRate, targetRate)
	}
	if originalRate == targetRate {
		return samples, nil
	}
	if len(samples) < 4 {
		return nil, fmt.Errorf("need at least 4 samples, got %d", len(samples))
	}

	ratio := float64(targetRate) / float64(originalRate)
	newLength := int(float64(len(samples)) * ratio)
	out := make([]float32, newLength)
	lastIndex := len(samples) - 3

	for i := 0; i < newLength; i++ {
		origPos := float64(i) / ratio
		index := int(origPos)
		if index < 1 {
			index = 1
		} else if index > lastIndex {
			index = lastIndex
		}

		frac := float32(origPos) - float32(index)
		y0, y1, y2, y3 := samples[index-1], samples[index], samples[index+1], samples[index+2]
		mu2 := frac * frac
		a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
		a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
		a2 := -0.5*y0 + 0.5*y2
		a3 := y1

		out[i] = a0*frac*mu2 + a1*mu2 + a2*frac + a3
	}
	return out, nil
}

// applyPeakGain scales samples so the loudest one reaches target. Silence is
// left untouched.
func applyPeakGain(samples []float32, target float32) {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	gain := target / peak
	for i := range samples {
		samples[i] *= gain
	}
}

func writePCM16(path string, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(math.Max(-32768, math.Min(32767, v)))
	}

	enc := wav.NewEncoder(f, TargetSampleRate, TargetBitDepth, TargetChannels, 1)
	if err := enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: TargetSampleRate, NumChannels: TargetChannels},
		SourceBitDepth: TargetBitDepth,
	}); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	return enc.Close()
}
