// Package preprocessor turns raw 16-bit audio into normalised float samples
// with low-energy stretches removed.
package preprocessor

import (
	"fmt"
	"math"

	"voice-recliner/audio_capture"
)

const (
	DefaultFloor = 0.01
)

type Config struct {
	// FrameLength is the analysis frame in samples; the hop is half of it.
	FrameLength int
	// Floor is the RMS level below which a frame counts as silence.
	Floor float64
}

type Preprocessor struct {
	frameLength int
	hop         int
	floor       float64
}

func New(cfg *Config) (*Preprocessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FrameLength < 2 {
		return nil, fmt.Errorf("frame length must be at least 2, got %d", cfg.FrameLength)
	}

	if cfg.Floor < 0 {
		return nil, fmt.Errorf("floor must not be negative, got %f", cfg.Floor)
	}

	return &Preprocessor{
		frameLength: cfg.FrameLength,
		hop:         cfg.FrameLength / 2,
		floor:       cfg.Floor,
	}, nil
}

// Prepare concatenates chunks in slice order and strips silence. An empty
// result means the whole window was silent.
func (p *Preprocessor) Prepare(chunks []audio_capture.Chunk) []float64 {
	total := 0
	for _, c := range chunks {
		total += len(c.Samples)
	}

	signal := make([]float64, 0, total)
	for _, c := range chunks {
		signal = appendNormalized(signal, c.Samples)
	}

	return p.strip(signal)
}

func (p *Preprocessor) PrepareSamples(samples []int16) []float64 {
	return p.strip(appendNormalized(make([]float64, 0, len(samples)), samples))
}

func appendNormalized(dst []float64, samples []int16) []float64 {
	for _, s := range samples {
		dst = append(dst, float64(s)/32768)
	}
	return dst
}

// strip keeps every sample covered by at least one frame whose RMS reaches
// the floor, in order.
func (p *Preprocessor) strip(signal []float64) []float64 {
	if len(signal) == 0 {
		return []float64{}
	}

	keep := make([]bool, len(signal))
	kept := 0

	for start := 0; start < len(signal); start += p.hop {
		end := start + p.frameLength
		if end > len(signal) {
			end = len(signal)
		}

		if rms(signal[start:end]) >= p.floor {
			for i := start; i < end; i++ {
				if !keep[i] {
					keep[i] = true
					kept++
				}
			}
		}

		if end == len(signal) {
			break
		}
	}

	out := make([]float64, 0, kept)
	for i, s := range signal {
		if keep[i] {
			out = append(out, s)
		}
	}

	return out
}

func rms(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}

	var sum float64
	for _, s := range frame {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(frame)))
}
