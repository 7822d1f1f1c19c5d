package wake_word

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	resampling "github.com/tphakala/go-audio-resampling"

	"voice-recliner/audio_capture"
	"voice-recliner/feature_extraction"
	"voice-recliner/preprocessor"
)

var ErrSilentTemplate = errors.New("template audio is silent")

// Template is the reference utterance of the wake phrase. It never changes
// after construction and may be shared between goroutines.
type Template struct {
	name     string
	samples  int
	features feature_extraction.Sequence
}

// TemplateFromSamples builds a template from 16 kHz mono samples already in
// memory.
func TemplateFromSamples(name string, samples []int16, pp *preprocessor.Preprocessor, fx *feature_extraction.Extractor) (*Template, error) {
	if pp == nil {
		return nil, fmt.Errorf("preprocessor is nil")
	}

	if fx == nil {
		return nil, fmt.Errorf("extractor is nil")
	}

	signal := pp.PrepareSamples(samples)
	if len(signal) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrSilentTemplate)
	}

	return &Template{
		name:     name,
		samples:  len(samples),
		features: fx.Extract(signal),
	}, nil
}

// TemplateFromPath decodes a WAV file, downmixes it to mono and resamples it
// to 16 kHz when needed.
func TemplateFromPath(fileSys afero.Fs, path string, pp *preprocessor.Preprocessor, fx *feature_extraction.Extractor) (*Template, error) {
	if fileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	f, err := fileSys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wake template: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("wake template %s is not a valid wav file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wake template: %w", err)
	}

	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, fmt.Errorf("wake template %s has no usable format", path)
	}

	mono := downmix(buf.Data, buf.Format.NumChannels, buf.SourceBitDepth)

	if buf.Format.SampleRate != audio_capture.SampleRate {
		mono, err = resample(mono, buf.Format.SampleRate)
		if err != nil {
			return nil, err
		}
	}

	return TemplateFromSamples(filepath.Base(path), toInt16(mono), pp, fx)
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) Features() feature_extraction.Sequence {
	return t.features
}

// Duration is the length of the source audio at 16 kHz.
func (t *Template) Duration() float64 {
	return float64(t.samples) / audio_capture.SampleRate
}

func downmix(data []int, channels int, bitDepth int) []float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}

	scale := math.Pow(2, float64(bitDepth-1))
	frames := len(data) / channels
	out := make([]float64, frames)

	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(data[i*channels+c])
		}
		out[i] = sum / float64(channels) / scale
	}

	return out
}

func resample(samples []float64, rate int) ([]float64, error) {
	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(rate),
		OutputRate: audio_capture.SampleRate,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := resampler.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	// the filter delay holds back the tail until flushed
	tail, err := resampler.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}

	return append(out, tail...), nil
}

func toInt16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s >= 1:
			out[i] = math.MaxInt16
		case s < -1:
			out[i] = math.MinInt16
		default:
			out[i] = int16(s * 32768)
		}
	}
	return out
}
