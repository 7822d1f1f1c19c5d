// Package voice_activity_detection measures spectral flux between successive
// audio buffers. A sharp rise in flux marks the onset of speech; a sustained
// drop marks its end.
package voice_activity_detection

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

type VAD struct {
	frameSize int
	window    []float64
	frame     []float64
	previous  []float64
	primed    bool
}

func New(frameSize int) *VAD {
	if frameSize < 2 {
		frameSize = 2
	}

	return &VAD{
		frameSize: frameSize,
		window:    window.Hann(frameSize),
		frame:     make([]float64, frameSize),
		previous:  make([]float64, frameSize/2+1),
	}
}

// Flux returns the positive spectral flux of samples relative to the previous
// call. The first call only primes the detector and returns its spectral
// energy so callers get a non-zero baseline. Buffers shorter than the frame
// size are zero-padded; longer ones are truncated.
func (v *VAD) Flux(samples []int16) float64 {
	for i := range v.frame {
		var s float64
		if i < len(samples) {
			s = float64(samples[i]) / 32768
		}
		v.frame[i] = s * v.window[i]
	}

	spectrum := fft.FFTReal(v.frame)

	var flux float64
	for k := range v.previous {
		mag := cmplx.Abs(spectrum[k])
		diff := mag - v.previous[k]
		if !v.primed {
			diff = mag
		}
		if diff > 0 {
			flux += diff
		}
		v.previous[k] = mag
	}

	v.primed = true

	if math.IsNaN(flux) {
		return 0
	}

	return flux
}

func (v *VAD) Reset() {
	for i := range v.previous {
		v.previous[i] = 0
	}

	v.primed = false
}
