// Package feature_extraction computes mel-frequency cepstral coefficients.
//
// The transform matches the common librosa defaults so templates recorded
// with other tooling score the same way: centred frames of 2048 samples with
// reflect padding, a hop of 512, a periodic Hann window, a 128 band Slaney
// mel filterbank, power in decibels clipped to 80 dB below the peak and an
// orthonormal DCT-II keeping the first 20 coefficients.
package feature_extraction

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	SampleRate      = 16000
	NumCoefficients = 20
	FFTSize         = 2048
	HopLength       = 512
	NumMels         = 128
	TopDB           = 80.0

	amin = 1e-10
)

// Sequence is a series of feature vectors, one per analysis frame.
type Sequence [][]float64

func (s Sequence) Frames() int {
	return len(s)
}

type filter struct {
	start   int
	weights []float64
}

// Extractor is safe for concurrent use; it only holds precomputed tables.
type Extractor struct {
	window  []float64
	filters []filter
	dct     [][]float64
}

func New() *Extractor {
	return &Extractor{
		window:  window.Hann(FFTSize + 1)[:FFTSize],
		filters: melFilterbank(SampleRate, FFTSize, NumMels),
		dct:     dctMatrix(NumCoefficients, NumMels),
	}
}

// Extract returns the MFCC sequence of signal. An empty signal yields an
// empty sequence.
func (e *Extractor) Extract(signal []float64) Sequence {
	if len(signal) == 0 {
		return Sequence{}
	}

	padded := centerPad(signal, FFTSize/2)
	frames := 1 + (len(padded)-FFTSize)/HopLength

	melDB := make([][]float64, frames)
	frame := make([]float64, FFTSize)
	power := make([]float64, FFTSize/2+1)
	peak := math.Inf(-1)

	for f := 0; f < frames; f++ {
		offset := f * HopLength
		for i := range frame {
			frame[i] = padded[offset+i] * e.window[i]
		}

		spectrum := fft.FFTReal(frame)
		for k := range power {
			mag := cmplx.Abs(spectrum[k])
			power[k] = mag * mag
		}

		bands := make([]float64, len(e.filters))
		for m, flt := range e.filters {
			var energy float64
			for i, w := range flt.weights {
				energy += w * power[flt.start+i]
			}

			db := 10 * math.Log10(math.Max(amin, energy))
			bands[m] = db
			if db > peak {
				peak = db
			}
		}

		melDB[f] = bands
	}

	floor := peak - TopDB
	out := make(Sequence, frames)
	for f, bands := range melDB {
		for m := range bands {
			if bands[m] < floor {
				bands[m] = floor
			}
		}

		coeffs := make([]float64, NumCoefficients)
		for c, basis := range e.dct {
			var sum float64
			for m, b := range basis {
				sum += b * bands[m]
			}
			coeffs[c] = sum
		}

		out[f] = coeffs
	}

	return out
}

// centerPad reflects pad samples at each end. Signals too short to reflect
// are zero padded instead.
func centerPad(signal []float64, pad int) []float64 {
	out := make([]float64, len(signal)+2*pad)
	copy(out[pad:], signal)

	if len(signal) <= pad {
		return out
	}

	for i := 0; i < pad; i++ {
		out[pad-1-i] = signal[i+1]
		out[pad+len(signal)+i] = signal[len(signal)-2-i]
	}

	return out
}

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp     = 200.0 / 3
	melMinLog  = 1000.0
	melMinLogM = melMinLog / melFSp
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(hz float64) float64 {
	if hz >= melMinLog {
		return melMinLogM + math.Log(hz/melMinLog)/melLogStep
	}

	return hz / melFSp
}

func melToHz(mel float64) float64 {
	if mel >= melMinLogM {
		return melMinLog * math.Exp(melLogStep*(mel-melMinLogM))
	}

	return mel * melFSp
}

// melFilterbank builds Slaney-normalised triangular filters over the
// non-negative FFT bins.
func melFilterbank(sampleRate, nFFT, nMels int) []filter {
	bins := nFFT/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}

	minMel := hzToMel(0)
	maxMel := hzToMel(float64(sampleRate) / 2)
	melFreqs := make([]float64, nMels+2)
	for i := range melFreqs {
		melFreqs[i] = melToHz(minMel + (maxMel-minMel)*float64(i)/float64(nMels+1))
	}

	filters := make([]filter, nMels)
	for m := 0; m < nMels; m++ {
		lo, center, hi := melFreqs[m], melFreqs[m+1], melFreqs[m+2]
		enorm := 2 / (hi - lo)

		start := -1
		weights := make([]float64, 0)
		for k, f := range fftFreqs {
			lower := (f - lo) / (center - lo)
			upper := (hi - f) / (hi - center)
			w := math.Max(0, math.Min(lower, upper))
			if w <= 0 {
				if start >= 0 {
					break
				}
				continue
			}

			if start < 0 {
				start = k
			}
			weights = append(weights, w*enorm)
		}

		if start < 0 {
			start = 0
		}

		filters[m] = filter{start: start, weights: weights}
	}

	return filters
}

// dctMatrix returns the orthonormal DCT-II basis, rows are coefficients.
func dctMatrix(nCoeffs, n int) [][]float64 {
	out := make([][]float64, nCoeffs)
	for k := 0; k < nCoeffs; k++ {
		scale := math.Sqrt(2 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1 / float64(n))
		}

		row := make([]float64, n)
		for i := 0; i < n; i++ {
			row[i] = scale * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
		}
		out[k] = row
	}

	return out
}
