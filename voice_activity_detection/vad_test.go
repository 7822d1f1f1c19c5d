package voice_activity_detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tone(n int, freq, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func TestVAD_Flux(t *testing.T) {
	t.Run("onset of a tone after silence produces a large flux", func(t *testing.T) {
		vad := New(1024)

		quiet := vad.Flux(make([]int16, 1024))
		loud := vad.Flux(tone(1024, 440, 0.5))

		assert.Zero(t, quiet)
		assert.Greater(t, loud, 1.0)
	})

	t.Run("a steady tone produces almost no flux after the onset", func(t *testing.T) {
		vad := New(1024)
		in := tone(1024, 440, 0.5)

		onset := vad.Flux(in)
		steady := vad.Flux(in)

		assert.Less(t, steady, onset*0.01)
	})

	t.Run("short buffers are zero padded", func(t *testing.T) {
		vad := New(1024)

		assert.NotPanics(t, func() {
			vad.Flux(tone(100, 440, 0.5))
		})
	})

	t.Run("reset forgets the previous spectrum", func(t *testing.T) {
		vad := New(512)
		in := tone(512, 1000, 0.3)

		first := vad.Flux(in)
		vad.Reset()
		again := vad.Flux(in)

		assert.InDelta(t, first, again, 1e-9)
	})
}
