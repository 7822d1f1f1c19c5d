package wake_word

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-recliner/audio_capture"
	"voice-recliner/feature_extraction"
	"voice-recliner/preprocessor"
)

const (
	testChunkSize    = 4000
	testWindowChunks = 8
)

// phrase synthesises two seconds of tone sweeps separated by short pauses,
// loud enough to survive silence stripping.
func phrase() []int16 {
	n := testChunkSize * testWindowChunks
	out := make([]int16, n)
	var phase float64
	for i := range out {
		pos := float64(i) / float64(n)
		freq := 250 + 1800*pos
		phase += 2 * math.Pi * freq / audio_capture.SampleRate
		envelope := 0.4 * (0.6 + 0.4*math.Sin(2*math.Pi*3*pos))
		if int(pos*10)%3 == 2 {
			envelope = 0
		}
		out[i] = int16(envelope * 32767 * math.Sin(phase))
	}
	return out
}

func noiseSamples(n int, seed int64) []int16 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(rng.NormFloat64() * 6000)
	}
	return out
}

func chunksOf(samples []int16, firstSeq uint64) []audio_capture.Chunk {
	var out []audio_capture.Chunk
	for i := 0; i+testChunkSize <= len(samples); i += testChunkSize {
		out = append(out, audio_capture.Chunk{Seq: firstSeq, Samples: samples[i : i+testChunkSize]})
		firstSeq++
	}
	return out
}

func feed(chunks []audio_capture.Chunk) <-chan audio_capture.Chunk {
	ch := make(chan audio_capture.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func loop(samples []int16, times int) []audio_capture.Chunk {
	var out []audio_capture.Chunk
	seq := uint64(1)
	for i := 0; i < times; i++ {
		next := chunksOf(samples, seq)
		seq += uint64(len(next))
		out = append(out, next...)
	}
	return out
}

func newDetector(t *testing.T, threshold float64) *Detector {
	pp, err := preprocessor.New(&preprocessor.Config{FrameLength: testChunkSize, Floor: preprocessor.DefaultFloor})
	require.NoError(t, err)

	fx := feature_extraction.New()

	template, err := TemplateFromSamples("phrase", phrase(), pp, fx)
	require.NoError(t, err)

	detector, err := New(&Config{
		Template:     template,
		WindowChunks: testWindowChunks,
		Threshold:    threshold,
		Preprocessor: pp,
		Extractor:    fx,
		Now:          func() time.Time { return time.Unix(100, 0) },
	})
	require.NoError(t, err)

	return detector
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestDetector_Listen(t *testing.T) {
	for _, threshold := range []float64{0.5, 5, 50} {
		threshold := threshold

		t.Run(fmt.Sprintf("a looped template wakes for threshold %v", threshold), func(t *testing.T) {
			detector := newDetector(t, threshold)

			event, err := detector.Listen(context.Background(), feed(loop(phrase(), 3)))
			require.NoError(t, err)

			assert.Equal(t, Woken, detector.State())
			assert.Equal(t, uint64(testWindowChunks), event.Seq)
			assert.InDelta(t, 0, float64(event.Score), 1e-9)
			assert.Equal(t, time.Unix(100, 0), event.At)
		})
	}

	t.Run("threshold zero never wakes even on a perfect match", func(t *testing.T) {
		detector := newDetector(t, 0)

		_, err := detector.Listen(context.Background(), feed(loop(phrase(), 3)))

		assert.ErrorIs(t, err, ErrSourceClosed)
		assert.Equal(t, Listening, detector.State())

		// full window at chunk 8, then a slide every 4 chunks up to 24
		_, misses := detector.CacheStats()
		assert.Equal(t, uint64(5), misses)
	})

	t.Run("unrelated audio does not wake a strict threshold", func(t *testing.T) {
		detector := newDetector(t, 1e-6)

		_, err := detector.Listen(context.Background(), feed(chunksOf(noiseSamples(testChunkSize*24, 3), 1)))

		assert.ErrorIs(t, err, ErrSourceClosed)
		assert.Equal(t, Listening, detector.State())
	})

	t.Run("silence is skipped rather than scored", func(t *testing.T) {
		detector := newDetector(t, 1e9)

		_, err := detector.Listen(context.Background(), feed(chunksOf(make([]int16, testChunkSize*16), 1)))

		assert.ErrorIs(t, err, ErrSourceClosed)
		assert.Equal(t, Listening, detector.State())
	})

	t.Run("window stays bounded under a long stream", func(t *testing.T) {
		detector := newDetector(t, 0)

		_, _ = detector.Listen(context.Background(), feed(chunksOf(noiseSamples(testChunkSize*50, 9), 1)))

		assert.LessOrEqual(t, detector.WindowLen(), testWindowChunks)
	})

	t.Run("cancellation stops listening", func(t *testing.T) {
		detector := newDetector(t, 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := detector.Listen(ctx, make(chan audio_capture.Chunk))

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDetector_Reset(t *testing.T) {
	detector := newDetector(t, 1)

	_, err := detector.Listen(context.Background(), feed(loop(phrase(), 1)))
	require.NoError(t, err)

	_, err = detector.Listen(context.Background(), feed(nil))
	assert.ErrorIs(t, err, ErrWoken)

	detector.Reset()
	assert.Equal(t, Listening, detector.State())
	assert.Zero(t, detector.WindowLen())

	event, err := detector.Listen(context.Background(), feed(loop(phrase(), 1)))
	require.NoError(t, err)
	assert.Equal(t, uint64(testWindowChunks), event.Seq)
}
