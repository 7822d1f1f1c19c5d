// Package wake_word detects a spoken wake phrase by sliding a two second
// window over live audio and comparing its cepstral features with a recorded
// template using dynamic time warping.
package wake_word

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"voice-recliner/audio_capture"
	"voice-recliner/feature_extraction"
	"voice-recliner/logging"
	"voice-recliner/preprocessor"
	"voice-recliner/template_matching"
)

var (
	ErrSourceClosed = errors.New("audio source closed")
	ErrWoken        = errors.New("detector already woken, reset required")
)

type State int

const (
	Listening State = iota
	Woken
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Woken:
		return "woken"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is raised once per wake.
type Event struct {
	Score template_matching.MatchScore
	Seq   uint64
	At    time.Time
}

type Config struct {
	Template     *Template
	WindowChunks int
	// Threshold is the score below which the detector wakes. Zero or less
	// is calibration mode: every score is logged and nothing ever wakes.
	Threshold    float64
	Preprocessor *preprocessor.Preprocessor
	Extractor    *feature_extraction.Extractor
	Logger       *zap.Logger
	Now          func() time.Time
}

type Detector struct {
	template  *Template
	threshold float64
	pp        *preprocessor.Preprocessor
	fx        *feature_extraction.Extractor
	cache     *feature_extraction.Cache
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   State
	window  *SignalWindow
	staging []audio_capture.Chunk
}

func New(cfg *Config) (*Detector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Template == nil {
		return nil, fmt.Errorf("template is nil")
	}

	if cfg.Preprocessor == nil {
		return nil, fmt.Errorf("preprocessor is nil")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is nil")
	}

	if cfg.WindowChunks < 2 {
		return nil, fmt.Errorf("window must hold at least 2 chunks, got %d", cfg.WindowChunks)
	}

	logger := logging.OrNop(cfg.Logger)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if cfg.Threshold <= 0 {
		logger.Warn("wake threshold is zero, running in calibration mode: scores are logged and wake never triggers")
	}

	return &Detector{
		template:  cfg.Template,
		threshold: cfg.Threshold,
		pp:        cfg.Preprocessor,
		fx:        cfg.Extractor,
		cache:     feature_extraction.NewCache(),
		logger:    logger,
		now:       now,
		state:     Listening,
		window:    NewSignalWindow(cfg.WindowChunks),
		staging:   make([]audio_capture.Chunk, 0, cfg.WindowChunks/2),
	}, nil
}

// WindowChunks returns the number of chunks covering windowSeconds of audio.
func WindowChunks(windowSeconds float64, chunkSize int) int {
	n := int(math.Round(windowSeconds * audio_capture.SampleRate / float64(chunkSize)))
	if n < 2 {
		n = 2
	}
	return n
}

// Listen consumes chunks until the wake phrase is heard. It returns
// ErrSourceClosed when chunks is closed and ctx.Err() on cancellation.
func (d *Detector) Listen(ctx context.Context, chunks <-chan audio_capture.Chunk) (Event, error) {
	if d.State() == Woken {
		return Event{}, ErrWoken
	}

	d.logger.Debug("listening for wake phrase", zap.String("template", d.template.Name()))

	for {
		var (
			chunk audio_capture.Chunk
			ok    bool
		)

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case chunk, ok = <-chunks:
			if !ok {
				return Event{}, ErrSourceClosed
			}
		}

		if !d.accept(chunk) {
			continue
		}

		score, ok := d.evaluate()
		if !ok {
			continue
		}

		if d.threshold > 0 && float64(score) < d.threshold {
			d.mu.Lock()
			d.state = Woken
			d.mu.Unlock()

			event := Event{Score: score, Seq: chunk.Seq, At: d.now()}
			d.logger.Info("wake phrase detected",
				zap.Float64("score", float64(score)),
				zap.Float64("threshold", d.threshold),
				zap.Uint64("seq", chunk.Seq),
			)

			return event, nil
		}
	}
}

// accept adds chunk to the window and reports whether the window changed
// enough to be scored. Until the window is full chunks go straight in; after
// that they are staged and the window slides by half its capacity at once.
func (d *Detector) accept(chunk audio_capture.Chunk) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.window.Full() {
		d.window.Push(chunk)
		return d.window.Full()
	}

	d.staging = append(d.staging, chunk)

	half := d.window.Cap() / 2
	if len(d.staging) < half {
		return false
	}

	d.window.EvictOldest(half)
	for _, c := range d.staging[:half] {
		d.window.Push(c)
	}

	d.staging = append(d.staging[:0], d.staging[half:]...)

	return true
}

func (d *Detector) evaluate() (template_matching.MatchScore, bool) {
	start := d.now()

	d.mu.Lock()
	key := feature_extraction.Key{NewestSeq: d.window.NewestSeq(), Chunks: d.window.Len()}
	snapshot := d.window.Snapshot()
	d.mu.Unlock()

	features := d.cache.Get(key, func() feature_extraction.Sequence {
		signal := d.pp.Prepare(snapshot)
		if len(signal) == 0 {
			return feature_extraction.Sequence{}
		}

		return d.fx.Extract(signal)
	})

	if len(features) == 0 {
		d.logger.Debug("window is silent, skipping", zap.Uint64("seq", key.NewestSeq))
		return 0, false
	}

	score := template_matching.Distance(features, d.template.Features())

	fields := []zap.Field{
		zap.Uint64("seq", key.NewestSeq),
		zap.Float64("score", float64(score)),
		zap.Int("frames", len(features)),
		zap.Duration("cost", d.now().Sub(start)),
	}

	if d.threshold <= 0 {
		d.logger.Info("calibration score", fields...)
	} else {
		d.logger.Debug("wake score", fields...)
	}

	return score, true
}

// Reset returns the detector to Listening with an empty window.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = Listening
	d.window.Clear()
	d.staging = d.staging[:0]
	d.cache.Invalidate()
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// WindowLen is the number of chunks currently in the sliding window.
func (d *Detector) WindowLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.window.Len()
}

func (d *Detector) CacheStats() (hits, misses uint64) {
	return d.cache.Stats()
}
