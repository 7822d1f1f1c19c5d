package portaudio_source

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"voice-recliner/audio_capture"
	"voice-recliner/logging"
)

type sourceImpl struct {
	chunkSize int
	depth     int
	logger    *zap.Logger

	mu           sync.Mutex
	audioRunning bool
	stream       *portaudio.Stream
	wg           sync.WaitGroup
}

type Config struct {
	ChunkSize int
	Depth     int
	Logger    *zap.Logger
}

func New(cfg *Config) (audio_capture.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}

	logger := logging.OrNop(cfg.Logger)

	return &sourceImpl{
		chunkSize: cfg.ChunkSize,
		depth:     cfg.Depth,
		logger:    logger,
	}, nil
}

// Start opens the default input device and reads it on its own goroutine.
// Only one stream may be active at a time.
func (s *sourceImpl) Start(ctx context.Context) (<-chan audio_capture.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil, fmt.Errorf("audio source already started")
	}

	if err := s.initAudio(); err != nil {
		return nil, err
	}

	in := make([]int16, s.chunkSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio_capture.SampleRate, len(in), in)
	if err != nil {
		return nil, fmt.Errorf("opening input stream: %w", err)
	}

	if err = stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("starting input stream: %w", err)
	}

	s.stream = stream
	queue := audio_capture.NewQueue(s.depth, s.logger)

	s.logger.Info("audio capture started",
		zap.Int("sample_rate", audio_capture.SampleRate),
		zap.Int("chunk_size", s.chunkSize),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer queue.Close()

		for {
			if ctx.Err() != nil {
				return
			}

			// blocks until a full chunk is available
			if err := stream.Read(); err != nil {
				if err == portaudio.InputOverflowed {
					s.logger.Warn("input overflowed")
					continue
				}

				s.logger.Error("error reading audio stream", zap.Error(err))
				return
			}

			queue.Push(in)
		}
	}()

	return queue.C(), nil
}

func (s *sourceImpl) Close() error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			s.logger.Warn("error stopping stream", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
	}

	s.freeAudio()

	return err
}

func (s *sourceImpl) initAudio() error {
	if !s.audioRunning {
		err := portaudio.Initialize()
		if err != nil {
			return err
		}

		s.audioRunning = true
	}

	return nil
}

func (s *sourceImpl) freeAudio() {
	if s.audioRunning {
		err := portaudio.Terminate()
		if err != nil {
			s.logger.Warn("error while freeing audio", zap.Error(err))
		}

		s.audioRunning = false
	}
}
