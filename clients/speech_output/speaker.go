// Package speech_output speaks short acknowledgements without blocking the
// caller.
package speech_output

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"voice-recliner/logging"
)

const DefaultQueueSize = 4

type Config struct {
	Synthesizer Synthesizer
	QueueSize   int
	Logger      *zap.Logger
}

// Speaker is a bounded queue drained by a single worker, so messages are
// spoken one at a time in the order they were queued.
type Speaker struct {
	synth   Synthesizer
	queue   chan string
	logger  *zap.Logger
	dropped atomic.Uint64
}

func New(cfg *Config) (*Speaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is nil")
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	logger := logging.OrNop(cfg.Logger)

	return &Speaker{
		synth:  cfg.Synthesizer,
		queue:  make(chan string, size),
		logger: logger,
	}, nil
}

// Say queues text. When the queue is full the message is dropped.
func (s *Speaker) Say(text string) {
	if text == "" {
		return
	}

	select {
	case s.queue <- text:
	default:
		s.dropped.Add(1)
		s.logger.Warn("speech queue full, dropping message", zap.String("text", text))
	}
}

func (s *Speaker) Dropped() uint64 {
	return s.dropped.Load()
}

// Run speaks queued messages until ctx is done. Synthesizer failures are
// logged and the worker moves on.
func (s *Speaker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-s.queue:
			if err := s.synth.Speak(ctx, text); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("failed to speak", zap.String("text", text), zap.Error(err))
			}
		}
	}
}
