package listener

import (
	"context"

	"voice-recliner/audio_capture"
	"voice-recliner/wake_word"
)

type Interface interface {
	Run(ctx context.Context) error
}

// WakeDetector blocks until the wake phrase is heard on chunks.
type WakeDetector interface {
	Listen(ctx context.Context, chunks <-chan audio_capture.Chunk) (wake_word.Event, error)
	Reset()
}
