package audio_capture

import "context"

const (
	SampleRate       = 16000
	DefaultChunkSize = 4000
	DefaultDepth     = 32
)

// Chunk is a fixed-length block of mono 16 kHz signed 16-bit samples. Seq is
// the arrival order, starting at 1.
type Chunk struct {
	Seq     uint64
	Samples []int16
}

// Source supplies chunks as a continuous sequence. The channel is closed when
// ctx ends or the device fails.
type Source interface {
	Start(ctx context.Context) (<-chan Chunk, error)
	Close() error
}
