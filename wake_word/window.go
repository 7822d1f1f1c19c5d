package wake_word

import "voice-recliner/audio_capture"

// SignalWindow is a bounded FIFO of chunks. Pushing into a full window evicts
// the oldest chunk, so its length never exceeds its capacity.
type SignalWindow struct {
	chunks []audio_capture.Chunk
	head   int
	length int
}

func NewSignalWindow(capacity int) *SignalWindow {
	if capacity < 1 {
		capacity = 1
	}

	return &SignalWindow{
		chunks: make([]audio_capture.Chunk, capacity),
	}
}

func (w *SignalWindow) Push(chunk audio_capture.Chunk) {
	tail := (w.head + w.length) % len(w.chunks)
	w.chunks[tail] = chunk

	if w.length < len(w.chunks) {
		w.length++
		return
	}

	w.head = (w.head + 1) % len(w.chunks)
}

// EvictOldest drops up to n of the oldest chunks.
func (w *SignalWindow) EvictOldest(n int) {
	if n > w.length {
		n = w.length
	}

	for i := 0; i < n; i++ {
		w.chunks[w.head] = audio_capture.Chunk{}
		w.head = (w.head + 1) % len(w.chunks)
	}

	w.length -= n
}

// Snapshot returns the chunks oldest first.
func (w *SignalWindow) Snapshot() []audio_capture.Chunk {
	out := make([]audio_capture.Chunk, w.length)
	for i := range out {
		out[i] = w.chunks[(w.head+i)%len(w.chunks)]
	}
	return out
}

// NewestSeq is the sequence number of the most recent chunk, 0 when empty.
func (w *SignalWindow) NewestSeq() uint64 {
	if w.length == 0 {
		return 0
	}

	return w.chunks[(w.head+w.length-1)%len(w.chunks)].Seq
}

func (w *SignalWindow) Len() int {
	return w.length
}

func (w *SignalWindow) Cap() int {
	return len(w.chunks)
}

func (w *SignalWindow) Full() bool {
	return w.length == len(w.chunks)
}

func (w *SignalWindow) Clear() {
	for i := range w.chunks {
		w.chunks[i] = audio_capture.Chunk{}
	}

	w.head = 0
	w.length = 0
}
