package ring_buffer

// Buffer keeps the most recent samples up to a fixed size. It is used as the
// pre-roll of an utterance so the first syllable is not lost before speech
// is detected.
type Buffer struct {
	buffer []int16
	head   int
	filled int
}

func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}

	return &Buffer{
		buffer: make([]int16, size),
	}
}

func (r *Buffer) Add(samples []int16) {
	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)
	}

	r.filled += len(samples)
	if r.filled > len(r.buffer) {
		r.filled = len(r.buffer)
	}
}

// Read returns the buffered samples, oldest first.
func (r *Buffer) Read() []int16 {
	samples := make([]int16, r.filled)
	start := (r.head - r.filled + len(r.buffer)) % len(r.buffer)
	for i := 0; i < r.filled; i++ {
		samples[i] = r.buffer[(start+i)%len(r.buffer)]
	}
	return samples
}

func (r *Buffer) Len() int {
	return r.filled
}

func (r *Buffer) Cap() int {
	return len(r.buffer)
}

func (r *Buffer) Clear() {
	for i := 0; i < len(r.buffer); i++ {
		r.buffer[i] = 0
	}

	r.head = 0
	r.filled = 0
}
