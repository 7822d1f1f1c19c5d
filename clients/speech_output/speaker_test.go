package speech_output

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSynth struct {
	mu     sync.Mutex
	spoken []string
	block  chan struct{}
	err    error
}

func (f *fakeSynth) Speak(ctx context.Context, text string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return f.err
}

func (f *fakeSynth) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)

	s, err := New(&Config{Synthesizer: &fakeSynth{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueSize, cap(s.queue))
}

func TestSpeaker_SpeaksInOrder(t *testing.T) {
	synth := &fakeSynth{}
	s, err := New(&Config{Synthesizer: synth})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Say("Yes?")
	s.Say("")
	s.Say("Stopping")

	assert.Eventually(t, func() bool {
		return len(synth.said()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Yes?", "Stopping"}, synth.said())
}

func TestSpeaker_SayDoesNotBlockWhenFull(t *testing.T) {
	synth := &fakeSynth{block: make(chan struct{})}
	s, err := New(&Config{Synthesizer: synth, QueueSize: 1})
	require.NoError(t, err)

	// no worker is running, the second message has nowhere to go
	done := make(chan struct{})
	go func() {
		s.Say("one")
		s.Say("two")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Say blocked")
	}
	assert.Equal(t, uint64(1), s.Dropped())
}

func TestSpeaker_ContinuesAfterFailure(t *testing.T) {
	synth := &fakeSynth{err: errors.New("no audio device")}
	s, err := New(&Config{Synthesizer: synth})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Say("first")
	s.Say("second")

	assert.Eventually(t, func() bool {
		return len(synth.said()) == 2
	}, time.Second, time.Millisecond)
}

func TestLogAndSpeak(t *testing.T) {
	synth := &fakeSynth{}
	s, err := New(&Config{Synthesizer: synth})
	require.NoError(t, err)

	LogAndSpeak(zap.NewNop(), s, "Internet connection available")

	assert.Equal(t, "Internet connection available", <-s.queue)
}

func TestCommand(t *testing.T) {
	c, err := NewCommand(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultCommand, c.args)

	_, err = NewCommand([]string{" "})
	assert.Error(t, err)

	missing, err := NewCommand([]string{"/nonexistent/tts-binary"})
	require.NoError(t, err)
	assert.Error(t, missing.Speak(context.Background(), "hello"))
}
