package speech_to_text

import (
	"context"
	"errors"

	"github.com/go-audio/audio"

	"voice-recliner/command_router"
)

// ErrUnrecognized means the audio held no words from the vocabulary. It is
// not a failure of the engine.
var ErrUnrecognized = errors.New("speech not recognized")

type Result struct {
	Text string
	// Final is false for interim text, which is only useful for diagnostics.
	Final bool
}

type Interface interface {
	Process(ctx context.Context, wavBuffer audio.Buffer, vocab command_router.Vocabulary) (Result, error)
}
