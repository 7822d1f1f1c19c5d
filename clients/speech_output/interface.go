package speech_output

import (
	"context"

	"go.uber.org/zap"
)

// Interface queues text to be spoken. Say never blocks.
type Interface interface {
	Say(text string)
}

// Synthesizer turns text into sound, returning when playback is done.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// LogAndSpeak logs msg and queues it on speaker.
func LogAndSpeak(logger *zap.Logger, speaker Interface, msg string) {
	logger.Info(msg)
	speaker.Say(msg)
}
