// Package listener is the recognition path: it waits for the wake phrase,
// then cuts spoken commands out of the audio stream, transcribes and routes
// them, and feeds the results to the command state machine.
package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/audio"
	"go.uber.org/zap"

	"voice-recliner/audio_capture"
	"voice-recliner/clients/ai_bot"
	"voice-recliner/clients/connectivity"
	"voice-recliner/clients/speech_output"
	"voice-recliner/command_router"
	"voice-recliner/dispatch"
	"voice-recliner/events"
	"voice-recliner/logging"
	"voice-recliner/ring_buffer"
	"voice-recliner/speech_to_text"
	"voice-recliner/voice_activity_detection"
	"voice-recliner/wake_word"
)

const (
	DefaultMaxUtterance = 5 * time.Second
	DefaultQuietPeriod  = 200 * time.Millisecond

	// fluxRatio is the rise in spectral flux that marks speech onset, and the
	// drop that marks quiet.
	fluxRatio = 1.75
	// preRollChunks of audio before the onset are kept so the first syllable
	// is not lost.
	preRollChunks = 2

	wakeAck        = "Yes?"
	conversePrompt = "I am listening"
)

// unknownCommand is handed to the state machine for speech that routed to
// nothing, so an expired command mode still drops back to idle.
const unknownCommand command_router.CommandID = "unknown"

type Config struct {
	Chunks      <-chan audio_capture.Chunk
	Detector    WakeDetector
	STTEngine   speech_to_text.Interface
	Table       command_router.Table
	Vocabulary  command_router.Vocabulary
	Machine     *dispatch.Machine
	Speaker     speech_output.Interface
	AIBotClient ai_bot.AIBotAPI
	Connection  connectivity.Interface
	Publisher   events.Publisher

	MaxUtterance time.Duration
	QuietPeriod  time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

type listenerImpl struct {
	chunks      <-chan audio_capture.Chunk
	detector    WakeDetector
	sttEngine   speech_to_text.Interface
	table       command_router.Table
	vocabulary  command_router.Vocabulary
	machine     *dispatch.Machine
	speaker     speech_output.Interface
	aiBotClient ai_bot.AIBotAPI
	connection  connectivity.Interface
	publisher   events.Publisher

	maxUtterance time.Duration
	quietPeriod  time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Chunks == nil {
		return nil, fmt.Errorf("chunks is nil")
	}

	if cfg.Detector == nil {
		return nil, fmt.Errorf("detector is nil")
	}

	if cfg.STTEngine == nil {
		return nil, fmt.Errorf("sttEngine is nil")
	}

	if cfg.Table.Len() == 0 {
		return nil, fmt.Errorf("phrase table is empty")
	}

	if cfg.Machine == nil {
		return nil, fmt.Errorf("machine is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	maxUtterance := cfg.MaxUtterance
	if maxUtterance <= 0 {
		maxUtterance = DefaultMaxUtterance
	}

	quietPeriod := cfg.QuietPeriod
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	logger := logging.OrNop(cfg.Logger)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &listenerImpl{
		chunks:       cfg.Chunks,
		detector:     cfg.Detector,
		sttEngine:    cfg.STTEngine,
		table:        cfg.Table,
		vocabulary:   cfg.Vocabulary,
		machine:      cfg.Machine,
		speaker:      cfg.Speaker,
		aiBotClient:  cfg.AIBotClient,
		connection:   cfg.Connection,
		publisher:    publisher,
		maxUtterance: maxUtterance,
		quietPeriod:  quietPeriod,
		logger:       logger,
		now:          now,
	}, nil
}

// Run returns nil when ctx ends and wake_word.ErrSourceClosed when the audio
// source goes away.
func (l *listenerImpl) Run(ctx context.Context) error {
	l.logger.Info("starting to listen", zap.String("phrase_table", l.table.Name()))

	for {
		if ctx.Err() != nil {
			return nil
		}

		var err error
		switch snap := l.machine.Snapshot(); {
		case snap.State != dispatch.Idle:
			err = l.listenForCommand(ctx)
		case moving(snap.Pending):
			err = l.listenWhileMoving(ctx)
		default:
			err = l.waitForWake(ctx)
		}

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

func (l *listenerImpl) waitForWake(ctx context.Context) error {
	l.detector.Reset()

	event, err := l.detector.Listen(ctx, l.chunks)
	if err != nil {
		return fmt.Errorf("waiting for wake: %w", err)
	}

	out := l.machine.Handle(command_router.CommandHeyChair, l.now())
	l.speaker.Say(wakeAck)

	score := float64(event.Score)
	l.publisher.Publish(ctx, events.Event{
		Type:  events.TypeWake,
		State: out.To.String(),
		Score: &score,
		At:    event.At,
	})

	return nil
}

func (l *listenerImpl) listenForCommand(ctx context.Context) error {
	deadline := l.machine.Snapshot().Deadline

	l.logger.Debug("expecting a command", zap.Time("deadline", deadline))

	samples, err := l.listenIntoBuffer(ctx, deadline, nil)
	if err != nil {
		return err
	}

	if len(samples) == 0 {
		if l.machine.Expire(l.now()) {
			l.publisher.Publish(ctx, events.Event{Type: events.TypeExpired, State: dispatch.Idle.String()})
		}
		return nil
	}

	cmd := l.recognize(ctx, samples)
	if cmd == "" {
		return nil
	}

	out := l.machine.Handle(cmd, l.now())
	l.carryOut(ctx, out)

	return nil
}

// listenWhileMoving keeps transcribing while a relay run is pending so a
// "stop" or a reversal is heard without the wake phrase. Capture ends with
// the run unless speech has already started.
func (l *listenerImpl) listenWhileMoving(ctx context.Context) error {
	l.logger.Debug("listening while the chair moves", zap.Stringer("directive", l.machine.Snapshot().Pending))

	samples, err := l.listenIntoBuffer(ctx, time.Time{}, func() bool {
		return moving(l.machine.Snapshot().Pending)
	})
	if err != nil || len(samples) == 0 {
		return err
	}

	cmd := l.recognize(ctx, samples)
	if cmd == "" || cmd == unknownCommand {
		return nil
	}

	out := l.machine.Handle(cmd, l.now())
	l.carryOut(ctx, out)

	return nil
}

func moving(d dispatch.Directive) bool {
	return d == dispatch.DirectiveRecliningUp || d == dispatch.DirectiveRecliningDown
}

// recognize transcribes and routes one utterance. It returns "" when the
// engine failed, which is transient and skips the utterance entirely.
func (l *listenerImpl) recognize(ctx context.Context, samples []int16) command_router.CommandID {
	result, err := l.sttEngine.Process(ctx, toBuffer(samples), l.vocabulary)
	switch {
	case errors.Is(err, speech_to_text.ErrUnrecognized):
		l.logger.Info("unrecognized command")
		return unknownCommand
	case err != nil:
		l.logger.Warn("error running model", zap.Error(err))
		return ""
	}

	cmd, ok := command_router.Route(result.Text, l.table)
	if !ok {
		l.logger.Info("unrecognized command", zap.String("text", result.Text))
		return unknownCommand
	}

	l.logger.Info("command recognized",
		zap.String("text", result.Text),
		zap.String("command", string(cmd)),
	)

	return cmd
}

func (l *listenerImpl) carryOut(ctx context.Context, out dispatch.Outcome) {
	if out.Ignored {
		return
	}

	l.publisher.Publish(ctx, events.Event{
		Type:    events.TypeCommand,
		State:   out.To.String(),
		Command: string(out.Command),
	})

	if out.Expired {
		l.publisher.Publish(ctx, events.Event{Type: events.TypeExpired, State: out.To.String()})
	}

	if out.DirectiveSet {
		l.publisher.Publish(ctx, events.Event{
			Type:      events.TypeDirective,
			State:     out.To.String(),
			Directive: out.Directive.String(),
		})
	}

	if out.Ack != "" {
		speech_output.LogAndSpeak(l.logger, l.speaker, out.Ack)
	}

	switch out.Action {
	case dispatch.ActionCheckConnectivity:
		l.checkInternet(ctx)
	case dispatch.ActionConverse:
		l.converse(ctx)
	}
}

func (l *listenerImpl) checkInternet(ctx context.Context) {
	if l.connection == nil {
		speech_output.LogAndSpeak(l.logger, l.speaker, "Internet check is not configured")
		return
	}

	if err := l.connection.Check(ctx); err != nil {
		l.logger.Debug("connectivity check failed", zap.Error(err))
		speech_output.LogAndSpeak(l.logger, l.speaker, "No internet connection")
		return
	}

	speech_output.LogAndSpeak(l.logger, l.speaker, "Internet connection available")
}

// converse takes one free-form utterance, sends it to the bot and speaks the
// reply. The phrase vocabulary is not applied.
func (l *listenerImpl) converse(ctx context.Context) {
	if l.aiBotClient == nil {
		speech_output.LogAndSpeak(l.logger, l.speaker, "Conversation is not configured")
		return
	}

	speech_output.LogAndSpeak(l.logger, l.speaker, conversePrompt)

	samples, err := l.listenIntoBuffer(ctx, l.machine.Snapshot().Deadline, nil)
	if err != nil || len(samples) == 0 {
		return
	}

	result, err := l.sttEngine.Process(ctx, toBuffer(samples), command_router.Vocabulary{})
	if err != nil {
		l.logger.Warn("error running model", zap.Error(err))
		speech_output.LogAndSpeak(l.logger, l.speaker, "Sorry, I couldn't understand that")
		return
	}

	l.logger.Info("sending prompt to bot", zap.String("prompt", result.Text))

	resp, err := l.aiBotClient.SendPrompt(ctx, result.Text)
	if err != nil {
		l.logger.Warn("error sending prompt to bot", zap.Error(err))
		return
	}

	l.logger.Info("bot response", zap.String("response", resp))
	l.speaker.Say(resp)
}

// listenIntoBuffer returns the next utterance from the chunk stream. Speech
// starts when spectral flux rises sharply and ends after quietPeriod of low
// flux or at maxUtterance. If deadline passes, or active reports false,
// before speech starts, it returns no samples.
func (l *listenerImpl) listenIntoBuffer(ctx context.Context, deadline time.Time, active func() bool) ([]int16, error) {
	var (
		vad            *voice_activity_detection.VAD
		preRoll        *ring_buffer.Buffer
		heardSomething bool
		quiet          bool
		quietSamples   int
		lastFlux       float64
		utterance      []int16
	)

	quietLimit := durationSamples(l.quietPeriod)
	maxSamples := durationSamples(l.maxUtterance)

	var expired <-chan time.Time
	if !deadline.IsZero() {
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		var chunk audio_capture.Chunk

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expired:
			l.logger.Debug("no command before deadline")
			return nil, nil
		case c, ok := <-l.chunks:
			if !ok {
				return nil, wake_word.ErrSourceClosed
			}
			chunk = c
		}

		if !heardSomething && active != nil && !active() {
			return nil, nil
		}

		samples := chunk.Samples

		if vad == nil {
			vad = voice_activity_detection.New(len(samples))
			preRoll = ring_buffer.New(preRollChunks * len(samples))
		}

		if heardSomething {
			utterance = append(utterance, samples...)
			if len(utterance) >= maxSamples {
				break
			}
		} else {
			preRoll.Add(samples)
		}

		flux := vad.Flux(samples)

		if lastFlux == 0 {
			lastFlux = flux
			continue
		}

		if heardSomething {
			if flux*fluxRatio <= lastFlux {
				if quiet {
					quietSamples += len(samples)
					if quietSamples > quietLimit {
						break
					}
				}

				quiet = true
			} else {
				quiet = false
				quietSamples = 0
				lastFlux = flux
			}
		} else {
			if flux >= lastFlux*fluxRatio {
				heardSomething = true
				// once speech has started the deadline no longer cuts it off
				expired = nil
				utterance = preRoll.Read()
			}

			lastFlux = flux
		}
	}

	l.logger.Debug("utterance captured", zap.Int("samples", len(utterance)))

	return utterance, nil
}

func durationSamples(d time.Duration) int {
	return int(d.Seconds() * audio_capture.SampleRate)
}

func toBuffer(samples []int16) *audio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  audio_capture.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
