package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voice-recliner/actuator"
	"voice-recliner/audio_capture"
	"voice-recliner/audio_capture/portaudio_source"
	"voice-recliner/clients/ai_bot"
	"voice-recliner/clients/connectivity"
	"voice-recliner/clients/speech_output"
	"voice-recliner/command_router"
	"voice-recliner/config"
	"voice-recliner/dispatch"
	"voice-recliner/events"
	"voice-recliner/feature_extraction"
	"voice-recliner/listener"
	"voice-recliner/logging"
	"voice-recliner/preprocessor"
	"voice-recliner/relay"
	"voice-recliner/speech_to_text/whisper_engine"
	"voice-recliner/wake_word"
)

const bootGreeting = "Hello! Your interactive chair is booting!"

// app is the process context. Everything long-lived is built from it once.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	fs     afero.Fs
}

func newApp(flags *rootFlags) (*app, error) {
	fs := afero.NewOsFs()

	cfg, err := config.Load(fs, flags.configPath, flags.envPath)
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		fs:     fs,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) newDetector(threshold float64) (*wake_word.Detector, error) {
	pp, err := preprocessor.New(&preprocessor.Config{
		FrameLength: a.cfg.Audio.ChunkSize,
		Floor:       a.cfg.Wake.SilenceFloor,
	})
	if err != nil {
		return nil, err
	}

	fx := feature_extraction.New()

	template, err := wake_word.TemplateFromPath(a.fs, a.cfg.Wake.TemplatePath, pp, fx)
	if err != nil {
		return nil, fmt.Errorf("loading wake template: %w", err)
	}

	a.logger.Info("wake template loaded",
		zap.String("path", a.cfg.Wake.TemplatePath),
		zap.Float64("seconds", template.Duration()),
		zap.Int("frames", template.Features().Frames()),
	)

	return wake_word.New(&wake_word.Config{
		Template:     template,
		WindowChunks: wake_word.WindowChunks(a.cfg.Wake.WindowSeconds, a.cfg.Audio.ChunkSize),
		Threshold:    threshold,
		Preprocessor: pp,
		Extractor:    fx,
		Logger:       a.logger.Named("wake_word"),
	})
}

func (a *app) newSource() (audio_capture.Source, error) {
	return portaudio_source.New(&portaudio_source.Config{
		ChunkSize: a.cfg.Audio.ChunkSize,
		Depth:     a.cfg.Audio.QueueDepth,
		Logger:    a.logger.Named("audio"),
	})
}

func (a *app) newRelays() (up, down *relay.Relay, err error) {
	if err := relay.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing gpio: %w", err)
	}

	logger := a.logger.Named("relay")

	down, err = relay.New(&relay.Config{
		Label:   a.cfg.Actuator.Down.Label,
		PinName: a.cfg.Actuator.Down.Pin,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}

	up, err = relay.New(&relay.Config{
		Label:   a.cfg.Actuator.Up.Label,
		PinName: a.cfg.Actuator.Up.Pin,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}

	return up, down, nil
}

func (a *app) newPublisher() (events.Publisher, error) {
	if a.cfg.MQTT.Broker == "" {
		return events.Nop{}, nil
	}

	return events.NewMQTT(&events.MQTTConfig{
		Broker:   a.cfg.MQTT.Broker,
		ClientID: a.cfg.MQTT.ClientID,
		Username: a.cfg.MQTT.Username,
		Password: a.cfg.MQTT.Password,
		Topic:    a.cfg.MQTT.Topic,
		Logger:   a.logger.Named("events"),
	})
}

// run starts audio capture, the recognition path and the actuator and waits
// for all of them. A relay fault or a lost audio source ends the process.
func (a *app) run(ctx context.Context) error {
	detector, err := a.newDetector(a.cfg.Wake.Threshold)
	if err != nil {
		return err
	}

	if a.cfg.Wake.Threshold == 0 {
		a.logger.Warn("wake threshold is 0, the wake phrase will never be detected; run calibrate to pick one")
	}

	engine, err := whisper_engine.FromPath(a.cfg.Recognition.ModelPath, &whisper_engine.Config{
		Language: a.cfg.Recognition.Language,
		Logger:   a.logger.Named("stt"),
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	table, err := command_router.Lookup(a.cfg.Recognition.PhraseTable)
	if err != nil {
		return err
	}
	vocabulary := command_router.BuildVocabulary(table)
	a.logger.Debug("vocabulary hint", zap.Stringer("vocabulary", vocabulary))

	slot := dispatch.NewSlot()
	machine, err := dispatch.New(&dispatch.Config{
		Slot:      slot,
		ArmWindow: a.cfg.Dispatch.ArmWindow,
		Logger:    a.logger.Named("dispatch"),
	})
	if err != nil {
		return err
	}

	publisher, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	up, down, err := a.newRelays()
	if err != nil {
		return err
	}

	loop, err := actuator.New(&actuator.Config{
		Up:        up,
		Down:      down,
		Slot:      slot,
		Tick:      a.cfg.Actuator.Tick,
		TickCount: a.cfg.Actuator.TickCount,
		Logger:    a.logger.Named("actuator"),
		Observer: func(e actuator.Event) {
			energized := e.Energized
			publisher.Publish(ctx, events.Event{
				Type:      events.TypeRelay,
				Relay:     e.Relay,
				Energized: &energized,
				Directive: e.Directive.String(),
				At:        e.At,
			})
		},
	})
	if err != nil {
		return err
	}

	tts, err := speech_output.NewCommand(a.cfg.Speech.Command)
	if err != nil {
		return err
	}

	speaker, err := speech_output.New(&speech_output.Config{
		Synthesizer: tts,
		QueueSize:   a.cfg.Speech.QueueSize,
		Logger:      a.logger.Named("speech"),
	})
	if err != nil {
		return err
	}

	var bot ai_bot.AIBotAPI
	if a.cfg.AIBot.Host != "" {
		bot, err = ai_bot.NewClient(&ai_bot.Config{
			ApiHost: a.cfg.AIBot.Host,
			ApiKey:  a.cfg.AIBot.APIKey,
			Logger:  a.logger.Named("ai_bot"),
		})
		if err != nil {
			return err
		}
	}

	checker, err := connectivity.New(&connectivity.Config{
		URL:     a.cfg.Connectivity.URL,
		Timeout: a.cfg.Connectivity.Timeout,
	})
	if err != nil {
		return err
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	chunks, err := source.Start(gctx)
	if err != nil {
		return err
	}

	l, err := listener.New(&listener.Config{
		Chunks:       chunks,
		Detector:     detector,
		STTEngine:    engine,
		Table:        table,
		Vocabulary:   vocabulary,
		Machine:      machine,
		Speaker:      speaker,
		AIBotClient:  bot,
		Connection:   checker,
		Publisher:    publisher,
		MaxUtterance: a.cfg.Recognition.MaxUtterance,
		QuietPeriod:  a.cfg.Recognition.QuietPeriod,
		Logger:       a.logger.Named("listener"),
	})
	if err != nil {
		source.Close()
		return err
	}

	g.Go(func() error {
		<-gctx.Done()
		return source.Close()
	})
	g.Go(func() error {
		return speaker.Run(gctx)
	})
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		return l.Run(gctx)
	})

	speech_output.LogAndSpeak(a.logger, speaker, bootGreeting)

	err = g.Wait()
	if errors.Is(err, actuator.ErrRelayFault) {
		a.logger.Error("relay fault, shutting down", zap.Error(err))
	}

	return err
}

// calibrate runs the wake detector with no threshold so every window score
// is logged and nothing ever wakes.
func (a *app) calibrate(ctx context.Context) error {
	detector, err := a.newDetector(0)
	if err != nil {
		return err
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}

	chunks, err := source.Start(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("calibrating: say the wake phrase a few times, then stop with Ctrl-C")

	done := make(chan error, 1)
	go func() {
		_, err := detector.Listen(ctx, chunks)
		done <- err
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
	}

	closeErr := source.Close()
	if err == nil {
		err = <-done
	}

	if ctx.Err() != nil {
		return closeErr
	}

	return err
}
