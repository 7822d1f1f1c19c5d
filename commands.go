package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voice-recliner/audio_capture"
	"voice-recliner/audio_capture/portaudio_source"
	"voice-recliner/command_router"
	"voice-recliner/config"
)

type rootFlags struct {
	configPath string
	envPath    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "voice-recliner",
		Short:         "Voice-controlled recliner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath, "path to the YAML config file")
	root.PersistentFlags().StringVar(&flags.envPath, "env", config.DefaultEnvPath, "path to an optional .env file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides the config)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "json or console (overrides the config)")

	root.AddCommand(
		newRunCmd(flags),
		newCalibrateCmd(flags),
		newRecordTemplateCmd(flags),
		newVocabularyCmd(),
	)

	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen for commands and drive the relays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			return a.run(ctx)
		},
	}
}

func newCalibrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Log wake phrase scores without ever waking, to pick a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			return a.calibrate(ctx)
		},
	}
}

func newRecordTemplateCmd(flags *rootFlags) *cobra.Command {
	var (
		out     string
		seconds float64
	)

	cmd := &cobra.Command{
		Use:   "record-template",
		Short: "Record the wake phrase from the microphone into a WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if out == "" {
				out = a.cfg.Wake.TemplatePath
			}

			return recordTemplate(ctx, a, out, seconds)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output WAV path (default: the configured template path)")
	cmd.Flags().Float64VarP(&seconds, "seconds", "s", 2, "recording length in seconds")

	return cmd
}

func newVocabularyCmd() *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "vocabulary",
		Short: "Print the recognizer vocabulary hint for a phrase table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := command_router.Lookup(table)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), command_router.BuildVocabulary(t).String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "en", "phrase table name")

	return cmd
}

func recordTemplate(ctx context.Context, a *app, path string, seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("seconds must be positive, got %v", seconds)
	}

	source, err := portaudio_source.New(&portaudio_source.Config{
		ChunkSize: a.cfg.Audio.ChunkSize,
		Depth:     a.cfg.Audio.QueueDepth,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	recorder, err := audio_capture.NewRecorder(a.fs, path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second))+time.Second)
	defer cancel()

	chunks, err := source.Start(ctx)
	if err != nil {
		recorder.Close()
		return err
	}

	want := int(seconds * audio_capture.SampleRate)
	a.logger.Info("recording wake phrase, speak now", zap.String("path", path), zap.Float64("seconds", seconds))

	err = record(ctx, chunks, recorder, want)

	if closeErr := source.Close(); closeErr != nil {
		a.logger.Warn("error closing audio source", zap.Error(closeErr))
	}

	if closeErr := recorder.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return err
	}

	a.logger.Info("template recorded", zap.String("path", path), zap.Int("samples", recorder.Samples()))

	return nil
}

func record(ctx context.Context, chunks <-chan audio_capture.Chunk, recorder *audio_capture.Recorder, want int) error {
	for recorder.Samples() < want {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("recording timed out after %d samples", recorder.Samples())
			}
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return fmt.Errorf("audio source closed after %d samples", recorder.Samples())
			}

			samples := chunk.Samples
			if rest := want - recorder.Samples(); len(samples) > rest {
				samples = samples[:rest]
			}

			if err := recorder.Write(samples); err != nil {
				return fmt.Errorf("writing template: %w", err)
			}
		}
	}

	return nil
}
