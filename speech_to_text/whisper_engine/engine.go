package whisper_engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/audio"
	"go.uber.org/zap"

	"voice-recliner/command_router"
	"voice-recliner/logging"
	"voice-recliner/speech_to_text"
)

// Engine transcribes utterances with a local whisper.cpp model.
type Engine struct {
	model    whisper.Model
	owned    bool
	language string
	logger   *zap.Logger
	mu       sync.Mutex
}

type Config struct {
	Language string
	Logger   *zap.Logger
}

// FromPath loads a whisper model from disk. The engine owns the model and
// releases it on Close.
func FromPath(path string, cfg *Config) (*Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("model path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model not found, please correct the path: %w", err)
	}

	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("error loading model: %w", err)
	}

	stt, err := FromModel(model, cfg)
	if err != nil {
		model.Close()
		return nil, err
	}

	stt.owned = true

	return stt, nil
}

// FromModel wraps a model that is already loaded. The caller keeps ownership.
func FromModel(model whisper.Model, cfg *Config) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	if cfg == nil {
		cfg = &Config{}
	}

	logger := logging.OrNop(cfg.Logger)

	return &Engine{
		model:    model,
		language: cfg.Language,
		logger:   logger,
	}, nil
}

var _ speech_to_text.Interface = (*Engine)(nil)

func (stt *Engine) Process(ctx context.Context, wavBuffer audio.Buffer, vocab command_router.Vocabulary) (speech_to_text.Result, error) {
	if err := ctx.Err(); err != nil {
		return speech_to_text.Result{}, err
	}

	// whisper contexts are not safe to run concurrently on one model
	stt.mu.Lock()
	defer stt.mu.Unlock()

	// Create processing context
	context, err := stt.model.NewContext()
	if err != nil {
		return speech_to_text.Result{}, err
	}

	if stt.language != "" {
		if err := context.SetLanguage(stt.language); err != nil {
			return speech_to_text.Result{}, fmt.Errorf("setting language: %w", err)
		}
	}

	data := wavBuffer.AsFloat32Buffer().Data

	// interim segments are logged for diagnostics only
	cb := func(segment whisper.Segment) {
		stt.logger.Debug("partial recognized text", zap.String("text", segment.Text))
	}

	err = context.Process(data, cb)
	if err != nil {
		return speech_to_text.Result{}, err
	}

	segments, err := outputSegments(context)
	if err != nil {
		return speech_to_text.Result{}, err
	}

	texts := make([]string, 0, len(segments))
	for _, segment := range segments {
		texts = append(texts, segment.Text)
	}

	raw := strings.Join(texts, " ")
	filtered, known := vocab.Filter(raw)

	stt.logger.Debug("final recognized text",
		zap.String("raw", raw),
		zap.String("filtered", filtered),
	)

	if !known {
		return speech_to_text.Result{Text: filtered, Final: true}, speech_to_text.ErrUnrecognized
	}

	return speech_to_text.Result{Text: filtered, Final: true}, nil
}

func (stt *Engine) Close() error {
	if stt.owned {
		return stt.model.Close()
	}

	return nil
}

func outputSegments(context whisper.Context) ([]whisper.Segment, error) {
	seenText := make(map[string]bool)

	segments := make([]whisper.Segment, 0)

	for {
		segment, err := context.NextSegment()
		if err == io.EOF {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		text := strings.TrimSpace(segment.Text)

		// if segment text starts or ends with a parenthesis or a bracket, then ignore it
		if len(text) > 0 && (text[0] == '(' || text[0] == '[' ||
			text[len(text)-1] == ')' || text[len(text)-1] == ']') {
			continue
		}

		// if we've already seen this text, then ignore it
		if _, ok := seenText[text]; ok {
			continue
		} else {
			seenText[text] = true
		}

		segment.Text = text
		segments = append(segments, segment)
	}
}
