package ai_bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"voice-recliner/logging"
)

const DefaultTimeout = 30 * time.Second

type clientImpl struct {
	http   *resty.Client
	logger *zap.Logger
}

type Config struct {
	ApiHost string
	// ApiKey, when set, is sent as a bearer token.
	ApiKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

func NewClient(cfg *Config) (AIBotAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.ApiHost == "" {
		return nil, errors.New("missing parameter: cfg.ApiHost")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := logging.OrNop(cfg.Logger)

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ApiHost, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "text/plain")

	if cfg.ApiKey != "" {
		client.SetAuthToken(cfg.ApiKey)
	}

	return &clientImpl{
		http:   client,
		logger: logger,
	}, nil
}

func (client *clientImpl) SendPrompt(ctx context.Context, prompt string) (string, error) {
	client.logger.Debug("sending prompt", zap.String("prompt", prompt))

	resp, err := client.http.R().
		SetContext(ctx).
		SetQueryParam("prompt", prompt).
		Get("/get_prompt_response")
	if err != nil {
		return "", fmt.Errorf("failed to call ai bot: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("ai bot returned status %d", resp.StatusCode())
	}

	return resp.String(), nil
}
