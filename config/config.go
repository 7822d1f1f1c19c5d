// Package config loads the controller configuration from YAML with an
// optional .env overlay for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"voice-recliner/command_router"
)

const (
	DefaultPath    = "./config/config.yml"
	DefaultEnvPath = ".env"

	EnvAIBotAPIKey  = "AI_BOT_API_KEY"
	EnvMQTTPassword = "MQTT_PASSWORD"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Log          Log          `yaml:"log"`
	Audio        Audio        `yaml:"audio"`
	Wake         Wake         `yaml:"wake"`
	Recognition  Recognition  `yaml:"recognition"`
	Dispatch     Dispatch     `yaml:"dispatch"`
	Actuator     Actuator     `yaml:"actuator"`
	Speech       Speech       `yaml:"speech"`
	AIBot        AIBot        `yaml:"ai_bot"`
	Connectivity Connectivity `yaml:"connectivity"`
	MQTT         MQTT         `yaml:"mqtt"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Audio struct {
	ChunkSize  int `yaml:"chunk_size"`
	QueueDepth int `yaml:"queue_depth"`
}

type Wake struct {
	TemplatePath string  `yaml:"template_path"`
	Threshold    float64 `yaml:"threshold"`
	// WindowSeconds is the length of audio compared against the template.
	WindowSeconds float64 `yaml:"window_seconds"`
	SilenceFloor  float64 `yaml:"silence_floor"`
}

type Recognition struct {
	ModelPath    string        `yaml:"model_path"`
	Language     string        `yaml:"language"`
	PhraseTable  string        `yaml:"phrase_table"`
	MaxUtterance time.Duration `yaml:"max_utterance"`
	QuietPeriod  time.Duration `yaml:"quiet_period"`
}

type Dispatch struct {
	ArmWindow time.Duration `yaml:"arm_window"`
}

type Actuator struct {
	Tick      time.Duration `yaml:"tick"`
	TickCount int           `yaml:"tick_count"`
	Up        RelayPin      `yaml:"up"`
	Down      RelayPin      `yaml:"down"`
}

type RelayPin struct {
	Label string `yaml:"label"`
	Pin   string `yaml:"pin"`
}

type Speech struct {
	Command   []string `yaml:"command"`
	QueueSize int      `yaml:"queue_size"`
}

type AIBot struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

type Connectivity struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Audio: Audio{
			ChunkSize:  4000,
			QueueDepth: 32,
		},
		Wake: Wake{
			WindowSeconds: 2,
			SilenceFloor:  0.01,
		},
		Recognition: Recognition{
			Language:     "en",
			PhraseTable:  "en",
			MaxUtterance: 5 * time.Second,
			QuietPeriod:  200 * time.Millisecond,
		},
		Dispatch: Dispatch{
			ArmWindow: 10 * time.Second,
		},
		Actuator: Actuator{
			Tick:      time.Second,
			TickCount: 9,
			Up:        RelayPin{Label: "RELAY2", Pin: "GPIO13"},
			Down:      RelayPin{Label: "RELAY1", Pin: "GPIO19"},
		},
		Speech: Speech{
			Command:   []string{"festival", "--language", "american_english", "--tts", "-"},
			QueueSize: 4,
		},
		Connectivity: Connectivity{
			URL:     "https://www.google.com",
			Timeout: 5 * time.Second,
		},
		MQTT: MQTT{
			ClientID: "voice-recliner",
			Topic:    "voice-recliner",
		},
	}
}

// Load reads path from fs on top of the defaults, applies the env overlay
// and validates the result. envPath may be missing.
func Load(fs afero.Fs, path, envPath string) (*Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}

	env, err := readEnv(fs, envPath)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readEnv parses the .env file if present. Variables already set in the
// process environment take precedence, as with godotenv.Load.
func readEnv(fs afero.Fs, path string) (map[string]string, error) {
	env := map[string]string{}

	if path != "" {
		f, err := fs.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		default:
			defer f.Close()

			parsed, err := godotenv.Parse(f)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
			}
			env = parsed
		}
	}

	for _, key := range []string{EnvAIBotAPIKey, EnvMQTTPassword} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}

	return env, nil
}

func (c *Config) applyEnv(env map[string]string) {
	if v := env[EnvAIBotAPIKey]; v != "" {
		c.AIBot.APIKey = v
	}

	if v := env[EnvMQTTPassword]; v != "" {
		c.MQTT.Password = v
	}

	expand := func(s string) string {
		return os.Expand(s, func(key string) string {
			if v, ok := env[key]; ok {
				return v
			}
			return os.Getenv(key)
		})
	}

	c.Wake.TemplatePath = expand(c.Wake.TemplatePath)
	c.Recognition.ModelPath = expand(c.Recognition.ModelPath)
	c.AIBot.Host = expand(c.AIBot.Host)
	c.MQTT.Broker = expand(c.MQTT.Broker)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Wake.TemplatePath == "" {
		errs = append(errs, errors.New("wake.template_path is required"))
	}

	if c.Wake.Threshold < 0 {
		errs = append(errs, errors.New("wake.threshold must not be negative"))
	}

	if c.Wake.WindowSeconds <= 0 {
		errs = append(errs, errors.New("wake.window_seconds must be positive"))
	}

	if c.Wake.SilenceFloor < 0 || c.Wake.SilenceFloor >= 1 {
		errs = append(errs, errors.New("wake.silence_floor must be in [0, 1)"))
	}

	if c.Audio.ChunkSize <= 0 {
		errs = append(errs, errors.New("audio.chunk_size must be positive"))
	}

	if c.Audio.QueueDepth <= 0 {
		errs = append(errs, errors.New("audio.queue_depth must be positive"))
	}

	if c.Recognition.ModelPath == "" {
		errs = append(errs, errors.New("recognition.model_path is required"))
	}

	if _, err := command_router.Lookup(c.Recognition.PhraseTable); err != nil {
		errs = append(errs, fmt.Errorf("recognition.phrase_table: %w", err))
	}

	if c.Recognition.MaxUtterance <= 0 || c.Recognition.QuietPeriod <= 0 {
		errs = append(errs, errors.New("recognition durations must be positive"))
	}

	if c.Dispatch.ArmWindow <= 0 {
		errs = append(errs, errors.New("dispatch.arm_window must be positive"))
	}

	if c.Actuator.Tick <= 0 || c.Actuator.TickCount <= 0 {
		errs = append(errs, errors.New("actuator.tick and actuator.tick_count must be positive"))
	}

	if c.Actuator.Up.Pin == "" || c.Actuator.Down.Pin == "" {
		errs = append(errs, errors.New("actuator relay pins are required"))
	} else if c.Actuator.Up.Pin == c.Actuator.Down.Pin {
		errs = append(errs, errors.New("actuator relays must use different pins"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}
