// Package relay drives relay board channels through GPIO pins.
package relay

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"voice-recliner/logging"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the host GPIO drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})

	return initErr
}

type Config struct {
	// Label names the channel in logs, e.g. "RELAY1".
	Label string
	// PinName is looked up in the GPIO registry when Pin is nil, e.g. "GPIO19".
	PinName string
	Pin     gpio.PinOut
	Logger  *zap.Logger
}

// Relay is one board channel. High energizes the coil.
type Relay struct {
	label  string
	pin    gpio.PinOut
	logger *zap.Logger
}

func New(cfg *Config) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Label == "" {
		return nil, fmt.Errorf("label is empty")
	}

	pin := cfg.Pin
	if pin == nil {
		if cfg.PinName == "" {
			return nil, fmt.Errorf("pin name is empty")
		}

		p := gpioreg.ByName(cfg.PinName)
		if p == nil {
			return nil, fmt.Errorf("gpio pin %q not found", cfg.PinName)
		}
		pin = p
	}

	logger := logging.OrNop(cfg.Logger)

	r := &Relay{
		label:  cfg.Label,
		pin:    pin,
		logger: logger.With(zap.String("relay", cfg.Label), zap.String("pin", pin.Name())),
	}

	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to drive %s low: %w", cfg.Label, err)
	}

	return r, nil
}

func (r *Relay) Name() string {
	return r.label
}

func (r *Relay) Energize() error {
	r.logger.Debug(r.label + " - ON")
	if err := r.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to drive %s high: %w", r.label, err)
	}
	return nil
}

func (r *Relay) Deenergize() error {
	r.logger.Debug(r.label + " - OFF")
	if err := r.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to drive %s low: %w", r.label, err)
	}
	return nil
}
