// Package actuator drives the two recliner relays from the pending directive.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voice-recliner/dispatch"
	"voice-recliner/logging"
)

const (
	DefaultTick      = time.Second
	DefaultTickCount = 9
)

// ErrRelayFault is returned when a relay pin could not be driven. The loop
// stops on the first fault; nothing is retried.
var ErrRelayFault = errors.New("relay fault")

// Event reports a relay changing state.
type Event struct {
	Relay     string
	Energized bool
	Directive dispatch.Directive
	At        time.Time
}

type Config struct {
	Up        Relay
	Down      Relay
	Slot      *dispatch.Slot
	Tick      time.Duration
	TickCount int
	Logger    *zap.Logger
	// Observer, if set, is called on the loop goroutine for every relay
	// state change. It must not block.
	Observer func(Event)
}

type Loop struct {
	slot      *dispatch.Slot
	tick      time.Duration
	tickCount int
	logger    *zap.Logger
	observer  func(Event)

	// relays[i] is on when energized[i]; index 0 is up, 1 is down
	relays    [2]Relay
	energized [2]bool
}

func New(cfg *Config) (*Loop, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Up == nil || cfg.Down == nil {
		return nil, fmt.Errorf("both relays are required")
	}

	if cfg.Slot == nil {
		return nil, fmt.Errorf("slot is nil")
	}

	tick := cfg.Tick
	if tick == 0 {
		tick = DefaultTick
	}

	tickCount := cfg.TickCount
	if tickCount == 0 {
		tickCount = DefaultTickCount
	}

	if tick < 0 || tickCount < 0 {
		return nil, fmt.Errorf("tick and tick count must be positive")
	}

	logger := logging.OrNop(cfg.Logger)

	return &Loop{
		slot:      cfg.Slot,
		tick:      tick,
		tickCount: tickCount,
		logger:    logger,
		observer:  cfg.Observer,
		relays:    [2]Relay{cfg.Up, cfg.Down},
	}, nil
}

// Run drives the relays until ctx ends or a relay fails. Every cycle starts
// by de-energising both relays.
func (l *Loop) Run(ctx context.Context) (err error) {
	l.logger.Info("actuator loop started",
		zap.Duration("tick", l.tick),
		zap.Int("tick_count", l.tickCount),
	)

	defer func() {
		l.shutdown()
		l.logger.Info("actuator loop stopped", zap.Error(err))
	}()

	for {
		if err := l.deenergizeAll(); err != nil {
			return err
		}

		directive := l.slot.Load()

		switch directive {
		case dispatch.DirectiveRecliningUp, dispatch.DirectiveRecliningDown:
			if err := l.run(ctx, directive); err != nil {
				return err
			}

			if ctx.Err() != nil {
				return nil
			}

			continue

		case dispatch.DirectiveStop:
			l.slot.CompareAndClear(dispatch.DirectiveStop)
		}

		timer := time.NewTimer(l.tick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-l.slot.Changed():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// run energises the relay for directive for up to tickCount ticks. Before
// each tick it checks the directive is still pending so a new directive
// interrupts the run within one tick.
func (l *Loop) run(ctx context.Context, directive dispatch.Directive) error {
	idx := l.indexFor(directive)

	l.logger.Info("actuation started",
		zap.Stringer("directive", directive),
		zap.String("relay", l.relays[idx].Name()),
	)

	ticks := 0
	interrupted := false

run:
	for ; ticks < l.tickCount; ticks++ {
		if l.slot.Load() != directive {
			interrupted = true
			break
		}

		if err := l.energize(idx, directive); err != nil {
			return err
		}

		timer := time.NewTimer(l.tick)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-l.slot.Changed():
				if l.slot.Load() != directive {
					timer.Stop()
					interrupted = true
					break run
				}
			case <-timer.C:
				break wait
			}
		}
	}

	l.slot.CompareAndClear(directive)

	l.logger.Info("actuation finished",
		zap.Stringer("directive", directive),
		zap.Int("ticks", ticks),
		zap.Bool("interrupted", interrupted),
	)

	return nil
}

func (l *Loop) indexFor(directive dispatch.Directive) int {
	if directive == dispatch.DirectiveRecliningUp {
		return 0
	}

	return 1
}

func (l *Loop) energize(idx int, directive dispatch.Directive) error {
	relay, other := l.relays[idx], l.relays[1-idx]
	if l.energized[1-idx] {
		return fmt.Errorf("%w: refusing to energize %s while %s is energized", ErrRelayFault, relay.Name(), other.Name())
	}

	if err := relay.Energize(); err != nil {
		return fmt.Errorf("%w: energizing %s: %w", ErrRelayFault, relay.Name(), err)
	}

	if !l.energized[idx] {
		l.energized[idx] = true
		l.emit(relay, true, directive)
	}

	return nil
}

func (l *Loop) deenergizeAll() error {
	for idx, relay := range l.relays {
		if err := relay.Deenergize(); err != nil {
			return fmt.Errorf("%w: de-energizing %s: %w", ErrRelayFault, relay.Name(), err)
		}

		if l.energized[idx] {
			l.energized[idx] = false
			l.emit(relay, false, l.slot.Load())
		}
	}

	return nil
}

// shutdown leaves both relays off on the way out. Failures are only logged.
func (l *Loop) shutdown() {
	for idx, relay := range l.relays {
		if err := relay.Deenergize(); err != nil {
			l.logger.Error("failed to de-energize relay on shutdown",
				zap.String("relay", relay.Name()),
				zap.Error(err),
			)
			continue
		}

		l.energized[idx] = false
	}
}

func (l *Loop) emit(relay Relay, energized bool, directive dispatch.Directive) {
	if l.observer == nil {
		return
	}

	l.observer(Event{
		Relay:     relay.Name(),
		Energized: energized,
		Directive: directive,
		At:        time.Now(),
	})
}
