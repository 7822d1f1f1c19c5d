// Package dispatch holds command mode: the Idle/Armed state machine that turns
// recognised commands into directives for the actuator.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"voice-recliner/command_router"
	"voice-recliner/logging"
)

const DefaultArmWindow = 10 * time.Second

type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action is a side request the caller should carry out after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionCheckConnectivity
	ActionConverse
)

// Outcome describes what a single command did.
type Outcome struct {
	Command command_router.CommandID
	From    State
	To      State
	// Directive is meaningful only when DirectiveSet is true.
	Directive    Directive
	DirectiveSet bool
	Ack          string
	Action       Action
	Expired      bool
	Ignored      bool
}

type Snapshot struct {
	State      State
	ArmedSince time.Time
	Deadline   time.Time
	Pending    Directive
}

type Config struct {
	Slot      *Slot
	ArmWindow time.Duration
	Logger    *zap.Logger
}

// Machine must only be driven from one goroutine; Snapshot may be called
// from anywhere.
type Machine struct {
	slot      *Slot
	armWindow time.Duration
	logger    *zap.Logger

	mu         sync.Mutex
	state      State
	armedSince time.Time
	deadline   time.Time
}

func New(cfg *Config) (*Machine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Slot == nil {
		return nil, fmt.Errorf("slot is nil")
	}

	armWindow := cfg.ArmWindow
	if armWindow == 0 {
		armWindow = DefaultArmWindow
	}

	if armWindow < 0 {
		return nil, fmt.Errorf("arm window must be positive, got %s", armWindow)
	}

	logger := logging.OrNop(cfg.Logger)

	return &Machine{
		slot:      cfg.Slot,
		armWindow: armWindow,
		logger:    logger,
		state:     Idle,
	}, nil
}

// Handle applies one recognised command at time now.
//
// Stop always wins and returns to Idle. Attention commands arm command mode
// from any state, and the combined forms also store their directive at once.
// A bare directive is accepted only while Armed and before the deadline, and
// consumes command mode. Anything arriving after the deadline drops back to
// Idle and clears the pending directive. Other commands are ignored.
func (m *Machine) Handle(cmd command_router.CommandID, now time.Time) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Outcome{Command: cmd, From: m.state}

	switch cmd {
	case command_router.CommandStop:
		m.state = Idle
		m.setDirective(&out, DirectiveStop)
		out.Ack = "Stopping"

	case command_router.CommandHeyChair:
		m.arm(now)
		m.logger.Debug("entering command mode", zap.Time("deadline", m.deadline))

	case command_router.CommandHeyChairReclinerUp:
		m.arm(now)
		m.setDirective(&out, DirectiveRecliningUp)

	case command_router.CommandHeyChairReclinerDown:
		m.arm(now)
		m.setDirective(&out, DirectiveRecliningDown)

	case command_router.CommandCheckInternet:
		m.arm(now)
		out.Action = ActionCheckConnectivity

	case command_router.CommandHeyBird:
		m.arm(now)
		out.Action = ActionConverse

	default:
		switch {
		case m.state == Idle:
			out.Ignored = true

		case !now.Before(m.deadline):
			m.state = Idle
			m.setDirective(&out, DirectiveNone)
			out.Expired = true
			m.logger.Debug("command mode time has expired",
				zap.String("command", string(cmd)),
				zap.Duration("late_by", now.Sub(m.deadline)),
			)

		case cmd == command_router.CommandReclinerUp:
			m.state = Idle
			m.setDirective(&out, DirectiveRecliningUp)

		case cmd == command_router.CommandReclinerDown:
			m.state = Idle
			m.setDirective(&out, DirectiveRecliningDown)

		default:
			out.Ignored = true
		}
	}

	out.To = m.state

	if out.Ignored {
		m.logger.Debug("command ignored",
			zap.String("command", string(cmd)),
			zap.Stringer("state", m.state),
		)
	} else {
		m.logger.Info("command handled",
			zap.String("command", string(cmd)),
			zap.Stringer("from", out.From),
			zap.Stringer("to", out.To),
			zap.Stringer("directive", m.slot.Load()),
		)
	}

	return out
}

// Expire drops an Armed machine whose deadline has passed back to Idle. The
// pending directive is left alone. It reports whether a transition happened.
func (m *Machine) Expire(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Armed || now.Before(m.deadline) {
		return false
	}

	m.state = Idle
	m.logger.Debug("command mode time has expired", zap.Duration("late_by", now.Sub(m.deadline)))

	return true
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		State:      m.state,
		ArmedSince: m.armedSince,
		Deadline:   m.deadline,
		Pending:    m.slot.Load(),
	}
}

func (m *Machine) arm(now time.Time) {
	m.state = Armed
	m.armedSince = now
	m.deadline = now.Add(m.armWindow)
}

func (m *Machine) setDirective(out *Outcome, d Directive) {
	m.slot.Store(d)
	out.Directive = d
	out.DirectiveSet = true
}
