package dispatch

import (
	"fmt"
	"sync/atomic"
)

type Directive int32

const (
	DirectiveNone Directive = iota
	DirectiveRecliningUp
	DirectiveRecliningDown
	DirectiveStop
)

func (d Directive) String() string {
	switch d {
	case DirectiveNone:
		return "none"
	case DirectiveRecliningUp:
		return "reclining_up"
	case DirectiveRecliningDown:
		return "reclining_down"
	case DirectiveStop:
		return "stop"
	default:
		return fmt.Sprintf("Directive(%d)", int32(d))
	}
}

// Slot is the pending directive shared between the state machine, which
// stores into it, and the actuator, which consumes it. It is the only mutable
// state crossing those two goroutines.
type Slot struct {
	value   atomic.Int32
	changed chan struct{}
}

func NewSlot() *Slot {
	return &Slot{
		changed: make(chan struct{}, 1),
	}
}

func (s *Slot) Store(d Directive) {
	s.value.Store(int32(d))
	s.notify()
}

func (s *Slot) Load() Directive {
	return Directive(s.value.Load())
}

// CompareAndClear resets the slot to none only if it still holds d. A
// directive stored after the caller's Load is never overwritten.
func (s *Slot) CompareAndClear(d Directive) bool {
	if s.value.CompareAndSwap(int32(d), int32(DirectiveNone)) {
		s.notify()
		return true
	}

	return false
}

// Changed receives after any store or clear. Notifications coalesce.
func (s *Slot) Changed() <-chan struct{} {
	return s.changed
}

func (s *Slot) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
