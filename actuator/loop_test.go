package actuator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-recliner/dispatch"
)

const testTick = 20 * time.Millisecond

type op struct {
	relay string
	on    bool
}

// board records every pin operation across both fake relays and flags the
// moment both are energized at once.
type board struct {
	mu      sync.Mutex
	ops     []op
	on      map[string]bool
	overlap bool
}

func newBoard() *board {
	return &board{on: map[string]bool{}}
}

func (b *board) record(name string, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ops = append(b.ops, op{relay: name, on: on})
	b.on[name] = on

	count := 0
	for _, v := range b.on {
		if v {
			count++
		}
	}
	if count > 1 {
		b.overlap = true
	}
}

func (b *board) snapshot() ([]op, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]op(nil), b.ops...), b.overlap
}

func (b *board) isOn(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.on[name]
}

func (b *board) energizeCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, o := range b.ops {
		if o.relay == name && o.on {
			n++
		}
	}
	return n
}

type fakeRelay struct {
	name       string
	board      *board
	energizeFn func() error
}

func (r *fakeRelay) Name() string { return r.name }

func (r *fakeRelay) Energize() error {
	if r.energizeFn != nil {
		if err := r.energizeFn(); err != nil {
			return err
		}
	}
	r.board.record(r.name, true)
	return nil
}

func (r *fakeRelay) Deenergize() error {
	r.board.record(r.name, false)
	return nil
}

type harness struct {
	board *board
	up    *fakeRelay
	down  *fakeRelay
	slot  *dispatch.Slot
	loop  *Loop
	done  chan error
	stop  context.CancelFunc
}

func newHarness(t *testing.T, tickCount int) *harness {
	b := newBoard()
	h := &harness{
		board: b,
		up:    &fakeRelay{name: "RELAY2", board: b},
		down:  &fakeRelay{name: "RELAY1", board: b},
		slot:  dispatch.NewSlot(),
		done:  make(chan error, 1),
	}

	loop, err := New(&Config{
		Up:        h.up,
		Down:      h.down,
		Slot:      h.slot,
		Tick:      testTick,
		TickCount: tickCount,
	})
	require.NoError(t, err)
	h.loop = loop

	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go func() { h.done <- h.loop.Run(ctx) }()
}

func (h *harness) shutdown(t *testing.T) error {
	h.stop()
	select {
	case err := <-h.done:
		return err
	case <-time.After(time.Second):
		t.Fatal("actuator loop did not stop")
		return nil
	}
}

func TestNew(t *testing.T) {
	b := newBoard()
	relay := &fakeRelay{name: "r", board: b}

	t.Run("config is required", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})

	t.Run("both relays are required", func(t *testing.T) {
		_, err := New(&Config{Up: relay, Slot: dispatch.NewSlot()})
		assert.Error(t, err)
	})

	t.Run("slot is required", func(t *testing.T) {
		_, err := New(&Config{Up: relay, Down: relay})
		assert.Error(t, err)
	})

	t.Run("defaults apply", func(t *testing.T) {
		loop, err := New(&Config{Up: relay, Down: relay, Slot: dispatch.NewSlot()})
		require.NoError(t, err)
		assert.Equal(t, DefaultTick, loop.tick)
		assert.Equal(t, DefaultTickCount, loop.tickCount)
	})
}

func TestLoop_CompletedRunClearsDirective(t *testing.T) {
	h := newHarness(t, 3)
	h.slot.Store(dispatch.DirectiveRecliningDown)
	h.start()

	assert.Eventually(t, func() bool {
		return h.slot.Load() == dispatch.DirectiveNone && !h.board.isOn("RELAY1")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.shutdown(t))

	_, overlap := h.board.snapshot()
	assert.False(t, overlap)
	assert.Equal(t, 3, h.board.energizeCount("RELAY1"))
	assert.Zero(t, h.board.energizeCount("RELAY2"))
}

func TestLoop_StopInterruptsRunWithinOneTick(t *testing.T) {
	h := newHarness(t, 50)
	h.slot.Store(dispatch.DirectiveRecliningDown)
	h.start()

	require.Eventually(t, func() bool {
		return h.board.isOn("RELAY1")
	}, time.Second, time.Millisecond)

	stoppedAt := time.Now()
	h.slot.Store(dispatch.DirectiveStop)

	require.Eventually(t, func() bool {
		return !h.board.isOn("RELAY1")
	}, time.Second, time.Millisecond)
	assert.Less(t, time.Since(stoppedAt), 2*testTick)

	assert.Eventually(t, func() bool {
		return h.slot.Load() == dispatch.DirectiveNone
	}, time.Second, time.Millisecond)

	require.NoError(t, h.shutdown(t))

	_, overlap := h.board.snapshot()
	assert.False(t, overlap)
	assert.Zero(t, h.board.energizeCount("RELAY2"))
}

func TestLoop_ReversalSwitchesOnlyAfterRelayIsOff(t *testing.T) {
	h := newHarness(t, 50)
	h.slot.Store(dispatch.DirectiveRecliningDown)
	h.start()

	require.Eventually(t, func() bool {
		return h.board.isOn("RELAY1")
	}, time.Second, time.Millisecond)

	h.slot.Store(dispatch.DirectiveRecliningUp)

	require.Eventually(t, func() bool {
		return h.board.isOn("RELAY2")
	}, time.Second, time.Millisecond)

	require.NoError(t, h.shutdown(t))

	ops, overlap := h.board.snapshot()
	assert.False(t, overlap)

	downOn, sawUp := false, false
	for _, o := range ops {
		if o.relay == "RELAY1" {
			downOn = o.on
			continue
		}
		if o.on {
			sawUp = true
			assert.False(t, downOn, "up energized while down still on")
			break
		}
	}
	assert.True(t, sawUp)
}

func TestLoop_EveryCycleStartsByDeenergizingBoth(t *testing.T) {
	h := newHarness(t, 2)

	h.slot.Store(dispatch.DirectiveRecliningUp)
	h.start()

	assert.Eventually(t, func() bool {
		return h.slot.Load() == dispatch.DirectiveNone
	}, time.Second, time.Millisecond)

	h.slot.Store(dispatch.DirectiveRecliningDown)

	assert.Eventually(t, func() bool {
		return h.slot.Load() == dispatch.DirectiveNone
	}, time.Second, time.Millisecond)

	require.NoError(t, h.shutdown(t))

	ops, overlap := h.board.snapshot()
	assert.False(t, overlap)

	// the first two operations of the loop turn both relays off
	require.GreaterOrEqual(t, len(ops), 2)
	assert.Equal(t, op{relay: "RELAY2", on: false}, ops[0])
	assert.Equal(t, op{relay: "RELAY1", on: false}, ops[1])

	// the other relay is always switched off between its last energize and
	// any energize of this one
	lastOn := map[string]int{"RELAY1": -1, "RELAY2": -1}
	lastOff := map[string]int{"RELAY1": -1, "RELAY2": -1}
	other := map[string]string{"RELAY1": "RELAY2", "RELAY2": "RELAY1"}
	for i, o := range ops {
		if o.on {
			peer := other[o.relay]
			assert.Greater(t, lastOff[peer], lastOn[peer], "op %d", i)
			lastOn[o.relay] = i
		} else {
			lastOff[o.relay] = i
		}
	}
}

func TestLoop_RelayFaultStopsLoop(t *testing.T) {
	h := newHarness(t, 9)

	calls := 0
	var mu sync.Mutex
	h.down.energizeFn = func() error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("gpio write failed")
	}

	h.slot.Store(dispatch.DirectiveRecliningDown)
	h.start()
	defer h.stop()

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrRelayFault)
	case <-time.After(time.Second):
		t.Fatal("actuator loop did not report the fault")
	}

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	// shutdown still left both relays off
	assert.False(t, h.board.isOn("RELAY1"))
	assert.False(t, h.board.isOn("RELAY2"))
}

func TestLoop_ObserverSeesTransitions(t *testing.T) {
	h := newHarness(t, 2)

	var mu sync.Mutex
	var events []Event
	h.loop.observer = func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	h.slot.Store(dispatch.DirectiveRecliningUp)
	h.start()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2
	}, time.Second, time.Millisecond)

	require.NoError(t, h.shutdown(t))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "RELAY2", events[0].Relay)
	assert.True(t, events[0].Energized)
	assert.Equal(t, dispatch.DirectiveRecliningUp, events[0].Directive)
	assert.Equal(t, "RELAY2", events[1].Relay)
	assert.False(t, events[1].Energized)
}
