package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlot(t *testing.T) {
	t.Run("compare and clear only clears the expected directive", func(t *testing.T) {
		slot := NewSlot()
		slot.Store(DirectiveRecliningDown)

		// a stop arrives between the actuator's load and its clear
		seen := slot.Load()
		slot.Store(DirectiveStop)

		assert.False(t, slot.CompareAndClear(seen))
		assert.Equal(t, DirectiveStop, slot.Load())

		assert.True(t, slot.CompareAndClear(DirectiveStop))
		assert.Equal(t, DirectiveNone, slot.Load())
	})

	t.Run("changes are signalled and coalesced", func(t *testing.T) {
		slot := NewSlot()
		slot.Store(DirectiveRecliningUp)
		slot.Store(DirectiveRecliningDown)

		select {
		case <-slot.Changed():
		default:
			t.Fatal("expected a change notification")
		}

		select {
		case <-slot.Changed():
			t.Fatal("notifications should coalesce")
		default:
		}
	})

	t.Run("concurrent writer and clearer never lose the last store", func(t *testing.T) {
		slot := NewSlot()
		var wg sync.WaitGroup

		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				slot.Store(DirectiveRecliningUp)
			}
			slot.Store(DirectiveStop)
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				slot.CompareAndClear(DirectiveRecliningUp)
			}
		}()
		wg.Wait()

		assert.Equal(t, DirectiveStop, slot.Load())
	})
}

func TestDirective_String(t *testing.T) {
	assert.Equal(t, "reclining_down", DirectiveRecliningDown.String())
	assert.Equal(t, "Directive(9)", Directive(9).String())
}
