package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/kernos/irq"
)

func newTimer(t *testing.T, options ...Option) (*Timer, *irq.Controller, *irq.Dispatcher) {
	controller := irq.NewController()
	dispatcher := irq.NewDispatcher(controller)
	dispatcher.Unmask()
	tm, err := New(controller, dispatcher, options...)
	require.NoError(t, err)
	return tm, controller, dispatcher
}

func TestTimer_AdvanceRaisesTick(t *testing.T) {
	tm, _, dispatcher := newTimer(t)
	tm.Start()

	require.NoError(t, tm.AdvanceTicks(1))
	require.NoError(t, dispatcher.DispatchPending(&irq.Frame{}))
	assert.EqualValues(t, 1, tm.Ticks())
}

func TestTimer_AdvanceBelowIntervalNoTick(t *testing.T) {
	tm, controller, dispatcher := newTimer(t)
	tm.Start()

	require.NoError(t, tm.Advance(tm.interval-1))
	assert.False(t, controller.HasPending(false))
	require.NoError(t, dispatcher.DispatchPending(&irq.Frame{}))
	assert.Zero(t, tm.Ticks())
}

func TestTimer_TickFuncInvoked(t *testing.T) {
	var seen []uint64
	tm, _, dispatcher := newTimer(t, WithTickFunc(func(ticks uint64) {
		seen = append(seen, ticks)
	}))
	tm.Start()

	require.NoError(t, tm.AdvanceTicks(3))
	require.NoError(t, dispatcher.DispatchPending(&irq.Frame{}))
	assert.Equal(t, []uint64{1, 2, 3}, seen)
}

func TestTimer_NotStarted(t *testing.T) {
	tm, _, _ := newTimer(t)
	assert.ErrorIs(t, tm.Advance(1), ErrNotStarted)
}

func TestTimer_Uptime(t *testing.T) {
	tm, _, dispatcher := newTimer(t, WithTickRate(100))
	tm.Start()

	require.NoError(t, tm.AdvanceTicks(250))
	require.NoError(t, dispatcher.DispatchPending(&irq.Frame{}))
	assert.EqualValues(t, 250, tm.Ticks())
	assert.EqualValues(t, 2500, tm.UptimeMillis())
	assert.EqualValues(t, 2, tm.UptimeSeconds())
}

func TestTimer_MaskedTicksStayPending(t *testing.T) {
	tm, controller, dispatcher := newTimer(t)
	tm.Start()

	restore := dispatcher.Mask()
	require.NoError(t, tm.AdvanceTicks(1))
	require.NoError(t, dispatcher.DispatchPending(&irq.Frame{}))
	assert.Zero(t, tm.Ticks())
	assert.True(t, controller.HasPending(false))

	restore()
	require.NoError(t, dispatcher.DispatchPending(&irq.Frame{}))
	assert.EqualValues(t, 1, tm.Ticks())
}

func TestTimer_InvalidConfig(t *testing.T) {
	controller := irq.NewController()
	dispatcher := irq.NewDispatcher(controller)
	_, err := New(controller, dispatcher, WithTickRate(0))
	assert.Error(t, err)
	_, err = New(controller, dispatcher, WithFrequency(10), WithTickRate(100))
	assert.Error(t, err)
}
