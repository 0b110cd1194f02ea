package irq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syndromeFor(ec uint64) Syndrome {
	return Syndrome(ec << 26)
}

func TestDispatcher_IRQRouting(t *testing.T) {
	controller := NewController()
	dispatcher := NewDispatcher(controller)
	dispatcher.Unmask()

	var delivered []uint32
	require.NoError(t, dispatcher.Register(33, func(irq uint32, frame *Frame) {
		delivered = append(delivered, irq)
	}))
	require.NoError(t, controller.Enable(33))
	require.NoError(t, controller.Raise(33))

	require.NoError(t, dispatcher.DispatchPending(&Frame{}))
	assert.Equal(t, []uint32{33}, delivered)
	assert.EqualValues(t, 1, dispatcher.Stats().IRQ)
}

func TestDispatcher_MaskedDeliveryDeferred(t *testing.T) {
	controller := NewController()
	dispatcher := NewDispatcher(controller)
	dispatcher.Unmask()

	var delivered int
	require.NoError(t, dispatcher.Register(40, func(uint32, *Frame) {
		delivered++
	}))
	require.NoError(t, controller.Enable(40))

	restore := dispatcher.Mask()
	require.NoError(t, controller.Raise(40))
	require.NoError(t, dispatcher.DispatchPending(&Frame{}))
	assert.Zero(t, delivered)

	restore()
	require.NoError(t, dispatcher.DispatchPending(&Frame{}))
	assert.Equal(t, 1, delivered)
}

func TestDispatcher_NestedMaskRestores(t *testing.T) {
	dispatcher := NewDispatcher(NewController())
	dispatcher.Unmask()

	outer := dispatcher.Mask()
	inner := dispatcher.Mask()
	inner()
	assert.True(t, dispatcher.Masked())
	outer()
	assert.False(t, dispatcher.Masked())
}

func TestDispatcher_FIQRoute(t *testing.T) {
	controller := NewController()
	dispatcher := NewDispatcher(controller)
	dispatcher.Unmask()

	var fired uint32
	dispatcher.RegisterFIQ(func(irq uint32, frame *Frame) {
		fired = irq
	})
	require.NoError(t, controller.Enable(TimerIRQ))
	require.NoError(t, controller.RouteFIQ(TimerIRQ))
	require.NoError(t, controller.Raise(TimerIRQ))

	require.NoError(t, dispatcher.DispatchPending(&Frame{}))
	assert.EqualValues(t, TimerIRQ, fired)
	assert.EqualValues(t, 1, dispatcher.Stats().FIQ)
}

func TestDispatcher_SVC(t *testing.T) {
	dispatcher := NewDispatcher(NewController())
	var handled bool
	dispatcher.RegisterSVC(func(frame *Frame) {
		handled = true
		frame.X[0] = 42
	})

	frame := &Frame{Syndrome: syndromeFor(ECSVC)}
	require.NoError(t, dispatcher.Vector(SourceLower64, ClassSync, frame))
	assert.True(t, handled)
	assert.EqualValues(t, 42, frame.X[0])
	assert.False(t, dispatcher.Halted())
}

func TestDispatcher_BRKSkipsInstruction(t *testing.T) {
	dispatcher := NewDispatcher(NewController())
	frame := &Frame{Syndrome: syndromeFor(ECBRK), ELR: 0x40001000}
	require.NoError(t, dispatcher.Vector(SourceCurrentSPx, ClassSync, frame))
	assert.EqualValues(t, 0x40001004, frame.ELR)
}

func TestDispatcher_DataAbortHalts(t *testing.T) {
	var dump bytes.Buffer
	dispatcher := NewDispatcher(NewController(), WithDumpWriter(&dump))

	frame := &Frame{Syndrome: syndromeFor(ECDataAbort), FAR: 0xdeadbeef, ELR: 0x40002000}
	err := dispatcher.Vector(SourceCurrentSPx, ClassSync, frame)
	assert.ErrorIs(t, err, ErrUnhandled)
	assert.True(t, dispatcher.Halted())
	assert.True(t, dispatcher.Masked())
	assert.Contains(t, dump.String(), "data abort")
	assert.Contains(t, dump.String(), "0xdeadbeef")
	assert.Contains(t, dump.String(), "x30")
}

func TestDispatcher_UnknownSyndromeHalts(t *testing.T) {
	var dump bytes.Buffer
	dispatcher := NewDispatcher(NewController(), WithDumpWriter(&dump))

	err := dispatcher.Vector(SourceCurrentSP0, ClassSync, &Frame{Syndrome: syndromeFor(ECUnknown)})
	assert.ErrorIs(t, err, ErrUnhandled)
	assert.Contains(t, dump.String(), "unknown reason")
	assert.EqualValues(t, 1, dispatcher.Stats().Fatal)
}

func TestDispatcher_SErrorHalts(t *testing.T) {
	var dump bytes.Buffer
	dispatcher := NewDispatcher(NewController(), WithDumpWriter(&dump))

	err := dispatcher.Vector(SourceLower64, ClassSError, &Frame{})
	assert.ErrorIs(t, err, ErrUnhandled)
	assert.True(t, dispatcher.Halted())

	// once halted, nothing else is delivered
	err = dispatcher.Vector(SourceLower64, ClassIRQ, &Frame{})
	assert.ErrorIs(t, err, ErrUnhandled)
	assert.EqualValues(t, 0, dispatcher.Stats().IRQ)
}

func TestDispatcher_NoHandler(t *testing.T) {
	controller := NewController()
	dispatcher := NewDispatcher(controller)
	dispatcher.Unmask()

	require.NoError(t, controller.Enable(60))
	require.NoError(t, controller.Raise(60))
	assert.ErrorIs(t, dispatcher.DispatchPending(&Frame{}), ErrNoHandler)
	// line was completed, not left pending
	assert.False(t, controller.HasPending(false))
}

func TestDispatcher_SpuriousIgnored(t *testing.T) {
	dispatcher := NewDispatcher(NewController())
	require.NoError(t, dispatcher.Vector(SourceCurrentSPx, ClassIRQ, &Frame{}))
	assert.False(t, dispatcher.Halted())
}
