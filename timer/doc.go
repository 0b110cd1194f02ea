// Package timer models the ARM generic timer for the virtual machine. The
// counter is advanced explicitly rather than by wall clock, which keeps
// scheduling behaviour deterministic: each Advance step that crosses the
// compare value raises the timer line on the interrupt controller, and the
// registered handler counts ticks and invokes the scheduler hook.
package timer
