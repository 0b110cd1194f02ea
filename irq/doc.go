// Package irq models the interrupt fabric of the machine: a GICv2-style
// controller (per-line enable bit, 8-bit priority, pending state,
// acknowledge/end-of-interrupt handshake) and the exception dispatcher that
// routes the sixteen ARM64 vector-table entries into kernel handlers.
//
// Devices raise lines from any goroutine; delivery happens only on the CPU
// goroutine at safepoints, and only while interrupts are unmasked. The
// Mask/restore pair is the scoped critical-section discipline every
// free-list and ready-queue mutation runs under.
package irq
