// Package sched implements the round-robin scheduler. The ready queue is a
// circular, insertion-ordered list linked by arena indices; the running
// process is never a member. Yield is the single switch path, used both
// voluntarily and by the timer preemption backstop, and an always-present
// idle process parks the CPU when nothing is ready.
//
// The machine has one logical CPU. Each process body runs on its own
// goroutine, but exactly one goroutine (the CPU loop or the current
// process) executes at a time; the switch is an unbuffered channel handoff.
// Shared scheduler state therefore needs no lock, only the scoped
// mask/restore bracket around ready-queue mutation so a timer delivery
// cannot observe a half-linked queue.
package sched
