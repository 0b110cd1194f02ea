// Package proc defines the process control block model: identity, state,
// the saved register context, the heap-backed stack region and the file
// descriptor table handle. The Manager owns creation and reclamation;
// scheduling policy lives in the sched package.
package proc
