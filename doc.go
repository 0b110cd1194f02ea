// Package kernos is the memory management and process scheduling core of a
// single-core ARM64 kernel, modelled in Go. It wires a buddy page
// allocator, a first-fit kernel heap, a process control block model, a
// round-robin scheduler with timer-driven preemption, and the vectored
// exception dispatch path that feeds it.
//
// End-users typically interact with the core via the high-level System
// façade exposed by the root package:
//
//	sys := kernos.New(kernos.WithBootArgs("mem=64M slice=5"))
//	_ = sys.Boot(ctx)
//	_, _ = sys.Spawn(func() { /* process body */ }, "init")
//	_ = sys.Run(ctx)
//
// For more details see the README and individual sub-packages.
package kernos
