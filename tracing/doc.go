// Package tracing integrates observability back-ends with the kernel to
// provide tracing of boot and process lifecycle. All instrumentation is
// kept in a separate package so that builds which do not require tracing
// can exclude it.
package tracing
