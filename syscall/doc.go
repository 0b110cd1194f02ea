// Package syscall dispatches numbered service calls taken on the
// synchronous exception path. The register convention is Linux-like: the
// call number travels in x8, arguments in x0..x5, and the result returns
// in x0. Invalid or unimplemented numbers return all-ones and log; they
// never halt the machine.
package syscall
