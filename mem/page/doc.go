// Package page implements the physical page-frame allocator as a binary
// buddy system. Addresses are opaque integers; a block of order o covers
// Size<<o bytes and its buddy differs from it in exactly that bit. Blocks
// split on demand and re-merge when both halves are free again.
//
// Allocation failure is an ordinary condition reported with the zero
// sentinel; the allocator never terminates the kernel.
package page
