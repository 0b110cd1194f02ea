// Package heap implements the general-purpose kernel heap: a first-fit
// allocator over a fixed region with an address-ordered block chain and
// immediate neighbour coalescing on free. Block headers are kept out of
// band in an arena of records linked by integer handles; the header
// overhead is still accounted inside each block's size so the chain covers
// the region with no gaps.
package heap
