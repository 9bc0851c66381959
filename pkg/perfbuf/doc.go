// Package perfbuf consumes high-volume event streams that an uncontrolled
// producer writes into per-CPU, fixed-capacity circular memory regions.
//
// The producer and consumer share one mapping but own disjoint cursors:
// the producer advances head, this package advances tail, and the two are
// connected only by an acquire/release contract on head. The engine's
// defining property is the bounded drain: each poll snapshots head once
// per ring and consumes no further, so a slow callback racing a fast
// producer defers work to the next call instead of looping unboundedly.
// Data the producer overwrote before it was read is surfaced as a count
// through the loss callback, never reconstructed.
package perfbuf
