package perfbuf

import (
	"errors"
	"os"
	"sync/atomic"
	"unsafe"
)

// Shared region layout: one control page followed by pageCount data pages.
// The control page holds the two monotonic byte offsets that connect the
// producer and consumer ownership domains:
//
//	offset 0: head, written only by the producer (release on publish)
//	offset 8: tail, written only by the consumer (mirrors the local cursor
//	          so the producer can see reclaimed space)
//
// Everything else in the control page is reserved.
const (
	headOffset = 0
	tailOffset = 8
)

// Ring owns the consumer side of one circular region: the mapping, the
// local tail cursor, and the readiness descriptor the producer signals.
// Not safe for concurrent use; one drain may be in flight per ring.
type Ring struct {
	mem      []byte // control page + data pages
	data     []byte // data area view into mem
	capacity uint64

	head    *atomic.Uint64 // producer-owned
	tailPub *atomic.Uint64 // consumer-owned, visible to the producer
	tail    uint64         // consumer cursor, authoritative

	memFD   int
	eventFD int
	mapped  bool
	open    bool
}

func newRing(mem []byte, pageSize, pageCount, memFD, eventFD int, mapped bool) (*Ring, error) {
	if pageCount <= 0 || pageCount&(pageCount-1) != 0 {
		return nil, ErrInvalidPageCount
	}
	capacity := uint64(pageSize) * uint64(pageCount)
	if uint64(len(mem)) < uint64(pageSize)+capacity {
		return nil, ErrRegionTooSmall
	}
	r := &Ring{
		mem:      mem,
		data:     mem[pageSize : uint64(pageSize)+capacity],
		capacity: capacity,
		head:     (*atomic.Uint64)(unsafe.Pointer(&mem[headOffset])),
		tailPub:  (*atomic.Uint64)(unsafe.Pointer(&mem[tailOffset])),
		memFD:    memFD,
		eventFD:  eventFD,
		mapped:   mapped,
		open:     true,
	}
	r.tail = r.tailPub.Load()
	return r, nil
}

// NewRingOverRegion wraps a caller-provided region without mapping
// anything. The region must hold one control page plus pageCount data
// pages at the current OS page size. Used by same-process producers and
// tests; OpenRing is the descriptor-backed equivalent.
func NewRingOverRegion(region []byte, pageCount int) (*Ring, error) {
	return newRing(region, os.Getpagesize(), pageCount, -1, -1, false)
}

// Capacity returns the data area size in bytes.
func (r *Ring) Capacity() uint64 {
	return r.capacity
}

// ReadinessFD returns the descriptor the producer signals after
// publishing, or -1 for region-backed rings.
func (r *Ring) ReadinessFD() int {
	return r.eventFD
}

// LiveAvailable returns head-tail against the live producer head, or 0
// on a closed ring. The atomic load orders the read against the
// producer's payload writes: a frame is fully written before the head
// that covers it is published.
func (r *Ring) LiveAvailable() uint64 {
	if !r.open {
		return 0
	}
	return r.head.Load() - r.tail
}

// CaptureBound snapshots the producer head, or 0 on a closed ring. A
// drain takes this exactly once and never re-reads the live head, which
// is what keeps one call's work bounded by the ring capacity.
func (r *Ring) CaptureBound() uint64 {
	if !r.open {
		return 0
	}
	return r.head.Load()
}

// Tail returns the consumer cursor.
func (r *Ring) Tail() uint64 {
	return r.tail
}

// AdvanceTail moves the consumer cursor forward by n bytes and publishes
// it for the producer. The cursor is monotonic and never rewound. No-op
// on a closed ring.
func (r *Ring) AdvanceTail(n uint64) {
	if !r.open {
		return
	}
	r.tail += n
	r.tailPub.Store(r.tail)
}

// Close releases the mapping and both descriptors. A second Close fails
// with ErrNotOpen; the ring is unusable either way.
func (r *Ring) Close() error {
	if !r.open {
		return ErrNotOpen
	}
	r.open = false

	var unmapErr error
	if r.mapped {
		unmapErr = r.unmap()
	}
	r.mem = nil
	r.data = nil
	r.head = nil
	r.tailPub = nil

	return errors.Join(unmapErr, closeFD(r.memFD), closeFD(r.eventFD))
}
