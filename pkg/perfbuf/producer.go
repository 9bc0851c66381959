package perfbuf

// Producer is the writer side of one ring. It stands in for the
// kernel-space producer in tests and the bench harness: it publishes DATA
// frames with release semantics on head, signals the readiness
// descriptor, and accounts drops the way the consumer's conservation
// property expects — a single LOST record carrying the accumulated count
// precedes the next successful write. Exactly one Producer may write to a
// ring; it is not part of the consumption path.
type Producer struct {
	ring        *Ring
	pendingLost uint64
}

// NewProducer attaches a producer to r's writer side. The ring must be
// shared with (or identical to) the consumer's mapping.
func NewProducer(r *Ring) *Producer {
	return &Producer{ring: r}
}

// Submit publishes one DATA frame carrying payload. When the ring lacks
// space the sample is dropped and counted; the count is flushed as a LOST
// record ahead of the next frame that fits. Returns the number of frames
// published by this call (0, 1, or 2 including a flushed LOST record).
func (p *Producer) Submit(payload []byte) int {
	r := p.ring
	need := alignFrame(frameHeaderSize + uint64(len(payload)))
	var lostNeed uint64
	if p.pendingLost > 0 {
		lostNeed = lostFrameSize
	}

	head := r.head.Load()
	tail := r.tailPub.Load()
	if need+lostNeed > r.capacity-(head-tail) {
		p.pendingLost++
		return 0
	}

	published := 0
	if p.pendingLost > 0 {
		head += encodeFrame(r.data, head, Frame{Kind: KindLost, Lost: p.pendingLost})
		p.pendingLost = 0
		published++
	}
	head += encodeFrame(r.data, head, Frame{Kind: KindData, Payload: payload})
	published++

	// Atomic store publishes the payload writes before the new head.
	r.head.Store(head)
	r.signalReadiness()
	return published
}

// PendingLost returns drops not yet flushed as a LOST record.
func (p *Producer) PendingLost() uint64 {
	return p.pendingLost
}
