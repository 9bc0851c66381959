package perfbuf

// DrainStats summarizes one bounded drain of one ring.
type DrainStats struct {
	Frames int    // DATA and LOST frames delivered
	Bytes  uint64 // total bytes consumed from the ring
	Lost   uint64 // sum of LOST record counts
}

// Consumer performs bounded drains of individual rings. It owns a scratch
// buffer for wrap-straddling payloads, so a Consumer serves one drain at
// a time.
type Consumer struct {
	scratch []byte
}

// NewConsumer returns a Consumer ready for use.
func NewConsumer() *Consumer {
	return &Consumer{}
}

// DrainOnce consumes frames from r up to a head snapshot taken before the
// first decode, invoking callbacks per frame. The snapshot, not the live
// head, bounds the loop: however fast the producer publishes and however
// slow the callbacks run, one call consumes at most Capacity bytes and
// then returns, deferring the rest to the next call. Frames published
// after the snapshot are never touched.
//
// On a corrupt frame the drain stops with ErrCorruptFrame and the tail is
// left at the corrupt frame, so the next call fails the same way until
// the condition is resolved externally. Stats cover the frames delivered
// before the error.
func (c *Consumer) DrainOnce(r *Ring, cb Callbacks) (DrainStats, error) {
	var stats DrainStats
	if !r.open {
		return stats, ErrNotOpen
	}
	bound := r.CaptureBound()
	if len(c.scratch) < int(r.capacity) {
		c.scratch = make([]byte, r.capacity)
	}

	for r.tail < bound {
		f, n, err := decodeFrame(r.data, c.scratch, r.tail, bound)
		if err != nil {
			return stats, err
		}
		switch f.Kind {
		case KindData:
			if cb.OnSample != nil {
				cb.OnSample(cb.Cookie, f.Payload)
			}
			stats.Frames++
		case KindLost:
			if cb.OnLost != nil {
				cb.OnLost(cb.Cookie, f.Lost)
			}
			stats.Frames++
			stats.Lost += f.Lost
		}
		r.AdvanceTail(n)
		stats.Bytes += n
	}
	return stats, nil
}
