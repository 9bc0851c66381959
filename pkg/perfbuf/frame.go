package perfbuf

import "encoding/binary"

// Frame wire layout (little-endian, 8-byte aligned):
//
//	uint32 kind  // RecordKind
//	uint32 size  // bytes including this 8-byte header
//	...payload   // size-8 bytes, wraps at the region boundary
//
// A record occupies size rounded up to 8 bytes in the ring. LOST records
// carry exactly one uint64 count as payload.
const (
	frameHeaderSize = 8
	frameAlign      = 8
	lostFrameSize   = frameHeaderSize + 8
)

func alignFrame(n uint64) uint64 {
	return (n + frameAlign - 1) &^ (frameAlign - 1)
}

// decodeFrame reads one frame at monotonic offset off, never past bound.
// data is the full circular region; its length must be a power of two.
// Payloads that straddle the wrap boundary are copied into scratch so the
// returned view is always contiguous. Returns the frame and the total
// bytes the record occupies.
func decodeFrame(data, scratch []byte, off, bound uint64) (Frame, uint64, error) {
	capacity := uint64(len(data))
	mask := capacity - 1

	if bound-off < frameHeaderSize {
		return Frame{}, 0, ErrCorruptFrame
	}
	var hdr [frameHeaderSize]byte
	readWrapped(data, off&mask, hdr[:])
	kind := RecordKind(binary.LittleEndian.Uint32(hdr[0:4]))
	size := uint64(binary.LittleEndian.Uint32(hdr[4:8]))

	if size < frameHeaderSize {
		return Frame{}, 0, ErrCorruptFrame
	}
	consumed := alignFrame(size)
	// The bound check is what stops a decode from running into memory the
	// producer has not published yet.
	if consumed > capacity || off+consumed > bound {
		return Frame{}, 0, ErrCorruptFrame
	}

	f := Frame{Kind: kind}
	payloadLen := size - frameHeaderSize
	payloadPos := (off + frameHeaderSize) & mask

	switch kind {
	case KindData:
		if payloadLen > 0 {
			f.Payload = viewWrapped(data, scratch, payloadPos, payloadLen)
		}
	case KindLost:
		if payloadLen != 8 {
			return Frame{}, 0, ErrCorruptFrame
		}
		var cnt [8]byte
		readWrapped(data, payloadPos, cnt[:])
		f.Lost = binary.LittleEndian.Uint64(cnt[:])
	default:
		// Unknown kinds are skipped by declared size so newer producers
		// stay compatible with older consumers.
	}
	return f, consumed, nil
}

// encodeFrame writes f at monotonic offset off and returns the total bytes
// the record occupies. Writer side only; the consumption path never calls
// it. The caller is responsible for space accounting.
func encodeFrame(data []byte, off uint64, f Frame) uint64 {
	capacity := uint64(len(data))
	mask := capacity - 1

	payload := f.Payload
	if f.Kind == KindLost {
		var cnt [8]byte
		binary.LittleEndian.PutUint64(cnt[:], f.Lost)
		payload = cnt[:]
	}
	size := frameHeaderSize + uint64(len(payload))

	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(f.Kind))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(size))
	writeWrapped(data, off&mask, hdr[:])
	if len(payload) > 0 {
		writeWrapped(data, (off+frameHeaderSize)&mask, payload)
	}
	return alignFrame(size)
}

// readWrapped copies len(dst) bytes starting at physical position pos,
// wrapping to the start of the region as needed.
func readWrapped(data []byte, pos uint64, dst []byte) {
	n := copy(dst, data[pos:])
	if n < len(dst) {
		copy(dst[n:], data)
	}
}

func writeWrapped(data []byte, pos uint64, src []byte) {
	n := copy(data[pos:], src)
	if n < len(src) {
		copy(data, src[n:])
	}
}

// viewWrapped returns a contiguous view of n bytes at pos: a zero-copy
// subslice when the span does not wrap, otherwise a copy into scratch.
func viewWrapped(data, scratch []byte, pos, n uint64) []byte {
	if pos+n <= uint64(len(data)) {
		return data[pos : pos+n]
	}
	readWrapped(data, pos, scratch[:n])
	return scratch[:n]
}
