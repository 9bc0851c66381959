package perfbuf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector accumulates everything delivered to the callbacks.
type collector struct {
	payloads [][]byte
	lost     uint64
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		Cookie: c,
		OnSample: func(cookie any, data []byte) {
			cp := make([]byte, len(data))
			copy(cp, data)
			cookie.(*collector).payloads = append(cookie.(*collector).payloads, cp)
		},
		OnLost: func(cookie any, lost uint64) {
			cookie.(*collector).lost += lost
		},
	}
}

func seqPayload(seq uint32, size int) []byte {
	p := make([]byte, size)
	binary.LittleEndian.PutUint32(p, seq)
	return p
}

func TestDrainOnceDeliversInOrder(t *testing.T) {
	r := newRegionRing(t, 1)
	p := NewProducer(r)
	c := &collector{}

	const frames = 10
	for i := 0; i < frames; i++ {
		require.Equal(t, 1, p.Submit(seqPayload(uint32(i), 64)))
	}

	stats, err := NewConsumer().DrainOnce(r, c.callbacks())
	require.NoError(t, err)
	assert.Equal(t, frames, stats.Frames)
	assert.Equal(t, uint64(frames)*alignFrame(frameHeaderSize+64), stats.Bytes)
	require.Len(t, c.payloads, frames)
	for i, payload := range c.payloads {
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(payload))
	}

	// Nothing left: the drain consumed exactly up to its bound.
	stats, err = NewConsumer().DrainOnce(r, c.callbacks())
	require.NoError(t, err)
	assert.Zero(t, stats.Frames)
}

// A producer that outruns the callbacks must not extend the current
// drain: only frames published before the bound snapshot are delivered,
// and one call never consumes more than the ring capacity.
func TestDrainOnceBoundedAgainstFasterProducer(t *testing.T) {
	r := newRegionRing(t, 1)
	p := NewProducer(r)

	const initial = 10
	const payloadSize = 100
	for i := 0; i < initial; i++ {
		require.Equal(t, 1, p.Submit(seqPayload(uint32(i), payloadSize)))
	}

	delivered := 0
	cb := Callbacks{
		OnSample: func(_ any, _ []byte) {
			delivered++
			// The producer publishes another frame for every one the
			// consumer handles.
			p.Submit(seqPayload(uint32(initial+delivered), payloadSize))
		},
	}

	stats, err := NewConsumer().DrainOnce(r, cb)
	require.NoError(t, err)
	assert.Equal(t, initial, stats.Frames)
	assert.Equal(t, initial, delivered)
	assert.LessOrEqual(t, stats.Bytes, r.Capacity())

	// The frames published during the drain are still waiting.
	frameSize := alignFrame(frameHeaderSize + payloadSize)
	assert.Equal(t, uint64(initial)*frameSize, r.LiveAvailable())
}

func TestDrainOnceNoDoubleDelivery(t *testing.T) {
	r := newRegionRing(t, 1)
	p := NewProducer(r)
	c := &collector{}
	consumer := NewConsumer()

	seq := uint32(0)
	for round := 0; round < 3; round++ {
		for i := 0; i < 5; i++ {
			require.Equal(t, 1, p.Submit(seqPayload(seq, 32)))
			seq++
		}
		_, err := consumer.DrainOnce(r, c.callbacks())
		require.NoError(t, err)
	}

	require.Len(t, c.payloads, int(seq))
	seen := make(map[uint32]bool)
	for _, payload := range c.payloads {
		got := binary.LittleEndian.Uint32(payload)
		assert.False(t, seen[got], "frame %d delivered twice", got)
		seen[got] = true
	}
}

// Conservation: every frame the producer tried to publish is accounted
// for, either through the data callback or through a lost count.
func TestDrainConservesProducedFrames(t *testing.T) {
	r := newRegionRing(t, 1)
	p := NewProducer(r)
	c := &collector{}
	consumer := NewConsumer()

	payload := make([]byte, 496)
	submitted := 0

	// Flood without draining so the ring fills and drops accumulate.
	for i := 0; i < 100; i++ {
		p.Submit(payload)
		submitted++
	}
	assert.Positive(t, p.PendingLost())

	// Alternate draining and submitting until the pending loss flushes.
	for p.PendingLost() > 0 || r.LiveAvailable() > 0 {
		_, err := consumer.DrainOnce(r, c.callbacks())
		require.NoError(t, err)
		if p.PendingLost() > 0 {
			p.Submit(payload)
			submitted++
		}
	}

	assert.Equal(t, uint64(submitted), uint64(len(c.payloads))+c.lost)
}

func TestDrainOnceStopsAtCorruptFrame(t *testing.T) {
	r := newRegionRing(t, 1)
	p := NewProducer(r)
	c := &collector{}
	consumer := NewConsumer()

	require.Equal(t, 1, p.Submit(seqPayload(0, 64)))
	firstSize := alignFrame(frameHeaderSize + 64)
	require.Equal(t, 1, p.Submit(seqPayload(1, 64)))

	// Wreck the second frame's size field.
	binary.LittleEndian.PutUint32(r.data[firstSize+4:], 0xFFFFFFFF)

	stats, err := consumer.DrainOnce(r, c.callbacks())
	assert.ErrorIs(t, err, ErrCorruptFrame)
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, firstSize, r.Tail(), "tail must stay at the corrupt frame")

	// The condition persists: the next call fails the same way without
	// delivering anything new.
	stats, err = consumer.DrainOnce(r, c.callbacks())
	assert.ErrorIs(t, err, ErrCorruptFrame)
	assert.Zero(t, stats.Frames)
	assert.Equal(t, firstSize, r.Tail())
	assert.Len(t, c.payloads, 1)
}

func TestDrainOnceSkipsUnknownKinds(t *testing.T) {
	r := newRegionRing(t, 1)
	c := &collector{}

	// Handcraft an unknown record followed by a normal one.
	const futureKind = RecordKind(99)
	head := encodeFrame(r.data, 0, Frame{Kind: futureKind, Payload: make([]byte, 24)})
	head += encodeFrame(r.data, head, Frame{Kind: KindData, Payload: seqPayload(7, 16)})
	r.head.Store(head)

	stats, err := NewConsumer().DrainOnce(r, c.callbacks())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Frames, "only the known frame counts as delivered")
	assert.Equal(t, head, stats.Bytes, "the unknown frame is still consumed")
	require.Len(t, c.payloads, 1)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(c.payloads[0]))
}

func TestDrainOnceClosedRing(t *testing.T) {
	r := newRegionRing(t, 1)
	require.NoError(t, r.Close())

	_, err := NewConsumer().DrainOnce(r, Callbacks{})
	assert.ErrorIs(t, err, ErrNotOpen)
}
