package perfbuf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegionRing(t *testing.T, pages int) *Ring {
	t.Helper()
	region := make([]byte, os.Getpagesize()*(pages+1))
	r, err := NewRingOverRegion(region, pages)
	require.NoError(t, err)
	return r
}

func TestNewRingOverRegionValidation(t *testing.T) {
	pageSize := os.Getpagesize()

	tests := []struct {
		name       string
		pageCount  int
		regionSize int
		wantErr    error
	}{
		{"zero pages", 0, pageSize, ErrInvalidPageCount},
		{"negative pages", -1, pageSize, ErrInvalidPageCount},
		{"not a power of two", 3, pageSize * 4, ErrInvalidPageCount},
		{"region too small", 2, pageSize * 2, ErrRegionTooSmall},
		{"single page", 1, pageSize * 2, nil},
		{"many pages", 64, pageSize * 65, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRingOverRegion(make([]byte, tt.regionSize), tt.pageCount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(pageSize*tt.pageCount), r.Capacity())
		})
	}
}

func TestRingTailAdvancePublishes(t *testing.T) {
	r := newRegionRing(t, 1)

	r.AdvanceTail(16)
	r.AdvanceTail(24)

	assert.Equal(t, uint64(40), r.Tail())
	// The consumer cursor must be visible to the producer side.
	assert.Equal(t, uint64(40), r.tailPub.Load())
}

func TestRingBoundIsASnapshot(t *testing.T) {
	r := newRegionRing(t, 1)
	p := NewProducer(r)

	require.Equal(t, 1, p.Submit(make([]byte, 64)))
	bound := r.CaptureBound()
	require.Equal(t, 1, p.Submit(make([]byte, 64)))

	// The live head moved on, the snapshot did not.
	assert.Greater(t, r.LiveAvailable(), bound-r.Tail())
	assert.Equal(t, bound, uint64(alignFrame(frameHeaderSize+64)))
}

func TestRingAccessorsAfterClose(t *testing.T) {
	r := newRegionRing(t, 1)
	NewProducer(r).Submit(make([]byte, 32))
	require.NoError(t, r.Close())

	// The mapping is gone; cursor accessors degrade instead of touching
	// released memory.
	assert.NotPanics(t, func() {
		assert.Zero(t, r.LiveAvailable())
		assert.Zero(t, r.CaptureBound())
		r.AdvanceTail(8)
	})
	assert.Zero(t, r.Tail(), "cursor must not move after close")
}

func TestRingCloseTwice(t *testing.T) {
	r := newRegionRing(t, 1)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), ErrNotOpen)
}
