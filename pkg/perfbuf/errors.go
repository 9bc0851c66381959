package perfbuf

import "errors"

// Common errors
var (
	// Open errors
	ErrInvalidPageCount = errors.New("page count must be a positive power of two")
	ErrAlreadyOpen      = errors.New("buffer already open")
	ErrRegionTooSmall   = errors.New("backing region smaller than requested page count")

	// Lifecycle errors
	ErrNotOpen = errors.New("buffer not open")
	ErrBusy    = errors.New("poll already in progress on this buffer")
	ErrClosed  = errors.New("poller closed")

	// Decode errors
	ErrCorruptFrame = errors.New("corrupt frame")

	// Platform errors
	ErrNotSupported = errors.New("perf buffers not supported on this platform")
)
