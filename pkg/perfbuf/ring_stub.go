//go:build !linux

package perfbuf

// OpenRing requires descriptor mapping and is only available on Linux.
// NewRingOverRegion works everywhere.
func OpenRing(memFD, eventFD, pageCount int) (*Ring, error) {
	return nil, ErrNotSupported
}

func (r *Ring) unmap() error { return nil }

func closeFD(fd int) error { return nil }

func (r *Ring) signalReadiness() {}

func (r *Ring) clearReadiness() {}
