//go:build !linux

package perfbuf

// MemfdSource requires memfd_create and eventfd; only available on Linux.
type MemfdSource struct{}

func NewMemfdSource() *MemfdSource {
	return &MemfdSource{}
}

func (s *MemfdSource) CreateRing(cpu, pageCount int) (int, int, error) {
	return -1, -1, ErrNotSupported
}
