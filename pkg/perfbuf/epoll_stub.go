//go:build !linux

package perfbuf

// Epoller requires epoll and eventfd; only the Linux build carries a real
// implementation.
type Epoller struct{}

func NewEpoller(maxEvents int) (*Epoller, error) {
	return nil, ErrNotSupported
}

func (e *Epoller) Register(r *Ring) error   { return ErrNotSupported }
func (e *Epoller) Unregister(r *Ring) error { return ErrNotSupported }

func (e *Epoller) Wait(timeoutMs int) ([]*Ring, error) {
	return nil, ErrNotSupported
}

func (e *Epoller) Wakeup() error { return ErrNotSupported }
func (e *Epoller) Close() error  { return nil }
