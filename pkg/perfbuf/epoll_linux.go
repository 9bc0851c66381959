//go:build linux

package perfbuf

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Epoller multiplexes readiness across the per-CPU rings of one logical
// buffer, keyed by readiness descriptor. An internal eventfd is
// registered alongside the rings so Wakeup can force a blocked Wait to
// return from another goroutine; a timeout alone is not a shutdown
// mechanism since it may be arbitrarily long.
type Epoller struct {
	epfd      int
	wakeFD    int
	maxEvents int

	mu     sync.Mutex
	rings  map[int]*Ring
	closed bool
}

// NewEpoller creates the epoll instance and its wakeup descriptor.
func NewEpoller(maxEvents int) (*Epoller, error) {
	if maxEvents <= 0 {
		maxEvents = 64
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("wakeup eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakeup: %w", err)
	}
	return &Epoller{
		epfd:      epfd,
		wakeFD:    wakeFD,
		maxEvents: maxEvents,
		rings:     make(map[int]*Ring),
	}, nil
}

// Register adds a ring's readiness descriptor to the interest set.
func (e *Epoller) Register(r *Ring) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	fd := r.ReadinessFD()
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	e.rings[fd] = r
	return nil
}

// Unregister removes a ring from the interest set.
func (e *Epoller) Unregister(r *Ring) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	fd := r.ReadinessFD()
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	delete(e.rings, fd)
	return nil
}

// Wait blocks until at least one registered ring is ready, the timeout
// elapses, or Wakeup is called. timeoutMs == 0 means block with no time
// limit until activity or wakeup; it does NOT mean return immediately.
// Negative timeouts are treated the same as 0. Benign interruptions
// (EINTR) are retried against the original deadline; other wait failures
// are surfaced. Returns the ready rings, which may be empty after a
// timeout or wakeup.
func (e *Epoller) Wait(timeoutMs int) ([]*Ring, error) {
	var deadline time.Time
	if timeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}
	events := make([]unix.EpollEvent, e.maxEvents)

	for {
		ep := -1
		if timeoutMs > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, nil
			}
			ep = int(remaining.Milliseconds())
			if ep == 0 {
				ep = 1
			}
		}
		n, err := unix.EpollWait(e.epfd, events, ep)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("epoll wait: %w", err)
		}
		if n == 0 {
			return nil, nil
		}

		var ready []*Ring
		woken := false
		e.mu.Lock()
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == e.wakeFD {
				woken = true
				continue
			}
			if r, ok := e.rings[fd]; ok {
				ready = append(ready, r)
			}
		}
		e.mu.Unlock()
		if woken {
			drainEventFD(e.wakeFD)
		}
		return ready, nil
	}
}

// Wakeup forces a concurrent Wait to return promptly. Safe from any
// goroutine.
func (e *Epoller) Wakeup() error {
	signalEventFD(e.wakeFD)
	return nil
}

// Close releases the epoll instance and the wakeup descriptor. Rings are
// not closed; their owner does that.
func (e *Epoller) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := unix.Close(e.wakeFD)
	if cerr := unix.Close(e.epfd); err == nil {
		err = cerr
	}
	return err
}
