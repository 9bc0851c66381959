//go:build linux

package perfbuf

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenRing maps the shared region backing memFD and wraps it together
// with its readiness descriptor. pageCount must be a positive power of
// two and the region must hold one control page plus pageCount data
// pages. Takes ownership of both descriptors; on failure they are closed.
func OpenRing(memFD, eventFD, pageCount int) (*Ring, error) {
	if pageCount <= 0 || pageCount&(pageCount-1) != 0 {
		closeFD(memFD)
		closeFD(eventFD)
		return nil, ErrInvalidPageCount
	}
	pageSize := os.Getpagesize()
	size := pageSize * (pageCount + 1)

	mem, err := unix.Mmap(memFD, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		closeFD(memFD)
		closeFD(eventFD)
		return nil, fmt.Errorf("mmap ring region: %w", err)
	}
	r, err := newRing(mem, pageSize, pageCount, memFD, eventFD, true)
	if err != nil {
		_ = unix.Munmap(mem)
		closeFD(memFD)
		closeFD(eventFD)
		return nil, err
	}
	return r, nil
}

func (r *Ring) unmap() error {
	return unix.Munmap(r.mem)
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// signalReadiness bumps the eventfd counter so a waiting poller wakes.
// Writer side; a full counter (EAGAIN) already implies readiness.
func (r *Ring) signalReadiness() {
	signalEventFD(r.eventFD)
}

// clearReadiness drains the eventfd counter before a drain so the next
// publish re-arms it.
func (r *Ring) clearReadiness() {
	drainEventFD(r.eventFD)
}

func signalEventFD(fd int) {
	if fd < 0 {
		return
	}
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(fd, one[:])
}

func drainEventFD(fd int) {
	if fd < 0 {
		return
	}
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}
