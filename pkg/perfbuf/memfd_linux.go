//go:build linux

package perfbuf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MemfdSource backs rings with anonymous memfd regions and eventfd
// readiness descriptors. Producer and consumer must live in the same
// process (or inherit the descriptors); it exists for the bench harness
// and tests, standing in for perf_event-backed sources.
type MemfdSource struct{}

// NewMemfdSource returns a MemfdSource.
func NewMemfdSource() *MemfdSource {
	return &MemfdSource{}
}

// CreateRing allocates the region (control page + pageCount data pages)
// and its readiness descriptor for one CPU.
func (s *MemfdSource) CreateRing(cpu, pageCount int) (int, int, error) {
	size := os.Getpagesize() * (pageCount + 1)

	memFD, err := unix.MemfdCreate(fmt.Sprintf("perfpoll-cpu%d", cpu), unix.MFD_CLOEXEC)
	if err != nil {
		return -1, -1, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(memFD, int64(size)); err != nil {
		_ = unix.Close(memFD)
		return -1, -1, fmt.Errorf("ftruncate ring region: %w", err)
	}
	eventFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(memFD)
		return -1, -1, fmt.Errorf("readiness eventfd: %w", err)
	}
	return memFD, eventFD, nil
}
