//go:build linux

package perfbuf

import (
	"os"
	"runtime"
	"strings"
)

// onlineCPUs enumerates online CPU ids from sysfs, falling back to a
// dense 0..NumCPU-1 range when sysfs is unavailable (containers with a
// masked /sys).
func onlineCPUs() []int {
	b, err := os.ReadFile("/sys/devices/system/cpu/online")
	if err == nil {
		if cpus, perr := parseCPUList(strings.TrimSpace(string(b))); perr == nil {
			return cpus
		}
	}
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus
}
