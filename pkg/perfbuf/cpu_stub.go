//go:build !linux

package perfbuf

import "runtime"

func onlineCPUs() []int {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus
}
