package perfbuf

import (
	"fmt"
	"strconv"
	"strings"
)

// parseCPUList parses the sysfs cpulist format, e.g. "0-3,5,7-8".
func parseCPUList(s string) ([]int, error) {
	var cpus []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("cpu list range %q: %w", part, err)
			}
			end, err := strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("cpu list range %q: %w", part, err)
			}
			if end < start {
				return nil, fmt.Errorf("cpu list range %q: end before start", part)
			}
			for cpu := start; cpu <= end; cpu++ {
				cpus = append(cpus, cpu)
			}
			continue
		}
		cpu, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("cpu list entry %q: %w", part, err)
		}
		cpus = append(cpus, cpu)
	}
	if len(cpus) == 0 {
		return nil, fmt.Errorf("empty cpu list %q", s)
	}
	return cpus, nil
}
