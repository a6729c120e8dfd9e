package profile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseCPUList parses the kernel CPU list format ("0", "0-3", "0,2-4,7").
// The result is sorted and de-duplicated. An empty string yields an empty
// slice.
func ParseCPUList(cpuList string) ([]int, error) {
	cpuList = strings.TrimSpace(cpuList)
	if cpuList == "" {
		return []int{}, nil
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(cpuList, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		start, end, err := parseCPURange(part)
		if err != nil {
			return nil, err
		}
		for cpu := start; cpu <= end; cpu++ {
			seen[cpu] = struct{}{}
		}
	}

	cpus := make([]int, 0, len(seen))
	for cpu := range seen {
		cpus = append(cpus, cpu)
	}
	sort.Ints(cpus)

	return cpus, nil
}

func parseCPURange(part string) (int, int, error) {
	lo, hi, isRange := strings.Cut(part, "-")
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("invalid CPU number: %q", part)
	}
	if !isRange {
		return start, start, nil
	}

	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid CPU number in range: %q", part)
	}
	if start > end {
		return 0, 0, fmt.Errorf("invalid CPU range (start > end): %q", part)
	}

	return start, end, nil
}

// FormatCPUList renders sorted CPU ids back into the compact kernel format.
func FormatCPUList(cpus []int) string {
	if len(cpus) == 0 {
		return ""
	}

	sorted := append([]int(nil), cpus...)
	sort.Ints(sorted)

	var parts []string
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, cpu := range sorted[1:] {
		if cpu == prev {
			continue
		}
		if cpu == prev+1 {
			prev = cpu
			continue
		}
		flush()
		start, prev = cpu, cpu
	}
	flush()

	return strings.Join(parts, ",")
}
