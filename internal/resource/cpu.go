// Package resource enforces static admission limits so the hub degrades
// predictably under load instead of falling over. Grounded on the
// teacher's ws/internal/shared/limits/resource_guard.go and
// ws/internal/single/platform/cgroup_cpu.go: same cgroup-aware CPU
// measurement with a gopsutil fallback, same static-threshold philosophy
// (no auto-calculated capacity), generalized from the teacher's
// price-feed connection/Kafka limits to canvas connection/broadcast
// limits.
package resource

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// cgroupCPU reads cumulative CPU usage straight from cgroup accounting
// files, so GetPercent reflects usage relative to the container's actual
// quota rather than the host's full core count.
type cgroupCPU struct {
	mu             sync.Mutex
	lastUsec       uint64
	lastSampleTime time.Time
	path           string
	version        int
	allocatedCPUs  float64
}

func newCgroupCPU() (*cgroupCPU, error) {
	path, version, err := detectCgroupPath()
	if err != nil {
		return nil, err
	}
	quota, period, err := readCPUQuota(path, version)
	if err != nil {
		return nil, err
	}
	allocated := float64(runtime.NumCPU())
	if quota > 0 && period > 0 {
		allocated = float64(quota) / float64(period)
	}
	usage, err := readCPUUsage(path, version)
	if err != nil {
		return nil, err
	}
	return &cgroupCPU{path: path, version: version, allocatedCPUs: allocated, lastUsec: usage, lastSampleTime: time.Now()}, nil
}

func (c *cgroupCPU) percent() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsedUsec := now.Sub(c.lastSampleTime).Microseconds()
	if elapsedUsec == 0 {
		return 0, fmt.Errorf("sample interval too small")
	}

	usage, err := readCPUUsage(c.path, c.version)
	if err != nil {
		return 0, err
	}
	delta := usage - c.lastUsec
	c.lastUsec = usage
	c.lastSampleTime = now

	raw := (float64(delta) / float64(elapsedUsec)) * 100.0
	return raw / c.allocatedCPUs, nil
}

func detectCgroupPath() (string, int, error) {
	f, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), ":")
		if len(parts) != 3 {
			continue
		}
		if parts[0] == "0" && parts[1] == "" {
			return "/sys/fs/cgroup" + parts[2], 2, nil
		}
		if strings.Contains(parts[1], "cpu") {
			return "/sys/fs/cgroup/cpu" + parts[2], 1, nil
		}
	}
	return "", 0, fmt.Errorf("could not detect cgroup path")
}

func readCPUQuota(path string, version int) (quota, period int64, err error) {
	if version == 2 {
		data, err := os.ReadFile(path + "/cpu.max")
		if err != nil {
			return 0, 0, err
		}
		fields := strings.Fields(string(data))
		if len(fields) != 2 {
			return 0, 0, fmt.Errorf("unexpected cpu.max format")
		}
		if fields[0] == "max" {
			return -1, 0, nil
		}
		quota, err = strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		period, err = strconv.ParseInt(fields[1], 10, 64)
		return quota, period, err
	}

	quotaData, err := os.ReadFile(path + "/cpu.cfs_quota_us")
	if err != nil {
		return 0, 0, err
	}
	periodData, err := os.ReadFile(path + "/cpu.cfs_period_us")
	if err != nil {
		return 0, 0, err
	}
	quota, err = strconv.ParseInt(strings.TrimSpace(string(quotaData)), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	period, err = strconv.ParseInt(strings.TrimSpace(string(periodData)), 10, 64)
	return quota, period, err
}

func readCPUUsage(path string, version int) (uint64, error) {
	if version == 2 {
		f, err := os.Open(path + "/cpu.stat")
		if err != nil {
			return 0, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if fields := strings.Fields(scanner.Text()); len(fields) == 2 && fields[0] == "usage_usec" {
				return strconv.ParseUint(fields[1], 10, 64)
			}
		}
		return 0, fmt.Errorf("usage_usec not found")
	}

	data, err := os.ReadFile(path + "/cpuacct.usage")
	if err != nil {
		return 0, err
	}
	nsec, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, err
	}
	return nsec / 1000, nil
}

// CPUMonitor measures CPU usage relative to the container's allocation,
// falling back to host-wide measurement via gopsutil when no cgroup is
// detected (e.g. running outside a container).
type CPUMonitor struct {
	mode    string
	cgroup  *cgroupCPU
	logger  zerolog.Logger
}

func NewCPUMonitor(logger zerolog.Logger) *CPUMonitor {
	if cg, err := newCgroupCPU(); err == nil {
		logger.Info().Float64("cpus_allocated", cg.allocatedCPUs).Msg("using cgroup-aware CPU measurement")
		return &CPUMonitor{mode: "container", cgroup: cg, logger: logger}
	}
	logger.Warn().Msg("no cgroup detected, falling back to host CPU measurement")
	return &CPUMonitor{mode: "host", logger: logger}
}

func (m *CPUMonitor) Percent() (float64, error) {
	if m.mode == "container" {
		return m.cgroup.percent()
	}
	pcts, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("no cpu sample available")
	}
	return pcts[0], nil
}

func (m *CPUMonitor) Mode() string {
	return m.mode
}
