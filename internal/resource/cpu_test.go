package resource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCPUQuota_V2(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu.max"), []byte("200000 100000\n"), 0o644))

	quota, period, err := readCPUQuota(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), quota)
	assert.Equal(t, int64(100000), period)
}

func TestReadCPUQuota_V2Unlimited(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu.max"), []byte("max 100000\n"), 0o644))

	quota, _, err := readCPUQuota(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), quota)
}

func TestReadCPUQuota_V1(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu.cfs_quota_us"), []byte("400000\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu.cfs_period_us"), []byte("100000\n"), 0o644))

	quota, period, err := readCPUQuota(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(400000), quota)
	assert.Equal(t, int64(100000), period)
}

func TestReadCPUUsage_V2(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu.stat"), []byte("usage_usec 12345\nother_field 9\n"), 0o644))

	usage, err := readCPUUsage(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), usage)
}

func TestReadCPUUsage_V1(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpuacct.usage"), []byte("5000000\n"), 0o644))

	usage, err := readCPUUsage(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), usage, "v1 usage is reported in nanoseconds and converted to microseconds")
}

func TestCgroupCPU_Percent_RequiresElapsedTime(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpuacct.usage"), []byte("1000000\n"), 0o644))

	c := &cgroupCPU{path: dir, version: 1, allocatedCPUs: 1, lastUsec: 1000, lastSampleTime: time.Now()}
	_, err := c.percent()
	assert.Error(t, err, "calling percent twice in the same instant should report an error rather than divide by zero")
}
