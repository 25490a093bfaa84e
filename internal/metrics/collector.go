// Package metrics samples process resource usage for the health report.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

// Sample is one resource reading. Rate and percentage fields are zero on the
// first reading.
type Sample struct {
	At                 time.Time `json:"at"`
	CPUPct             float64   `json:"cpu_pct"`
	MemBytes           int64     `json:"mem_bytes"`
	MemLimitBytes      int64     `json:"mem_limit_bytes"`
	DiskUsedPct        float64   `json:"disk_used_pct"`
	DiskFreeBytes      int64     `json:"disk_free_bytes"`
	IOReadBytesPerSec  int64     `json:"io_read_bytes_per_sec"`
	IOWriteBytesPerSec int64     `json:"io_write_bytes_per_sec"`
}

type Collector struct {
	interval  time.Duration
	dataDir   string
	logger    *slog.Logger
	cgroupDir string
	procDir   string

	latest  atomic.Pointer[Sample]
	lastCPU *cpuSample
	lastIO  *ioSample
}

type cpuSample struct {
	usageUsec int64
	at        time.Time
}

type ioSample struct {
	readBytes  int64
	writeBytes int64
	at         time.Time
}

// NewCollector samples every interval. Disk figures are taken for the
// filesystem holding dataDir.
func NewCollector(interval time.Duration, dataDir string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		interval:  interval,
		dataDir:   dataDir,
		logger:    logger,
		cgroupDir: "/sys/fs/cgroup",
		procDir:   "/proc/self",
	}
}

func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s := c.collect(now)
			c.latest.Store(&s)
			c.logger.Debug("resource sample",
				"cpu_pct", s.CPUPct,
				"mem_bytes", s.MemBytes,
				"disk_used_pct", s.DiskUsedPct,
			)
		}
	}
}

// Latest returns the most recent sample, or nil before the first tick.
func (c *Collector) Latest() *Sample {
	return c.latest.Load()
}

func (c *Collector) collect(now time.Time) Sample {
	s := Sample{At: now.UTC()}
	s.CPUPct = c.cpuPct(now)

	s.MemBytes, s.MemLimitBytes = c.readMemoryCgroup()
	if s.MemBytes == 0 {
		if rss, err := c.currentRSSBytes(); err == nil {
			s.MemBytes = rss
		}
	}

	used, total, free := readDiskStats(c.dataDir)
	if total > 0 {
		s.DiskUsedPct = float64(used) / float64(total) * 100
	}
	s.DiskFreeBytes = free
	s.IOReadBytesPerSec, s.IOWriteBytesPerSec = c.readIORates(now)
	return s
}

func (c *Collector) cpuPct(now time.Time) float64 {
	usage, err := c.readCPUUsageUsec()
	if err != nil {
		return 0
	}
	cur := &cpuSample{usageUsec: usage, at: now}
	prev := c.lastCPU
	c.lastCPU = cur
	if prev == nil {
		return 0
	}
	elapsed := cur.at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	pct := float64(cur.usageUsec-prev.usageUsec) / 1_000_000.0 / elapsed * 100.0 / c.readCPUCgroupCores()
	if pct < 0 {
		return 0
	}
	return pct
}

func (c *Collector) readCPUUsageUsec() (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.cgroupDir, "cpu.stat"))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "usage_usec" {
			return strconv.ParseInt(fields[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("usage_usec not found")
}

func (c *Collector) readCPUCgroupCores() float64 {
	data, err := os.ReadFile(filepath.Join(c.cgroupDir, "cpu.max"))
	if err != nil {
		return float64(runtime.NumCPU())
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 || fields[0] == "max" {
		return float64(runtime.NumCPU())
	}
	quota, err1 := strconv.ParseFloat(fields[0], 64)
	period, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil || period <= 0 {
		return float64(runtime.NumCPU())
	}
	return max(quota/period, 1)
}

func (c *Collector) readMemoryCgroup() (current, limit int64) {
	cur, err := os.ReadFile(filepath.Join(c.cgroupDir, "memory.current"))
	if err != nil {
		return 0, 0
	}
	current, _ = strconv.ParseInt(strings.TrimSpace(string(cur)), 10, 64)

	raw, err := os.ReadFile(filepath.Join(c.cgroupDir, "memory.max"))
	if err != nil {
		return current, 0
	}
	if s := strings.TrimSpace(string(raw)); s != "max" {
		limit, _ = strconv.ParseInt(s, 10, 64)
	}
	return current, limit
}

// currentRSSBytes reads VmRSS from the proc status file (Linux only).
func (c *Collector) currentRSSBytes() (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.procDir, "status"))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("parse VmRSS line %q", line)
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse VmRSS: %w", err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("VmRSS not found")
}

func readDiskStats(path string) (used, total, free int64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0
	}
	total = int64(stat.Blocks) * int64(stat.Bsize)
	free = int64(stat.Bavail) * int64(stat.Bsize)
	return total - free, total, free
}

func (c *Collector) readProcIO() (readBytes, writeBytes int64) {
	data, err := os.ReadFile(filepath.Join(c.procDir, "io"))
	if err != nil {
		return 0, 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "read_bytes":
			readBytes, _ = strconv.ParseInt(fields[1], 10, 64)
		case "write_bytes":
			writeBytes, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	return readBytes, writeBytes
}

func (c *Collector) readIORates(now time.Time) (int64, int64) {
	r, w := c.readProcIO()
	cur := &ioSample{readBytes: r, writeBytes: w, at: now}
	prev := c.lastIO
	c.lastIO = cur
	if prev == nil {
		return 0, 0
	}
	seconds := cur.at.Sub(prev.at).Seconds()
	if seconds <= 0 {
		return 0, 0
	}
	readRate := int64(float64(cur.readBytes-prev.readBytes) / seconds)
	writeRate := int64(float64(cur.writeBytes-prev.writeBytes) / seconds)
	return max(readRate, 0), max(writeRate, 0)
}
