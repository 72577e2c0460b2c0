package metricsticker

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ResourceSampler reports process-level CPU and memory usage. No
// process-metrics library (e.g. gopsutil) appears anywhere in the
// retrieved pack, so this samples via stdlib-only means: heap stats
// from runtime.ReadMemStats for memory, and (on Linux) a delta of
// /proc/self/stat's utime+stime ticks for CPU — the same
// read-a-proc-file technique the teacher's own heartbeat uses to read
// its liveness file, generalized to process accounting.
type ResourceSampler interface {
	// Sample returns (cpuPercent, memoryMB) as of now.
	Sample() (float64, float64)
}

// NewResourceSampler returns the default stdlib-only sampler.
func NewResourceSampler() ResourceSampler {
	return &processSampler{}
}

type processSampler struct {
	mu       sync.Mutex
	lastCPU  time.Duration
	lastWall time.Time
}

func (s *processSampler) Sample() (float64, float64) {
	memMB := heapMB()

	now := time.Now()
	cpu := processCPUTime()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastWall.IsZero() {
		s.lastWall = now
		s.lastCPU = cpu
		return 0, memMB
	}

	wallDelta := now.Sub(s.lastWall)
	cpuDelta := cpu - s.lastCPU
	s.lastWall, s.lastCPU = now, cpu

	if wallDelta <= 0 {
		return 0, memMB
	}
	pct := cpuDelta.Seconds() / wallDelta.Seconds() * 100
	if pct < 0 {
		pct = 0
	}
	return pct, memMB
}

func heapMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / (1024 * 1024)
}

// clockTicksPerSecond is the conventional Linux USER_HZ; reading it via
// getconf would require exec'ing a subprocess, so we use the near-universal
// default rather than shell out from a metrics sampler.
const clockTicksPerSecond = 100

// processCPUTime returns cumulative user+system CPU time for this
// process. Returns 0 on platforms without /proc/self/stat (non-Linux),
// which simply yields a 0% CPU reading rather than an error — this is
// an illustrative resource sample, not a monitoring-grade one.
func processCPUTime() time.Duration {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0
	}
	// Field 2 (comm) may contain spaces/parens; split on the closing
	// paren to get past it reliably, then fields are space-separated.
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return 0
	}
	fields := strings.Fields(string(data[idx+2:]))
	// After the comm field, fields[0] is field 3 (state), so utime,
	// field 14 overall, is index 11 here and stime is index 12.
	const utimeIdx, stimeIdx = 11, 12
	if len(fields) <= stimeIdx {
		return 0
	}
	utime, err1 := strconv.ParseInt(fields[utimeIdx], 10, 64)
	stime, err2 := strconv.ParseInt(fields[stimeIdx], 10, 64)
	if err1 != nil || err2 != nil {
		return 0
	}
	ticks := utime + stime
	return time.Duration(ticks) * time.Second / clockTicksPerSecond
}
