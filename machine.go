/*
 * Email Sleuth - Performance Tuning Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"fmt"
	"log"
	"net"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// SystemPerformance represents sampled machine metrics used for auto-tuning.
type SystemPerformance struct {
	CPUCores           int
	CPUUsage           float64
	TotalMemoryMB      uint64
	AvailableMemoryMB  uint64
	MemoryUsagePercent float64
	NetworkLatency     time.Duration
}

// AutoTuneConfig fills in max_concurrency when the operator left it at 0.
// A verification pipeline is I/O bound but each in-flight contact can hold an
// SMTP conversation, an HTTP fetch and a browser session at once, so the
// bounds are much tighter than a crawler's.
func AutoTuneConfig(cfg *Config) {
	if cfg.Verification.MaxConcurrency > 0 {
		return
	}
	perf, err := AnalyzeSystemPerformance()
	if err != nil {
		log.Printf("Warning: failed to analyze system performance: %v", err)
		log.Printf("Falling back to %d concurrent contacts.", runtime.NumCPU())
		cfg.Verification.MaxConcurrency = clampConcurrency(runtime.NumCPU())
		return
	}
	cfg.Verification.MaxConcurrency = clampConcurrency(calculateOptimalConcurrency(perf))
	log.Printf("Auto-tuned concurrency to %d (cores=%d, cpu=%.1f%%, mem=%dMB free, latency=%v)",
		cfg.Verification.MaxConcurrency, perf.CPUCores, perf.CPUUsage,
		perf.AvailableMemoryMB, perf.NetworkLatency)
}

// AnalyzeSystemPerformance samples CPU, memory and network latency.
func AnalyzeSystemPerformance() (*SystemPerformance, error) {
	perf := &SystemPerformance{}

	cpuInfo, err := cpu.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU info: %v", err)
	}
	if len(cpuInfo) > 0 {
		perf.CPUCores = int(cpuInfo[0].Cores)
	}
	if perf.CPUCores == 0 {
		perf.CPUCores = runtime.NumCPU()
	}

	cpuPercent, err := cpu.Percent(time.Second, false)
	if err == nil && len(cpuPercent) > 0 {
		perf.CPUUsage = cpuPercent[0]
	}

	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory info: %v", err)
	}
	perf.TotalMemoryMB = vmStat.Total / 1024 / 1024
	perf.AvailableMemoryMB = vmStat.Available / 1024 / 1024
	perf.MemoryUsagePercent = vmStat.UsedPercent

	perf.NetworkLatency = measureNetworkLatency()
	return perf, nil
}

// measureNetworkLatency times a TCP connect to a well-known resolver.
func measureNetworkLatency() time.Duration {
	start := time.Now()
	conn, err := net.DialTimeout("tcp", "8.8.8.8:53", 3*time.Second)
	if err != nil {
		return 100 * time.Millisecond
	}
	latency := time.Since(start)
	conn.Close()
	return latency
}

// calculateOptimalConcurrency derives a contact-pipeline count from the
// sampled metrics.
func calculateOptimalConcurrency(perf *SystemPerformance) int {
	concurrency := perf.CPUCores * 2

	// Each in-flight contact holds scrape documents and probe state; keep
	// roughly 50MB of headroom per pipeline.
	memoryBased := int(perf.AvailableMemoryMB / 50)
	if memoryBased < concurrency {
		concurrency = memoryBased
	}

	if perf.CPUUsage > 80 {
		concurrency = int(float64(concurrency) * 0.7)
	}

	// High-latency links serialize badly against SMTP timeouts; back off.
	if perf.NetworkLatency > 200*time.Millisecond {
		concurrency = concurrency / 2
	}
	return concurrency
}

func clampConcurrency(n int) int {
	if n < 2 {
		return 2
	}
	if n > 64 {
		return 64
	}
	return n
}
