package main

import (
	"testing"
	"time"
)

func TestClampConcurrency(t *testing.T) {
	tests := []struct{ in, want int }{
		{-3, 2}, {0, 2}, {1, 2}, {2, 2}, {16, 16}, {64, 64}, {500, 64},
	}
	for _, tt := range tests {
		if got := clampConcurrency(tt.in); got != tt.want {
			t.Errorf("clampConcurrency(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCalculateOptimalConcurrency(t *testing.T) {
	roomy := &SystemPerformance{
		CPUCores:          8,
		CPUUsage:          10,
		AvailableMemoryMB: 16000,
		NetworkLatency:    20 * time.Millisecond,
	}
	if got := calculateOptimalConcurrency(roomy); got != 16 {
		t.Errorf("roomy machine = %d, want cores*2 = 16", got)
	}

	tightMemory := &SystemPerformance{
		CPUCores:          8,
		CPUUsage:          10,
		AvailableMemoryMB: 200,
		NetworkLatency:    20 * time.Millisecond,
	}
	if got := calculateOptimalConcurrency(tightMemory); got != 4 {
		t.Errorf("memory-bound machine = %d, want 4", got)
	}

	slowLink := &SystemPerformance{
		CPUCores:          8,
		CPUUsage:          10,
		AvailableMemoryMB: 16000,
		NetworkLatency:    400 * time.Millisecond,
	}
	if got := calculateOptimalConcurrency(slowLink); got != 8 {
		t.Errorf("high-latency machine = %d, want halved to 8", got)
	}

	busy := &SystemPerformance{
		CPUCores:          8,
		CPUUsage:          95,
		AvailableMemoryMB: 16000,
		NetworkLatency:    20 * time.Millisecond,
	}
	if got := calculateOptimalConcurrency(busy); got != 11 {
		t.Errorf("busy machine = %d, want 11", got)
	}
}

func TestAutoTuneConfigRespectsExplicitSetting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verification.MaxConcurrency = 3
	AutoTuneConfig(&cfg)
	if cfg.Verification.MaxConcurrency != 3 {
		t.Errorf("explicit max_concurrency overwritten to %d", cfg.Verification.MaxConcurrency)
	}
}
