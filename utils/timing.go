package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// Forward stages recorded by the capsule network.
const (
	StageBackbone   = "backbone"
	StageHeads      = "heads"
	StageRouting    = "routing"
	StageClassifier = "classifier"
)

// TimingStats accumulates the time spent in each forward stage. It is safe
// for concurrent use.
type TimingStats struct {
	mu         sync.Mutex
	TotalTime  time.Duration
	Forwards   int
	StageTimes map[string]time.Duration
}

// NewTimingStats returns empty statistics.
func NewTimingStats() *TimingStats {
	return &TimingStats{StageTimes: make(map[string]time.Duration)}
}

// Record adds d to the given stage.
func (s *TimingStats) Record(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StageTimes == nil {
		s.StageTimes = make(map[string]time.Duration)
	}
	s.StageTimes[stage] += d
}

// RecordForward adds one complete forward pass of duration d.
func (s *TimingStats) RecordForward(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalTime += d
	s.Forwards++
}

// Stage returns the accumulated time of a stage.
func (s *TimingStats) Stage(stage string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StageTimes[stage]
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats) {
	if !Verbose {
		return
	}
	stats.mu.Lock()
	defer stats.mu.Unlock()
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total forward time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Forward passes: %d\n", stats.Forwards)
	if stats.Forwards == 0 {
		return
	}
	fmt.Fprintf(Output, "Average time per forward: %v\n", stats.TotalTime/time.Duration(stats.Forwards))
	fmt.Fprintln(Output, "\nBreakdown by stage:")
	for _, stage := range []string{StageBackbone, StageHeads, StageRouting, StageClassifier} {
		d := stats.StageTimes[stage]
		fmt.Fprintf(Output, "  %-10s %v (%.1f%%, avg %.1fµs)\n", stage+":", d,
			percent(d, stats.TotalTime), DurationUS(d)/float64(stats.Forwards))
	}
}

func percent(part, total time.Duration) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
