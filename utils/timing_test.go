package utils

import (
	"bytes"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	got := DurationUS(d)
	if math.Abs(got-1234.567) > 0.001 {
		t.Fatalf("want 1234.567µs, got %.3f", got)
	}
}

func TestTimingStatsConcurrentRecord(t *testing.T) {
	stats := NewTimingStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.Record(StageHeads, time.Millisecond)
		}()
	}
	wg.Wait()
	stats.RecordForward(10 * time.Millisecond)
	assert.Equal(t, 8*time.Millisecond, stats.Stage(StageHeads))
	assert.Equal(t, 1, stats.Forwards)
}

func TestPrintTimingStats(t *testing.T) {
	var buf bytes.Buffer
	oldOut, oldVerbose := Output, Verbose
	defer func() { Output, Verbose = oldOut, oldVerbose }()
	Output = &buf

	stats := NewTimingStats()
	stats.Record(StageRouting, 2*time.Millisecond)
	stats.RecordForward(4 * time.Millisecond)

	Verbose = false
	PrintTimingStats(stats)
	assert.Empty(t, buf.String())

	Verbose = true
	PrintTimingStats(stats)
	assert.Contains(t, buf.String(), "Forward passes: 1")
	assert.Contains(t, buf.String(), "routing:")
	assert.Contains(t, buf.String(), "50.0%")
}

func TestParseFloats(t *testing.T) {
	got, err := ParseFloats("1, 0 0.5")
	assert.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0.5}, got)

	_, err = ParseFloats("")
	assert.Error(t, err)
	_, err = ParseFloats("1,x")
	assert.Error(t, err)
}
