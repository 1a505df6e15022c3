package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		interval int
		start    bool
		steps    func(p *ProgressTracker)
		contains []string
		empty    bool
	}{
		{
			name: "increments reach total", total: 100, interval: 10, start: true,
			steps: func(p *ProgressTracker) {
				p.Increment(25)
				p.Increment(25)
				p.Increment(50)
			},
			contains: []string{"100/100", "100.0%"},
		},
		{
			name: "finish jumps to total", total: 100, interval: 10, start: true,
			steps: func(p *ProgressTracker) {
				p.Update(75)
				p.Finish()
			},
			contains: []string{"100/100", "100.0%", "\n", "artifacts/s"},
		},
		{
			name: "empty run", total: 0, interval: 10, start: true,
			steps:    func(p *ProgressTracker) { p.Finish() },
			contains: []string{"0/0"},
		},
		{
			name: "capped at total", total: 40, interval: 10, start: true,
			steps:    func(p *ProgressTracker) { p.Increment(150) },
			contains: []string{"40/40"},
		},
		{
			name: "silent before start", total: 100, interval: 10,
			steps: func(p *ProgressTracker) {
				p.Increment(10)
				p.Finish()
			},
			empty: true,
		},
		{
			name: "below interval", total: 1000, interval: 100, start: true,
			steps: func(p *ProgressTracker) { p.Update(50) },
			empty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tracker := NewProgressTracker(&buf, tt.total, tt.interval)
			if tt.start {
				tracker.Start()
			}
			tt.steps(tracker)
			if tt.empty {
				assert.Empty(t, buf.String())
				return
			}
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestProgressTrackerReportsOncePerInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 5000, 1000)
	tracker.Start()

	for i := 1; i <= 5000; i += 250 {
		tracker.Update(i)
	}
	lines := strings.Split(strings.Trim(buf.String(), "\r"), "\r")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[len(lines)-1], "4001/5000")
	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
}

func TestProgressTrackerSnapshot(t *testing.T) {
	tracker := NewProgressTracker(&bytes.Buffer{}, 200, 50)
	assert.Equal(t, Snapshot{Total: 200}, tracker.Snapshot())

	tracker.Start()
	tracker.Update(50)
	s := tracker.Snapshot()
	assert.Equal(t, 50, s.Current)
	assert.InDelta(t, 25.0, s.Percent(), 1e-9)
	assert.GreaterOrEqual(t, s.Rate(), 0.0)

	assert.InDelta(t, 100.0, Snapshot{}.Percent(), 1e-9)
	assert.Zero(t, Snapshot{Current: 3}.Rate())
}
