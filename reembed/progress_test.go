package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	assert.True(t, tracker.started, "should be started")

	tracker.Add(25, 0)
	tracker.Add(25, 0)
	tracker.Add(50, 0)

	time.Sleep(time.Millisecond)
	assert.Greater(t, tracker.Elapsed(), time.Duration(0), "elapsed time should be positive")

	output := buf.String()
	assert.Contains(t, output, "25/100")
	assert.Contains(t, output, "100/100", "should show completion")
	assert.Contains(t, output, "100.0%", "should show 100%")
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1000, 100)

	tracker.Start()
	tracker.Add(50, 0)
	assert.Empty(t, buf.String(), "below the interval nothing is printed")

	tracker.Add(50, 0)
	assert.Contains(t, buf.String(), "100/1000")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Add(75, 0)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "75/100", "finish reports where the run stopped")
	assert.NotContains(t, output, "100/100")
	assert.True(t, strings.HasSuffix(output, "\n"), "finish should print newline")
}

func TestProgressTracker_KeptRows(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Start()
	tracker.Add(5, 0)
	assert.NotContains(t, buf.String(), "kept")

	tracker.Add(5, 3)
	assert.Contains(t, buf.String(), "10/10")
	assert.Contains(t, buf.String(), "3 kept previous vector")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 10)

	tracker.Start()
	tracker.Finish()

	assert.Contains(t, buf.String(), "0/0", "should handle zero total")
}

func TestProgressTracker_AddBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Add(150, 0)

	assert.Contains(t, buf.String(), "100/100", "should cap at total")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Add(50, 0)
	tracker.Finish()

	assert.Empty(t, buf.String(), "should not output before Start")
	assert.Equal(t, time.Duration(0), tracker.Elapsed())
}
