package clipboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoopDetectorFlagsRepeatWithinWindow(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{Window: 50 * time.Millisecond, RateLimit: 100, RateWindow: time.Second})

	assert.False(t, d.IsDuplicate(SourceRDP, "key-a"))
	assert.True(t, d.IsDuplicate(SourceRDP, "key-a"))
}

func TestLoopDetectorAllowsAfterWindowExpires(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{Window: time.Millisecond, RateLimit: 100, RateWindow: time.Second})

	assert.False(t, d.IsDuplicate(SourceRDP, "key-a"))
	time.Sleep(5 * time.Millisecond)
	assert.False(t, d.IsDuplicate(SourceRDP, "key-a"))
}

func TestLoopDetectorTracksSourcesIndependently(t *testing.T) {
	d := NewLoopDetector(DefaultLoopDetectionConfig())

	assert.False(t, d.IsDuplicate(SourceRDP, "key-a"))
	assert.False(t, d.IsDuplicate(SourcePortal, "key-a"))
}

func TestLoopDetectorRateLimitsBurstChanges(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{Window: time.Nanosecond, RateLimit: 3, RateWindow: time.Second})

	var limited bool
	for i := 0; i < 10; i++ {
		if d.IsDuplicate(SourceRDP, string(rune('a'+i))) {
			limited = true
		}
	}
	assert.True(t, limited, "a burst of distinct changes should eventually trip the rate limit")
}

func TestLoopDetectorReset(t *testing.T) {
	d := NewLoopDetector(DefaultLoopDetectionConfig())
	d.IsDuplicate(SourceRDP, "key-a")
	d.Reset(SourceRDP)
	assert.False(t, d.IsDuplicate(SourceRDP, "key-a"))
}
