package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectOperations(t *testing.T) {
	r1 := Rect{0, 0, 100, 100}
	r2 := Rect{50, 50, 150, 150}

	assert.Equal(t, 100, r1.Width())
	assert.Equal(t, 100, r1.Height())
	assert.Equal(t, 10000, r1.Area())
	assert.True(t, r1.Intersects(r2))

	merged := r1
	merged.Merge(r2)
	assert.Equal(t, Rect{0, 0, 150, 150}, merged)
}

func TestDamageTrackerConsolidation(t *testing.T) {
	tr := newDamageTracker(1920, 1080)

	tr.addDamage(Rect{0, 0, 100, 100})
	tr.addDamage(Rect{200, 200, 300, 300})
	assert.Len(t, tr.regions, 2)

	tr.addDamage(Rect{50, 50, 150, 150})
	assert.Len(t, tr.regions, 2)

	tr.reset()
	assert.Len(t, tr.regions, 0)
}

func TestDamageTrackerFullUpdateOnLargeDamage(t *testing.T) {
	tr := newDamageTracker(100, 100)
	tr.addDamage(Rect{0, 0, 90, 90})

	regions := tr.damageRegions()
	assert.Len(t, regions, 1)
	assert.Equal(t, Rect{0, 0, 100, 100}, regions[0])
}
