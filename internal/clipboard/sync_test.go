package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncManagerRDPOwnership(t *testing.T) {
	m := NewSyncManager()

	ok := m.HandleRDPFormats([]Format{UnicodeTextFormat()}, true)
	assert.True(t, ok)
	assert.Equal(t, StateRDPOwned, m.State())
	assert.Equal(t, DirectionRDPToPortal, m.Direction())
}

func TestSyncManagerEchoWindowSuppressesPortalEcho(t *testing.T) {
	m := NewSyncManager()
	m.HandleRDPFormats([]Format{UnicodeTextFormat()}, true)

	ok := m.HandlePortalFormats([]string{"text/plain"}, false)
	assert.False(t, ok, "portal notification right after RDP ownership should be filtered as an echo")
}

func TestSyncManagerForceBypassesEchoWindow(t *testing.T) {
	m := NewSyncManager()
	m.HandleRDPFormats([]Format{UnicodeTextFormat()}, true)

	ok := m.HandlePortalFormats([]string{"text/html"}, true)
	assert.True(t, ok, "an authoritative notification should bypass the echo window")
}

func TestSyncManagerCheckContentDetectsRepeat(t *testing.T) {
	m := NewSyncManager()
	data := []byte("clipboard payload")

	assert.True(t, m.CheckContent(SourceRDP, data))
	assert.False(t, m.CheckContent(SourceRDP, data), "identical content from the same source within the window is a loop artifact")
}

func TestSyncManagerBeginEndSync(t *testing.T) {
	m := NewSyncManager()
	m.BeginSync(DirectionPortalToRDP)
	assert.Equal(t, StateSyncing, m.State())

	m.EndSync()
	assert.Equal(t, StateIdle, m.State())
}
