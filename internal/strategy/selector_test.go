package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capability"
)

func TestKindStringIsExhaustive(t *testing.T) {
	for k := KindDirectMutter; k <= KindPortalBasic; k++ {
		assert.NotEqual(t, "unknown", k.String())
	}
}

func TestStrategyRegistryAllowsGnome(t *testing.T) {
	reg := capability.NewRegistry(capability.Snapshot{
		Compositor:     capability.CompositorGnome,
		Quirks:         map[capability.KnownQuirk]bool{},
		HasSessionDBus: true,
		Portal:         capability.PortalFeatures{HasRemoteDesktop: true},
	})

	assert.True(t, strategyRegistryAllows(reg, KindPortalToken))
	assert.False(t, strategyRegistryAllows(reg, KindWlrNative))
}

func TestStrategyRegistryAllowsWlroots(t *testing.T) {
	reg := capability.NewRegistry(capability.Snapshot{
		Compositor:     capability.CompositorSway,
		Quirks:         map[capability.KnownQuirk]bool{},
		HasSessionDBus: true,
		Portal:         capability.PortalFeatures{HasRemoteDesktop: true},
	})

	assert.True(t, strategyRegistryAllows(reg, KindWlrNative))
	assert.True(t, strategyRegistryAllows(reg, KindLibei))
	assert.False(t, strategyRegistryAllows(reg, KindDirectMutter))
}

func TestStrategyRegistryAllowsUnknownCompositor(t *testing.T) {
	reg := capability.NewRegistry(capability.Snapshot{
		Compositor: capability.CompositorUnknown,
		Quirks:     map[capability.KnownQuirk]bool{},
	})

	assert.False(t, strategyRegistryAllows(reg, KindDirectMutter))
	assert.False(t, strategyRegistryAllows(reg, KindWlrNative))
	assert.False(t, strategyRegistryAllows(reg, KindLibei))
}
