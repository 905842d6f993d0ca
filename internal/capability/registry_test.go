package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gnomeSnapshot() Snapshot {
	return Snapshot{
		Compositor:        CompositorGnome,
		CompositorVersion: "46.0",
		Quirks:            map[KnownQuirk]bool{},
		Portal: PortalFeatures{
			Version: 5, HasScreenCast: true, HasRemoteDesktop: true,
			HasClipboard: true, HasRestoreToken: true,
		},
		CursorModes:       []string{"hidden", "embedded", "metadata"},
		SourceTypes:       []string{"monitor", "virtual"},
		WaylandGlobals:    []WaylandGlobal{{Interface: "wp_fractional_scale_manager_v1", Version: 1}},
		Deployment:        DeploymentNative,
		HasSessionDBus:    true,
		CredentialProbeOK: true,
	}
}

func TestRegistryGnomeAllServicesPresent(t *testing.T) {
	reg := NewRegistry(gnomeSnapshot())
	all := reg.All()
	require.Len(t, all, int(numServiceIDs))
}

func TestRegistryGnomeGuaranteedLevels(t *testing.T) {
	reg := NewRegistry(gnomeSnapshot())

	assert.True(t, reg.Has(DamageTracking))
	assert.Equal(t, LevelGuaranteed, reg.Level(MetadataCursor))
	assert.Equal(t, LevelGuaranteed, reg.Level(Clipboard))
	assert.True(t, reg.Level(Clipboard).String() == "guaranteed")
	assert.Equal(t, LevelGuaranteed, reg.Level(SessionPersistence))
	assert.Equal(t, LevelBestEffort, reg.Level(DirectCompositorAPI))
}

func TestRegistryWlrootsQuirksDegradeServices(t *testing.T) {
	snap := Snapshot{
		Compositor: CompositorWlrootsGeneric,
		Quirks: map[KnownQuirk]bool{
			QuirkPoorDmaBufSupport:       true,
			QuirkClipboardExtraHandshake: true,
		},
		Portal:         PortalFeatures{HasScreenCast: true, HasClipboard: true},
		CursorModes:    []string{"hidden"},
		SourceTypes:    []string{"monitor"},
		WaylandGlobals: []WaylandGlobal{{Interface: "zwlr_screencopy_manager_v1", Version: 3}},
	}
	reg := NewRegistry(snap)

	assert.Equal(t, LevelUnavailable, reg.Level(DmaBufZeroCopy))
	assert.Equal(t, LevelDegraded, reg.Level(Clipboard))
	assert.Equal(t, LevelGuaranteed, reg.Level(WlrScreencopy))
	assert.Equal(t, LevelUnavailable, reg.Level(DirectCompositorAPI))

	video, ok := reg.Get(VideoCapture)
	require.True(t, ok)
	assert.Contains(t, video.FeatureDescriptor, "memfd")
}

func TestRegistryUnknownCompositorIsConservative(t *testing.T) {
	reg := NewRegistry(Snapshot{Compositor: CompositorUnknown, Quirks: map[KnownQuirk]bool{}})

	assert.Equal(t, LevelBestEffort, reg.Level(DamageTracking))
	assert.Equal(t, LevelUnavailable, reg.Level(ExplicitSync))
	assert.False(t, reg.Has(VideoCapture))
	assert.False(t, reg.Has(RemoteInput))
}

func TestRegistryCredentialStorageFallsBackWhenProbeFails(t *testing.T) {
	reg := NewRegistry(Snapshot{Quirks: map[KnownQuirk]bool{}, CredentialProbeOK: false})
	svc, ok := reg.Get(CredentialStorage)
	require.True(t, ok)
	assert.Equal(t, LevelDegraded, svc.Level)
	assert.Contains(t, svc.Note, "encrypted file")
}

func TestRegistryCountsSumToTotal(t *testing.T) {
	reg := NewRegistry(gnomeSnapshot())
	c := reg.Counts()
	total := c.Guaranteed + c.BestEffort + c.Degraded + c.Unavailable
	assert.Equal(t, int(numServiceIDs), total)
}

func TestAtLevelFiltersMonotonically(t *testing.T) {
	reg := NewRegistry(gnomeSnapshot())
	guaranteed := reg.AtLevel(LevelGuaranteed)
	usable := reg.AtLevel(LevelDegraded)
	assert.GreaterOrEqual(t, len(usable), len(guaranteed))
	for _, s := range guaranteed {
		assert.Equal(t, LevelGuaranteed, s.Level)
	}
}
