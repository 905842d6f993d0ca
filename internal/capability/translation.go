package capability

// translate maps a detected Snapshot onto the fixed fourteen-id service
// table, one function per service id, mirroring the teacher's
// per-service translate_* functions one-to-one so a reviewer can match
// each service back to the compositor fact that produced its level.
func translate(snap Snapshot) []AdvertisedService {
	return []AdvertisedService{
		translateDamageTracking(snap),
		translateDmaBuf(snap),
		translateExplicitSync(snap),
		translateFractionalScaling(snap),
		translateMetadataCursor(snap),
		translateMultiMonitor(snap),
		translateWindowCapture(snap),
		translateClipboard(snap),
		translateRemoteInput(snap),
		translateVideoCapture(snap),
		translateSessionPersistence(snap),
		translateDirectCompositorAPI(snap),
		translateWlrScreencopy(snap),
		translateCredentialStorage(snap),
	}
}

func hasMode(modes []string, m string) bool {
	for _, x := range modes {
		if x == m {
			return true
		}
	}
	return false
}

func hasGlobal(globals []WaylandGlobal, iface string) bool {
	for _, g := range globals {
		if g.Interface == iface {
			return true
		}
	}
	return false
}

func translateDamageTracking(snap Snapshot) AdvertisedService {
	if snap.Compositor == CompositorUnknown {
		return AdvertisedService{ID: DamageTracking, Level: LevelBestEffort,
			FeatureDescriptor: "frame-diff", Note: "no native damage hints, falling back to whole-frame comparison",
			PerformanceHints: map[string]string{"latency_overhead_ms": "5"}}
	}
	method := "portal"
	hints := map[string]string{"latency_overhead_ms": "2"}
	if snap.Compositor.IsWlrootsBased() {
		method = "native-screencopy"
		hints["latency_overhead_ms"] = "1"
	}
	return AdvertisedService{ID: DamageTracking, Level: LevelGuaranteed, FeatureDescriptor: method, PerformanceHints: hints}
}

func translateDmaBuf(snap Snapshot) AdvertisedService {
	if snap.Quirks[QuirkPoorDmaBufSupport] {
		return AdvertisedService{ID: DmaBufZeroCopy, Level: LevelUnavailable, Note: "compositor has unreliable DMA-BUF support"}
	}
	return AdvertisedService{ID: DmaBufZeroCopy, Level: LevelGuaranteed,
		FeatureDescriptor: "argb8888,xrgb8888 with modifiers", RDPCapabilityHint: "egfx-full",
		PerformanceHints: map[string]string{"copy": "zero-copy"}}
}

func translateExplicitSync(snap Snapshot) AdvertisedService {
	if snap.Compositor == CompositorUnknown {
		return AdvertisedService{ID: ExplicitSync, Level: LevelUnavailable}
	}
	return AdvertisedService{ID: ExplicitSync, Level: LevelGuaranteed, FeatureDescriptor: "linux-explicit-sync-v1"}
}

func translateFractionalScaling(snap Snapshot) AdvertisedService {
	if hasGlobal(snap.WaylandGlobals, "wp_fractional_scale_manager_v1") {
		return AdvertisedService{ID: FractionalScaling, Level: LevelGuaranteed,
			RDPCapabilityHint: "desktop-composition-scaling", FeatureDescriptor: "max-scale-3.0"}
	}
	return AdvertisedService{ID: FractionalScaling, Level: LevelUnavailable}
}

func translateMetadataCursor(snap Snapshot) AdvertisedService {
	hasMetadata := hasMode(snap.CursorModes, "metadata")
	needsComposite := snap.Quirks[QuirkCursorNeedsComposite]
	switch {
	case hasMetadata && !needsComposite:
		return AdvertisedService{ID: MetadataCursor, Level: LevelGuaranteed,
			FeatureDescriptor: "hotspot+shape-updates", RDPCapabilityHint: "cursor-metadata"}
	case hasMetadata:
		return AdvertisedService{ID: MetadataCursor, Level: LevelDegraded,
			FeatureDescriptor: "hotspot-only", RDPCapabilityHint: "cursor-painted",
			Note: "requires explicit cursor compositing"}
	default:
		return AdvertisedService{ID: MetadataCursor, Level: LevelUnavailable, RDPCapabilityHint: "cursor-painted"}
	}
}

func translateMultiMonitor(snap Snapshot) AdvertisedService {
	hasVirtual := hasMode(snap.SourceTypes, "virtual")
	hasMonitor := hasMode(snap.SourceTypes, "monitor")
	if !hasVirtual && !hasMonitor {
		return AdvertisedService{ID: MultiMonitor, Level: LevelUnavailable}
	}
	maxMonitors := "4"
	if hasVirtual {
		maxMonitors = "16"
	}
	hints := map[string]string{"max_monitors": maxMonitors}
	switch {
	case snap.Quirks[QuirkMonitorPositionUnstable]:
		return AdvertisedService{ID: MultiMonitor, Level: LevelDegraded, PerformanceHints: hints,
			RDPCapabilityHint: "desktop-composition-multimon", Note: "monitor positions may be incorrect"}
	case snap.Quirks[QuirkRestartOnResize]:
		return AdvertisedService{ID: MultiMonitor, Level: LevelBestEffort, PerformanceHints: hints,
			RDPCapabilityHint: "desktop-composition-multimon", Note: "capture restarts on resolution change"}
	default:
		return AdvertisedService{ID: MultiMonitor, Level: LevelGuaranteed, PerformanceHints: hints,
			RDPCapabilityHint: "desktop-composition-multimon"}
	}
}

func translateWindowCapture(snap Snapshot) AdvertisedService {
	if !hasMode(snap.SourceTypes, "window") {
		return AdvertisedService{ID: WindowCapture, Level: LevelUnavailable}
	}
	if snap.Compositor.IsWlrootsBased() {
		return AdvertisedService{ID: WindowCapture, Level: LevelGuaranteed, FeatureDescriptor: "toplevel-export"}
	}
	return AdvertisedService{ID: WindowCapture, Level: LevelBestEffort, FeatureDescriptor: "portal-window-picker"}
}

func translateClipboard(snap Snapshot) AdvertisedService {
	if !snap.Portal.HasClipboard {
		return AdvertisedService{ID: Clipboard, Level: LevelUnavailable}
	}
	if snap.Quirks[QuirkClipboardExtraHandshake] {
		return AdvertisedService{ID: Clipboard, Level: LevelDegraded, RDPCapabilityHint: "clipboard-standard-10mb",
			Note: "requires extra handshake for paste"}
	}
	return AdvertisedService{ID: Clipboard, Level: LevelGuaranteed, RDPCapabilityHint: "clipboard-standard-10mb"}
}

func translateRemoteInput(snap Snapshot) AdvertisedService {
	if !snap.Portal.HasRemoteDesktop {
		return AdvertisedService{ID: RemoteInput, Level: LevelUnavailable}
	}
	return AdvertisedService{ID: RemoteInput, Level: LevelGuaranteed,
		FeatureDescriptor: "keyboard+pointer", RDPCapabilityHint: "input-full"}
}

func translateVideoCapture(snap Snapshot) AdvertisedService {
	if !snap.Portal.HasScreenCast {
		return AdvertisedService{ID: VideoCapture, Level: LevelUnavailable}
	}
	bufferType := "dmabuf"
	if snap.Quirks[QuirkPoorDmaBufSupport] {
		bufferType = "memfd"
	}
	return AdvertisedService{ID: VideoCapture, Level: LevelGuaranteed,
		FeatureDescriptor: "pipewire-stream:" + bufferType, RDPCapabilityHint: "egfx-avc420",
		PerformanceHints: map[string]string{"zero_copy": boolStr(bufferType == "dmabuf")}}
}

func translateSessionPersistence(snap Snapshot) AdvertisedService {
	if !snap.Portal.HasRestoreToken {
		return AdvertisedService{ID: SessionPersistence, Level: LevelUnavailable,
			Note: "portal version too old to support restore_token"}
	}
	return AdvertisedService{ID: SessionPersistence, Level: LevelGuaranteed, FeatureDescriptor: "restore_token"}
}

func translateDirectCompositorAPI(snap Snapshot) AdvertisedService {
	if snap.Compositor == CompositorGnome && snap.HasSessionDBus {
		return AdvertisedService{ID: DirectCompositorAPI, Level: LevelBestEffort,
			FeatureDescriptor: "org.gnome.Mutter.ScreenCast", Note: "non-portal fast path, unavailable outside GNOME"}
	}
	return AdvertisedService{ID: DirectCompositorAPI, Level: LevelUnavailable}
}

func translateWlrScreencopy(snap Snapshot) AdvertisedService {
	if snap.Compositor.IsWlrootsBased() && hasGlobal(snap.WaylandGlobals, "zwlr_screencopy_manager_v1") {
		return AdvertisedService{ID: WlrScreencopy, Level: LevelGuaranteed, FeatureDescriptor: "zwlr_screencopy_manager_v1"}
	}
	return AdvertisedService{ID: WlrScreencopy, Level: LevelUnavailable}
}

func translateCredentialStorage(snap Snapshot) AdvertisedService {
	if !snap.CredentialProbeOK {
		return AdvertisedService{ID: CredentialStorage, Level: LevelDegraded,
			Note: "falling back to machine-bound encrypted file"}
	}
	switch snap.Deployment {
	case DeploymentFlatpak:
		return AdvertisedService{ID: CredentialStorage, Level: LevelGuaranteed, FeatureDescriptor: "portal-secret"}
	case DeploymentSystemdSystem, DeploymentInitD:
		return AdvertisedService{ID: CredentialStorage, Level: LevelGuaranteed, FeatureDescriptor: "tpm2-sealed"}
	default:
		return AdvertisedService{ID: CredentialStorage, Level: LevelGuaranteed, FeatureDescriptor: "desktop-keyring"}
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
