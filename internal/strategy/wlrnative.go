package strategy

import (
	"context"
	"fmt"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/input"
)

// wlrSession delegates video to the same portal ScreenCast path as
// PortalBasic (wlroots compositors have no direct video API), but input
// goes through the Wayland-native virtual pointer/keyboard instead of
// the portal's RemoteDesktop session — selector.rs's note "input only
// (video via Portal ScreenCast)" for both WlrNative and Libei.
type wlrSession struct {
	video    *portalSession
	injector *input.WaylandInjector
}

func (w *wlrSession) Kind() Kind           { return KindWlrNative }
func (w *wlrSession) RestoreToken() string { return w.video.RestoreToken() }
func (w *wlrSession) SessionPath() string  { return w.video.SessionPath() }

func (w *wlrSession) Close(ctx context.Context) error {
	err1 := w.injector.Close()
	err2 := w.video.Close(ctx)
	if err1 != nil {
		return err1
	}
	return err2
}

// Injector exposes the bound virtual input devices to the input event
// dispatch path; non-wlr strategies have no equivalent and route input
// through the portal RemoteDesktop session instead.
func (w *wlrSession) Injector() *input.WaylandInjector { return w.injector }

// WlrNative is priority 2: wlroots compositors, native Wayland protocols
// for input, zero dialogs for input (video still goes through the
// portal picker once).
type WlrNative struct {
	deps                       Deps
	screenWidth, screenHeight int
}

func NewWlrNative(deps Deps, screenWidth, screenHeight int) *WlrNative {
	return &WlrNative{deps: deps, screenWidth: screenWidth, screenHeight: screenHeight}
}

func (w *WlrNative) Kind() Kind { return KindWlrNative }

func (w *WlrNative) Available(ctx context.Context) bool {
	snap := w.deps.Registry.Snapshot()
	if !snap.Compositor.IsWlrootsBased() {
		return false
	}
	probe, err := input.NewWaylandInjector(ctx, 1, 1)
	if err != nil {
		return false
	}
	probe.Close()
	return true
}

func (w *WlrNative) Establish(ctx context.Context) (Session, error) {
	injector, err := input.NewWaylandInjector(ctx, w.screenWidth, w.screenHeight)
	if err != nil {
		return nil, fmt.Errorf("strategy: wlr-native input bind: %w", err)
	}

	video, _, err := establishPortalSession(ctx, w.deps.Client, "", false)
	if err != nil {
		injector.Close()
		return nil, fmt.Errorf("strategy: wlr-native portal video: %w", err)
	}
	video.kind = KindWlrNative

	return &wlrSession{video: video, injector: injector}, nil
}
