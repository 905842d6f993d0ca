package strategy

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
)

// libeiSession carries the portal RemoteDesktop session path input is
// injected through via ConnectToEIS; video is the same ScreenCast
// session as every other portal-backed strategy.
type libeiSession struct {
	client      *portal.Client
	rdSession   dbus.ObjectPath
	video       *portalSession
}

func (l *libeiSession) Kind() Kind           { return KindLibei }
func (l *libeiSession) RestoreToken() string { return l.video.RestoreToken() }
func (l *libeiSession) SessionPath() string  { return string(l.rdSession) }

func (l *libeiSession) Close(ctx context.Context) error {
	obj := l.client.Object(l.rdSession)
	err1 := obj.Call(portal.IfaceSession+".Close", 0).Err
	err2 := l.video.Close(ctx)
	if err1 != nil {
		return err1
	}
	return err2
}

// Libei is priority 3: wlroots compositors via the portal's
// RemoteDesktop session and the EIS (libei) input protocol, the only
// input path that works for wlroots compositors inside a Flatpak
// sandbox (WlrNative's virtual-input globals aren't reachable there).
type Libei struct {
	deps Deps
}

func NewLibei(deps Deps) *Libei { return &Libei{deps: deps} }

func (l *Libei) Kind() Kind { return KindLibei }

func (l *Libei) Available(ctx context.Context) bool {
	snap := l.deps.Registry.Snapshot()
	return snap.Compositor.IsWlrootsBased() && snap.Portal.HasRemoteDesktop
}

func (l *Libei) Establish(ctx context.Context) (Session, error) {
	rdResults, err := l.deps.Client.Call(ctx, portal.IfaceRemoteDesktop, "CreateSession")
	if err != nil {
		return nil, fmt.Errorf("strategy: libei portal CreateSession: %w", err)
	}
	handle, ok := rdResults["session_handle"].Value().(string)
	if !ok || handle == "" {
		return nil, fmt.Errorf("strategy: libei portal CreateSession: no session_handle")
	}
	rdSession := dbus.ObjectPath(handle)

	selectOpts := map[string]dbus.Variant{
		"types": dbus.MakeVariant(uint32(1 | 2)), // keyboard | pointer
	}
	if _, err := l.deps.Client.Call(ctx, portal.IfaceRemoteDesktop, "SelectDevices", rdSession, selectOpts); err != nil {
		return nil, fmt.Errorf("strategy: libei SelectDevices: %w", err)
	}

	if _, err := l.deps.Client.Call(ctx, portal.IfaceRemoteDesktop, "Start", rdSession, "", map[string]dbus.Variant{}); err != nil {
		return nil, fmt.Errorf("strategy: libei RemoteDesktop Start: %w", err)
	}

	obj := l.deps.Client.Object(rdSession)
	var eisFD dbus.UnixFD
	if err := obj.Call(portal.IfaceRemoteDesktop+".ConnectToEIS", 0, map[string]dbus.Variant{}).Store(&eisFD); err != nil {
		return nil, fmt.Errorf("strategy: libei ConnectToEIS: %w", err)
	}
	// The returned fd is handed to an EIS client library by the caller
	// of Establish; this package only negotiates the portal side, per
	// the Non-goals boundary (Wayland/EIS protocol parsing is out of
	// scope for this module).

	video, _, err := establishPortalSession(ctx, l.deps.Client, "", false)
	if err != nil {
		return nil, fmt.Errorf("strategy: libei portal video: %w", err)
	}
	video.kind = KindLibei

	return &libeiSession{client: l.deps.Client, rdSession: rdSession, video: video}, nil
}
