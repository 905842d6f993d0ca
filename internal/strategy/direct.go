package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// GNOME's own D-Bus surface, bypassing the portal entirely — zero
// permission dialogs, ever. Grounded on the teacher's session.go, which
// this server only ever runs against (helixml-helix's desktop-bridge is
// GNOME-only); selector.rs names the equivalent "Mutter Direct API" as
// priority 1 in the cross-compositor selector.
const (
	mutterRemoteDesktopBus   = "org.gnome.Mutter.RemoteDesktop"
	mutterRemoteDesktopPath  = "/org/gnome/Mutter/RemoteDesktop"
	mutterRemoteDesktopIface = "org.gnome.Mutter.RemoteDesktop"
	mutterRDSessionIface     = "org.gnome.Mutter.RemoteDesktop.Session"

	mutterScreenCastBus     = "org.gnome.Mutter.ScreenCast"
	mutterScreenCastPath    = "/org/gnome/Mutter/ScreenCast"
	mutterScreenCastIface   = "org.gnome.Mutter.ScreenCast"
	mutterSCSessionIface    = "org.gnome.Mutter.ScreenCast.Session"
)

// directSession implements Session for the Mutter direct path: no
// restore token (nothing to persist — Mutter's session lives only as
// long as this process holds the D-Bus name) and no portal Session path.
type directSession struct {
	conn          *dbus.Conn
	rdSessionPath dbus.ObjectPath
	scSessionPath dbus.ObjectPath
}

func (d *directSession) Kind() Kind           { return KindDirectMutter }
func (d *directSession) RestoreToken() string { return "" }
func (d *directSession) SessionPath() string  { return "" }

// ClipboardSession implements strategy.ClipboardDBus: the GNOME direct
// path's clipboard bridge talks to the RemoteDesktop session object
// directly, the same object this strategy already created.
func (d *directSession) ClipboardSession() (*dbus.Conn, dbus.ObjectPath) {
	return d.conn, d.rdSessionPath
}

func (d *directSession) Close(ctx context.Context) error {
	rd := d.conn.Object(mutterRemoteDesktopBus, d.rdSessionPath)
	err1 := rd.Call(mutterRDSessionIface+".Stop", 0).Err
	sc := d.conn.Object(mutterScreenCastBus, d.scSessionPath)
	err2 := sc.Call(mutterSCSessionIface+".Stop", 0).Err
	if err1 != nil {
		return err1
	}
	return err2
}

// DirectMutter is priority 1 in the selector: zero dialogs, GNOME only.
type DirectMutter struct {
	deps Deps
}

func NewDirectMutter(deps Deps) *DirectMutter { return &DirectMutter{deps: deps} }

func (d *DirectMutter) Kind() Kind { return KindDirectMutter }

// Available probes the RemoteDesktop bus directly rather than trusting
// the registry snapshot alone, matching selector.rs's
// "MutterDirectStrategy::is_available()" re-verification before commit.
func (d *DirectMutter) Available(ctx context.Context) bool {
	conn := d.deps.Client.Conn()
	obj := conn.Object(mutterRemoteDesktopBus, mutterRemoteDesktopPath)
	return obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Err == nil
}

func (d *DirectMutter) Establish(ctx context.Context) (Session, error) {
	conn := d.deps.Client.Conn()

	rdObj := conn.Object(mutterRemoteDesktopBus, mutterRemoteDesktopPath)
	var rdSessionPath dbus.ObjectPath
	if err := rdObj.Call(mutterRemoteDesktopIface+".CreateSession", 0).Store(&rdSessionPath); err != nil {
		return nil, fmt.Errorf("strategy: mutter CreateSession (RemoteDesktop): %w", err)
	}

	sessionID := string(rdSessionPath)
	if idx := strings.LastIndex(sessionID, "/"); idx >= 0 {
		sessionID = sessionID[idx+1:]
	}

	scObj := conn.Object(mutterScreenCastBus, mutterScreenCastPath)
	options := map[string]dbus.Variant{"remote-desktop-session-id": dbus.MakeVariant(sessionID)}
	var scSessionPath dbus.ObjectPath
	if err := scObj.Call(mutterScreenCastIface+".CreateSession", 0, options).Store(&scSessionPath); err != nil {
		return nil, fmt.Errorf("strategy: mutter CreateSession (ScreenCast): %w", err)
	}

	scSession := conn.Object(mutterScreenCastBus, scSessionPath)
	recordOptions := map[string]dbus.Variant{"cursor-mode": dbus.MakeVariant(uint32(2))} // embedded
	var streamPath dbus.ObjectPath
	if err := scSession.Call(mutterSCSessionIface+".RecordVirtual", 0, recordOptions).Store(&streamPath); err != nil {
		return nil, fmt.Errorf("strategy: mutter RecordVirtual: %w", err)
	}

	rdSession := conn.Object(mutterRemoteDesktopBus, rdSessionPath)
	if err := rdSession.Call(mutterRDSessionIface+".Start", 0).Err; err != nil {
		return nil, fmt.Errorf("strategy: mutter RemoteDesktop session Start: %w", err)
	}

	return &directSession{conn: conn, rdSessionPath: rdSessionPath, scSessionPath: scSessionPath}, nil
}
