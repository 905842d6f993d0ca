// Package strategy implements the Session Strategy Layer (spec §4.C): a
// closed set of session-establishment strategies and a selector that
// picks the best one available given the detected capability registry
// and deployment context, the way the teacher's session_portal.go
// branches between GNOME-direct and Portal session creation, generalized
// to the full five-strategy priority list.
package strategy

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capability"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/credential"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
)

// Kind names one of the five fixed strategies. This is a closed sum:
// every switch over Kind in this package must be exhaustive.
type Kind int

const (
	KindDirectMutter Kind = iota
	KindWlrNative
	KindLibei
	KindPortalToken
	KindPortalBasic
)

func (k Kind) String() string {
	switch k {
	case KindDirectMutter:
		return "direct-mutter"
	case KindWlrNative:
		return "wlr-native"
	case KindLibei:
		return "libei"
	case KindPortalToken:
		return "portal-token"
	case KindPortalBasic:
		return "portal-basic"
	default:
		return "unknown"
	}
}

// Session is the narrow interface every strategy's established session
// satisfies; capture/input/clipboard consume it without knowing which
// concrete strategy produced it.
type Session interface {
	Kind() Kind
	// RestoreToken returns the portal restore token to persist for next
	// launch, or "" if this strategy has none (Direct/WlrNative/Libei).
	RestoreToken() string
	// SessionPath is the portal Session object path, or "" for
	// non-portal strategies.
	SessionPath() string
	Close(ctx context.Context) error
}

// Strategy establishes one kind of session. Establish may prompt the
// user (PortalToken on first run, PortalBasic always); it must respect
// ctx cancellation while waiting on that prompt.
type Strategy interface {
	Kind() Kind
	// Available reports whether this strategy's prerequisites are
	// reachable right now (a D-Bus interface answering, a Wayland
	// global bound) — cheaper and more current than trusting the
	// registry's startup snapshot alone.
	Available(ctx context.Context) bool
	Establish(ctx context.Context) (Session, error)
}

// ClipboardDBus is an optional interface a Session may satisfy to hand
// cmd/-level wiring the D-Bus connection and session object path its
// Clipboard interface lives on, without internal/clipboard importing
// this package (and without widening the core Session interface for a
// detail only Direct/Portal sessions have — WlrNative/Libei sessions
// don't implement it at all, since their clipboard bridge is a portal
// session established separately).
type ClipboardDBus interface {
	ClipboardSession() (*dbus.Conn, dbus.ObjectPath)
}

// Deps bundles the collaborators every strategy construction needs.
type Deps struct {
	Registry  *capability.Registry
	Client    *portal.Client
	Tokens    credential.Store
	VideoBus  string // not read: DirectMutter always uses org.gnome.Mutter.ScreenCast
}
