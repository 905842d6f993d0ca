// Package portal is a thin façade over the org.freedesktop.portal.*
// D-Bus surface. It owns no policy: it only issues portal requests and
// correlates their Request/Response signals, the way the teacher's
// session_portal.go does for GNOME/Sway ScreenCast sessions, generalized
// here to every portal interface the spec's strategies and credential
// backends need (ScreenCast, RemoteDesktop, Clipboard, Secret).
package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	BusName  = "org.freedesktop.portal.Desktop"
	ObjPath  = dbus.ObjectPath("/org/freedesktop/portal/desktop")

	IfaceScreenCast    = "org.freedesktop.portal.ScreenCast"
	IfaceRemoteDesktop = "org.freedesktop.portal.RemoteDesktop"
	IfaceClipboard     = "org.freedesktop.portal.Clipboard"
	IfaceSecret        = "org.freedesktop.portal.Secret"
	IfaceRequest       = "org.freedesktop.portal.Request"
	IfaceSession       = "org.freedesktop.portal.Session"
)

// Client wraps a session-bus connection and the request/response
// correlation dance every portal call requires.
type Client struct {
	conn *dbus.Conn
}

// Connect dials the session bus and verifies the portal service answers
// introspection, retrying for up to 60s the way the teacher's
// connectDBusPortal does.
func Connect(ctx context.Context) (*Client, error) {
	var lastErr error
	for attempt := 0; attempt < 60; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			lastErr = err
			time.Sleep(time.Second)
			continue
		}

		obj := conn.Object(BusName, ObjPath)
		if call := obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0); call.Err != nil {
			lastErr = call.Err
			conn.Close()
			time.Sleep(time.Second)
			continue
		}

		log.Debug().Msg("portal: connected to session bus")
		return &Client{conn: conn}, nil
	}
	return nil, fmt.Errorf("portal: connect after 60 attempts: %w", lastErr)
}

// Close closes the underlying D-Bus connection.
func (c *Client) Close() error { return c.conn.Close() }

// Conn exposes the raw connection for callers (e.g. the Clipboard
// Manager) that need to add their own signal matches.
func (c *Client) Conn() *dbus.Conn { return c.conn }

func (c *Client) requestPath(token string) dbus.ObjectPath {
	sender := c.conn.Names()[0]
	var b strings.Builder
	for _, r := range sender[1:] { // drop leading ':'
		if r == '.' {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/request/%s/%s", b.String(), token))
}

// Call issues a portal method that returns a request object path, then
// waits for that request's Response signal and returns its results
// dictionary. This is the generalized form of the teacher's
// createPortalSession/selectPortalSources request dance.
func (c *Client) Call(ctx context.Context, iface, method string, args ...interface{}) (map[string]dbus.Variant, error) {
	token := "wayrdp_" + uuid.New().String()[:8]
	reqPath := c.requestPath(token)

	if err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(reqPath),
		dbus.WithMatchInterface(IfaceRequest),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return nil, fmt.Errorf("portal: add match: %w", err)
	}
	sigCh := make(chan *dbus.Signal, 4)
	c.conn.Signal(sigCh)
	defer c.conn.RemoveSignal(sigCh)
	defer c.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(reqPath),
		dbus.WithMatchInterface(IfaceRequest),
		dbus.WithMatchMember("Response"),
	)

	obj := c.conn.Object(BusName, ObjPath)
	callArgs := append(args, dbusOptionsWithToken(token))
	var returnedPath dbus.ObjectPath
	if err := obj.Call(iface+"."+method, 0, callArgs...).Store(&returnedPath); err != nil {
		return nil, fmt.Errorf("portal: %s.%s call: %w", iface, method, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sig := <-sigCh:
			if sig.Path != reqPath && sig.Path != returnedPath {
				continue
			}
			if len(sig.Body) < 2 {
				return nil, fmt.Errorf("portal: malformed Response signal")
			}
			code, _ := sig.Body[0].(uint32)
			if code != 0 {
				return nil, fmt.Errorf("portal: %s.%s request denied (code %d)", iface, method, code)
			}
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			return results, nil
		}
	}
}

// dbusOptionsWithToken builds the options dict every portal call takes,
// seeding handle_token so the caller can predict the request path.
func dbusOptionsWithToken(token string) map[string]dbus.Variant {
	return map[string]dbus.Variant{"handle_token": dbus.MakeVariant(token)}
}

// Object returns a BusObject for an arbitrary portal-adjacent path
// (e.g. a Session object returned by CreateSession).
func (c *Client) Object(path dbus.ObjectPath) dbus.BusObject {
	return c.conn.Object(BusName, path)
}
