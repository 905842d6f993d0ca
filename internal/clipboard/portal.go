package clipboard

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
)

// PortalBridge drives clipboard sync over org.freedesktop.portal.Clipboard
// for sessions established through one of the portal strategies, where
// no GNOME RemoteDesktop session object is available to call Selection*
// on directly. Unlike ScreenCast/RemoteDesktop's SelectSources/Start,
// the Clipboard interface's methods are synchronous session-object
// calls rather than Request-handle calls, so this talks to the session
// object directly instead of going through Client.Call's
// Request/Response correlation. Grounded on the teacher's
// clipboard.go Selection*/fd handling, retargeted at the portal
// session object the way session_portal.go already reaches other
// session-scoped interfaces.
type PortalBridge struct {
	client      *portal.Client
	sessionPath dbus.ObjectPath
}

func NewPortalBridge(client *portal.Client, sessionPath dbus.ObjectPath) *PortalBridge {
	return &PortalBridge{client: client, sessionPath: sessionPath}
}

func (b *PortalBridge) session() dbus.BusObject {
	return b.client.Object(b.sessionPath)
}

// RequestClipboard asks the portal to enable clipboard access for the
// active RemoteDesktop session, required once before SetSelection or
// SelectionWrite calls succeed.
func (b *PortalBridge) RequestClipboard(ctx context.Context) error {
	if err := b.session().Call(portal.IfaceClipboard+".RequestClipboard", 0, map[string]dbus.Variant{}).Err; err != nil {
		return fmt.Errorf("clipboard: portal RequestClipboard: %w", err)
	}
	return nil
}

// SetSelection announces this server's clipboard ownership for the
// given MIME types.
func (b *PortalBridge) SetSelection(ctx context.Context, mimeTypes []string) error {
	opts := map[string]dbus.Variant{"mime_types": dbus.MakeVariant(mimeTypes)}
	if err := b.session().Call(portal.IfaceClipboard+".SetSelection", 0, opts).Err; err != nil {
		return fmt.Errorf("clipboard: portal SetSelection: %w", err)
	}
	return nil
}

// SelectionWrite supplies data for a pending SelectionTransfer,
// obtaining a write fd from the portal and writing the payload to it.
func (b *PortalBridge) SelectionWrite(ctx context.Context, serial uint32, data []byte) error {
	call := b.session().Call(portal.IfaceClipboard+".SelectionWrite", 0, serial)
	if call.Err != nil || len(call.Body) == 0 {
		return b.writeDone(serial, false)
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		return b.writeDone(serial, false)
	}

	f := os.NewFile(uintptr(fd), "portal-clipboard-write")
	_, writeErr := f.Write(data)
	f.Close()
	return b.writeDone(serial, writeErr == nil)
}

// CancelSelectionWrite marks serial as failed without writing to it —
// used for every serial the pending FIFO discards before or instead of
// fulfilling it.
func (b *PortalBridge) CancelSelectionWrite(serial uint32) error {
	return b.writeDone(serial, false)
}

func (b *PortalBridge) writeDone(serial uint32, success bool) error {
	return b.session().Call(portal.IfaceClipboard+".SelectionWriteDone", 0, serial, success).Err
}

// SelectionRead reads the remote clipboard content for mimeType.
func (b *PortalBridge) SelectionRead(ctx context.Context, mimeType string) ([]byte, error) {
	call := b.session().Call(portal.IfaceClipboard+".SelectionRead", 0, mimeType)
	if call.Err != nil {
		return nil, fmt.Errorf("clipboard: portal SelectionRead: %w", call.Err)
	}
	if len(call.Body) == 0 {
		return nil, fmt.Errorf("clipboard: portal SelectionRead returned no fd")
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		return nil, fmt.Errorf("clipboard: portal SelectionRead returned unexpected fd type")
	}

	f := os.NewFile(uintptr(fd), "portal-clipboard-read")
	defer f.Close()
	return readAll(f)
}

// SubscribeOwnerChanged listens for SelectionOwnerChanged signals,
// which are non-authoritative (unlike a FormatList PDU or an explicit
// SetSelection call) and so must be run through echo-window filtering
// before acting on them.
func (b *PortalBridge) SubscribeOwnerChanged(ctx context.Context, onChanged func(mimeTypes []string)) error {
	if err := b.client.Conn().AddMatchSignal(
		dbus.WithMatchObjectPath(b.sessionPath),
		dbus.WithMatchInterface(portal.IfaceClipboard),
		dbus.WithMatchMember("SelectionOwnerChanged"),
	); err != nil {
		return fmt.Errorf("clipboard: subscribe SelectionOwnerChanged: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	b.client.Conn().Signal(signals)
	go func() {
		defer b.client.Conn().RemoveSignal(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig.Name != portal.IfaceClipboard+".SelectionOwnerChanged" || len(sig.Body) < 2 {
					continue
				}
				opts, ok := sig.Body[1].(map[string]dbus.Variant)
				if !ok {
					continue
				}
				mimeTypes, ok := opts["mime_types"].Value().([]string)
				if !ok {
					continue
				}
				onChanged(mimeTypes)
			}
		}
	}()
	return nil
}

// SubscribeTransfers listens for SelectionTransfer signals — the
// portal asking this side to supply data for (mimeType, serial) — and
// hands each one to onTransfer so Manager can run it through the
// 100ms dedup window and pending FIFO rather than holding any state
// in this bridge.
func (b *PortalBridge) SubscribeTransfers(ctx context.Context, onTransfer func(mimeType string, serial uint32)) error {
	if err := b.client.Conn().AddMatchSignal(
		dbus.WithMatchObjectPath(b.sessionPath),
		dbus.WithMatchInterface(portal.IfaceClipboard),
		dbus.WithMatchMember("SelectionTransfer"),
	); err != nil {
		return fmt.Errorf("clipboard: subscribe SelectionTransfer: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	b.client.Conn().Signal(signals)
	go func() {
		defer b.client.Conn().RemoveSignal(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig.Name != portal.IfaceClipboard+".SelectionTransfer" || len(sig.Body) < 3 {
					continue
				}
				mimeType, ok := sig.Body[1].(string)
				if !ok {
					continue
				}
				serial, ok := sig.Body[2].(uint32)
				if !ok {
					continue
				}
				onTransfer(mimeType, serial)
			}
		}
	}()
	return nil
}
