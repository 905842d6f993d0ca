package clipboard

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	remoteDesktopBus          = "org.gnome.Mutter.RemoteDesktop"
	remoteDesktopSessionIface = "org.gnome.Mutter.RemoteDesktop.Session"
)

// GNOMEBridge drives clipboard ownership over the Mutter RemoteDesktop
// session object's Selection* calls, mirroring the direct-strategy
// capture session's own use of that same session path. Grounded on
// the teacher's clipboard.go getClipboardGNOME/setClipboardGNOME/
// handleSelectionTransfer trio. Unlike that teacher code, it no longer
// stashes a single pending payload in-process: every SelectionTransfer
// signal is handed to the caller's callback so Manager's pending FIFO
// can correlate it to the serial that requested it, per §8.
type GNOMEBridge struct {
	conn        *dbus.Conn
	sessionPath dbus.ObjectPath
}

func NewGNOMEBridge(conn *dbus.Conn, sessionPath dbus.ObjectPath) *GNOMEBridge {
	return &GNOMEBridge{conn: conn, sessionPath: sessionPath}
}

func (b *GNOMEBridge) session() dbus.BusObject {
	return b.conn.Object(remoteDesktopBus, b.sessionPath)
}

func (b *GNOMEBridge) enable() error {
	opts := map[string]dbus.Variant{}
	return b.session().Call(remoteDesktopSessionIface+".EnableClipboard", 0, opts).Err
}

// Read fetches the current clipboard payload for mimeType from the
// GNOME session by requesting a pipe fd and reading it to EOF.
func (b *GNOMEBridge) Read(mimeType string) ([]byte, error) {
	if err := b.enable(); err != nil {
		return nil, fmt.Errorf("clipboard: EnableClipboard: %w", err)
	}

	call := b.session().Call(remoteDesktopSessionIface+".SelectionRead", 0, mimeType)
	if call.Err != nil {
		return nil, fmt.Errorf("clipboard: SelectionRead: %w", call.Err)
	}
	if len(call.Body) == 0 {
		return nil, fmt.Errorf("clipboard: SelectionRead returned no fd")
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		return nil, fmt.Errorf("clipboard: SelectionRead returned unexpected fd type")
	}

	f := os.NewFile(uintptr(fd), "clipboard-read")
	defer f.Close()
	return readAll(f)
}

// Announce tells the GNOME session this server now owns the clipboard
// for the given MIME types, without transferring any data — the
// delayed-rendering announce §4.E requires. Content is fetched lazily,
// serial by serial, when SelectionTransfer fires.
func (b *GNOMEBridge) Announce(mimeTypes []string) error {
	if err := b.enable(); err != nil {
		return fmt.Errorf("clipboard: EnableClipboard: %w", err)
	}
	opts := map[string]dbus.Variant{"mime-types": dbus.MakeVariant(mimeTypes)}
	if err := b.session().Call(remoteDesktopSessionIface+".SetSelection", 0, opts).Err; err != nil {
		return fmt.Errorf("clipboard: SetSelection: %w", err)
	}
	return nil
}

// WriteSelection supplies data for a pending SelectionTransfer
// identified by serial, writing to the fd GNOME hands back and
// finishing the transfer with SelectionWriteDone.
func (b *GNOMEBridge) WriteSelection(serial uint32, data []byte) error {
	call := b.session().Call(remoteDesktopSessionIface+".SelectionWrite", 0, serial)
	if call.Err != nil || len(call.Body) == 0 {
		b.session().Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return fmt.Errorf("clipboard: SelectionWrite: %w", call.Err)
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		b.session().Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return fmt.Errorf("clipboard: SelectionWrite returned unexpected fd type")
	}

	f := os.NewFile(uintptr(fd), "clipboard-write")
	_, writeErr := f.Write(data)
	f.Close()

	success := writeErr == nil
	if err := b.session().Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, success).Err; err != nil {
		return fmt.Errorf("clipboard: SelectionWriteDone: %w", err)
	}
	return writeErr
}

// CancelSelection marks serial as failed without ever writing to it —
// used for every serial the pending FIFO discards before or instead of
// fulfilling it (a compositor dedup hit, a timeout, a format this side
// could not produce).
func (b *GNOMEBridge) CancelSelection(serial uint32) error {
	return b.session().Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false).Err
}

// SubscribeTransfers listens for SelectionTransfer signals — GNOME
// asking this side to supply data for (mimeType, serial) — and hands
// each one to onTransfer so Manager can run it through the 100ms dedup
// window and pending FIFO rather than holding any state here.
func (b *GNOMEBridge) SubscribeTransfers(onTransfer func(mimeType string, serial uint32)) error {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(b.sessionPath),
		dbus.WithMatchInterface(remoteDesktopSessionIface),
		dbus.WithMatchMember("SelectionTransfer"),
	); err != nil {
		return fmt.Errorf("clipboard: subscribe SelectionTransfer: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	b.conn.Signal(signals)
	go func() {
		for sig := range signals {
			if sig.Name != remoteDesktopSessionIface+".SelectionTransfer" || len(sig.Body) < 2 {
				continue
			}
			mimeType, ok := sig.Body[0].(string)
			if !ok {
				continue
			}
			serial, ok := sig.Body[1].(uint32)
			if !ok {
				continue
			}
			onTransfer(mimeType, serial)
		}
	}()
	return nil
}

func readAll(f *os.File) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 64*1024)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
