package portal

import "github.com/godbus/dbus/v5"

// SelectionTransfer mirrors the portal Clipboard interface's
// SelectionTransfer signal: {session_handle, mime_type, serial}.
type SelectionTransfer struct {
	SessionHandle dbus.ObjectPath
	MimeType      string
	Serial        uint32
}

// SelectionOwnerChanged mirrors the Clipboard interface's
// SelectionOwnerChanged signal: {session_handle, options}. options
// carries "mime_types" ([]string) and "session_is_owner" (bool), the
// latter is what lets the caller tell an echo from a genuinely foreign
// write.
type SelectionOwnerChanged struct {
	SessionHandle  dbus.ObjectPath
	MimeTypes      []string
	SessionIsOwner bool
}

// Subscribe adds a signal match for member on IfaceClipboard and returns
// the raw channel; callers decode bodies themselves since the shapes
// differ per member.
func (c *Client) Subscribe(member string) (chan *dbus.Signal, error) {
	if err := c.conn.AddMatchSignal(
		dbus.WithMatchInterface(IfaceClipboard),
		dbus.WithMatchMember(member),
	); err != nil {
		return nil, err
	}
	ch := make(chan *dbus.Signal, 32)
	c.conn.Signal(ch)
	return ch, nil
}

// DecodeSelectionTransfer parses a raw SelectionTransfer signal body.
func DecodeSelectionTransfer(sig *dbus.Signal) (SelectionTransfer, bool) {
	if len(sig.Body) < 3 {
		return SelectionTransfer{}, false
	}
	handle, _ := sig.Body[0].(dbus.ObjectPath)
	mime, _ := sig.Body[1].(string)
	serial, _ := sig.Body[2].(uint32)
	return SelectionTransfer{SessionHandle: handle, MimeType: mime, Serial: serial}, true
}

// DecodeSelectionOwnerChanged parses a raw SelectionOwnerChanged signal body.
func DecodeSelectionOwnerChanged(sig *dbus.Signal) (SelectionOwnerChanged, bool) {
	if len(sig.Body) < 2 {
		return SelectionOwnerChanged{}, false
	}
	handle, _ := sig.Body[0].(dbus.ObjectPath)
	opts, _ := sig.Body[1].(map[string]dbus.Variant)
	out := SelectionOwnerChanged{SessionHandle: handle}
	if v, ok := opts["mime_types"]; ok {
		out.MimeTypes, _ = v.Value().([]string)
	}
	if v, ok := opts["session_is_owner"]; ok {
		out.SessionIsOwner, _ = v.Value().(bool)
	}
	return out, true
}
