// Package rdpio names the boundary this server stops at: RDP PDU
// encoding, the RDP wire protocol itself, and Wayland protocol parsing
// are out of scope (carried from spec.md's Non-goals unchanged). This
// package defines the collaborator interfaces an external RDP stack
// (e.g. an ironrdp/FreeRDP-backed server loop) would implement to
// receive frames and clipboard data from this module and to deliver
// input events into it.
package rdpio

import (
	"context"
	"time"
)

// FrameSink receives encoder-ready frames from the capture pipeline.
// Implementations are expected to be fast: the pipeline's Dispatcher
// applies backpressure against a slow sink rather than blocking capture.
type FrameSink interface {
	PushFrame(ctx context.Context, frame Frame) error
}

// Frame is the boundary representation handed to the RDP encoder: BGRX
// (or whatever pixel format the strategy negotiated), plus the damage
// rectangles computed this tick.
type Frame struct {
	Width, Height int
	Stride        int
	Pixels        []byte
	Damage        []Rect
	CapturedAt    time.Time
	SequenceNo    uint64
}

// Rect is an axis-aligned damage rectangle in pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

// ClipboardSink is the outbound half of the spec's clipboard wire
// surface: every message the manager can push to the RDP client on its
// own initiative. It never blocks on a reply — a paste initiated with
// SendInitiatePaste is answered later, as an independent inbound event
// (Manager.Submit), not as this call's return value. That asymmetry is
// what makes delayed rendering possible: the manager must be able to
// have many SendInitiatePaste calls outstanding at once, correlated to
// their eventual RdpDataResponse strictly by arrival order.
type ClipboardSink interface {
	// SendInitiateCopy announces that this side now owns the
	// clipboard, offering formats without transferring any data.
	SendInitiateCopy(ctx context.Context, formats []uint32) error
	// SendInitiatePaste asks the client to supply data for formatID;
	// the reply arrives later via Manager.Submit(EventRDPDataResponse
	// or EventRDPDataError).
	SendInitiatePaste(ctx context.Context, formatID uint32) error
	// SendFormatData answers a client-initiated data request
	// (EventRDPDataRequest) with the converted payload.
	SendFormatData(ctx context.Context, data []byte) error
	// SendFormatDataError answers a client-initiated data request
	// that this side could not satisfy.
	SendFormatDataError(ctx context.Context) error
	// SendLockClipboard pins the client's clipboard contents under
	// clipDataID for the duration of a file transfer so the listing
	// can't change out from under concurrent FileContentsRequests.
	SendLockClipboard(ctx context.Context, clipDataID uint32) error
	SendUnlockClipboard(ctx context.Context, clipDataID uint32) error
	// SendFileContentsRequest asks the client for one chunk of one
	// file from its most recently advertised FileGroupDescriptorW
	// listing; the reply arrives via
	// Manager.Submit(EventRDPFileContentsResponse).
	SendFileContentsRequest(ctx context.Context, req FileContentsRequest) error
	// SendFileContentsResponse answers a client-initiated
	// FileContentsRequest (EventRDPFileContentsRequest) when this side
	// is the one serving files out of its own FileGroupDescriptorW
	// listing.
	SendFileContentsResponse(ctx context.Context, resp FileContentsResponse) error
}

// FileContentsRequest asks the RDP client for (part of) one file from
// its most recently advertised FileGroupDescriptorW listing.
type FileContentsRequest struct {
	StreamID      uint32
	ListIndex     uint32
	Position      uint64
	Size          uint32
	IsSizeRequest bool
	ClipDataID    uint32
}

// FileContentsResponse carries either the byte count (a size-only
// reply) or a data chunk for one outstanding FileContentsRequest this
// side received from the client.
type FileContentsResponse struct {
	StreamID uint32
	Size     uint64
	Data     []byte
	IsError  bool
}

// ClipboardSource is implemented by the RDP collaborator to satisfy
// this module's one synchronous clipboard query. Every other inbound
// clipboard signal — RdpFormatList, RdpDataRequest, RdpDataResponse,
// RdpDataError, RdpFileContentsRequest, RdpFileContentsResponse —
// arrives as a Manager.Submit call instead, since it has no natural
// request/response pairing at this boundary (the client may answer a
// SendInitiatePaste seconds later, or not at all).
type ClipboardSource interface {
	RequestFormatList(ctx context.Context) ([]uint32, error)
}

// InputReceiver is implemented by this module and called by the RDP
// collaborator as Input PDUs arrive off the wire.
type InputReceiver interface {
	KeyEvent(ctx context.Context, vkCode uint16, down bool) error
	PointerMove(ctx context.Context, xFrac, yFrac float64) error
	PointerButton(ctx context.Context, button int, down bool) error
	PointerWheel(ctx context.Context, deltaX, deltaY float64) error
}
