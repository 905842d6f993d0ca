package clipboard

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/errs"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/fuseoverlay"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/metrics"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/rdpio"
)

// bridge is the minimal clipboard transport every backend (GNOME
// direct session, portal session) must provide; Manager drives sync
// policy, the pending FIFO, and file transfer against this interface
// without caring which concrete strategy session established it. It
// no longer carries any per-transfer state of its own — every
// SelectionTransfer signal is routed straight to Manager via
// subscribeTransfers, and writeSelection/cancelSelection always name
// the serial explicitly, so a bridge implementation is a thin D-Bus
// shim rather than a second place pending state could live.
type bridge interface {
	enable(ctx context.Context) error
	read(ctx context.Context, mimeType string) ([]byte, error)
	announce(ctx context.Context, mimeTypes []string) error
	writeSelection(ctx context.Context, serial uint32, data []byte) error
	cancelSelection(ctx context.Context, serial uint32) error
	subscribeTransfers(ctx context.Context, onTransfer func(mimeType string, serial uint32)) error
	subscribeOwnerChanged(ctx context.Context, onChanged func(mimeTypes []string)) error
}

type gnomeAdapter struct{ b *GNOMEBridge }

func (a gnomeAdapter) enable(ctx context.Context) error { return a.b.enable() }
func (a gnomeAdapter) read(ctx context.Context, mimeType string) ([]byte, error) {
	return a.b.Read(mimeType)
}
func (a gnomeAdapter) announce(ctx context.Context, mimeTypes []string) error {
	return a.b.Announce(mimeTypes)
}
func (a gnomeAdapter) writeSelection(ctx context.Context, serial uint32, data []byte) error {
	return a.b.WriteSelection(serial, data)
}
func (a gnomeAdapter) cancelSelection(ctx context.Context, serial uint32) error {
	return a.b.CancelSelection(serial)
}
func (a gnomeAdapter) subscribeTransfers(ctx context.Context, onTransfer func(mimeType string, serial uint32)) error {
	return a.b.SubscribeTransfers(onTransfer)
}

// subscribeOwnerChanged has nothing to subscribe to on this backend:
// Mutter's RemoteDesktop session interface exposes no
// SelectionOwnerChanged-equivalent signal, so a local copy on a
// GNOME-direct session is only observable this server already
// reacting to a SelectionTransfer it wasn't expecting, not through an
// independent ownership notification.
func (a gnomeAdapter) subscribeOwnerChanged(ctx context.Context, onChanged func(mimeTypes []string)) error {
	return nil
}

type portalAdapter struct{ b *PortalBridge }

func (a portalAdapter) enable(ctx context.Context) error { return a.b.RequestClipboard(ctx) }
func (a portalAdapter) read(ctx context.Context, mimeType string) ([]byte, error) {
	return a.b.SelectionRead(ctx, mimeType)
}
func (a portalAdapter) announce(ctx context.Context, mimeTypes []string) error {
	return a.b.SetSelection(ctx, mimeTypes)
}
func (a portalAdapter) writeSelection(ctx context.Context, serial uint32, data []byte) error {
	return a.b.SelectionWrite(ctx, serial, data)
}
func (a portalAdapter) cancelSelection(ctx context.Context, serial uint32) error {
	return a.b.CancelSelectionWrite(serial)
}
func (a portalAdapter) subscribeTransfers(ctx context.Context, onTransfer func(mimeType string, serial uint32)) error {
	return a.b.SubscribeTransfers(ctx, onTransfer)
}
func (a portalAdapter) subscribeOwnerChanged(ctx context.Context, onChanged func(mimeTypes []string)) error {
	return a.b.SubscribeOwnerChanged(ctx, onChanged)
}

// NewGNOMEAdapter and NewPortalAdapter let cmd/ wiring pick the right
// backend for the established strategy.Session's Kind without this
// package importing the strategy package.
func NewGNOMEAdapter(b *GNOMEBridge) bridge   { return gnomeAdapter{b} }
func NewPortalAdapter(b *PortalBridge) bridge { return portalAdapter{b} }

// registeredFormatNames maps a MIME type to the Windows registered
// clipboard format name a real client would announce it under, for
// the cases where the fixed CF_* table doesn't apply — a
// FileGroupDescriptorW format id is session-specific, assigned fresh
// by the client in its FormatList rather than living in formats.rs's
// static table.
var registeredFormatNames = map[string]string{
	"text/uri-list":                "FileGroupDescriptorW",
	"x-special/gnome-copied-files": "FileGroupDescriptorW",
}

// EventKind enumerates the §4.G clipboard signal alphabet this module
// reacts to, grounded on manager.rs's ClipboardEvent.
type EventKind int

const (
	EventRDPFormatList EventKind = iota
	EventRDPDataRequest
	EventRDPDataResponse
	EventRDPDataError
	EventRDPFileContentsRequest
	EventRDPFileContentsResponse
	EventPortalFormatsAvailable
	EventPortalSelectionTransfer
)

func eventKindName(k EventKind) string {
	switch k {
	case EventRDPFormatList:
		return "rdp-format-list"
	case EventRDPDataRequest:
		return "rdp-data-request"
	case EventRDPDataResponse:
		return "rdp-data-response"
	case EventRDPDataError:
		return "rdp-data-error"
	case EventRDPFileContentsRequest:
		return "rdp-file-contents-request"
	case EventRDPFileContentsResponse:
		return "rdp-file-contents-response"
	case EventPortalFormatsAvailable:
		return "portal-formats-available"
	case EventPortalSelectionTransfer:
		return "portal-selection-transfer"
	default:
		return "unknown"
	}
}

// Event is a single clipboard notification fed into the manager's run
// loop, from either the RDP channel or a D-Bus bridge. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Formats   []Format // EventRDPFormatList
	FormatID  uint32   // EventRDPDataRequest
	Data      []byte   // EventRDPDataResponse
	MimeTypes []string // EventPortalFormatsAvailable
	MimeType  string   // EventPortalSelectionTransfer: format the local side wants
	Serial    uint32   // EventPortalSelectionTransfer: serial to answer

	FileRequest  rdpio.FileContentsRequest  // EventRDPFileContentsRequest
	FileResponse rdpio.FileContentsResponse // EventRDPFileContentsResponse
}

// Config bounds the manager's behavior.
type Config struct {
	MaxPayloadSize int64
	ReadTimeout    time.Duration
	Transfer       TransferConfig

	// PasteDedupWindow collapses a compositor's rapid-fire duplicate
	// SelectionTransfer signal for the same paste gesture into one.
	PasteDedupWindow time.Duration
	// EchoWindow suppresses a local ownership notification that is
	// really just this server's own recent SetSelection bouncing back.
	EchoWindow time.Duration
	// LoopDetectWindow bounds the RDP/portal content-hash loop check.
	LoopDetectWindow time.Duration
	// PendingTimeout is how long a SendInitiatePaste may go unanswered
	// before its pending FIFO entry is cancelled outright.
	PendingTimeout time.Duration

	// DownloadDir is where the staging-fallback file-transfer path
	// materializes completed files when FuseDir is unset.
	DownloadDir string
	// FuseDir, when set, mounts a fuseoverlay.Root under it per
	// incoming file listing instead of staging files to DownloadDir.
	FuseDir string
}

func DefaultConfig() Config {
	return Config{
		MaxPayloadSize:   16 * 1024 * 1024,
		ReadTimeout:      5 * time.Second,
		Transfer:         DefaultTransferConfig(),
		PasteDedupWindow: 100 * time.Millisecond,
		EchoWindow:       2000 * time.Millisecond,
		LoopDetectWindow: 500 * time.Millisecond,
		PendingTimeout:   5 * time.Second,
		DownloadDir:      "/tmp/wayrdpd/downloads",
	}
}

type fuseFetchReply struct {
	data []byte
	err  error
}

// Manager is the top-level clipboard orchestrator: it watches both
// sides for ownership changes, converts payloads between RDP and local
// MIME representations, serves delayed-rendering pastes through a
// pending FIFO correlated strictly by arrival order, and moves files
// both directions (FUSE on-demand or staged to disk). Grounded on
// manager.rs's ClipboardManager event loop, adapted from tokio channel
// select to a Go events channel drained by Run.
type Manager struct {
	cfg       Config
	bridge    bridge
	sync      *SyncManager
	transfer  *Engine
	converter *Converter

	rdpSink   rdpio.ClipboardSink
	rdpSource rdpio.ClipboardSource

	events chan Event

	pending     *pendingFIFO
	lastPasteMs atomic.Int64

	mu         sync.Mutex
	rdpFormats []Format
	ft         *fileTransferState
	fuseRoot   *fuseoverlay.Root
	fuseServer *fuse.Server

	nextStreamID atomic.Uint32
	fuseWaiters  map[uint32]chan fuseFetchReply
}

func NewManager(cfg Config, b bridge, sink rdpio.ClipboardSink, source rdpio.ClipboardSource) *Manager {
	loopCfg := DefaultLoopDetectionConfig()
	loopCfg.Window = cfg.LoopDetectWindow
	return &Manager{
		cfg:         cfg,
		bridge:      b,
		sync:        NewSyncManagerWithConfig(cfg.EchoWindow, loopCfg),
		transfer:    NewEngine(cfg.Transfer),
		converter:   NewConverter(),
		rdpSink:     sink,
		rdpSource:   source,
		events:      make(chan Event, 32),
		pending:     newPendingFIFO(),
		ft:          newFileTransferState(),
		fuseWaiters: make(map[uint32]chan fuseFetchReply),
	}
}

// Submit enqueues an event for processing by Run; it never blocks the
// caller beyond the channel's buffer.
func (m *Manager) Submit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Warn().Msg("clipboard: event queue full, dropping notification")
	}
}

// Run drains the event queue until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.bridge.enable(ctx); err != nil {
		return fmt.Errorf("clipboard: enable bridge: %w", err)
	}
	if err := m.bridge.subscribeTransfers(ctx, func(mimeType string, serial uint32) {
		m.Submit(Event{Kind: EventPortalSelectionTransfer, MimeType: mimeType, Serial: serial})
	}); err != nil {
		return fmt.Errorf("clipboard: subscribe selection transfer: %w", err)
	}
	if err := m.bridge.subscribeOwnerChanged(ctx, func(mimeTypes []string) {
		m.Submit(Event{Kind: EventPortalFormatsAvailable, MimeTypes: mimeTypes})
	}); err != nil {
		log.Debug().Err(err).Msg("clipboard: owner-changed subscription unavailable for this backend")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			if err := m.handle(ctx, ev); err != nil {
				log.Warn().Err(err).Str("kind", eventKindName(ev.Kind)).Msg("clipboard: event handling failed")
			}
		}
	}
}

// Close releases any mounted FUSE overlay. Safe to call even if no
// file transfer ever mounted one.
func (m *Manager) Close() error {
	m.mu.Lock()
	server := m.fuseServer
	m.fuseServer = nil
	m.fuseRoot = nil
	m.mu.Unlock()
	if server != nil {
		return server.Unmount()
	}
	return nil
}

func (m *Manager) handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventRDPFormatList:
		return m.handleRDPFormatList(ctx, ev.Formats)
	case EventRDPDataRequest:
		return m.handleRDPDataRequest(ctx, ev.FormatID)
	case EventRDPDataResponse:
		return m.handleRDPDataResponse(ctx, ev.Data)
	case EventRDPDataError:
		return m.handleRDPDataError(ctx)
	case EventRDPFileContentsRequest:
		return m.handleRDPFileContentsRequest(ctx, ev.FileRequest)
	case EventRDPFileContentsResponse:
		return m.handleRDPFileContentsResponse(ctx, ev.FileResponse)
	case EventPortalFormatsAvailable:
		return m.handlePortalFormatsAvailable(ctx, ev.MimeTypes)
	case EventPortalSelectionTransfer:
		return m.handlePortalSelectionTransfer(ctx, ev.MimeType, ev.Serial)
	default:
		return fmt.Errorf("clipboard: unknown event kind %d", ev.Kind)
	}
}

// handleRDPFormatList is the remote→local delayed-rendering
// announcement: the client took clipboard ownership and listed its
// formats, but no data moves until a local paste actually requests it.
func (m *Manager) handleRDPFormatList(ctx context.Context, formats []Format) error {
	if !m.sync.HandleRDPFormats(formats, true) {
		metrics.Clipboard.EchoSuppressed.Inc()
		return nil
	}
	metrics.Clipboard.FormatListsApplied.Inc()

	m.mu.Lock()
	m.rdpFormats = formats
	m.mu.Unlock()

	mimeTypes := m.converter.RDPFormatsToMime(formats)
	if len(mimeTypes) == 0 {
		return nil
	}
	return m.bridge.announce(ctx, mimeTypes)
}

// handlePortalFormatsAvailable is a local copy announced through a
// non-authoritative owner-changed signal; it tells the RDP client this
// side now owns the clipboard, again without sending any data yet.
func (m *Manager) handlePortalFormatsAvailable(ctx context.Context, mimeTypes []string) error {
	if !m.sync.HandlePortalFormats(mimeTypes, false) {
		metrics.Clipboard.EchoSuppressed.Inc()
		return nil
	}

	formats := m.converter.MimeToRDPFormats(mimeTypes)
	if len(formats) == 0 {
		return nil
	}
	ids := make([]uint32, len(formats))
	for i, f := range formats {
		ids[i] = f.ID
	}
	return m.rdpSink.SendInitiateCopy(ctx, ids)
}

// handleRDPDataRequest answers the client reading from the clipboard
// this side owns: either a file listing (built fresh from the local
// selection's paths) or a converted payload for one announced format.
func (m *Manager) handleRDPDataRequest(ctx context.Context, formatID uint32) error {
	mime, ok := m.converter.MimeForFormat(formatID)
	if !ok {
		return m.rdpSink.SendFormatDataError(ctx)
	}
	if isFileListMime(mime) {
		return m.serveOutgoingFileList(ctx)
	}

	readCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadTimeout)
	defer cancel()

	data, err := m.bridge.read(readCtx, mime)
	if err != nil {
		log.Warn().Err(err).Str("mime", mime).Msg("clipboard: local selection read failed")
		return m.rdpSink.SendFormatDataError(ctx)
	}
	if !m.sync.CheckContent(SourcePortal, data) {
		metrics.Clipboard.LoopSuppressed.Inc()
		return m.rdpSink.SendFormatDataError(ctx)
	}

	rdpData, err := m.converter.ConvertToRDP(data, mime, formatID)
	if err != nil {
		log.Warn().Err(err).Str("mime", mime).Msg("clipboard: convert to RDP failed")
		return m.rdpSink.SendFormatDataError(ctx)
	}
	return m.rdpSink.SendFormatData(ctx, rdpData)
}

// serveOutgoingFileList reads the local selection's file paths,
// stats each one, and answers with a freshly built FileGroupDescriptorW
// — the local→remote half of §4.G's file-transfer rule. The
// per-file paths are remembered in m.ft.outgoing so a later
// RdpFileContentsRequest can serve their bytes.
func (m *Manager) serveOutgoingFileList(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadTimeout)
	defer cancel()

	raw, err := m.bridge.read(readCtx, "text/uri-list")
	if err != nil {
		return m.rdpSink.SendFormatDataError(ctx)
	}
	paths, err := parseFileURIs(raw, "text/uri-list")
	if err != nil || len(paths) == 0 {
		return m.rdpSink.SendFormatDataError(ctx)
	}

	descriptors := make([]FileDescriptor, 0, len(paths))
	outgoing := make([]outgoingFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("clipboard: stat outgoing file failed, skipping")
			continue
		}
		descriptors = append(descriptors, FileDescriptor{
			Name:    sanitizeFilenameForLinux(filepath.Base(p)),
			Size:    uint64(info.Size()),
			HasSize: true,
		})
		outgoing = append(outgoing, outgoingFile{path: p, size: info.Size()})
	}
	if len(descriptors) == 0 {
		return m.rdpSink.SendFormatDataError(ctx)
	}

	m.mu.Lock()
	m.ft.outgoing = outgoing
	m.mu.Unlock()

	wire, err := BuildFileGroupDescriptorW(descriptors)
	if err != nil {
		return m.rdpSink.SendFormatDataError(ctx)
	}
	return m.rdpSink.SendFormatData(ctx, wire)
}

// handleRDPFileContentsRequest serves one chunk of a file this side
// offered, by list index, straight off disk — the §4.G local→remote
// continuation the client drives with repeated requests.
func (m *Manager) handleRDPFileContentsRequest(ctx context.Context, req rdpio.FileContentsRequest) error {
	m.mu.Lock()
	var entry outgoingFile
	ok := int(req.ListIndex) < len(m.ft.outgoing)
	if ok {
		entry = m.ft.outgoing[req.ListIndex]
	}
	m.mu.Unlock()
	if !ok {
		return m.rdpSink.SendFileContentsResponse(ctx, rdpio.FileContentsResponse{StreamID: req.StreamID, IsError: true})
	}

	if req.IsSizeRequest {
		return m.rdpSink.SendFileContentsResponse(ctx, rdpio.FileContentsResponse{StreamID: req.StreamID, Size: uint64(entry.size)})
	}

	data, err := readFileChunk(entry.path, int64(req.Position), int(req.Size))
	if err != nil {
		log.Warn().Err(err).Str("path", entry.path).Msg("clipboard: read file chunk failed")
		return m.rdpSink.SendFileContentsResponse(ctx, rdpio.FileContentsResponse{StreamID: req.StreamID, IsError: true})
	}
	return m.rdpSink.SendFileContentsResponse(ctx, rdpio.FileContentsResponse{StreamID: req.StreamID, Data: data})
}

func readFileChunk(path string, position int64, size int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(position, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// handlePortalSelectionTransfer is the local paste gesture: a
// compositor signal naming the mime it wants and the serial to answer.
// It runs the 100ms dedup window, the ownership-state gate, looks up
// the RDP format id to ask for, pushes the pending FIFO entry before
// dispatching SendInitiatePaste, and arms that entry's timeout —
// grounded on manager.rs's start_selection_transfer_listener.
func (m *Manager) handlePortalSelectionTransfer(ctx context.Context, mimeType string, serial uint32) error {
	nowMs := time.Now().UnixMilli()
	last := m.lastPasteMs.Swap(nowMs)
	if last != 0 && nowMs-last < m.cfg.PasteDedupWindow.Milliseconds() {
		metrics.Clipboard.PasteDedupDropped.Inc()
		return m.bridge.cancelSelection(ctx, serial)
	}

	if m.sync.State() == StatePortalOwned {
		log.Warn().Uint32("serial", serial).Msg("clipboard: ignoring selection transfer, portal already owns clipboard")
		return nil
	}

	formatID, ok := m.lookupFormatIDForMime(mimeType)
	if !ok {
		return m.bridge.cancelSelection(ctx, serial)
	}

	entry := &pendingEntry{serial: serial, mimeType: mimeType, formatID: formatID, enqueued: time.Now()}
	m.pending.push(entry)
	metrics.Clipboard.PendingQueueDepth.Set(int64(m.pending.len()))

	entry.timer = time.AfterFunc(m.cfg.PendingTimeout, func() {
		if _, ok := m.pending.removeSerial(serial); ok {
			metrics.Clipboard.PendingQueueDepth.Set(int64(m.pending.len()))
			log.Warn().Uint32("serial", serial).Msg("clipboard: pending paste timed out")
			m.bridge.cancelSelection(context.Background(), serial)
		}
	})

	if err := m.rdpSink.SendInitiatePaste(ctx, formatID); err != nil {
		if _, ok := m.pending.removeSerial(serial); ok {
			entry.timer.Stop()
		}
		m.bridge.cancelSelection(ctx, serial)
		return errs.New(errs.KindCommunication, "clipboard.sendInitiatePaste", err)
	}
	return nil
}

// lookupFormatIDForMime prefers the format id the client actually
// registered in its most recent FormatList (the only place a
// FileGroupDescriptorW's session-specific id lives) before falling
// back to the fixed CF_* table.
func (m *Manager) lookupFormatIDForMime(mime string) (uint32, bool) {
	if wantName, ok := registeredFormatNames[mime]; ok {
		m.mu.Lock()
		formats := m.rdpFormats
		m.mu.Unlock()
		for _, f := range formats {
			if f.Name == wantName {
				return f.ID, true
			}
		}
	}
	return m.converter.FormatForMime(mime)
}

// handleRDPDataResponse is the FIFO pop + dispatch §8 describes: the
// serial fulfilled is always whichever was at the head of the queue on
// arrival, never looked up by content or mime. A file-list mime
// diverts into the file-transfer flow; anything else converts and
// writes directly, then cancels every other still-pending serial since
// only one logical mime needs fulfilling per paste gesture.
func (m *Manager) handleRDPDataResponse(ctx context.Context, data []byte) error {
	if int64(len(data)) > m.cfg.MaxPayloadSize {
		entry, ok := m.pending.popFront()
		if ok {
			entry.timer.Stop()
			m.bridge.cancelSelection(ctx, entry.serial)
		}
		return errs.New(errs.KindDataValidation, "clipboard.handleRDPDataResponse",
			fmt.Errorf("payload %d bytes exceeds max %d", len(data), m.cfg.MaxPayloadSize))
	}
	if !m.sync.CheckContent(SourceRDP, data) {
		metrics.Clipboard.LoopSuppressed.Inc()
		return nil
	}

	entry, ok := m.pending.popFront()
	if !ok {
		log.Warn().Msg("clipboard: RdpDataResponse with nothing pending, discarding")
		return nil
	}
	entry.timer.Stop()
	metrics.Clipboard.PendingQueueDepth.Set(int64(m.pending.len()))

	if isFileListMime(entry.mimeType) {
		return m.handleIncomingFileList(ctx, entry.serial, data)
	}

	converted, err := m.converter.ConvertFromRDP(data, entry.formatID, entry.mimeType)
	if err != nil {
		m.bridge.cancelSelection(ctx, entry.serial)
		return errs.New(errs.KindFormatConversion, "clipboard.convertFromRDP", err)
	}

	if err := m.bridge.writeSelection(ctx, entry.serial, converted); err != nil {
		log.Warn().Err(err).Uint32("serial", entry.serial).Msg("clipboard: selection write failed")
	}

	for _, other := range m.pending.drainAll() {
		other.timer.Stop()
		m.bridge.cancelSelection(ctx, other.serial)
	}
	metrics.Clipboard.PendingQueueDepth.Set(0)
	return nil
}

// handleRDPDataError notifies every currently pending serial of
// failure and clears the queue, mirroring manager.rs's
// handle_rdp_data_error: a FormatDataResponse error carries no serial
// of its own, so every outstanding request from the failed gesture is
// treated as failed together.
func (m *Manager) handleRDPDataError(ctx context.Context) error {
	for _, e := range m.pending.drainAll() {
		e.timer.Stop()
		m.bridge.cancelSelection(ctx, e.serial)
	}
	metrics.Clipboard.PendingQueueDepth.Set(0)
	return nil
}

// handleIncomingFileList parses the FileGroupDescriptorW payload that
// fulfilled a file-list pending entry and starts the remote→local
// transfer, either via an on-demand FUSE overlay or staged to disk,
// depending on Config.FuseDir.
func (m *Manager) handleIncomingFileList(ctx context.Context, serial uint32, data []byte) error {
	descriptors, err := ParseFileGroupDescriptorW(data)
	if err != nil {
		m.bridge.cancelSelection(ctx, serial)
		return errs.New(errs.KindFormatConversion, "clipboard.parseFileGroupDescriptorW", err)
	}

	m.mu.Lock()
	alreadyTransferring := len(m.ft.incoming) > 0 || len(m.ft.pendingDescriptors) > 0
	m.mu.Unlock()
	if alreadyTransferring {
		// Portal issues both text/uri-list and
		// x-special/gnome-copied-files for one paste gesture; only the
		// first is processed, the other is moot.
		return m.bridge.cancelSelection(ctx, serial)
	}

	m.mu.Lock()
	m.ft.clipDataID++
	clipDataID := m.ft.clipDataID
	m.mu.Unlock()

	if err := m.rdpSink.SendLockClipboard(ctx, clipDataID); err != nil {
		m.bridge.cancelSelection(ctx, serial)
		return errs.New(errs.KindCommunication, "clipboard.sendLockClipboard", err)
	}

	if m.cfg.FuseDir != "" {
		return m.startFuseFileTransfer(ctx, serial, clipDataID, descriptors)
	}
	return m.startStagingFileTransfer(ctx, serial, clipDataID, descriptors)
}

// startFuseFileTransfer mounts a fuseoverlay.Root exposing descriptors
// as virtual files and delivers their paths immediately — content is
// fetched lazily, file by file, only when something actually reads
// from the mount. Grounded on fuse.rs's documented architecture.
func (m *Manager) startFuseFileTransfer(ctx context.Context, serial uint32, clipDataID uint32, descriptors []FileDescriptor) error {
	entries := make([]fuseoverlay.FileEntry, len(descriptors))
	for i, d := range descriptors {
		entries[i] = fuseoverlay.FileEntry{
			StreamID: uint32(i),
			Name:     sanitizeFilenameForLinux(d.Name),
			Size:     int64(d.Size),
		}
	}

	root := fuseoverlay.NewRoot(clipDataID, entries, m.fetchFUSEContent)
	mountDir := filepath.Join(m.cfg.FuseDir, fmt.Sprintf("clip-%d", clipDataID))
	if err := os.MkdirAll(mountDir, 0o755); err != nil {
		m.bridge.cancelSelection(ctx, serial)
		return errs.New(errs.KindTransfer, "clipboard.mkdirFuse", err)
	}
	server, err := fuseoverlay.Mount(mountDir, root, nil)
	if err != nil {
		m.bridge.cancelSelection(ctx, serial)
		return errs.New(errs.KindTransfer, "clipboard.fuseMount", err)
	}

	m.mu.Lock()
	previous := m.fuseServer
	m.fuseRoot = root
	m.fuseServer = server
	m.mu.Unlock()
	if previous != nil {
		previous.Unmount()
	}

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = filepath.Join(mountDir, e.Name)
	}
	if err := m.bridge.writeSelection(ctx, serial, buildGnomeCopiedFilesContent(paths)); err != nil {
		log.Warn().Err(err).Msg("clipboard: fuse selection write failed")
	}
	metrics.Clipboard.FileTransfersStarted.Inc()
	return nil
}

// fetchFUSEContent is the fuseoverlay.ContentFetcher for a FUSE-backed
// transfer: it bridges a synchronous kernel Read callback to the
// asynchronous RDP FileContentsRequest/Response round trip by
// registering a reply channel keyed by a freshly allocated stream id
// before asking the client for the bytes.
func (m *Manager) fetchFUSEContent(ctx context.Context, listingID uint32, fileIndex uint32, offset int64, length int) ([]byte, error) {
	streamID := m.nextStreamID.Add(1)

	reply := make(chan fuseFetchReply, 1)
	m.mu.Lock()
	m.fuseWaiters[streamID] = reply
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.fuseWaiters, streamID)
		m.mu.Unlock()
	}()

	req := rdpio.FileContentsRequest{
		StreamID:   streamID,
		ListIndex:  fileIndex,
		Position:   uint64(offset),
		Size:       uint32(length),
		ClipDataID: listingID,
	}
	if err := m.rdpSink.SendFileContentsRequest(ctx, req); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startStagingFileTransfer is the fallback remote→local path when no
// FUSE mount directory is configured: each descriptor gets a temp file
// and an initial chunk request; handleRDPFileContentsResponse drives
// the rest of each file to completion.
func (m *Manager) startStagingFileTransfer(ctx context.Context, serial uint32, clipDataID uint32, descriptors []FileDescriptor) error {
	if err := os.MkdirAll(m.cfg.DownloadDir, 0o755); err != nil {
		m.bridge.cancelSelection(ctx, serial)
		return errs.New(errs.KindTransfer, "clipboard.mkdirDownload", err)
	}

	m.mu.Lock()
	m.ft.pendingDescriptors = descriptors
	m.ft.portalSerial = &serial
	m.ft.completedPaths = nil
	m.mu.Unlock()

	for idx, d := range descriptors {
		streamID := m.nextStreamID.Add(1)
		name := sanitizeFilenameForLinux(d.Name)
		tempPath := filepath.Join(m.cfg.DownloadDir, fmt.Sprintf(".%s.%d.tmp", name, streamID))

		f, err := os.Create(tempPath)
		if err != nil {
			m.failStagingTransfer(ctx, err)
			return errs.New(errs.KindTransfer, "clipboard.createTempFile", err)
		}

		m.mu.Lock()
		m.ft.incoming[streamID] = &incomingFile{
			streamID:   streamID,
			listIndex:  uint32(idx),
			name:       name,
			totalSize:  d.Size,
			tempPath:   tempPath,
			finalPath:  filepath.Join(m.cfg.DownloadDir, name),
			file:       f,
			clipDataID: clipDataID,
		}
		m.mu.Unlock()

		requestSize := d.Size
		if requestSize == 0 || requestSize > uint64(m.cfg.Transfer.MaxDataSize) {
			requestSize = uint64(m.cfg.Transfer.MaxDataSize)
		}
		req := rdpio.FileContentsRequest{
			StreamID:   streamID,
			ListIndex:  uint32(idx),
			Position:   0,
			Size:       uint32(requestSize),
			ClipDataID: clipDataID,
		}
		if err := m.rdpSink.SendFileContentsRequest(ctx, req); err != nil {
			m.failStagingTransfer(ctx, err)
			return errs.New(errs.KindCommunication, "clipboard.sendFileContentsRequest", err)
		}
	}
	metrics.Clipboard.FileTransfersStarted.Inc()
	return nil
}

// handleRDPFileContentsResponse dispatches an incoming chunk either to
// a blocked FUSE read (identified by its stream id living in
// fuseWaiters) or into the staging path's per-file continuation.
func (m *Manager) handleRDPFileContentsResponse(ctx context.Context, resp rdpio.FileContentsResponse) error {
	m.mu.Lock()
	waiter, isFuse := m.fuseWaiters[resp.StreamID]
	m.mu.Unlock()
	if isFuse {
		if resp.IsError {
			waiter <- fuseFetchReply{err: fmt.Errorf("clipboard: RDP file contents error for stream %d", resp.StreamID)}
		} else {
			waiter <- fuseFetchReply{data: resp.Data}
		}
		return nil
	}
	return m.handleStagingFileContentsResponse(ctx, resp)
}

func (m *Manager) handleStagingFileContentsResponse(ctx context.Context, resp rdpio.FileContentsResponse) error {
	m.mu.Lock()
	in, ok := m.ft.incoming[resp.StreamID]
	m.mu.Unlock()
	if !ok {
		log.Warn().Uint32("stream_id", resp.StreamID).Msg("clipboard: file contents response for unknown stream, discarding")
		return nil
	}

	if resp.IsError {
		m.abortIncomingFile(ctx, in, fmt.Errorf("clipboard: RDP reported a file contents error for %q", in.name))
		return nil
	}

	if _, err := in.file.Write(resp.Data); err != nil {
		m.abortIncomingFile(ctx, in, err)
		return errs.New(errs.KindTransfer, "clipboard.writeIncomingChunk", err)
	}
	in.receivedSize += uint64(len(resp.Data))

	complete := in.totalSize > 0 && in.receivedSize >= in.totalSize
	if !complete && len(resp.Data) > 0 {
		remaining := in.totalSize - in.receivedSize
		chunkSize := remaining
		if chunkSize > uint64(m.cfg.Transfer.MaxDataSize) {
			chunkSize = uint64(m.cfg.Transfer.MaxDataSize)
		}
		req := rdpio.FileContentsRequest{
			StreamID:   in.streamID,
			ListIndex:  in.listIndex,
			Position:   in.receivedSize,
			Size:       uint32(chunkSize),
			ClipDataID: in.clipDataID,
		}
		if err := m.rdpSink.SendFileContentsRequest(ctx, req); err != nil {
			m.abortIncomingFile(ctx, in, err)
			return errs.New(errs.KindCommunication, "clipboard.sendFileContentsRequest", err)
		}
		return nil
	}

	return m.completeIncomingFile(ctx, in)
}

// completeIncomingFile finalizes one fully-received file and, once
// every descriptor in the listing has completed, delivers the whole
// set as a file:// URI list to the serial that was left pending for
// it — §4.G's "write for that serial once every file is done" rule.
func (m *Manager) completeIncomingFile(ctx context.Context, in *incomingFile) error {
	if err := in.file.Sync(); err != nil {
		m.abortIncomingFile(ctx, in, err)
		return errs.New(errs.KindTransfer, "clipboard.syncIncomingFile", err)
	}
	in.file.Close()
	if err := os.Rename(in.tempPath, in.finalPath); err != nil {
		m.abortIncomingFile(ctx, in, err)
		return errs.New(errs.KindTransfer, "clipboard.renameIncomingFile", err)
	}

	m.mu.Lock()
	delete(m.ft.incoming, in.streamID)
	m.ft.completedPaths = append(m.ft.completedPaths, in.finalPath)
	remaining := len(m.ft.incoming)
	wantTotal := len(m.ft.pendingDescriptors)
	completedPaths := append([]string(nil), m.ft.completedPaths...)
	serial := m.ft.portalSerial
	m.mu.Unlock()

	if remaining > 0 || len(completedPaths) < wantTotal {
		return nil
	}

	metrics.Clipboard.FileTransfersDone.Inc()
	if serial == nil {
		return nil
	}

	writeErr := m.bridge.writeSelection(ctx, *serial, buildGnomeCopiedFilesContent(completedPaths))

	m.mu.Lock()
	m.ft = newFileTransferState()
	m.mu.Unlock()

	if writeErr != nil {
		return errs.New(errs.KindCommunication, "clipboard.writeSelection", writeErr)
	}
	return nil
}

// abortIncomingFile drops one failed file, cleans up its temp file,
// and — if a serial was left pending for the listing this file belongs
// to — cancels it, since the listing can no longer complete in full.
func (m *Manager) abortIncomingFile(ctx context.Context, in *incomingFile, cause error) {
	in.file.Close()
	os.Remove(in.tempPath)

	m.mu.Lock()
	delete(m.ft.incoming, in.streamID)
	serial := m.ft.portalSerial
	m.ft.portalSerial = nil
	m.mu.Unlock()

	log.Warn().Err(cause).Str("file", in.name).Msg("clipboard: incoming file transfer aborted")
	metrics.Clipboard.FileTransfersFailed.Inc()
	if serial != nil {
		m.bridge.cancelSelection(ctx, *serial)
	}
}

// failStagingTransfer tears down every file a staging transfer managed
// to start before hitting a setup error, and cancels the serial left
// pending for it.
func (m *Manager) failStagingTransfer(ctx context.Context, cause error) {
	m.mu.Lock()
	serial := m.ft.portalSerial
	incoming := m.ft.incoming
	m.ft = newFileTransferState()
	m.mu.Unlock()

	for _, in := range incoming {
		in.file.Close()
		os.Remove(in.tempPath)
	}
	log.Warn().Err(cause).Msg("clipboard: staging file transfer setup failed")
	metrics.Clipboard.FileTransfersFailed.Inc()
	if serial != nil {
		m.bridge.cancelSelection(ctx, *serial)
	}
}
