package clipboard

import "os"

// incomingFile tracks one file mid-flight in the staging-fallback
// remote→local paste path: bytes arrive as a sequence of
// RdpFileContentsResponse chunks addressed by streamID and are
// written to a temp file until receivedSize reaches totalSize, at
// which point the temp file is renamed to its final name under
// Config.DownloadDir.
type incomingFile struct {
	streamID     uint32
	listIndex    uint32
	name         string
	totalSize    uint64
	receivedSize uint64
	tempPath     string
	finalPath    string
	file         *os.File
	clipDataID   uint32
}

// outgoingFile is one entry of a FileGroupDescriptorW this side
// advertised for a local→remote paste; a subsequent
// RdpFileContentsRequest addresses it by list index and this side
// serves chunks straight off disk.
type outgoingFile struct {
	path string
	size int64
}

// fileTransferState holds both directions of file-transfer bookkeeping
// for the manager's currently active transfer. Only one file paste can
// be staging at a time — a second FileGroupDescriptorW arriving while
// one is in flight is refused rather than interleaved, mirroring
// Portal's own single-paste-gesture assumption. Grounded on
// manager.rs's FileTransferState (manager.rs:267-376).
type fileTransferState struct {
	incoming map[uint32]*incomingFile // keyed by RDP stream id
	outgoing []outgoingFile           // indexed by FileGroupDescriptorW list index

	pendingDescriptors []FileDescriptor
	portalSerial       *uint32 // staging transfer awaiting completion before it can be fulfilled
	clipDataID         uint32
	completedPaths     []string
}

func newFileTransferState() *fileTransferState {
	return &fileTransferState{incoming: make(map[uint32]*incomingFile)}
}
