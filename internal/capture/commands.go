package capture

// CursorMode selects how the compositor composites the pointer into
// captured frames, mirroring the portal's cursor_mode bitmask
// (hidden/embedded/metadata) already surfaced by internal/capability.
type CursorMode int

const (
	CursorHidden CursorMode = iota
	CursorEmbedded
	CursorMetadata
)

// StreamConfig is what the capture thread needs to bind a PipeWire node,
// the Go-native equivalent of pw_thread.rs's StreamConfig passed on
// CreateStream.
type StreamConfig struct {
	NodeID      uint32
	Width       int
	Height      int
	Framerate   int
	CursorMode  CursorMode
}

// command is the closed command sum the capture thread's run loop
// selects over, generalized from pw_thread.rs's PipeWireThreadCommand
// enum (CreateStream/DestroyStream/GetStreamState/Shutdown) to this
// server's single-stream-per-thread model (one Thread per monitor/
// virtual output, rather than one thread managing many streams).
type command interface{ isCommand() }

type cmdStart struct {
	config   StreamConfig
	response chan error
}

type cmdStop struct {
	response chan error
}

type cmdUpdateCursorMode struct {
	mode     CursorMode
	response chan error
}

type cmdShutdown struct{}

func (cmdStart) isCommand()            {}
func (cmdStop) isCommand()             {}
func (cmdUpdateCursorMode) isCommand() {}
func (cmdShutdown) isCommand()         {}
