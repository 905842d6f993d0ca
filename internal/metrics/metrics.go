// Package metrics holds the small set of process-lifetime counters the
// spec's testable properties rely on (frame cadence, dropped frames,
// clipboard sync outcomes, transfer failures). No third-party metrics
// library is wired in the pack's go.mod for any component — the
// teacher's own desktop bridge exposes nothing comparable and no other
// example repo imports a metrics client — so these stay plain
// sync/atomic counters rather than a Prometheus-style registry.
package metrics

import (
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing count.
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Inc()      { c.v.Add(1) }
func (c *Counter) Add(n int64) { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

// Gauge is a value that moves up and down.
type Gauge struct {
	v atomic.Int64
}

func (g *Gauge) Set(n int64) { g.v.Store(n) }
func (g *Gauge) Value() int64 { return g.v.Load() }

// Capture tracks the capture pipeline's testable properties: frames
// produced, frames dropped under backpressure, and damage-region
// reduction versus full-frame encodes.
var Capture = struct {
	FramesCaptured Counter
	FramesDropped  Counter
	DamageRegions  Counter
	FullFrames     Counter
}{}

// Clipboard tracks the sync engine's testable properties: ownership
// changes applied, changes suppressed by the echo-protection window or
// loop detector, and transfer outcomes.
var Clipboard = struct {
	FormatListsApplied   Counter
	EchoSuppressed       Counter
	LoopSuppressed       Counter
	TransfersCompleted   Counter
	TransfersFailed      Counter
	TransfersCancelled   Counter
	PasteDedupDropped    Counter
	FileTransfersStarted Counter
	FileTransfersDone    Counter
	FileTransfersFailed  Counter
	PendingQueueDepth    Gauge
}{}

// Session tracks strategy selection and credential-backend outcomes.
var Session = struct {
	StrategyFallbacks    Counter
	PortalReauths        Counter
	CredentialLoadErrors Counter
}{}

// Uptime reports how long the process has been running, for a
// lightweight liveness signal without pulling in a metrics exporter.
var processStart = time.Now()

func Uptime() time.Duration {
	return time.Since(processStart)
}

// Snapshot is a point-in-time copy of every counter, suitable for
// logging or a debug endpoint.
type Snapshot struct {
	FramesCaptured       int64
	FramesDropped        int64
	DamageRegions        int64
	FullFrames           int64
	FormatListsApplied   int64
	EchoSuppressed       int64
	LoopSuppressed       int64
	TransfersCompleted   int64
	TransfersFailed      int64
	TransfersCancelled   int64
	PasteDedupDropped    int64
	FileTransfersStarted int64
	FileTransfersDone    int64
	FileTransfersFailed  int64
	PendingQueueDepth    int64
	StrategyFallbacks    int64
	PortalReauths        int64
	CredentialLoadErrors int64
	UptimeSeconds        float64
}

func Snap() Snapshot {
	return Snapshot{
		FramesCaptured:       Capture.FramesCaptured.Value(),
		FramesDropped:        Capture.FramesDropped.Value(),
		DamageRegions:        Capture.DamageRegions.Value(),
		FullFrames:           Capture.FullFrames.Value(),
		FormatListsApplied:   Clipboard.FormatListsApplied.Value(),
		EchoSuppressed:       Clipboard.EchoSuppressed.Value(),
		LoopSuppressed:       Clipboard.LoopSuppressed.Value(),
		TransfersCompleted:   Clipboard.TransfersCompleted.Value(),
		TransfersFailed:      Clipboard.TransfersFailed.Value(),
		TransfersCancelled:   Clipboard.TransfersCancelled.Value(),
		PasteDedupDropped:    Clipboard.PasteDedupDropped.Value(),
		FileTransfersStarted: Clipboard.FileTransfersStarted.Value(),
		FileTransfersDone:    Clipboard.FileTransfersDone.Value(),
		FileTransfersFailed:  Clipboard.FileTransfersFailed.Value(),
		PendingQueueDepth:    Clipboard.PendingQueueDepth.Value(),
		StrategyFallbacks:    Session.StrategyFallbacks.Value(),
		PortalReauths:        Session.PortalReauths.Value(),
		CredentialLoadErrors: Session.CredentialLoadErrors.Value(),
		UptimeSeconds:        Uptime().Seconds(),
	}
}
