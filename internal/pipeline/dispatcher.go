// Package pipeline turns captured video frames into RDP-ready bitmap
// updates: a Dispatcher routes frames from possibly many capture
// threads under backpressure and priority, a Processor rate-limits and
// skips frames with no material change, and a Converter performs pixel
// format conversion and damage-region extraction. Grounded on
// original_source/src/video/{dispatcher,processor,converter}.rs,
// translated from Rust's tokio mpsc channels + parking_lot::RwLock to
// Go channels and sync.Mutex, in the spirit of the teacher's own
// channel-based GstPipeline.Frames()/onNewSample plumbing.
package pipeline

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capture"
)

// Numeric constants carried over unchanged from dispatcher.rs.
const (
	DefaultChannelSize = 30
	MaxFrameAgeMS       = 150
	HighWaterMark       = 0.8
	LowWaterMark        = 0.5
)

// StreamPriority orders dispatch among concurrently capturing monitors.
type StreamPriority int

const (
	PriorityLow StreamPriority = iota
	PriorityNormal
	PriorityHigh
)

// DispatcherConfig mirrors dispatcher.rs's DispatcherConfig.
type DispatcherConfig struct {
	ChannelSize        int
	PriorityDispatch   bool
	MaxFrameAge        time.Duration
	EnableBackpressure bool
	HighWaterMark      float64
	LowWaterMark       float64
}

// DefaultDispatcherConfig matches dispatcher.rs's Default impl.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ChannelSize:        DefaultChannelSize,
		PriorityDispatch:   true,
		MaxFrameAge:        MaxFrameAgeMS * time.Millisecond,
		EnableBackpressure: true,
		HighWaterMark:      HighWaterMark,
		LowWaterMark:       LowWaterMark,
	}
}

// DispatcherStats is a point-in-time snapshot of dispatcher counters.
type DispatcherStats struct {
	FramesReceived            uint64
	FramesDispatched          uint64
	FramesDroppedAge          uint64
	FramesDroppedBackpressure uint64
	ActiveStreams             int
	TotalDispatchTime         time.Duration
	BackpressureActive        bool
}

func (s DispatcherStats) AvgDispatchTime() time.Duration {
	if s.FramesDispatched == 0 {
		return 0
	}
	return s.TotalDispatchTime / time.Duration(s.FramesDispatched)
}

func (s DispatcherStats) DropRate() float64 {
	if s.FramesReceived == 0 {
		return 0
	}
	drops := s.FramesDroppedAge + s.FramesDroppedBackpressure
	return float64(drops) / float64(s.FramesReceived)
}

func (s DispatcherStats) DispatchRate() float64 {
	if s.FramesReceived == 0 {
		return 0
	}
	return float64(s.FramesDispatched) / float64(s.FramesReceived)
}

type dispatchFrame struct {
	frame      capture.Frame
	streamID   uint32
	priority   StreamPriority
	enqueuedAt time.Time
}

func (f dispatchFrame) age() time.Duration { return time.Since(f.enqueuedAt) }

type streamState struct {
	priority           StreamPriority
	frameCount         uint64
	lastFrameTime      time.Time
	backpressureActive bool
}

// Dispatcher routes frames from multiple capture streams to a single
// downstream Processor, applying priority ordering and backpressure.
type Dispatcher struct {
	config DispatcherConfig

	mu      sync.Mutex
	streams map[uint32]*streamState
	queue   *list.List // of dispatchFrame, ordered by priority desc

	stats atomicStats
}

// NewDispatcher constructs a Dispatcher. A streamID is anything the
// caller uses to distinguish capture sources (monitor index, output
// name hash); RegisterStream is optional, frames from an unseen stream
// default to PriorityNormal.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		config:  config,
		streams: make(map[uint32]*streamState),
		queue:   list.New(),
	}
}

func (d *Dispatcher) RegisterStream(streamID uint32, priority StreamPriority) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams[streamID] = &streamState{priority: priority}
	log.Debug().Uint32("stream", streamID).Int("priority", int(priority)).Msg("pipeline: stream registered")
}

func (d *Dispatcher) UnregisterStream(streamID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.streams, streamID)
}

// Run consumes frames from input (tagged with their stream ID by the
// caller via FrameEnvelope) until input closes or ctx is cancelled,
// dispatching accepted frames to output. It blocks until done.
func (d *Dispatcher) Run(ctx context.Context, input <-chan FrameEnvelope, output chan<- capture.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-input:
			if !ok {
				return nil
			}
			d.handleIncoming(env)
			if err := d.drain(ctx, output); err != nil {
				return err
			}
		}
	}
}

// FrameEnvelope tags a captured frame with the stream it came from so
// the Dispatcher can track per-stream backpressure state.
type FrameEnvelope struct {
	StreamID uint32
	Frame    capture.Frame
}

func (d *Dispatcher) handleIncoming(env FrameEnvelope) {
	start := time.Now()
	d.stats.addReceived()

	d.mu.Lock()
	state, ok := d.streams[env.StreamID]
	if !ok {
		state = &streamState{priority: PriorityNormal}
		d.streams[env.StreamID] = state
	}
	state.frameCount++
	state.lastFrameTime = time.Now()

	if d.config.EnableBackpressure {
		usage := float64(d.queue.Len()) / float64(d.config.ChannelSize)
		if !state.backpressureActive && usage >= d.config.HighWaterMark {
			state.backpressureActive = true
			d.stats.setBackpressure(true)
			log.Warn().Uint32("stream", env.StreamID).Float64("usage", usage).Msg("pipeline: backpressure activated")
		} else if state.backpressureActive && usage <= d.config.LowWaterMark {
			state.backpressureActive = false
			d.stats.setBackpressure(false)
			log.Debug().Uint32("stream", env.StreamID).Float64("usage", usage).Msg("pipeline: backpressure released")
		}
		if state.backpressureActive {
			d.mu.Unlock()
			d.stats.addDroppedBackpressure()
			capture.ReleaseFrame(env.Frame)
			return
		}
	}
	priority := state.priority
	d.mu.Unlock()

	d.enqueue(dispatchFrame{
		frame:      env.Frame,
		streamID:   env.StreamID,
		priority:   priority,
		enqueuedAt: time.Now(),
	})

	d.stats.addDispatchTime(time.Since(start))
}

func (d *Dispatcher) enqueue(f dispatchFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.config.PriorityDispatch {
		inserted := false
		for e := d.queue.Front(); e != nil; e = e.Next() {
			if f.priority > e.Value.(dispatchFrame).priority {
				d.queue.InsertBefore(f, e)
				inserted = true
				break
			}
		}
		if !inserted {
			d.queue.PushBack(f)
		}
	} else {
		d.queue.PushBack(f)
	}
	d.stats.setActiveStreams(len(d.streams))
}

func (d *Dispatcher) drain(ctx context.Context, output chan<- capture.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.queue.Len() > 0 {
		front := d.queue.Front()
		df := front.Value.(dispatchFrame)

		if df.age() > d.config.MaxFrameAge {
			d.queue.Remove(front)
			d.stats.addDroppedAge()
			capture.ReleaseFrame(df.frame)
			continue
		}

		select {
		case output <- df.frame:
			d.queue.Remove(front)
			d.stats.addDispatched()
		default:
			// downstream full, stop and retry on next incoming frame
			return nil
		}
		_ = ctx
	}
	return nil
}

func (d *Dispatcher) Stats() DispatcherStats { return d.stats.snapshot() }
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}
func (d *Dispatcher) ActiveStreamCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

// atomicStats guards DispatcherStats behind its own mutex so readers
// (Stats()) never block the hot dispatch path for long.
type atomicStats struct {
	mu sync.Mutex
	s  DispatcherStats
}

func (a *atomicStats) addReceived() {
	a.mu.Lock()
	a.s.FramesReceived++
	a.mu.Unlock()
}
func (a *atomicStats) addDispatched() {
	a.mu.Lock()
	a.s.FramesDispatched++
	a.mu.Unlock()
}
func (a *atomicStats) addDroppedAge() {
	a.mu.Lock()
	a.s.FramesDroppedAge++
	a.mu.Unlock()
}
func (a *atomicStats) addDroppedBackpressure() {
	a.mu.Lock()
	a.s.FramesDroppedBackpressure++
	a.mu.Unlock()
}
func (a *atomicStats) addDispatchTime(d time.Duration) {
	a.mu.Lock()
	a.s.TotalDispatchTime += d
	a.mu.Unlock()
}
func (a *atomicStats) setBackpressure(v bool) {
	a.mu.Lock()
	a.s.BackpressureActive = v
	a.mu.Unlock()
}
func (a *atomicStats) setActiveStreams(n int) {
	a.mu.Lock()
	a.s.ActiveStreams = n
	a.mu.Unlock()
}
func (a *atomicStats) snapshot() DispatcherStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.s
}
