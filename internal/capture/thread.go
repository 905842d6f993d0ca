// Package capture implements the Capture Pipeline's capture thread
// (spec §4.D): a PipeWire-owning worker confined to one OS thread,
// driven by a bounded command channel and delivering frames over a
// bounded frame channel, so nothing downstream needs to reason about
// thread-affinity. Grounded on original_source/src/pipewire/pw_thread.rs's
// dedicated-thread architecture, adapted from Rust's MainLoop/Context/
// Core (explicitly !Send) to Go's go-gst bindings, whose cgo-backed
// GLib main loop and buffer callbacks are likewise expected to run from
// a single, consistent OS thread — the teacher's GstPipeline assumes
// this implicitly by calling SetState/watchBus from one goroutine; this
// package makes the confinement explicit with runtime.LockOSThread so a
// second Thread (second monitor) never shares an OS thread with the
// first.
package capture

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/metrics"
)

var gstInitOnce sync.Once

func initGStreamer() {
	gstInitOnce.Do(func() { gst.Init(nil) })
}

// commandQueueSize and frameQueueSize mirror pw_thread.rs's channel
// capacities: 100 for commands (low-frequency control-plane traffic)
// and 256 for frames (sized for a 60fps capture / 30fps downstream
// consumption ratio needing burst headroom, per pw_thread.rs's comment).
const (
	commandQueueSize = 100
	frameQueueSize   = 256
)

// Thread owns one GStreamer pipeline bound to one PipeWire node, on its
// own OS thread. Frames() and the command methods are safe to call from
// any goroutine; only run() touches the pipeline/appsink directly.
type Thread struct {
	commands chan command
	frames   chan Frame
	done     chan struct{}

	running    atomic.Bool
	sequenceNo atomic.Uint64
}

// NewThread spawns the dedicated capture thread and blocks until the
// pipeline reaches PLAYING or the start fails, returning the started
// Thread. ctx governs only the startup wait; the Thread's own lifetime
// is controlled by Close.
func NewThread(ctx context.Context, config StreamConfig) (*Thread, error) {
	t := &Thread{
		commands: make(chan command, commandQueueSize),
		frames:   make(chan Frame, frameQueueSize),
		done:     make(chan struct{}),
	}

	started := make(chan error, 1)
	go t.run(config, started)

	select {
	case err := <-started:
		if err != nil {
			return nil, err
		}
		return t, nil
	case <-ctx.Done():
		t.commands <- cmdShutdown{}
		return nil, ctx.Err()
	}
}

// run is the thread body. It holds the OS thread locked for its whole
// life and unlocks it on return. It returns on Shutdown, and also when
// the pipeline fails to build or reach PLAYING, or the bus reports EOS
// or an error.
func (t *Thread) run(config StreamConfig, started chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	initGStreamer()

	pipeline, appsink, err := buildPipeline(config)
	if err != nil {
		started <- err
		return
	}
	defer pipeline.SetState(gst.StateNull)

	appsink.SetProperty("emit-signals", true)
	appsink.SetProperty("max-buffers", uint(4))
	appsink.SetProperty("drop", true)
	appsink.SetProperty("sync", false)
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: t.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		started <- fmt.Errorf("capture: pipeline to playing: %w", err)
		return
	}
	t.running.Store(true)
	started <- nil

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case cmd := <-t.commands:
			switch c := cmd.(type) {
			case cmdShutdown:
				t.running.Store(false)
				close(t.frames)
				return
			case cmdStop:
				t.running.Store(false)
				pipeline.SetState(gst.StatePaused)
				c.response <- nil
			case cmdStart:
				pipeline.SetState(gst.StatePlaying)
				t.running.Store(true)
				c.response <- nil
			case cmdUpdateCursorMode:
				// Cursor mode is negotiated at portal SelectSources time
				// (internal/strategy), not renegotiable mid-stream on the
				// PipeWire side; acknowledge so callers don't block.
				c.response <- nil
			}
		default:
		}

		if bus == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		msg := bus.TimedPop(gst.ClockTime(50 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			log.Info().Msg("capture: pipeline EOS")
			t.running.Store(false)
			close(t.frames)
			return
		case gst.MessageError:
			if gerr := msg.ParseError(); gerr != nil {
				log.Error().Err(gerr).Msg("capture: pipeline error")
			}
			t.running.Store(false)
			close(t.frames)
			return
		case gst.MessageWarning:
			if gwarn := msg.ParseWarning(); gwarn != nil {
				log.Warn().Err(gwarn).Msg("capture: pipeline warning")
			}
		}
	}
}

func buildPipeline(config StreamConfig) (*gst.Pipeline, *app.Sink, error) {
	desc := fmt.Sprintf(
		"pipewiresrc path=%d ! video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1 ! appsink name=videosink",
		config.NodeID, config.Width, config.Height, config.Framerate,
	)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, nil, fmt.Errorf("capture: parse pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("videosink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, nil, fmt.Errorf("capture: get videosink element: %w", err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		pipeline.SetState(gst.StateNull)
		return nil, nil, fmt.Errorf("capture: videosink is not an appsink")
	}
	return pipeline, sink, nil
}

func (t *Thread) onNewSample(sink *app.Sink) gst.FlowReturn {
	if !t.running.Load() {
		return gst.FlowEOS
	}
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	defer buffer.Unmap()

	pixels := acquireBuffer(len(mapInfo.Bytes()))
	copy(pixels, mapInfo.Bytes())

	caps := sample.GetCaps()
	width, height, stride := capsDimensions(caps, len(pixels))

	frame := Frame{
		Width:      width,
		Height:     height,
		Stride:     stride,
		Format:     FormatNV12,
		Pixels:     pixels,
		CapturedAt: time.Now(),
		SequenceNo: t.sequenceNo.Add(1),
	}

	select {
	case t.frames <- frame:
		metrics.Capture.FramesCaptured.Inc()
	default:
		// Frame channel full: drop rather than block the GStreamer
		// thread, matching the teacher's onNewSample non-blocking send.
		releaseBuffer(pixels)
		metrics.Capture.FramesDropped.Inc()
		log.Debug().Msg("capture: frame channel full, dropping frame")
	}
	return gst.FlowOK
}

func capsDimensions(caps *gst.Caps, dataLen int) (width, height, stride int) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, 0
	}
	s := caps.GetStructureAt(0)
	if s == nil {
		return 0, 0, 0
	}
	w, _ := s.GetValue("width")
	h, _ := s.GetValue("height")
	width, _ = w.(int)
	height, _ = h.(int)
	if height > 0 {
		stride = dataLen / height
	}
	return width, height, stride
}

// Frames returns the channel frames are delivered on. It is closed when
// the capture thread stops (normally or due to pipeline error).
func (t *Thread) Frames() <-chan Frame { return t.frames }

// send delivers a command to the capture thread and blocks until it is
// enqueued (not until it completes — call Wait-style response channels
// for that, as cmdStop/cmdStart/cmdUpdateCursorMode all provide).
func (t *Thread) send(cmd command) { t.commands <- cmd }

func (t *Thread) Stop(ctx context.Context) error {
	resp := make(chan error, 1)
	t.send(cmdStop{response: resp})
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Thread) Resume(ctx context.Context) error {
	resp := make(chan error, 1)
	t.send(cmdStart{response: resp})
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the capture thread down and waits for its goroutine to
// exit, so the caller knows the GStreamer pipeline has released its
// PipeWire connection before returning.
func (t *Thread) Close() {
	select {
	case t.commands <- cmdShutdown{}:
	default:
	}
	<-t.done
}

func (t *Thread) IsRunning() bool { return t.running.Load() }
