package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capture"
)

func TestDefaultDispatcherConfig(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	assert.Equal(t, DefaultChannelSize, cfg.ChannelSize)
	assert.True(t, cfg.PriorityDispatch)
	assert.True(t, cfg.EnableBackpressure)
}

func TestDispatcherStreamRegistration(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig())

	d.RegisterStream(0, PriorityHigh)
	assert.Equal(t, 1, d.ActiveStreamCount())

	d.RegisterStream(1, PriorityNormal)
	assert.Equal(t, 2, d.ActiveStreamCount())

	d.UnregisterStream(0)
	assert.Equal(t, 1, d.ActiveStreamCount())
}

func TestDispatcherRunDeliversFrames(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig())
	d.RegisterStream(0, PriorityNormal)

	input := make(chan FrameEnvelope, 4)
	output := make(chan capture.Frame, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, input, output) }()

	input <- FrameEnvelope{StreamID: 0, Frame: capture.Frame{SequenceNo: 1, Pixels: []byte{1}}}
	close(input)

	select {
	case f := <-output:
		assert.Equal(t, uint64(1), f.SequenceNo)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched frame")
	}

	cancel()
	<-done
}

func TestDispatchFrameAge(t *testing.T) {
	df := dispatchFrame{
		frame:      capture.Frame{SequenceNo: 1},
		enqueuedAt: time.Now().Add(-200 * time.Millisecond),
	}
	assert.Greater(t, df.age(), 150*time.Millisecond)
}

func TestDispatcherDropsStaleFramesOnDrain(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	cfg.MaxFrameAge = time.Millisecond
	d := NewDispatcher(cfg)

	d.queue.PushBack(dispatchFrame{
		frame:      capture.Frame{SequenceNo: 1, Pixels: []byte{1}},
		enqueuedAt: time.Now().Add(-10 * time.Millisecond),
	})

	output := make(chan capture.Frame, 1)
	require.NoError(t, d.drain(context.Background(), output))

	assert.Equal(t, uint64(1), d.Stats().FramesDroppedAge)
	select {
	case <-output:
		t.Fatal("stale frame should not have been dispatched")
	default:
	}
}
