package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capture"
)

func TestDefaultProcessorConfig(t *testing.T) {
	cfg := DefaultProcessorConfig()
	assert.Equal(t, DefaultTargetFPS, cfg.TargetFPS)
	assert.True(t, cfg.DropOnFullQueue)
}

func TestProcessorDropsOldFrames(t *testing.T) {
	cfg := DefaultProcessorConfig()
	cfg.MaxFrameAge = time.Millisecond
	p := NewProcessor(cfg, 4, 4)

	input := make(chan capture.Frame, 1)
	output := make(chan BitmapUpdate, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	input <- capture.Frame{
		SequenceNo: 1,
		Width:      4, Height: 4, Stride: 16,
		Format:     capture.FormatRGBx,
		Pixels:     make([]byte, 64),
		CapturedAt: time.Now().Add(-time.Second),
	}
	close(input)

	_ = p.Run(ctx, input, output)

	assert.Equal(t, uint64(1), p.Stats().FramesDroppedOld)
}

func TestProcessorForwardsFreshFrame(t *testing.T) {
	p := NewProcessor(DefaultProcessorConfig(), 4, 4)

	input := make(chan capture.Frame, 1)
	output := make(chan BitmapUpdate, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pixels := make([]byte, 64)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	input <- capture.Frame{
		SequenceNo: 1,
		Width:      4, Height: 4, Stride: 16,
		Format:     capture.FormatRGBx,
		Pixels:     pixels,
		CapturedAt: time.Now(),
	}
	close(input)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, input, output) }()

	select {
	case update := <-output:
		assert.NotEmpty(t, update.Rectangles)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for processed frame")
	}
	<-done
}
