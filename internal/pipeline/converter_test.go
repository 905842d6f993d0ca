package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capture"
)

func TestStrideCalculation(t *testing.T) {
	assert.Equal(t, 7680, calculateRDPStride(1920, FormatBgrX32))
	assert.Equal(t, 7744, calculateRDPStride(1921, FormatBgrX32))
	assert.Equal(t, 5760, calculateRDPStride(1920, FormatBgr24))
}

func TestOutputBufferPoolReuse(t *testing.T) {
	pool := newOutputBufferPool(4)

	buf1 := pool.acquire(1024)
	assert.Len(t, buf1, 1024)

	buf2 := pool.acquire(2048)
	assert.Len(t, buf2, 2048)

	pool.release(buf1)
	buf3 := pool.acquire(1024)
	assert.Len(t, buf3, 1024)
}

func TestConverterSkipsIdenticalFrame(t *testing.T) {
	conv := NewConverter(4, 4)
	pixels := make([]byte, 4*4*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}

	frame := capture.Frame{
		Width: 4, Height: 4, Stride: 16,
		Format: capture.FormatRGBx, Pixels: pixels,
		CapturedAt: time.Now(), SequenceNo: 1,
	}

	update, err := conv.ConvertFrame(frame)
	require.NoError(t, err)
	assert.NotEmpty(t, update.Rectangles)

	frame.SequenceNo = 2
	update2, err := conv.ConvertFrame(frame)
	require.NoError(t, err)
	assert.Empty(t, update2.Rectangles)
}

func TestConverterRejectsEmptyFrame(t *testing.T) {
	conv := NewConverter(4, 4)
	_, err := conv.ConvertFrame(capture.Frame{})
	assert.Error(t, err)
}
