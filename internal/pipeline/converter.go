package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capture"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/metrics"
)

// rdpBitmapAlignment matches converter.rs's RDP_BITMAP_ALIGNMENT: RDP
// bitmap rows are padded to a 64-byte boundary.
const rdpBitmapAlignment = 64

// bufferPoolSize matches converter.rs's BUFFER_POOL_SIZE.
const bufferPoolSize = 8

// RdpPixelFormat is the output format written into BitmapData, one of
// the handful RDP bitmap updates actually carry.
type RdpPixelFormat int

const (
	FormatBgrX32 RdpPixelFormat = iota
	FormatBgr24
)

func (f RdpPixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBgr24:
		return 3
	default:
		return 4
	}
}

// BitmapData is one changed region, converted and ready for RDP
// transmission (bitmap cache / surface commands are a protocol-layer
// concern, out of scope for this package, see internal/rdpio).
type BitmapData struct {
	Rect       Rect
	Format     RdpPixelFormat
	Data       []byte
	Compressed bool
}

// BitmapUpdate bundles the regions produced from a single source frame.
// An empty Rectangles means the frame produced no visible change and
// should be dropped by the caller.
type BitmapUpdate struct {
	Rectangles []BitmapData
}

// ConversionStats is a snapshot of Converter throughput counters.
type ConversionStats struct {
	FramesConverted  uint64
	BytesProcessed   uint64
	ConversionTime   time.Duration
}

func (s ConversionStats) AvgConversionTime() time.Duration {
	if s.FramesConverted == 0 {
		return 0
	}
	return s.ConversionTime / time.Duration(s.FramesConverted)
}

func (s ConversionStats) ThroughputMBps() float64 {
	if s.ConversionTime == 0 {
		return 0
	}
	return (float64(s.BytesProcessed) / 1_048_576.0) / s.ConversionTime.Seconds()
}

type pooledBuffer struct {
	data     []byte
	lastUsed time.Time
}

// outputBufferPool recycles converted-bitmap byte slices, distinct
// from internal/capture's pool, which recycles raw capture buffers —
// grounded on converter.rs's BufferPool, a fixed-size pool with
// capacity-based reuse and LRU eviction once full.
type outputBufferPool struct {
	mu      sync.Mutex
	buffers []*pooledBuffer
}

func newOutputBufferPool(size int) *outputBufferPool {
	return &outputBufferPool{buffers: make([]*pooledBuffer, 0, size)}
}

func (p *outputBufferPool) acquire(size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range p.buffers {
		if b != nil && cap(b.data) >= size {
			p.buffers = append(p.buffers[:i], p.buffers[i+1:]...)
			data := b.data[:size]
			for j := range data {
				data[j] = 0
			}
			return data
		}
	}
	aligned := alignToBoundary(size, rdpBitmapAlignment)
	return make([]byte, size, aligned)
}

func (p *outputBufferPool) release(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := &pooledBuffer{data: buf[:0], lastUsed: time.Now()}
	if len(p.buffers) < cap(p.buffers) {
		p.buffers = append(p.buffers, entry)
		return
	}
	oldest := 0
	for i, b := range p.buffers {
		if b == nil || b.lastUsed.Before(p.buffers[oldest].lastUsed) {
			oldest = i
		}
	}
	p.buffers[oldest] = entry
}

func alignToBoundary(value, boundary int) int {
	return (value + boundary - 1) &^ (boundary - 1)
}

func calculateRDPStride(width int, format RdpPixelFormat) int {
	return alignToBoundary(width*format.BytesPerPixel(), rdpBitmapAlignment)
}

// Converter turns raw captured frames into damage-tracked BitmapUpdates,
// grounded on converter.rs's BitmapConverter.
type Converter struct {
	mu            sync.Mutex
	pool          *outputBufferPool
	damage        *damageTracker
	lastFrameHash uint64
	width, height int
	stats         ConversionStats
}

func NewConverter(width, height int) *Converter {
	return &Converter{
		pool:   newOutputBufferPool(bufferPoolSize),
		damage: newDamageTracker(width, height),
		width:  width,
		height: height,
	}
}

// ConvertFrame converts one captured Frame into a BitmapUpdate. An
// unchanged frame (identical FNV-1a sample hash to the previous one)
// yields an empty BitmapUpdate rather than an error.
func (c *Converter) ConvertFrame(f capture.Frame) (BitmapUpdate, error) {
	start := time.Now()

	if f.Width <= 0 || f.Height <= 0 || len(f.Pixels) == 0 {
		return BitmapUpdate{}, fmt.Errorf("pipeline: invalid frame %d (%dx%d, %d bytes)", f.SequenceNo, f.Width, f.Height, len(f.Pixels))
	}

	hash := sampledFNV1a(f.Pixels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if hash == c.lastFrameHash {
		return BitmapUpdate{}, nil
	}
	c.lastFrameHash = hash

	if len(f.Damage) > 0 {
		for _, d := range f.Damage {
			c.damage.addDamage(Rect{Left: d.X, Top: d.Y, Right: d.X + d.Width, Bottom: d.Y + d.Height})
		}
	} else {
		c.damage.forceFullUpdate()
		metrics.Capture.FullFrames.Inc()
	}
	regions := c.damage.damageRegions()
	metrics.Capture.DamageRegions.Add(int64(len(regions)))

	rdpFormat := FormatBgrX32
	stride := calculateRDPStride(f.Width, rdpFormat)
	outSize := stride * f.Height

	buf := c.pool.acquire(outSize)
	convertFrameData(f, buf, stride)

	rectangles := make([]BitmapData, 0, len(regions))
	for _, r := range regions {
		data, err := extractRegion(buf, r, f.Width, f.Height, stride, rdpFormat)
		if err != nil {
			c.pool.release(buf)
			return BitmapUpdate{}, err
		}
		rectangles = append(rectangles, BitmapData{Rect: r, Format: rdpFormat, Data: data})
	}

	c.stats.FramesConverted++
	c.stats.BytesProcessed += uint64(len(f.Pixels))
	c.stats.ConversionTime += time.Since(start)

	c.pool.release(buf)
	c.damage.reset()

	return BitmapUpdate{Rectangles: rectangles}, nil
}

func extractRegion(buffer []byte, region Rect, width, height, stride int, format RdpPixelFormat) ([]byte, error) {
	bpp := format.BytesPerPixel()
	regionWidth := region.Width()
	out := make([]byte, 0, regionWidth*region.Height()*bpp)

	for y := region.Top; y < region.Bottom; y++ {
		if y >= height {
			break
		}
		srcOffset := y*stride + region.Left*bpp
		rowSize := regionWidth * bpp
		if srcOffset+rowSize > len(buffer) {
			return nil, fmt.Errorf("pipeline: region extraction out of bounds: need %d, have %d", srcOffset+rowSize, len(buffer))
		}
		out = append(out, buffer[srcOffset:srcOffset+rowSize]...)
	}
	return out, nil
}

// sampledFNV1a hashes every 64th byte for a fast, approximate
// change-detection signature, matching converter.rs's calculate_frame_hash.
func sampledFNV1a(data []byte) uint64 {
	var hash uint64 = 0xcbf29ce484222325
	for i := 0; i < len(data); i += 64 {
		hash ^= uint64(data[i])
		hash *= 0x100000001b3
	}
	return hash
}

func (c *Converter) ForceFullUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.damage.forceFullUpdate()
}

func (c *Converter) Stats() ConversionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
