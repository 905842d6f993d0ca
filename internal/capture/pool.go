package capture

import "sync"

// bufferPool recycles the byte slices backing captured frames so the
// capture thread's hot path (onNewSample, once per frame at capture
// framerate) does not allocate on every sample. It is a single pool with
// no size classes: a pooled slice too small for the request is dropped
// and a fresh one of the requested size is allocated instead.
var bufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, defaultBufferCapacity)
	},
}

// defaultBufferCapacity covers a 1920x1080 NV12 frame (w*h*1.5) with
// slack; larger captures simply grow the slice on first use and that
// larger backing array is what gets pooled from then on.
const defaultBufferCapacity = 1920 * 1080 * 3 / 2

func acquireBuffer(size int) []byte {
	buf := bufferPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size)
	}
	return buf[:size]
}

func releaseBuffer(buf []byte) {
	if buf == nil {
		return
	}
	bufferPool.Put(buf[:0]) //nolint:staticcheck // reset length, keep capacity
}

// ReleaseFrame returns a Frame's backing buffer to the pool once a
// consumer (internal/pipeline's Dispatcher) is done with it. Frames
// that were copied elsewhere before this call are unaffected; callers
// must not touch Pixels afterward.
func ReleaseFrame(f Frame) {
	releaseBuffer(f.Pixels)
}
