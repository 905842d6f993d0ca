package capture

import "time"

// PixelFormat names the GStreamer/PipeWire buffer layout a Frame carries.
// The pipeline's Converter (internal/pipeline) converts FormatYUY2 and
// FormatNV12 to BGRx in software (BT.601); FormatRGBx and any other
// value are copied row by row with the pixel bytes unchanged, only
// re-strided.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatRGBx
	FormatYUY2
	FormatNV12
)

// DamageRegion is a compositor-reported changed rectangle attached to a
// captured frame, when the portal/PipeWire stream surfaces one. Defined
// here (rather than in internal/pipeline) so capture has no dependency
// on the conversion package that consumes it.
type DamageRegion struct {
	X, Y, Width, Height int
}

// Frame is one captured video buffer, handed from the capture thread to
// the pipeline's Dispatcher over the frame channel. Pixels is owned by
// the capture thread until the frame is sent; after that the receiver
// owns it (no further writes happen on this thread's side).
type Frame struct {
	Width, Height int
	Stride        int
	Format        PixelFormat
	Pixels        []byte
	Damage        []DamageRegion
	CapturedAt    time.Time
	SequenceNo    uint64
	// Keyframe is meaningful only for pre-encoded streams (unused by the
	// raw-pixel capture path this server takes, kept for parity with the
	// teacher's VideoFrame.IsKeyframe since an encoded side-channel may
	// reuse the same Frame type later).
	Keyframe bool
}
