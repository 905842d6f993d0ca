package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capture"
)

// Numeric constants carried over unchanged from processor.rs.
const (
	DefaultTargetFPS      = 30
	ProcessorMaxFrameAgeMS = 100
)

// ProcessorConfig mirrors processor.rs's ProcessorConfig.
type ProcessorConfig struct {
	TargetFPS       int
	MaxQueueDepth   int
	MaxFrameAge     time.Duration
	DropOnFullQueue bool
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		TargetFPS:       DefaultTargetFPS,
		MaxQueueDepth:   DefaultChannelSize,
		MaxFrameAge:     ProcessorMaxFrameAgeMS * time.Millisecond,
		DropOnFullQueue: true,
	}
}

// ProcessingStats is a snapshot of Processor counters.
type ProcessingStats struct {
	FramesReceived        uint64
	FramesProcessed       uint64
	FramesDroppedQueueFull uint64
	FramesDroppedOld       uint64
	FramesSkippedNoChange  uint64
	TotalProcessingTime    time.Duration
}

func (s ProcessingStats) DropRate() float64 {
	if s.FramesReceived == 0 {
		return 0
	}
	return float64(s.FramesDroppedQueueFull+s.FramesDroppedOld) / float64(s.FramesReceived)
}

// Processor sits between the Dispatcher and the RDP transport,
// rate-limiting to TargetFPS and handing frames to a Converter,
// grounded on processor.rs's FrameProcessor.
type Processor struct {
	config        ProcessorConfig
	converter     *Converter
	lastFrameTime time.Time
	stats         ProcessingStats
}

func NewProcessor(config ProcessorConfig, width, height int) *Processor {
	return &Processor{
		config:    config,
		converter: NewConverter(width, height),
	}
}

// Run reads frames from input (already dispatched by a Dispatcher)
// until input closes or ctx is cancelled, sending non-empty
// BitmapUpdates to output.
func (p *Processor) Run(ctx context.Context, input <-chan capture.Frame, output chan<- BitmapUpdate) error {
	log.Debug().Int("target_fps", p.config.TargetFPS).Msg("pipeline: processor started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-input:
			if !ok {
				return nil
			}
			p.stats.FramesReceived++

			if len(input) >= p.config.MaxQueueDepth && p.config.DropOnFullQueue {
				log.Warn().Int("depth", len(input)).Uint64("frame", frame.SequenceNo).Msg("pipeline: queue full, dropping frame")
				p.stats.FramesDroppedQueueFull++
				capture.ReleaseFrame(frame)
				continue
			}

			if time.Since(frame.CapturedAt) > p.config.MaxFrameAge {
				p.stats.FramesDroppedOld++
				capture.ReleaseFrame(frame)
				continue
			}

			if !p.shouldProcess() {
				capture.ReleaseFrame(frame)
				continue
			}

			update, err := p.converter.ConvertFrame(frame)
			capture.ReleaseFrame(frame)
			if err != nil {
				log.Warn().Err(err).Msg("pipeline: frame conversion failed")
				continue
			}
			if len(update.Rectangles) == 0 {
				p.stats.FramesSkippedNoChange++
				continue
			}

			select {
			case output <- update:
				p.stats.FramesProcessed++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (p *Processor) shouldProcess() bool {
	if p.lastFrameTime.IsZero() {
		p.lastFrameTime = time.Now()
		return true
	}
	minInterval := time.Second / time.Duration(p.config.TargetFPS)
	if time.Since(p.lastFrameTime) >= minInterval {
		p.lastFrameTime = time.Now()
		return true
	}
	return false
}

func (p *Processor) Stats() ProcessingStats        { return p.stats }
func (p *Processor) ConverterStats() ConversionStats { return p.converter.Stats() }
func (p *Processor) ForceFullUpdate()               { p.converter.ForceFullUpdate() }
