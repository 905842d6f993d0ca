package clipboard

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/errs"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/metrics"
)

// TransferConfig bounds chunked clipboard payload transfer, grounded
// on transfer.rs's TransferConfig.
type TransferConfig struct {
	ChunkSize       int
	MaxDataSize     int64
	Timeout         time.Duration
	VerifyIntegrity bool
}

func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		ChunkSize:       64 * 1024,
		MaxDataSize:     16 * 1024 * 1024,
		Timeout:         30 * time.Second,
		VerifyIntegrity: true,
	}
}

// TransferState is the lifecycle of one chunked transfer, grounded on
// transfer.rs's TransferState enum.
type TransferState int

const (
	TransferPending TransferState = iota
	TransferInProgress
	TransferCompleted
	TransferCancelled
	TransferFailed
)

func (s TransferState) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferInProgress:
		return "in-progress"
	case TransferCompleted:
		return "completed"
	case TransferCancelled:
		return "cancelled"
	case TransferFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress reports how much of a transfer has completed.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
	StartedAt        time.Time
	now              func() time.Time
}

func (p Progress) Percentage() float64 {
	if p.TotalBytes == 0 {
		return 0
	}
	return float64(p.BytesTransferred) / float64(p.TotalBytes) * 100
}

func (p Progress) elapsed() time.Duration {
	now := p.now
	if now == nil {
		now = time.Now
	}
	return now().Sub(p.StartedAt)
}

func (p Progress) SpeedBps() float64 {
	elapsed := p.elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.BytesTransferred) / elapsed
}

func (p Progress) ETA() time.Duration {
	speed := p.SpeedBps()
	if speed <= 0 {
		return 0
	}
	remaining := float64(p.TotalBytes - p.BytesTransferred)
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining/speed) * time.Second
}

// Handle lets a caller observe progress and cancel a transfer in
// flight, mirroring transfer.rs's TransferHandle.
type Handle struct {
	id       uint64
	cancel   chan struct{}
	cancelOnce sync.Once
	progress chan Progress
	result   chan error

	mu    sync.Mutex
	state TransferState
	last  Progress
}

func newHandle(id uint64, totalBytes int64) *Handle {
	return &Handle{
		id:       id,
		cancel:   make(chan struct{}),
		progress: make(chan Progress, 8),
		result:   make(chan error, 1),
		state:    TransferPending,
		last:     Progress{TotalBytes: totalBytes, StartedAt: time.Now()},
	}
}

func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancel) })
}

func (h *Handle) Progress() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Handle) State() TransferState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Wait blocks until the transfer finishes, is cancelled, or ctx is
// cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case err := <-h.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) setState(s TransferState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) setProgress(p Progress) {
	h.mu.Lock()
	h.last = p
	h.mu.Unlock()
	select {
	case h.progress <- p:
	default:
	}
}

// Engine chunks clipboard payloads across a bounded channel so large
// transfers (file copies, big images) don't block the D-Bus/RDP
// goroutines feeding them. Grounded on transfer.rs's TransferEngine.
// The engine computes no hash and does not read
// TransferConfig.VerifyIntegrity; CalculateHash and VerifyIntegrity
// below are standalone helpers.
type Engine struct {
	cfg    TransferConfig
	nextID uint64
	mu     sync.Mutex
}

func NewEngine(cfg TransferConfig) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) allocID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	return e.nextID
}

// SendChunked streams data over out in ChunkSize pieces; it computes no
// hash. Returns a Handle the caller can cancel or wait on; out is
// closed when the transfer ends for any reason.
func (e *Engine) SendChunked(ctx context.Context, data []byte, out chan<- []byte) (*Handle, error) {
	if int64(len(data)) > e.cfg.MaxDataSize {
		return nil, errs.New(errs.KindDataValidation, "clipboard.sendChunked",
			fmt.Errorf("payload %d bytes exceeds max transfer size %d", len(data), e.cfg.MaxDataSize))
	}

	h := newHandle(e.allocID(), int64(len(data)))
	h.setState(TransferInProgress)

	go func() {
		defer close(out)
		ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		sent := 0
		for sent < len(data) {
			end := sent + e.cfg.ChunkSize
			if end > len(data) {
				end = len(data)
			}
			chunk := data[sent:end]

			select {
			case out <- chunk:
				sent = end
				h.setProgress(Progress{BytesTransferred: int64(sent), TotalBytes: int64(len(data)), StartedAt: h.last.StartedAt})
			case <-h.cancel:
				h.setState(TransferCancelled)
				metrics.Clipboard.TransfersCancelled.Inc()
				h.result <- errs.New(errs.KindTransfer, "clipboard.sendChunked", fmt.Errorf("transfer cancelled"))
				return
			case <-ctx.Done():
				h.setState(TransferFailed)
				metrics.Clipboard.TransfersFailed.Inc()
				h.result <- errs.New(errs.KindTransfer, "clipboard.sendChunked", fmt.Errorf("transfer timed out: %w", ctx.Err()))
				return
			}
		}

		h.setState(TransferCompleted)
		metrics.Clipboard.TransfersCompleted.Inc()
		h.result <- nil
	}()

	return h, nil
}

// ReceiveChunked assembles chunks from in into a single buffer,
// enforcing MaxDataSize. The returned channel yields the assembled
// bytes (no hash) once in is closed; on cancel, timeout or an oversize
// transfer it is closed without a value.
func (e *Engine) ReceiveChunked(ctx context.Context, in <-chan []byte, expectedSize int64) (*Handle, <-chan []byte, error) {
	if expectedSize > e.cfg.MaxDataSize {
		return nil, nil, errs.New(errs.KindDataValidation, "clipboard.receiveChunked",
			fmt.Errorf("expected size %d exceeds max transfer size %d", expectedSize, e.cfg.MaxDataSize))
	}

	h := newHandle(e.allocID(), expectedSize)
	h.setState(TransferInProgress)
	result := make(chan []byte, 1)

	go func() {
		defer close(result)
		ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		buf := make([]byte, 0, expectedSize)
		for {
			select {
			case chunk, ok := <-in:
				if !ok {
					h.setState(TransferCompleted)
					metrics.Clipboard.TransfersCompleted.Inc()
					h.result <- nil
					result <- buf
					return
				}
				if int64(len(buf)+len(chunk)) > e.cfg.MaxDataSize {
					h.setState(TransferFailed)
					metrics.Clipboard.TransfersFailed.Inc()
					h.result <- errs.New(errs.KindDataValidation, "clipboard.receiveChunked",
						fmt.Errorf("transfer exceeded max size %d", e.cfg.MaxDataSize))
					return
				}
				buf = append(buf, chunk...)
				h.setProgress(Progress{BytesTransferred: int64(len(buf)), TotalBytes: expectedSize, StartedAt: h.last.StartedAt})
			case <-h.cancel:
				h.setState(TransferCancelled)
				metrics.Clipboard.TransfersCancelled.Inc()
				h.result <- errs.New(errs.KindTransfer, "clipboard.receiveChunked", fmt.Errorf("transfer cancelled"))
				return
			case <-ctx.Done():
				h.setState(TransferFailed)
				metrics.Clipboard.TransfersFailed.Inc()
				h.result <- errs.New(errs.KindTransfer, "clipboard.receiveChunked", fmt.Errorf("transfer timed out: %w", ctx.Err()))
				return
			}
		}
	}()

	return h, result, nil
}

// VerifyIntegrity reports whether data hashes to expectedHash
// (hex-encoded SHA-256, as exchanged alongside a transfer).
func VerifyIntegrity(data []byte, expectedHash string) bool {
	return CalculateHash(data) == expectedHash
}

func CalculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
