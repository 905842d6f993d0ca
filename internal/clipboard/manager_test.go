package clipboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/rdpio"
)

type fakeBridge struct {
	mu sync.Mutex

	enabled        bool
	announcedMime  []string
	writtenSerial  []uint32
	writtenData    map[uint32][]byte
	cancelled      []uint32
	readData       map[string][]byte
	onTransfer     func(mimeType string, serial uint32)
}

func (f *fakeBridge) enable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
	return nil
}

func (f *fakeBridge) read(ctx context.Context, mimeType string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readData[mimeType], nil
}

func (f *fakeBridge) announce(ctx context.Context, mimeTypes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announcedMime = mimeTypes
	return nil
}

func (f *fakeBridge) writeSelection(ctx context.Context, serial uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writtenData == nil {
		f.writtenData = make(map[uint32][]byte)
	}
	f.writtenSerial = append(f.writtenSerial, serial)
	f.writtenData[serial] = data
	return nil
}

func (f *fakeBridge) cancelSelection(ctx context.Context, serial uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, serial)
	return nil
}

func (f *fakeBridge) subscribeTransfers(ctx context.Context, onTransfer func(mimeType string, serial uint32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTransfer = onTransfer
	return nil
}

func (f *fakeBridge) subscribeOwnerChanged(ctx context.Context, onChanged func(mimeTypes []string)) error {
	return nil
}

func (f *fakeBridge) written(serial uint32) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.writtenData[serial]
	return d, ok
}

func (f *fakeBridge) wasCancelled(serial uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.cancelled {
		if s == serial {
			return true
		}
	}
	return false
}

type fakeRDPSink struct {
	mu sync.Mutex

	initiatedCopy     []uint32
	initiatedPaste    []uint32
	delivered         []byte
	deliveredErr      int
	fileContentsReqs  []rdpio.FileContentsRequest
	fileContentsResps []rdpio.FileContentsResponse
}

func (s *fakeRDPSink) SendInitiateCopy(ctx context.Context, formats []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiatedCopy = formats
	return nil
}

func (s *fakeRDPSink) SendInitiatePaste(ctx context.Context, formatID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiatedPaste = append(s.initiatedPaste, formatID)
	return nil
}

func (s *fakeRDPSink) SendFormatData(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = data
	return nil
}

func (s *fakeRDPSink) SendFormatDataError(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveredErr++
	return nil
}

func (s *fakeRDPSink) SendLockClipboard(ctx context.Context, clipDataID uint32) error   { return nil }
func (s *fakeRDPSink) SendUnlockClipboard(ctx context.Context, clipDataID uint32) error { return nil }

func (s *fakeRDPSink) SendFileContentsRequest(ctx context.Context, req rdpio.FileContentsRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileContentsReqs = append(s.fileContentsReqs, req)
	return nil
}

func (s *fakeRDPSink) SendFileContentsResponse(ctx context.Context, resp rdpio.FileContentsResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileContentsResps = append(s.fileContentsResps, resp)
	return nil
}

type fakeRDPSource struct{}

func (s *fakeRDPSource) RequestFormatList(ctx context.Context) ([]uint32, error) {
	return []uint32{CFUnicodeText}, nil
}

func runManager(t *testing.T, m *Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return cancel
}

func TestManagerHandlesRDPFormatList(t *testing.T) {
	b := &fakeBridge{}
	sink := &fakeRDPSink{}
	source := &fakeRDPSource{}

	m := NewManager(DefaultConfig(), b, sink, source)
	cancel := runManager(t, m)
	defer cancel()

	m.Submit(Event{Kind: EventRDPFormatList, Formats: []Format{UnicodeTextFormat()}})

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.announcedMime != nil
	}, 500*time.Millisecond, 5*time.Millisecond)
	assert.Contains(t, b.announcedMime, "text/plain")
}

func TestManagerHandlesPortalFormatsAvailable(t *testing.T) {
	b := &fakeBridge{}
	sink := &fakeRDPSink{}
	source := &fakeRDPSource{}

	m := NewManager(DefaultConfig(), b, sink, source)
	cancel := runManager(t, m)
	defer cancel()

	m.Submit(Event{Kind: EventPortalFormatsAvailable, MimeTypes: []string{"text/plain"}})

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.initiatedCopy != nil
	}, 500*time.Millisecond, 5*time.Millisecond)
	assert.Contains(t, sink.initiatedCopy, uint32(CFUnicodeText))
}

func TestManagerHandlesRDPDataRequest(t *testing.T) {
	b := &fakeBridge{readData: map[string][]byte{"text/plain": []byte("copied")}}
	sink := &fakeRDPSink{}
	source := &fakeRDPSource{}

	m := NewManager(DefaultConfig(), b, sink, source)
	cancel := runManager(t, m)
	defer cancel()

	m.Submit(Event{Kind: EventRDPDataRequest, FormatID: CFUnicodeText})

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.delivered != nil
	}, 500*time.Millisecond, 5*time.Millisecond)

	decoded, err := utf16LEToText(sink.delivered)
	require.NoError(t, err)
	assert.Equal(t, "copied", string(decoded))
}

func TestManagerPasteRoundTrip(t *testing.T) {
	b := &fakeBridge{}
	sink := &fakeRDPSink{}
	source := &fakeRDPSource{}

	m := NewManager(DefaultConfig(), b, sink, source)
	cancel := runManager(t, m)
	defer cancel()

	m.Submit(Event{Kind: EventPortalSelectionTransfer, MimeType: "text/plain", Serial: 7})

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.initiatedPaste) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)

	encoded, err := textToUTF16LE([]byte("pasted"))
	require.NoError(t, err)
	m.Submit(Event{Kind: EventRDPDataResponse, Data: encoded})

	require.Eventually(t, func() bool {
		_, ok := b.written(7)
		return ok
	}, 500*time.Millisecond, 5*time.Millisecond)

	data, _ := b.written(7)
	assert.Equal(t, "pasted", string(data))
}

func TestManagerPasteDedupWindow(t *testing.T) {
	b := &fakeBridge{}
	sink := &fakeRDPSink{}
	source := &fakeRDPSource{}

	cfg := DefaultConfig()
	cfg.PasteDedupWindow = time.Hour
	m := NewManager(cfg, b, sink, source)
	cancel := runManager(t, m)
	defer cancel()

	m.Submit(Event{Kind: EventPortalSelectionTransfer, MimeType: "text/plain", Serial: 1})
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.initiatedPaste) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)

	m.Submit(Event{Kind: EventPortalSelectionTransfer, MimeType: "text/plain", Serial: 2})
	require.Eventually(t, func() bool { return b.wasCancelled(2) }, 500*time.Millisecond, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.initiatedPaste, 1)
}

func TestManagerHandlesRDPDataError(t *testing.T) {
	b := &fakeBridge{}
	sink := &fakeRDPSink{}
	source := &fakeRDPSource{}

	m := NewManager(DefaultConfig(), b, sink, source)
	cancel := runManager(t, m)
	defer cancel()

	m.Submit(Event{Kind: EventPortalSelectionTransfer, MimeType: "text/plain", Serial: 9})
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.initiatedPaste) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)

	m.Submit(Event{Kind: EventRDPDataError})
	require.Eventually(t, func() bool { return b.wasCancelled(9) }, 500*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 0, m.pending.len())
}
