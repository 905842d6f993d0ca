package clipboard

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendChunkedSplitsIntoChunks(t *testing.T) {
	cfg := DefaultTransferConfig()
	cfg.ChunkSize = 4
	e := NewEngine(cfg)

	data := []byte("0123456789")
	out := make(chan []byte, 16)

	h, err := e.SendChunked(context.Background(), data, out)
	require.NoError(t, err)

	var got []byte
	for chunk := range out {
		got = append(got, chunk...)
	}
	require.NoError(t, h.Wait(context.Background()))
	assert.Equal(t, data, got)
	assert.Equal(t, TransferCompleted, h.State())
}

func TestSendChunkedRejectsOversizedPayload(t *testing.T) {
	cfg := DefaultTransferConfig()
	cfg.MaxDataSize = 4
	e := NewEngine(cfg)

	_, err := e.SendChunked(context.Background(), []byte("too long"), make(chan []byte, 1))
	assert.Error(t, err)
}

func TestSendChunkedCancel(t *testing.T) {
	cfg := DefaultTransferConfig()
	cfg.ChunkSize = 1
	e := NewEngine(cfg)

	out := make(chan []byte)
	h, err := e.SendChunked(context.Background(), bytes.Repeat([]byte{'x'}, 1000), out)
	require.NoError(t, err)

	h.Cancel()
	err = h.Wait(context.Background())
	assert.Error(t, err)
	assert.Equal(t, TransferCancelled, h.State())
}

func TestReceiveChunkedAssemblesPayload(t *testing.T) {
	e := NewEngine(DefaultTransferConfig())

	in := make(chan []byte, 4)
	in <- []byte("abc")
	in <- []byte("def")
	close(in)

	h, result, err := e.ReceiveChunked(context.Background(), in, 6)
	require.NoError(t, err)

	select {
	case data := <-result:
		assert.Equal(t, []byte("abcdef"), data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for assembled payload")
	}
	require.NoError(t, h.Wait(context.Background()))
}

func TestCalculateHashAndVerifyIntegrity(t *testing.T) {
	data := []byte("integrity check")
	hash := CalculateHash(data)

	assert.True(t, VerifyIntegrity(data, hash))
	assert.False(t, VerifyIntegrity([]byte("tampered"), hash))
}

func TestProgressPercentageAndSpeed(t *testing.T) {
	p := Progress{
		BytesTransferred: 50,
		TotalBytes:       100,
		StartedAt:        time.Now().Add(-time.Second),
	}
	assert.InDelta(t, 50.0, p.Percentage(), 0.01)
	assert.Greater(t, p.SpeedBps(), 0.0)
}
