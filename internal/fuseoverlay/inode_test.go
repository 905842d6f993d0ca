package fuseoverlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNodeReadFetchesAndCaches(t *testing.T) {
	var fetchCount int
	fetch := func(ctx context.Context, listID, streamID uint32, off int64, length int) ([]byte, error) {
		fetchCount++
		return []byte("hello world")[off : off+int64(length)], nil
	}

	root := NewRoot(1, []FileEntry{{StreamID: 0, Name: "greeting.txt", Size: 11}}, fetch)
	node := &fileNode{root: root, entry: root.entries[0]}

	dest := make([]byte, 5)
	res, errno := node.Read(context.Background(), nil, dest, 0)
	require.Equal(t, uint32(0), uint32(errno))

	buf, _, fuseErr := res.Bytes(nil)
	require.Nil(t, fuseErr)
	assert.Equal(t, "hello", string(buf))
	assert.Equal(t, 1, fetchCount)

	// second read within the cached region should not refetch
	res2, errno2 := node.Read(context.Background(), nil, dest, 0)
	require.Equal(t, uint32(0), uint32(errno2))
	buf2, _, _ := res2.Bytes(nil)
	assert.Equal(t, "hello", string(buf2))
	assert.Equal(t, 1, fetchCount)
}

func TestFileNodeReadPastEOF(t *testing.T) {
	root := NewRoot(1, []FileEntry{{StreamID: 0, Name: "short.txt", Size: 4}}, nil)
	node := &fileNode{root: root, entry: root.entries[0]}

	res, errno := node.Read(context.Background(), nil, make([]byte, 10), 100)
	require.Equal(t, uint32(0), uint32(errno))
	buf, _, _ := res.Bytes(nil)
	assert.Empty(t, buf)
}

func TestFileNodeReadClampsToFileSize(t *testing.T) {
	fetch := func(ctx context.Context, listID, streamID uint32, off int64, length int) ([]byte, error) {
		assert.Equal(t, 2, length, "read past EOF should be clamped to remaining bytes")
		return []byte("ab"), nil
	}
	root := NewRoot(1, []FileEntry{{StreamID: 0, Name: "x.txt", Size: 4}}, fetch)
	node := &fileNode{root: root, entry: root.entries[0]}

	_, errno := node.Read(context.Background(), nil, make([]byte, 10), 2)
	require.Equal(t, uint32(0), uint32(errno))
}
