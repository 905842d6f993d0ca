package fuseoverlay

import (
	"context"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog/log"
)

// fileNode backs one announced clipboard file. It fetches content
// lazily and caches the single most recent read so sequential reads
// of the same region (the common case for a file manager or image
// viewer) don't re-issue a FileContentsRequest per syscall-sized
// chunk.
type fileNode struct {
	fs.Inode

	root  *Root
	entry FileEntry

	mu       sync.Mutex
	cacheOff int64
	cache    []byte
}

var (
	_ fs.InodeEmbedder = (*fileNode)(nil)
	_ fs.NodeGetattrer = (*fileNode)(nil)
	_ fs.NodeOpener    = (*fileNode)(nil)
	_ fs.NodeReader    = (*fileNode)(nil)
)

func (n *fileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0o444
	out.Size = uint64(n.entry.Size)
	if !n.entry.LastModified.IsZero() {
		out.SetTimes(nil, &n.entry.LastModified, nil)
	}
	return 0
}

// Open always succeeds without a distinct FileHandle: Read is served
// directly off the Inode, matching go-fuse's documented "FileHandle
// optional" NodeOpener contract for simple read-only overlays.
func (n *fileNode) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fileNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= n.entry.Size {
		return fuse.ReadResultData(nil), 0
	}

	length := len(dest)
	if off+int64(length) > n.entry.Size {
		length = int(n.entry.Size - off)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cache != nil && off >= n.cacheOff && off+int64(length) <= n.cacheOff+int64(len(n.cache)) {
		start := off - n.cacheOff
		copy(dest, n.cache[start:start+int64(length)])
		return fuse.ReadResultData(dest[:length]), 0
	}

	data, err := n.root.fetch(ctx, n.root.listID, n.entry.StreamID, off, length)
	if err != nil {
		log.Warn().Err(err).Str("file", n.entry.Name).Int64("offset", off).Msg("fuseoverlay: content fetch failed")
		return nil, syscall.EIO
	}

	n.cacheOff = off
	n.cache = data
	copy(dest, data)
	return fuse.ReadResultData(dest[:min(len(data), length)]), 0
}
