package clipboard

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf16"
)

// FileDescriptor is one entry of a Windows FILEGROUPDESCRIPTORW list —
// the announcement a local→remote file paste carries instead of raw
// bytes, parsed/built per §4.G's file-transfer rule. Grounded on
// original_source/src/clipboard/manager.rs's use of
// lamco_clipboard_core::FileDescriptor (manager.rs:2103) and
// build_file_group_descriptor_w (manager.rs:1958) — the crate itself
// was not in the retrieved pack (see sanitize.go's doc comment for the
// same gap), so the wire layout below follows the documented Win32
// FILEDESCRIPTORW struct directly.
type FileDescriptor struct {
	Name    string
	Size    uint64
	HasSize bool
}

const (
	fileDescriptorWSize = 592 // FILEDESCRIPTORW on the wire, cFileName[260] WCHAR included
	fdAttributes        = 0x00000004
	fdFileSize          = 0x00000040
	maxFileNameChars    = 259 // leaves room for the NUL terminator in a 260-WCHAR field
)

// ParseFileGroupDescriptorW decodes a FILEGROUPDESCRIPTORW payload
// (a uint32 item count followed by that many fixed 592-byte
// FILEDESCRIPTORW records) into the list of files Windows is
// offering.
func ParseFileGroupDescriptorW(data []byte) ([]FileDescriptor, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("clipboard: FILEGROUPDESCRIPTORW too small")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	want := 4 + int(count)*fileDescriptorWSize
	if want > len(data) {
		return nil, fmt.Errorf("clipboard: FILEGROUPDESCRIPTORW declares %d items but payload is only %d bytes", count, len(data))
	}

	out := make([]FileDescriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := data[4+int(i)*fileDescriptorWSize : 4+int(i+1)*fileDescriptorWSize]
		flags := binary.LittleEndian.Uint32(rec[0:4])
		sizeHigh := binary.LittleEndian.Uint32(rec[64:68])
		sizeLow := binary.LittleEndian.Uint32(rec[68:72])
		nameField := rec[72:592]

		name := utf16ZToString(nameField)
		out = append(out, FileDescriptor{
			Name:    name,
			Size:    uint64(sizeHigh)<<32 | uint64(sizeLow),
			HasSize: flags&fdFileSize != 0,
		})
	}
	return out, nil
}

// BuildFileGroupDescriptorW encodes files into the FILEGROUPDESCRIPTORW
// wire form this side sends when it is the one offering files
// (local→remote paste).
func BuildFileGroupDescriptorW(files []FileDescriptor) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 4+len(files)*fileDescriptorWSize))
	writeU32LE(buf, uint32(len(files)))

	for _, f := range files {
		name := f.Name
		if r := []rune(name); len(r) > maxFileNameChars {
			name = string(r[:maxFileNameChars])
		}
		units := utf16.Encode([]rune(name))

		// Layout: dwFlags(4) clsid(16) sizel(8) pointl(8)
		// dwFileAttributes(4) ftCreationTime/ftLastAccessTime/
		// ftLastWriteTime(8 each) nFileSizeHigh(4) nFileSizeLow(4)
		// cFileName[260]WCHAR(520) = 592 bytes total.
		rec := make([]byte, fileDescriptorWSize)
		flags := uint32(fdAttributes)
		if f.HasSize {
			flags |= fdFileSize
		}
		binary.LittleEndian.PutUint32(rec[0:4], flags)
		binary.LittleEndian.PutUint32(rec[64:68], uint32(f.Size>>32))
		binary.LittleEndian.PutUint32(rec[68:72], uint32(f.Size))
		for i, u := range units {
			binary.LittleEndian.PutUint16(rec[72+i*2:74+i*2], u)
		}
		buf.Write(rec)
	}
	return buf.Bytes(), nil
}

func utf16ZToString(field []byte) string {
	units := make([]uint16, 0, len(field)/2)
	for i := 0; i+1 < len(field); i += 2 {
		u := binary.LittleEndian.Uint16(field[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// isFileListMime reports whether mime is one of the two local URI-list
// representations a file paste/copy can take on the Wayland side.
func isFileListMime(mime string) bool {
	return mime == "text/uri-list" || mime == "x-special/gnome-copied-files"
}

// parseFileURIs extracts local filesystem paths from either
// text/uri-list (bare "file://..." lines, '#' comments ignored) or
// x-special/gnome-copied-files ("copy\n"/"cut\n" header line, same
// body), percent-decoding each path.
func parseFileURIs(data []byte, mime string) ([]string, error) {
	text := string(data)
	if mime == "x-special/gnome-copied-files" {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
	}
	text = strings.TrimRight(text, "\x00")

	var paths []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Scheme != "file" {
			continue
		}
		paths = append(paths, u.Path)
	}
	return paths, nil
}

// fileURIPercentEncode matches manager.rs's FILE_URI_ENCODE AsciiSet:
// control characters plus the handful of bytes that are awkward inside
// a URI, leaving '.', '-', '_' and similar untouched.
func fileURIPercentEncode(component string) string {
	var b strings.Builder
	for i := 0; i < len(component); i++ {
		c := component[i]
		switch {
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "%%%02X", c)
		case strings.IndexByte(" \"#%<>?`{}", c) >= 0:
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// buildGnomeCopiedFilesContent formats completed local paths as the
// null-terminated "copy\nfile://…\nfile://…\0" payload portal expects
// for x-special/gnome-copied-files, URI-encoding each path component
// except the separating slashes.
func buildGnomeCopiedFilesContent(paths []string) []byte {
	uris := make([]string, 0, len(paths))
	for _, p := range paths {
		parts := strings.Split(p, "/")
		for i, part := range parts {
			parts[i] = fileURIPercentEncode(part)
		}
		uris = append(uris, "file://"+strings.Join(parts, "/"))
	}
	return []byte("copy\n" + strings.Join(uris, "\n") + "\x00")
}
