// Package clipboard implements bidirectional clipboard synchronization
// between an RDP client and the captured Wayland desktop: Windows
// clipboard format conversion, sync-loop prevention, chunked transfer,
// and the two D-Bus wiring paths (direct GNOME Mutter selection calls,
// and the portal Clipboard interface) a strategy.Session may expose.
// Grounded on original_source/src/clipboard/{formats,sync,transfer}.rs
// and the teacher's clipboard.go D-Bus call shape
// (SelectionRead/SetSelection/SelectionTransfer/SelectionWrite).
package clipboard

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Windows clipboard format IDs (CF_*), unchanged from the Win32 API and
// from formats.rs's format_id module — a fixed protocol vocabulary, not
// teacher- or spec-specific logic.
const (
	CFText          = 1
	CFBitmap        = 2
	CFMetafilePict  = 3
	CFDIB           = 8
	CFPalette       = 9
	CFPenData       = 10
	CFRiff          = 11
	CFWave          = 12
	CFUnicodeText   = 13
	CFEnhMetafile   = 14
	CFHDrop         = 15
	CFLocale        = 16
	CFDIBV5         = 17
	CFHTML          = 0xD010
	CFPNG           = 0xD011
	CFJPEG          = 0xD012
	CFGIF           = 0xD013
	CFRTF           = 0xD014
	CFCustomStart   = 0xC000
)

// Format is a clipboard format descriptor as announced over RDP's
// FormatList PDU.
type Format struct {
	ID   uint32
	Name string
}

func UnicodeTextFormat() Format { return Format{ID: CFUnicodeText, Name: "CF_UNICODETEXT"} }

// Converter translates between RDP format IDs and Wayland/X11 MIME
// types, grounded on formats.rs's FormatConverter.
type Converter struct {
	toMime map[uint32]string
	toCF   map[string]uint32
}

func NewConverter() *Converter {
	c := &Converter{toMime: make(map[uint32]string), toCF: make(map[string]uint32)}
	c.add(CFText, "text/plain;charset=utf-8")
	c.add(CFUnicodeText, "text/plain")
	c.add(CFHTML, "text/html")
	c.add(CFRTF, "application/rtf")
	c.add(CFDIB, "image/bmp")
	c.add(CFBitmap, "image/bmp")
	c.add(CFDIBV5, "image/png")
	c.add(CFPNG, "image/png")
	c.add(CFJPEG, "image/jpeg")
	c.add(CFGIF, "image/gif")
	c.add(CFHDrop, "text/uri-list")
	c.add(CFWave, "audio/wav")
	c.add(CFRiff, "application/riff")
	c.add(CFLocale, "application/x-locale")
	return c
}

func (c *Converter) add(formatID uint32, mime string) {
	c.toMime[formatID] = mime
	c.toCF[mime] = formatID
}

func (c *Converter) MimeForFormat(formatID uint32) (string, bool) {
	m, ok := c.toMime[formatID]
	return m, ok
}

func (c *Converter) FormatForMime(mime string) (uint32, bool) {
	id, ok := c.toCF[mime]
	return id, ok
}

// RDPFormatsToMime converts an RDP-announced format list to the MIME
// types this server should advertise on the Wayland side.
func (c *Converter) RDPFormatsToMime(formats []Format) []string {
	var out []string
	for _, f := range formats {
		if mime, ok := c.toMime[f.ID]; ok {
			out = append(out, mime)
		} else if f.ID >= CFCustomStart {
			out = append(out, fmt.Sprintf("application/x-rdp-custom-%d", f.ID))
		}
	}
	return out
}

func (c *Converter) MimeToRDPFormats(mimeTypes []string) []Format {
	var out []Format
	for _, mime := range mimeTypes {
		if id, ok := c.toCF[mime]; ok {
			out = append(out, Format{ID: id, Name: formatName(id)})
			continue
		}
		if idStr, found := strings.CutPrefix(mime, "application/x-rdp-custom-"); found {
			if id, err := strconv.ParseUint(idStr, 10, 32); err == nil {
				out = append(out, Format{ID: uint32(id), Name: mime})
			}
		}
	}
	return out
}

func formatName(id uint32) string {
	switch id {
	case CFText:
		return "CF_TEXT"
	case CFBitmap:
		return "CF_BITMAP"
	case CFUnicodeText:
		return "CF_UNICODETEXT"
	case CFDIB:
		return "CF_DIB"
	case CFDIBV5:
		return "CF_DIBV5"
	case CFHTML:
		return "HTML Format"
	case CFPNG:
		return "PNG"
	case CFJPEG:
		return "JPEG"
	case CFRTF:
		return "Rich Text Format"
	case CFHDrop:
		return "CF_HDROP"
	case CFGIF:
		return "GIF"
	default:
		return fmt.Sprintf("Format_%d", id)
	}
}

// ConvertToRDP converts from a local MIME payload to the bytes an RDP
// FormatDataResponse carries for the named format.
func (c *Converter) ConvertToRDP(data []byte, mime string, formatID uint32) ([]byte, error) {
	switch {
	case mime == "text/plain" && formatID == CFUnicodeText, mime == "text/plain;charset=utf-8" && formatID == CFUnicodeText:
		return textToUTF16LE(data)
	case mime == "text/plain;charset=utf-8" && formatID == CFText:
		return data, nil
	case mime == "text/html" && formatID == CFHTML:
		return htmlToCFHTML(data)
	case mime == "application/rtf" && formatID == CFRTF:
		return data, nil
	case mime == "image/png" && formatID == CFPNG:
		return data, nil
	case mime == "image/png" && formatID == CFDIB:
		return pngToDIB(data)
	case mime == "image/png" && formatID == CFDIBV5:
		return pngToDIBV5(data)
	case mime == "image/bmp" && formatID == CFDIB:
		return bmpToDIB(data)
	case mime == "text/uri-list" && formatID == CFHDrop:
		return uriListToHDrop(data)
	default:
		return nil, fmt.Errorf("clipboard: unsupported conversion %q -> format %d", mime, formatID)
	}
}

// ConvertFromRDP converts RDP-sourced bytes for formatID into the
// named local MIME representation.
func (c *Converter) ConvertFromRDP(data []byte, formatID uint32, mime string) ([]byte, error) {
	switch {
	case formatID == CFUnicodeText && (mime == "text/plain" || mime == "text/plain;charset=utf-8"):
		return utf16LEToText(data)
	case formatID == CFText && mime == "text/plain;charset=utf-8":
		return data, nil
	case formatID == CFHTML && mime == "text/html":
		return cfHTMLToHTML(data)
	case formatID == CFRTF && mime == "application/rtf":
		return data, nil
	case formatID == CFPNG && mime == "image/png":
		return data, nil
	case formatID == CFDIB && mime == "image/png":
		return dibToPNG(data)
	case formatID == CFDIBV5 && mime == "image/png":
		return dibToPNG(data) // imageFromDIB auto-detects the 124-byte DIBV5 header
	case formatID == CFDIB && mime == "image/bmp":
		return dibToBMP(data)
	case formatID == CFHDrop && mime == "text/uri-list":
		return hdropToURIList(data)
	default:
		return nil, fmt.Errorf("clipboard: unsupported conversion format %d -> %q", formatID, mime)
	}
}

// textToUTF16LE converts Linux-sourced text (bare LF line endings) to
// the CF_UNICODETEXT wire form: CRLF line endings, UTF-16LE code
// units, null-terminated. Per §4.F's Text-conversions rule, line
// endings are canonicalised toward Windows on this side of the
// conversion.
func textToUTF16LE(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("clipboard: invalid utf-8 text")
	}
	text := sanitizeTextForWindows(string(data))
	units := utf16.Encode([]rune(text))
	out := make([]byte, 0, len(units)*2+2)
	for _, u := range units {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return append(out, 0, 0), nil
}

// utf16LEToText converts a CF_UNICODETEXT payload (UTF-16LE, CRLF,
// null-terminated) to Linux-native text: UTF-8, bare LF. Decoding
// stops at the first NUL code unit and substitutes U+FFFD for any
// unpaired surrogate, per §4.F.
func utf16LEToText(data []byte) ([]byte, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("clipboard: utf-16 data must have even length")
	}
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		v := binary.LittleEndian.Uint16(data[i : i+2])
		if v == 0 {
			break
		}
		units = append(units, v)
	}
	text := string(utf16.Decode(units))
	return []byte(sanitizeTextForLinux(text)), nil
}

// htmlToCFHTML wraps raw HTML in CF_HTML's fragment header, with byte
// offsets computed and backfilled as zero-padded decimal, per the
// Windows clipboard HTML format spec.
func htmlToCFHTML(html []byte) ([]byte, error) {
	fragment := "<html><body>\r\n<!--StartFragment-->" + string(html) + "<!--EndFragment-->\r\n</body></html>"

	const versionLine = "Version:0.9\r\n"
	const startHTMLLine = "StartHTML:0000000000\r\n"
	const endHTMLLine = "EndHTML:0000000000\r\n"
	const startFragLine = "StartFragment:0000000000\r\n"
	const endFragLine = "EndFragment:0000000000\r\n"
	const sourceURLLine = "SourceURL:about:blank\r\n"

	headerLen := len(versionLine) + len(startHTMLLine) + len(endHTMLLine) + len(startFragLine) + len(endFragLine) + len(sourceURLLine)

	startHTML := headerLen
	endHTML := startHTML + len(fragment)

	const startMarker = "<!--StartFragment-->"
	const endMarker = "<!--EndFragment-->"
	startFragment := startHTML + strings.Index(fragment, startMarker) + len(startMarker)
	endFragment := startHTML + strings.Index(fragment, endMarker)

	header := fmt.Sprintf(
		"Version:0.9\r\nStartHTML:%010d\r\nEndHTML:%010d\r\nStartFragment:%010d\r\nEndFragment:%010d\r\nSourceURL:about:blank\r\n",
		startHTML, endHTML, startFragment, endFragment,
	)

	return append([]byte(header), fragment...), nil
}

func cfHTMLToHTML(data []byte) ([]byte, error) {
	text := string(data)
	startFragment, endFragment := 0, len(text)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if v, ok := strings.CutPrefix(line, "StartFragment:"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				startFragment = n
			}
		} else if v, ok := strings.CutPrefix(line, "EndFragment:"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				endFragment = n
			}
		}
	}

	if startFragment < len(data) && endFragment <= len(data) && startFragment <= endFragment {
		return data[startFragment:endFragment], nil
	}
	return data, nil
}

// DIB (BITMAPINFOHEADER) conversions. bmpToDIB/dibToBMP just add/strip
// the 14-byte BITMAPFILEHEADER; png<->DIB round-trips through image.Image.

func bmpToDIB(bmp []byte) ([]byte, error) {
	if len(bmp) < 14 || string(bmp[0:2]) != "BM" {
		return nil, fmt.Errorf("clipboard: invalid BMP signature")
	}
	return bmp[14:], nil
}

func dibToBMP(dib []byte) ([]byte, error) {
	if len(dib) < 40 {
		return nil, fmt.Errorf("clipboard: DIB too small")
	}
	fileSize := 14 + len(dib)
	pixelOffset := 14 + 40

	buf := bytes.NewBuffer(make([]byte, 0, 14+len(dib)))
	buf.WriteString("BM")
	writeU32LE(buf, uint32(fileSize))
	writeU16LE(buf, 0)
	writeU16LE(buf, 0)
	writeU32LE(buf, uint32(pixelOffset))
	buf.Write(dib)
	return buf.Bytes(), nil
}

func pngToDIB(pngData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("clipboard: decode png: %w", err)
	}
	return dibFromImage(img), nil
}

func dibFromImage(img image.Image) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	buf := bytes.NewBuffer(make([]byte, 0, 40+width*height*4))
	writeU32LE(buf, 40)
	writeI32LE(buf, int32(width))
	writeI32LE(buf, -int32(height))
	writeU16LE(buf, 1)
	writeU16LE(buf, 32)
	writeU32LE(buf, 0)
	writeU32LE(buf, uint32(width*height*4))
	writeI32LE(buf, 0)
	writeI32LE(buf, 0)
	writeU32LE(buf, 0)
	writeU32LE(buf, 0)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			buf.WriteByte(byte(b >> 8))
			buf.WriteByte(byte(g >> 8))
			buf.WriteByte(byte(r >> 8))
			buf.WriteByte(byte(a >> 8))
		}
	}
	return buf.Bytes()
}

// pngToDIBV5 builds a BITMAPV5HEADER (biSize=124) image instead of the
// plain 40-byte BITMAPINFOHEADER pngToDIB produces, adding the
// BI_BITFIELDS alpha-mask fields §4.F requires for the DIBV5 path.
func pngToDIBV5(pngData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("clipboard: decode png: %w", err)
	}
	return dibv5FromImage(img), nil
}

// dibv5FromImage writes the 124-byte BITMAPV5HEADER followed by
// 32-bit BGRA pixel data with explicit RGBA bitfield masks, matching
// Windows' CF_DIBV5 layout.
func dibv5FromImage(img image.Image) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	buf := bytes.NewBuffer(make([]byte, 0, 124+width*height*4))
	writeU32LE(buf, 124)             // bV5Size
	writeI32LE(buf, int32(width))    // bV5Width
	writeI32LE(buf, -int32(height))  // bV5Height (top-down)
	writeU16LE(buf, 1)               // bV5Planes
	writeU16LE(buf, 32)              // bV5BitCount
	writeU32LE(buf, 3)               // bV5Compression = BI_BITFIELDS
	writeU32LE(buf, uint32(width*height*4)) // bV5SizeImage
	writeI32LE(buf, 0)               // bV5XPelsPerMeter
	writeI32LE(buf, 0)               // bV5YPelsPerMeter
	writeU32LE(buf, 0)               // bV5ClrUsed
	writeU32LE(buf, 0)               // bV5ClrImportant
	writeU32LE(buf, 0x00FF0000)      // bV5RedMask
	writeU32LE(buf, 0x0000FF00)      // bV5GreenMask
	writeU32LE(buf, 0x000000FF)      // bV5BlueMask
	writeU32LE(buf, 0xFF000000)      // bV5AlphaMask
	writeU32LE(buf, 0)               // bV5CSType (LCS_CALIBRATED_RGB=0)
	buf.Write(make([]byte, 36))       // bV5Endpoints (CIEXYZTRIPLE)
	writeU32LE(buf, 0)               // bV5GammaRed
	writeU32LE(buf, 0)               // bV5GammaGreen
	writeU32LE(buf, 0)               // bV5GammaBlue
	writeU32LE(buf, 4)               // bV5Intent = LCS_GM_IMAGES
	writeU32LE(buf, 0)               // bV5ProfileData
	writeU32LE(buf, 0)               // bV5ProfileSize
	writeU32LE(buf, 0)               // bV5Reserved

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			buf.WriteByte(byte(b >> 8))
			buf.WriteByte(byte(g >> 8))
			buf.WriteByte(byte(r >> 8))
			buf.WriteByte(byte(a >> 8))
		}
	}
	return buf.Bytes()
}

func dibToPNG(dib []byte) ([]byte, error) {
	img, err := imageFromDIB(dib)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("clipboard: encode png: %w", err)
	}
	return out.Bytes(), nil
}

func imageFromDIB(dib []byte) (image.Image, error) {
	if len(dib) < 40 {
		return nil, fmt.Errorf("clipboard: DIB too small")
	}
	biSize := binary.LittleEndian.Uint32(dib[0:4])
	if biSize != 40 && biSize != 124 {
		return nil, fmt.Errorf("clipboard: unsupported DIB header size %d (want 40 or 124)", biSize)
	}
	if int(biSize) > len(dib) {
		return nil, fmt.Errorf("clipboard: DIB header size %d exceeds buffer of %d bytes", biSize, len(dib))
	}
	width := absI32(int32(binary.LittleEndian.Uint32(dib[4:8])))
	height := absI32(int32(binary.LittleEndian.Uint32(dib[8:12])))
	bitCount := binary.LittleEndian.Uint16(dib[14:16])

	pixelData := dib[biSize:]
	img := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))

	switch bitCount {
	case 32:
		for i := 0; i+3 < len(pixelData) && i/4 < int(width*height); i += 4 {
			idx := i / 4
			x, y := int(idx)%int(width), int(idx)/int(width)
			img.Set(x, y, color.NRGBA{R: pixelData[i+2], G: pixelData[i+1], B: pixelData[i], A: pixelData[i+3]})
		}
	case 24:
		rowSize := int(((width*3 + 3) / 4) * 4)
		for y := 0; y < int(height); y++ {
			rowOffset := y * rowSize
			for x := 0; x < int(width); x++ {
				po := rowOffset + x*3
				if po+2 < len(pixelData) {
					img.Set(x, y, color.NRGBA{R: pixelData[po+2], G: pixelData[po+1], B: pixelData[po], A: 255})
				}
			}
		}
	default:
		return nil, fmt.Errorf("clipboard: unsupported DIB bit depth %d", bitCount)
	}
	return img, nil
}

func absI32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func writeU32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeI32LE(buf *bytes.Buffer, v int32) { writeU32LE(buf, uint32(v)) }

func writeU16LE(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// uriListToHDrop/hdropToURIList implement the Windows DROPFILES
// (CF_HDROP) structure: a 20-byte header followed by null-terminated
// UTF-16LE paths, double-null terminated.

func uriListToHDrop(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 20+len(data)*2))
	writeU32LE(buf, 20)
	writeI32LE(buf, 0)
	writeI32LE(buf, 0)
	writeI32LE(buf, 0)
	writeI32LE(buf, 1)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		path, ok := strings.CutPrefix(line, "file://")
		if !ok {
			continue
		}
		decoded, err := percentDecode(path)
		if err != nil {
			return nil, err
		}
		for _, u := range utf16.Encode([]rune(decoded)) {
			writeU16LE(buf, u)
		}
		writeU16LE(buf, 0)
	}
	writeU16LE(buf, 0)
	return buf.Bytes(), nil
}

func hdropToURIList(data []byte) ([]byte, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("clipboard: HDROP structure too small")
	}
	offset := binary.LittleEndian.Uint32(data[0:4])
	wide := binary.LittleEndian.Uint32(data[16:20]) != 0
	if int(offset) >= len(data) {
		return nil, fmt.Errorf("clipboard: invalid HDROP offset")
	}

	fileData := data[offset:]
	var out strings.Builder

	if wide {
		var current []uint16
		for i := 0; i+1 < len(fileData); i += 2 {
			ch := binary.LittleEndian.Uint16(fileData[i : i+2])
			if ch == 0 {
				if len(current) == 0 {
					break
				}
				out.WriteString("file://")
				out.WriteString(percentEncode(string(utf16.Decode(current))))
				out.WriteByte('\n')
				current = current[:0]
				continue
			}
			current = append(current, ch)
		}
	} else {
		var current []byte
		for _, b := range fileData {
			if b == 0 {
				if len(current) == 0 {
					break
				}
				out.WriteString("file://")
				out.WriteString(percentEncode(string(current)))
				out.WriteByte('\n')
				current = current[:0]
				continue
			}
			current = append(current, b)
		}
	}
	return []byte(out.String()), nil
}

func percentEncode(s string) string {
	var b strings.Builder
	for _, r := range []byte(s) {
		if isUnreserved(r) {
			b.WriteByte(r)
		} else {
			fmt.Fprintf(&b, "%%%02X", r)
		}
	}
	return b.String()
}

func isUnreserved(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') ||
		b == '-' || b == '_' || b == '.' || b == '~' || b == '/'
}

func percentDecode(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("clipboard: invalid percent-encoding: %w", err)
			}
			b.WriteByte(byte(v))
			i += 2
		} else {
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}
