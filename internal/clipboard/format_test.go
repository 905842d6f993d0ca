package clipboard

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func TestTextToUTF16LERoundTrip(t *testing.T) {
	encoded, err := textToUTF16LE([]byte("hello"))
	require.NoError(t, err)

	decoded, err := utf16LEToText(encoded)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(decoded))
}

func TestTextToUTF16LEAppendsNullTerminator(t *testing.T) {
	encoded, err := textToUTF16LE([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, byte(0), encoded[len(encoded)-1])
	assert.Equal(t, byte(0), encoded[len(encoded)-2])
}

func TestHTMLToCFHTMLRoundTrip(t *testing.T) {
	html := []byte("<b>hi</b>")
	wrapped, err := htmlToCFHTML(html)
	require.NoError(t, err)
	assert.Contains(t, string(wrapped), "Version:0.9")
	assert.Contains(t, string(wrapped), "StartFragment:")

	back, err := cfHTMLToHTML(wrapped)
	require.NoError(t, err)
	assert.Equal(t, string(html), string(back))
}

func TestBmpDibRoundTrip(t *testing.T) {
	dib := dibFromImage(testImage())
	bmp, err := dibToBMP(dib)
	require.NoError(t, err)
	assert.Equal(t, "BM", string(bmp[0:2]))

	back, err := bmpToDIB(bmp)
	require.NoError(t, err)
	assert.Equal(t, dib, back)
}

func TestURIListToHDropRoundTrip(t *testing.T) {
	uriList := []byte("file:///home/user/a.txt\nfile:///home/user/b%20c.txt\n")
	hdrop, err := uriListToHDrop(uriList)
	require.NoError(t, err)

	back, err := hdropToURIList(hdrop)
	require.NoError(t, err)
	assert.Contains(t, string(back), "file:///home/user/a.txt")
	assert.Contains(t, string(back), "file:///home/user/b%20c.txt")
}

func TestConverterMimeFormatMapping(t *testing.T) {
	c := NewConverter()

	mime, ok := c.MimeForFormat(CFUnicodeText)
	require.True(t, ok)
	assert.Equal(t, "text/plain", mime)

	id, ok := c.FormatForMime("text/html")
	require.True(t, ok)
	assert.Equal(t, uint32(CFHTML), id)
}

func TestRDPFormatsToMimeCustomFormat(t *testing.T) {
	c := NewConverter()
	formats := c.RDPFormatsToMime([]Format{{ID: CFCustomStart + 5}})
	require.Len(t, formats, 1)
	assert.Equal(t, "application/x-rdp-custom-49157", formats[0])
}
