package pipeline

import "github.com/lamco-admin/wayland-rdp-sub001/internal/capture"

// BT.601 limited-range (Y 16-235) YUV->RGB coefficients, the standard choice for
// screen-content capture (as opposed to BT.709 for HD video), matching
// the compositor's own SDR output.
func yuvToBGRx(y, u, v int32) (b, g, r byte) {
	c := y - 16
	d := u - 128
	e := v - 128

	rv := (298*c + 409*e + 128) >> 8
	gv := (298*c - 100*d - 208*e + 128) >> 8
	bv := (298*c + 516*d + 128) >> 8

	return clampByte(bv), clampByte(gv), clampByte(rv)
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// convertNV12ToBGRx converts a semi-planar NV12 buffer (Y plane
// followed by interleaved UV plane, 4:2:0 subsampling) into packed
// BGRx32, writing into dst at dstStride.
func convertNV12ToBGRx(src []byte, srcStride, width, height int, dst []byte, dstStride int) {
	ySize := srcStride * height
	if ySize > len(src) {
		ySize = len(src)
	}
	uvPlane := src[ySize:]
	uvStride := srcStride

	for row := 0; row < height; row++ {
		yRow := src[row*srcStride:]
		uvRow := uvPlane[(row/2)*uvStride:]
		dstRow := dst[row*dstStride:]

		for col := 0; col < width; col++ {
			if col >= len(yRow) {
				break
			}
			uvCol := (col / 2) * 2
			if uvCol+1 >= len(uvRow) {
				break
			}
			yv := int32(yRow[col])
			u := int32(uvRow[uvCol])
			v := int32(uvRow[uvCol+1])

			b, g, r := yuvToBGRx(yv, u, v)
			o := col * 4
			if o+3 >= len(dstRow) {
				break
			}
			dstRow[o] = b
			dstRow[o+1] = g
			dstRow[o+2] = r
			dstRow[o+3] = 0
		}
	}
}

// convertYUY2ToBGRx converts packed YUY2 (4:2:2, Y0 U Y1 V per macro-pixel)
// into packed BGRx32.
func convertYUY2ToBGRx(src []byte, srcStride, width, height int, dst []byte, dstStride int) {
	for row := 0; row < height; row++ {
		srcRow := src[row*srcStride:]
		dstRow := dst[row*dstStride:]

		for col := 0; col < width; col += 2 {
			si := col * 2
			if si+3 >= len(srcRow) {
				break
			}
			y0 := int32(srcRow[si])
			u := int32(srcRow[si+1])
			y1 := int32(srcRow[si+2])
			v := int32(srcRow[si+3])

			b0, g0, r0 := yuvToBGRx(y0, u, v)
			di := col * 4
			if di+3 < len(dstRow) {
				dstRow[di] = b0
				dstRow[di+1] = g0
				dstRow[di+2] = r0
				dstRow[di+3] = 0
			}
			if col+1 < width {
				b1, g1, r1 := yuvToBGRx(y1, u, v)
				di2 := (col + 1) * 4
				if di2+3 < len(dstRow) {
					dstRow[di2] = b1
					dstRow[di2+1] = g1
					dstRow[di2+2] = r1
					dstRow[di2+3] = 0
				}
			}
		}
	}
}

// convertRGBxPassthrough copies an already-packed 32bpp buffer row by
// row, re-striding it to dstStride (RDP requires 64-byte alignment,
// GStreamer's natural stride usually isn't aligned the same way).
func convertRGBxPassthrough(src []byte, srcStride, width, height int, dst []byte, dstStride int) {
	rowBytes := width * 4
	for row := 0; row < height; row++ {
		so := row * srcStride
		do := row * dstStride
		if so+rowBytes > len(src) || do+rowBytes > len(dst) {
			break
		}
		copy(dst[do:do+rowBytes], src[so:so+rowBytes])
	}
}

func convertFrameData(f capture.Frame, dst []byte, dstStride int) {
	switch f.Format {
	case capture.FormatNV12:
		convertNV12ToBGRx(f.Pixels, f.Stride, f.Width, f.Height, dst, dstStride)
	case capture.FormatYUY2:
		convertYUY2ToBGRx(f.Pixels, f.Stride, f.Width, f.Height, dst, dstStride)
	default:
		convertRGBxPassthrough(f.Pixels, f.Stride, f.Width, f.Height, dst, dstStride)
	}
}
