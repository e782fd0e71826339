package tile

import (
	"fmt"
	"image"
)

// CopyRegion copies src into dst. Both regions must have the same size and
// depth.
func CopyRegion(src, dst *Region) {
	if src.bpp != dst.bpp {
		panic(fmt.Sprintf("tile: copy between %d and %d bytes per pixel", src.bpp, dst.bpp))
	}
	for spans := range Portions(src, dst) {
		s, d := spans[0], spans[1]
		for y := 0; y < s.H; y++ {
			copy(d.Row(y), s.Row(y))
		}
	}
}

// FillRegion sets every pixel of dst to px.
func FillRegion(dst *Region, px []byte) {
	if len(px) != dst.bpp {
		panic(fmt.Sprintf("tile: fill pixel has %d bytes, region has %d", len(px), dst.bpp))
	}
	for spans := range Portions(dst) {
		d := spans[0]
		for y := 0; y < d.H; y++ {
			row := d.Row(y)
			for x := 0; x < len(row); x += d.Bytes {
				copy(row[x:x+d.Bytes], px)
			}
		}
	}
}

// ReadPixels returns the pixels of r packed row by row.
func ReadPixels(m *Manager, r image.Rectangle) []byte {
	stride := r.Dx() * m.bpp
	buf := make([]byte, stride*r.Dy())
	dst := NewBufferRegion(buf, m.bpp, stride, image.Rect(0, 0, r.Dx(), r.Dy()))
	CopyRegion(NewRegion(m, r, false), dst)
	return buf
}

// WritePixels stores packed pixels (as returned by ReadPixels) into r.
func WritePixels(m *Manager, r image.Rectangle, buf []byte) {
	stride := r.Dx() * m.bpp
	src := NewBufferRegion(buf, m.bpp, stride, image.Rect(0, 0, r.Dx(), r.Dy()))
	CopyRegion(src, NewRegion(m, r, true))
}

// Fill sets every pixel of m to px.
func Fill(m *Manager, px []byte) {
	FillRegion(NewRegion(m, m.Bounds(), true), px)
}
