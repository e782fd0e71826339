package tile

import (
	"fmt"
	"image"
	"iter"
)

// Region describes a rectangle of a Manager or of a flat buffer. It is
// consumed by a single walk through Portions; open a new Region to walk the
// same area again.
type Region struct {
	rect     image.Rectangle
	bpp      int
	writable bool

	mgr *Manager

	buf    []byte
	stride int

	consumed bool
}

// Span is the part of a Region that lies within a single tile (or, for
// buffer regions, the matching part of the buffer).
type Span struct {
	X, Y   int    // source coordinates of the first pixel
	W, H   int    // size in pixels
	Pix    []byte // starts at the first pixel
	Stride int    // bytes between rows
	Bytes  int    // bytes per pixel
}

// Row returns the bytes of row y (0 ≤ y < H) of the span.
func (s Span) Row(y int) []byte {
	off := y * s.Stride
	return s.Pix[off : off+s.W*s.Bytes]
}

// NewRegion opens a region over r of m. r must lie within m's bounds.
// When writable is set every visited tile is marked dirty, and mapped tiles
// are unshared before they are handed out.
func NewRegion(m *Manager, r image.Rectangle, writable bool) *Region {
	if !r.In(m.Bounds()) && !r.Empty() {
		panic(fmt.Sprintf("tile: region %v outside manager bounds %v", r, m.Bounds()))
	}
	return &Region{rect: r, bpp: m.bpp, writable: writable, mgr: m}
}

// NewBufferRegion opens a region over r of a flat buffer whose pixel (0,0)
// is at buf[0] and whose rows are stride bytes apart.
func NewBufferRegion(buf []byte, bpp, stride int, r image.Rectangle) *Region {
	if r.Min.X < 0 || r.Min.Y < 0 {
		panic(fmt.Sprintf("tile: buffer region %v has negative origin", r))
	}
	if !r.Empty() && (r.Max.Y-1)*stride+r.Max.X*bpp > len(buf) {
		panic(fmt.Sprintf("tile: buffer region %v exceeds %d byte buffer", r, len(buf)))
	}
	return &Region{rect: r, bpp: bpp, buf: buf, stride: stride, writable: true}
}

// Rect returns the region's rectangle in source coordinates.
func (r *Region) Rect() image.Rectangle { return r.rect }

// Bytes returns the number of bytes per pixel.
func (r *Region) Bytes() int { return r.bpp }

// rowsLeft returns how many rows starting at offset oy stay inside one tile.
func (r *Region) rowsLeft(oy int) int {
	if r.mgr == nil {
		return r.rect.Dy() - oy
	}
	y := r.rect.Min.Y + oy
	return Height - y%Height
}

func (r *Region) colsLeft(ox int) int {
	if r.mgr == nil {
		return r.rect.Dx() - ox
	}
	x := r.rect.Min.X + ox
	return Width - x%Width
}

func (r *Region) span(ox, oy, w, h int) (Span, *Tile) {
	x, y := r.rect.Min.X+ox, r.rect.Min.Y+oy
	s := Span{X: x, Y: y, W: w, H: h, Bytes: r.bpp}
	if r.mgr == nil {
		s.Stride = r.stride
		s.Pix = r.buf[y*r.stride+x*r.bpp:]
		return s, nil
	}
	t := r.mgr.Get(x, y)
	var pix []byte
	if r.writable {
		pix = t.Writable()
	} else {
		pix = t.Pixels()
	}
	t.lock()
	s.Stride = t.ewidth * r.bpp
	s.Pix = pix[((y%Height)*t.ewidth+x%Width)*r.bpp:]
	return s, t
}

// Portions walks the given regions in lockstep. All regions must have the
// same size. Each yielded slice holds one Span per region, in argument
// order; every span is bounded by a single tile of its own source, and
// together the yields cover the whole rectangle exactly once. The slice is
// reused between iterations.
//
// Walking a region a second time panics.
func Portions(regions ...*Region) iter.Seq[[]Span] {
	if len(regions) == 0 {
		panic("tile: Portions needs at least one region")
	}
	size := regions[0].rect.Size()
	for _, r := range regions[1:] {
		if r.rect.Size() != size {
			panic(fmt.Sprintf("tile: region sizes differ: %v vs %v", size, r.rect.Size()))
		}
	}
	return func(yield func([]Span) bool) {
		for _, r := range regions {
			if r.consumed {
				panic("tile: region walked twice")
			}
			r.consumed = true
			if r.writable && r.mgr != nil {
				r.mgr.levels = nil
			}
		}
		spans := make([]Span, len(regions))
		locked := make([]*Tile, 0, len(regions))
		w, h := size.X, size.Y
		for oy := 0; oy < h; {
			bh := h - oy
			for _, r := range regions {
				bh = min(bh, r.rowsLeft(oy))
			}
			for ox := 0; ox < w; {
				bw := w - ox
				for _, r := range regions {
					bw = min(bw, r.colsLeft(ox))
				}
				locked = locked[:0]
				for i, r := range regions {
					s, t := r.span(ox, oy, bw, bh)
					spans[i] = s
					if t != nil {
						locked = append(locked, t)
					}
				}
				more := yield(spans)
				for _, t := range locked {
					t.unlock()
				}
				if !more {
					return
				}
				ox += bw
			}
			oy += bh
		}
	}
}
