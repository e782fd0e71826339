// Package tile stores pixel data as a grid of fixed-size tiles.
//
// A Manager owns the tiles of one drawable (or of a derived level or an
// image projection). Regions walk rectangular parts of a Manager, or of a
// flat buffer, one tile-bounded span at a time so that callers never deal
// with tile boundaries themselves.
package tile

import (
	"fmt"
	"image"
)

// Coord addresses a tile by grid column and row.
type Coord struct {
	Col, Row int
}

// Validator fills in a tile the first time it is accessed after being
// invalidated. The tile is already marked valid when the validator runs,
// so the validator may open regions over m (including the tile at c)
// without recursing.
type Validator func(m *Manager, c Coord)

// Manager owns a row-major grid of tiles.
type Manager struct {
	width  int
	height int
	bpp    int
	cols   int
	rows   int
	tiles  []*Tile

	validate Validator
	levels   []*Manager
	cache    *Cache
}

// NewManager creates a manager for a width×height image with bpp bytes per
// pixel. All tiles start out invalid and zeroed.
func NewManager(width, height, bpp int) *Manager {
	m := &Manager{}
	m.alloc(width, height, bpp)
	return m
}

func (m *Manager) alloc(width, height, bpp int) {
	if width <= 0 || height <= 0 || bpp <= 0 {
		panic(fmt.Sprintf("tile: invalid manager size %dx%d, %d bytes per pixel", width, height, bpp))
	}
	m.width, m.height, m.bpp = width, height, bpp
	m.cols = (width + Width - 1) / Width
	m.rows = (height + Height - 1) / Height
	m.tiles = make([]*Tile, m.cols*m.rows)
	for row := 0; row < m.rows; row++ {
		eh := min(Height, height-row*Height)
		for col := 0; col < m.cols; col++ {
			ew := min(Width, width-col*Width)
			t := newTile(ew, eh, bpp)
			t.cache = m.cache
			m.tiles[row*m.cols+col] = t
		}
	}
	m.levels = nil
}

// Width returns the width in pixels.
func (m *Manager) Width() int { return m.width }

// Height returns the height in pixels.
func (m *Manager) Height() int { return m.height }

// Bytes returns the number of bytes per pixel.
func (m *Manager) Bytes() int { return m.bpp }

// Cols returns the number of tile columns.
func (m *Manager) Cols() int { return m.cols }

// Rows returns the number of tile rows.
func (m *Manager) Rows() int { return m.rows }

// NumTiles returns Cols()*Rows().
func (m *Manager) NumTiles() int { return len(m.tiles) }

// Bounds returns the rectangle (0,0)-(Width,Height).
func (m *Manager) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// Resize destroys all tiles and reallocates the grid for the new size.
func (m *Manager) Resize(width, height, bpp int) {
	m.Release()
	m.alloc(width, height, bpp)
}

// SetValidator installs the function that fills invalid tiles on access.
func (m *Manager) SetValidator(v Validator) {
	m.validate = v
}

// SetCache makes the manager's tiles subject to the cache's memory limit.
func (m *Manager) SetCache(c *Cache) {
	for _, t := range m.tiles {
		if t.cache != nil && t.cache != c {
			t.cache.remove(t)
		}
		t.cache = c
	}
	m.cache = c
}

// TileRect returns the pixel rectangle covered by the tile at c.
func (m *Manager) TileRect(c Coord) image.Rectangle {
	x, y := c.Col*Width, c.Row*Height
	return image.Rect(x, y, min(x+Width, m.width), min(y+Height, m.height))
}

// CoordOf returns the coordinate of the tile that covers pixel (x, y).
func (m *Manager) CoordOf(x, y int) Coord {
	return Coord{Col: x / Width, Row: y / Height}
}

// Get returns the tile covering pixel (x, y), validating it on first touch.
// Out-of-range coordinates are a programming error and panic.
func (m *Manager) Get(x, y int) *Tile {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		panic(fmt.Sprintf("tile: pixel (%d,%d) outside %dx%d manager", x, y, m.width, m.height))
	}
	return m.TileAt(m.CoordOf(x, y))
}

// TileAt returns the tile at grid coordinate c, validating it on first touch.
func (m *Manager) TileAt(c Coord) *Tile {
	t := m.peek(c)
	if !t.valid {
		t.valid = true
		if m.validate != nil {
			m.validate(m, c)
		}
	}
	return t
}

func (m *Manager) peek(c Coord) *Tile {
	if c.Col < 0 || c.Row < 0 || c.Col >= m.cols || c.Row >= m.rows {
		panic(fmt.Sprintf("tile: tile (%d,%d) outside %dx%d grid", c.Col, c.Row, m.cols, m.rows))
	}
	return m.tiles[c.Row*m.cols+c.Col]
}

// Map makes the tile at c share src's pixel data. Both tiles must have the
// same effective size and depth. The shared data is read-only; the first
// write through either tile gives that tile a private copy.
func (m *Manager) Map(c Coord, src *Tile) {
	dst := m.peek(c)
	if dst == src {
		return
	}
	if dst.ewidth != src.ewidth || dst.eheight != src.eheight || dst.bpp != src.bpp {
		panic(fmt.Sprintf("tile: cannot map %dx%dx%d tile onto %dx%dx%d tile",
			src.ewidth, src.eheight, src.bpp, dst.ewidth, dst.eheight, dst.bpp))
	}
	sb := src.share()
	dst.release()
	sb.refs++
	dst.buf = sb
	dst.valid = true
	dst.dirty = src.dirty
	m.levels = nil
}

// Invalidate marks every tile intersecting r as invalid so that the next
// access runs the validator again.
func (m *Manager) Invalidate(r image.Rectangle) {
	r = r.Intersect(m.Bounds())
	if r.Empty() {
		return
	}
	for row := r.Min.Y / Height; row <= (r.Max.Y-1)/Height; row++ {
		for col := r.Min.X / Width; col <= (r.Max.X-1)/Width; col++ {
			m.tiles[row*m.cols+col].valid = false
		}
	}
	m.levels = nil
}

// InvalidateAll marks every tile invalid.
func (m *Manager) InvalidateAll() {
	m.Invalidate(m.Bounds())
}

// SharedTiles returns the number of tiles whose data is mapped.
func (m *Manager) SharedTiles() int {
	n := 0
	for _, t := range m.tiles {
		if t.Shared() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of m with the same size and contents.
// The validator is not copied; every tile of the clone is valid.
func (m *Manager) Clone() *Manager {
	c := NewManager(m.width, m.height, m.bpp)
	c.SetCache(m.cache)
	for i, t := range m.tiles {
		// Reading the source can evict dst, so fetch it before Writable.
		src := m.TileAt(Coord{Col: i % m.cols, Row: i / m.cols}).Pixels()
		dst := c.tiles[i]
		dst.valid = true
		copy(dst.Writable(), src)
		dst.dirty = t.dirty
	}
	return c
}

// Release drops all tile storage, including swapped-out data. The manager
// must not be used afterwards except through Resize.
func (m *Manager) Release() {
	for _, t := range m.tiles {
		t.release()
	}
	for _, l := range m.levels {
		l.Release()
	}
	m.levels = nil
}

// Equal reports whether a and b have the same size, depth and pixel data.
func Equal(a, b *Manager) bool {
	if a.width != b.width || a.height != b.height || a.bpp != b.bpp {
		return false
	}
	for i := range a.tiles {
		c := Coord{Col: i % a.cols, Row: i / a.cols}
		pa, pb := a.TileAt(c).Pixels(), b.TileAt(c).Pixels()
		if string(pa) != string(pb) {
			return false
		}
	}
	return true
}
