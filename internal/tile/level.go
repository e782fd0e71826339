package tile

// levelsFor returns ceil(log2(size/tileSize)) + 1, or 1 when size fits in
// one tile.
func levelsFor(size, tileSize int) int {
	levels := 1
	for span := tileSize; span < size; span *= 2 {
		levels++
	}
	return levels
}

// NumLevels returns the number of pyramid levels for a width×height image:
// ceil(log2(max(w,h)/64)) + 1, with a single level for images that fit in
// one tile.
func NumLevels(width, height int) int {
	return max(levelsFor(width, Width), levelsFor(height, Height))
}

// LevelSize returns the size of level n of a width×height pyramid. Sides
// are halved with truncation and never drop below one pixel.
func LevelSize(width, height, n int) (int, int) {
	for ; n > 0; n-- {
		width, height = max(1, width/2), max(1, height/2)
	}
	return width, height
}

// Level returns the n-th derived level of m: level 0 is m itself, level
// n+1 is level n reduced 2× with a box filter. Derived levels are cached
// and rebuilt after the base is written through a writable region.
func (m *Manager) Level(n int) *Manager {
	if n <= 0 {
		return m
	}
	if n-1 < len(m.levels) {
		return m.levels[n-1]
	}
	prev := m.Level(n - 1)
	w, h := max(1, prev.width/2), max(1, prev.height/2)
	next := NewManager(w, h, m.bpp)
	downsample(prev, next)
	m.levels = append(m.levels, next)
	return next
}

// downsample averages 2×2 blocks of src into dst. Odd trailing rows and
// columns are folded into the last output pixel by clamping.
func downsample(src, dst *Manager) {
	bpp := src.bpp
	in := ReadPixels(src, src.Bounds())
	inStride := src.width * bpp
	for spans := range Portions(NewRegion(dst, dst.Bounds(), true)) {
		d := spans[0]
		for y := 0; y < d.H; y++ {
			row := d.Row(y)
			sy0 := min(2*(d.Y+y), src.height-1)
			sy1 := min(sy0+1, src.height-1)
			for x := 0; x < d.W; x++ {
				sx0 := min(2*(d.X+x), src.width-1)
				sx1 := min(sx0+1, src.width-1)
				for b := 0; b < bpp; b++ {
					sum := int(in[sy0*inStride+sx0*bpp+b]) +
						int(in[sy0*inStride+sx1*bpp+b]) +
						int(in[sy1*inStride+sx0*bpp+b]) +
						int(in[sy1*inStride+sx1*bpp+b])
					row[x*bpp+b] = uint8((sum + 2) / 4)
				}
			}
		}
	}
}

// LevelFor returns the smallest derived level of m whose sides are both at
// least minSide pixels (or m itself if none is smaller).
func (m *Manager) LevelFor(minSide int) *Manager {
	n := 0
	for {
		w, h := LevelSize(m.width, m.height, n+1)
		if w < minSide || h < minSide || (w == 1 && h == 1) {
			break
		}
		n++
	}
	return m.Level(n)
}
