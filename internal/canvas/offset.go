package canvas

import (
	"image"
	"image/color"

	"github.com/pspoerri/xcftiles/internal/tile"
)

// FillPolicy selects what fills the area an offset without wrap-around
// vacates.
type FillPolicy int

const (
	FillBackground FillPolicy = iota
	FillTransparent
)

// offsetRects returns the source and destination rectangles that move the
// pixels of a w×h drawable by (dx, dy): the center, the corner and the two
// edge bands. Empty pairs are omitted. With wrap-around the source
// rectangles of the corner and bands come from the opposite edges; without
// it only the destination rectangles matter.
func offsetRects(w, h, dx, dy int) (center [2]image.Rectangle, edges [][2]image.Rectangle) {
	adx, ady := abs(dx), abs(dy)

	// center
	sx, sy := 0, 0
	if dx < 0 {
		sx = -dx
	}
	if dy < 0 {
		sy = -dy
	}
	tx, ty := max(dx, 0), max(dy, 0)
	center = [2]image.Rectangle{
		image.Rect(sx, sy, sx+w-adx, sy+h-ady),
		image.Rect(tx, ty, tx+w-adx, ty+h-ady),
	}

	add := func(sx, sy, dx, dy, cw, ch int) {
		if cw <= 0 || ch <= 0 {
			return
		}
		edges = append(edges, [2]image.Rectangle{
			image.Rect(sx, sy, sx+cw, sy+ch),
			image.Rect(dx, dy, dx+cw, dy+ch),
		})
	}

	// x positions of the wrapped column and y positions of the wrapped row.
	wsx, wdx := 0, w+dx
	if dx > 0 {
		wsx, wdx = w-dx, 0
	}
	wsy, wdy := 0, h+dy
	if dy > 0 {
		wsy, wdy = h-dy, 0
	}

	// corner
	add(wsx, wsy, wdx, wdy, adx, ady)
	// column beside the center
	add(wsx, sy, wdx, ty, adx, h-ady)
	// row above or below the center
	add(sx, wsy, tx, wdy, w-adx, ady)
	return center, edges
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Offset shifts the pixels of d by (dx, dy). With wrap the shift is taken
// modulo the drawable size and pixels leaving one edge enter at the
// opposite one; otherwise the shift is clamped to the drawable size and the
// vacated area is filled according to fill. A zero shift leaves d untouched.
//
// The old storage is handed to the context's undo sink and the new storage
// replaces it.
func Offset(img *Image, d Drawable, wrap bool, fill FillPolicy, dx, dy int) error {
	if d.Image() != img {
		return errNotOwned
	}
	w, h := d.Width(), d.Height()
	if wrap {
		dx %= w
		dy %= h
	} else {
		dx = max(-w, min(dx, w))
		dy = max(-h, min(dy, h))
	}
	if dx == 0 && dy == 0 {
		return nil
	}

	busy := img.ctx.busy
	busy.Busy()
	defer busy.Idle()

	old := d.Tiles()
	next := img.ctx.newManager(w, h, old.Bytes())

	center, edges := offsetRects(w, h, dx, dy)
	if !center[0].Empty() {
		tile.CopyRegion(tile.NewRegion(old, center[0], false), tile.NewRegion(next, center[1], true))
	}
	var px []byte
	if !wrap {
		px = fillPixel(img, d, fill)
	}
	for _, e := range edges {
		if wrap {
			tile.CopyRegion(tile.NewRegion(old, e[0], false), tile.NewRegion(next, e[1], true))
		} else {
			tile.FillRegion(tile.NewRegion(next, e[1], true), px)
		}
	}

	full := image.Rect(0, 0, w, h)
	img.ctx.undo.PushPriorState(d, full, old)
	d.SetTiles(next)
	img.Update(d, full)
	return nil
}

// fillPixel returns the pixel that fills vacated areas of d: the background
// color with alpha forced opaque, or all zeros.
func fillPixel(img *Image, d Drawable, fill FillPolicy) []byte {
	px := make([]byte, d.Bytes())
	if fill == FillTransparent {
		return px
	}
	bg := img.ctx.colors.Background()
	switch d.Type().Base() {
	case BaseRGB:
		px[0], px[1], px[2] = bg.R, bg.G, bg.B
	case BaseGray:
		px[0] = gray(bg)
	case BaseIndexed:
		px[0] = nearestIndex(img.colormap, bg)
	}
	if d.HasAlpha() {
		px[len(px)-1] = 255
	}
	return px
}

func gray(c color.NRGBA) uint8 {
	return uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B) + 500) / 1000)
}

// nearestIndex returns the colormap entry closest to c.
func nearestIndex(cmap []byte, c color.NRGBA) uint8 {
	best, bestDist := 0, -1
	for i := 0; i+2 < len(cmap); i += 3 {
		dr := int(cmap[i]) - int(c.R)
		dg := int(cmap[i+1]) - int(c.G)
		db := int(cmap[i+2]) - int(c.B)
		dist := dr*dr + dg*dg + db*db
		if bestDist < 0 || dist < bestDist {
			best, bestDist = i/3, dist
		}
	}
	return uint8(best)
}
