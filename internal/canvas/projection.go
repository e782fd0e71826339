package canvas

import (
	"image"

	"github.com/pspoerri/xcftiles/internal/applog"
	"github.com/pspoerri/xcftiles/internal/composite"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
)

// ProjectionType returns the layout of the projection: gray with alpha for
// gray images, RGBA otherwise.
func (img *Image) ProjectionType() ImageType {
	if img.base == BaseGray {
		return GrayAImage
	}
	return RGBAImage
}

// Projection returns the flattened composite of the image. Its tiles are
// built on first access and rebuilt after Update invalidates them.
func (img *Image) Projection() *tile.Manager {
	if img.projection == nil {
		p := img.ctx.newManager(img.width, img.height, img.ProjectionType().Bytes())
		p.SetValidator(func(m *tile.Manager, c tile.Coord) {
			img.Construct(m.TileRect(c))
		})
		img.projection = p
	}
	return img.projection
}

// ProjectionGet returns the projection pixels of r, packed row by row. r is
// clipped to the image.
func ProjectionGet(img *Image, r image.Rectangle) []byte {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	return tile.ReadPixels(img.Projection(), r)
}

// floatScratch is the part of the floating selection's target that lies in
// the rectangle being constructed, with the floating selection already
// composited onto it.
type floatScratch struct {
	target Drawable
	rect   image.Rectangle // image coordinates
	bpp    int
	buf    []byte
}

func (fs *floatScratch) region(r image.Rectangle) *tile.Region {
	stride := fs.rect.Dx() * fs.bpp
	return tile.NewBufferRegion(fs.buf, fs.bpp, stride, r.Sub(fs.rect.Min))
}

// source opens a read region over the pixels of d that lie at r (image
// coordinates), substituting the floating selection scratch for its target.
func source(d Drawable, r image.Rectangle, fs *floatScratch) *tile.Region {
	if fs != nil && fs.target == d {
		return fs.region(r)
	}
	x, y := d.Offsets()
	return tile.NewRegion(d.Tiles(), r.Sub(image.Pt(x, y)), false)
}

// prepareFloating composites the floating selection over a copy of the part
// of its target that intersects r.
func (img *Image) prepareFloating(r image.Rectangle) *floatScratch {
	fl := img.floating
	if fl == nil || !fl.Visible() {
		return nil
	}
	target := fl.floating
	tr := target.Bounds().Intersect(r)
	if tr.Empty() {
		return nil
	}
	x, y := target.Offsets()
	fs := &floatScratch{
		target: target,
		rect:   tr,
		bpp:    target.Bytes(),
		buf:    tile.ReadPixels(target.Tiles(), tr.Sub(image.Pt(x, y))),
	}
	fr := fl.Bounds().Intersect(tr)
	if fr.Empty() {
		return fs
	}
	fx, fy := fl.Offsets()
	err := composite.CombineRegion(fs.region(fr), tile.NewRegion(fl.tiles, fr.Sub(image.Pt(fx, fy)), false), nil,
		target.Type().Format(), fl.typ.Format(),
		composite.Params{Opacity: fl.Opacity, Mode: fl.Mode, Colormap: img.colormap})
	if err != nil {
		applog.Logger().Warn("floating selection not composited", "layer", fl.name, "target", target.Name(), "error", err)
	}
	return fs
}

// covered reports whether a single visible, opaque layer without alpha
// covers all of r.
func (img *Image) covered(r image.Rectangle) bool {
	for _, l := range img.layers {
		if l == img.floating || !l.Visible() || l.HasAlpha() || l.Opacity != 255 {
			continue
		}
		if l.mask != nil && (l.ApplyMask || l.ShowMask) {
			continue
		}
		if r.In(l.Bounds()) {
			return true
		}
	}
	return false
}

// Construct rebuilds the projection for r: layers bottom to top, then the
// visible channels. Layers that cannot be composited are logged and
// skipped.
func (img *Image) Construct(r image.Rectangle) {
	proj := img.Projection()
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	pt := img.ProjectionType()
	pf := pt.Format()
	log := applog.Logger()

	if !img.covered(r) {
		tile.FillRegion(tile.NewRegion(proj, r, true), make([]byte, pt.Bytes()))
	}

	fs := img.prepareFloating(r)

	initial := true
	for i := len(img.layers) - 1; i >= 0; i-- {
		l := img.layers[i]
		if l == img.floating || !l.Visible() {
			continue
		}
		lr := l.Bounds().Intersect(r)
		if lr.Empty() {
			continue
		}
		var err error
		dst := tile.NewRegion(proj, lr, true)
		switch {
		case l.mask != nil && l.ShowMask:
			err = composite.GrayRegion(dst, source(l.mask, lr, fs), pf)
		default:
			var mask *tile.Region
			if l.mask != nil && l.ApplyMask {
				mask = source(l.mask, lr, fs)
			}
			p := composite.Params{Opacity: l.Opacity, Mode: l.Mode, Colormap: img.colormap}
			src := source(l, lr, fs)
			if initial {
				err = composite.InitialRegion(dst, src, mask, pf, l.typ.Format(), p)
			} else {
				err = composite.CombineRegion(dst, src, mask, pf, l.typ.Format(), p)
			}
		}
		if err != nil {
			log.Warn(img.ctx.printer.Sprintf(i18n.MsgIndexedProjection), "layer", l.name, "error", err)
			continue
		}
		initial = false
	}

	for i := len(img.channels) - 1; i >= 0; i-- {
		c := img.channels[i]
		if !c.Visible() {
			continue
		}
		cr := c.Bounds().Intersect(r)
		if cr.Empty() {
			continue
		}
		p := composite.ChannelParams{Color: c.Color, Opacity: c.Opacity, ShowMasked: c.ShowMasked}
		if err := composite.ChannelRegion(tile.NewRegion(proj, cr, true), source(c, cr, fs), pf, p, initial); err != nil {
			log.Warn("channel not composited", "channel", c.name, "error", err)
			continue
		}
		initial = false
	}
}

// Flatten returns the whole projection as an NRGBA image.
func (img *Image) Flatten() *image.NRGBA {
	return toNRGBA(img.Projection(), img.ProjectionType())
}

// Thumbnail returns a reduced projection whose sides are at least minSide
// pixels where the image allows it. Reduction is done by the projection's
// box-filtered levels; callers scale the result to the exact size.
func (img *Image) Thumbnail(minSide int) *image.NRGBA {
	proj := img.Projection()
	tile.ReadPixels(proj, proj.Bounds())
	return toNRGBA(proj.LevelFor(minSide), img.ProjectionType())
}

func toNRGBA(m *tile.Manager, t ImageType) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, m.Width(), m.Height()))
	pix := tile.ReadPixels(m, m.Bounds())
	if t == RGBAImage {
		copy(out.Pix, pix)
		return out
	}
	for i, o := 0, 0; i < len(pix); i, o = i+2, o+4 {
		v := pix[i]
		out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = v, v, v, pix[i+1]
	}
	return out
}
