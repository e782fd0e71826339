package encode

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/pspoerri/xcftiles/internal/canvas"
)

// FitSize returns the size of a w×h image scaled down to fit in a
// maxSize×maxSize box, keeping the aspect ratio. Images that already fit,
// or a maxSize of zero, leave the size unchanged.
func FitSize(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	if w >= h {
		return maxSize, max(1, h*maxSize/w)
	}
	return max(1, w*maxSize/h), maxSize
}

// Thumbnail returns the projection of img scaled to fit in a
// maxSize×maxSize box. The projection's box-filtered levels do the bulk of
// the reduction and Catmull-Rom resampling produces the exact size. A
// maxSize of zero returns the full projection.
func Thumbnail(img *canvas.Image, maxSize int) *image.NRGBA {
	w, h := FitSize(img.Width(), img.Height(), maxSize)
	if w == img.Width() && h == img.Height() {
		return img.Flatten()
	}
	src := img.Thumbnail(min(w, h))
	if b := src.Bounds(); b.Dx() == w && b.Dy() == h {
		return src
	}
	return Scale(src, w, h)
}

// Scale resamples src to w×h with a Catmull-Rom filter.
func Scale(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
