package encode

import (
	"errors"
	"image"
	"image/color"

	"github.com/pspoerri/xcftiles/internal/canvas"
	"github.com/pspoerri/xcftiles/internal/composite"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
)

var errEmptyImage = errors.New("image has no pixels")

// Import builds a single-layer image from a flat image. Gray sources become
// gray images, paletted sources indexed images and everything else RGB. The
// layer gets an alpha channel only when src has translucent pixels.
func Import(ctx *canvas.Context, src image.Image) (*canvas.Image, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, errEmptyImage
	}
	alpha := !opaque(src)

	var (
		base canvas.BaseType
		pix  []byte
		cmap []byte
	)
	switch s := src.(type) {
	case *image.Gray, *image.Gray16:
		base = canvas.BaseGray
		pix = grayPixels(src)
	case *image.Paletted:
		if len(s.Palette) > 256 {
			base = canvas.BaseRGB
			pix = rgbPixels(src, alpha)
			break
		}
		base = canvas.BaseIndexed
		cmap, pix = indexedPixels(s, alpha)
	default:
		base = canvas.BaseRGB
		pix = rgbPixels(src, alpha)
	}

	img := canvas.NewImage(ctx, w, h, base)
	if cmap != nil {
		if err := img.SetColormap(cmap); err != nil {
			img.Delete()
			return nil, err
		}
	}
	typ := canvas.TypeFor(base, alpha)
	l := img.NewLayer(ctx.Printer().Sprintf(i18n.MsgBackground), w, h, typ, 255, composite.Normal)
	tile.WritePixels(l.Tiles(), image.Rect(0, 0, w, h), pix)
	if err := img.AddLayer(l, 0); err != nil {
		img.Delete()
		return nil, err
	}
	return img, nil
}

func opaque(src image.Image) bool {
	if o, ok := src.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := src.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

func grayPixels(src image.Image) []byte {
	b := src.Bounds()
	pix := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pix = append(pix, color.GrayModel.Convert(src.At(x, y)).(color.Gray).Y)
		}
	}
	return pix
}

func rgbPixels(src image.Image, alpha bool) []byte {
	b := src.Bounds()
	bpp := 3
	if alpha {
		bpp = 4
	}
	pix := make([]byte, 0, b.Dx()*b.Dy()*bpp)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
			if alpha {
				pix = append(pix, c.A)
			}
		}
	}
	return pix
}

// indexedPixels returns the colormap of p and its pixels as indices, each
// followed by the entry's alpha when alpha is set.
func indexedPixels(p *image.Paletted, alpha bool) (cmap, pix []byte) {
	cmap = make([]byte, 0, 3*len(p.Palette))
	alphas := make([]byte, len(p.Palette))
	for i, c := range p.Palette {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		cmap = append(cmap, n.R, n.G, n.B)
		alphas[i] = n.A
	}
	b := p.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := p.ColorIndexAt(x, y)
			pix = append(pix, i)
			if alpha {
				a := byte(0)
				if int(i) < len(alphas) {
					a = alphas[i]
				}
				pix = append(pix, a)
			}
		}
	}
	return cmap, pix
}
