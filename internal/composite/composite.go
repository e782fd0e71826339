package composite

import (
	"fmt"

	"github.com/pspoerri/xcftiles/internal/tile"
)

// Params controls how a layer is composited.
type Params struct {
	Opacity  uint8
	Mode     Mode
	Colormap []byte // indexed sources only, 3 bytes per entry
}

// ChannelParams controls how a channel tints the destination.
type ChannelParams struct {
	Color      [3]uint8
	Opacity    uint8
	ShowMasked bool // tint where the channel is empty instead of where it is set
}

// dissolve keeps a pixel fully opaque with probability a/255, decided by a
// fixed hash of its position so that repeated constructions agree.
func dissolve(a uint8, x, y int) uint8 {
	h := uint32(x)*0x9e3779b1 ^ uint32(y)*0x85ebca77
	h ^= h >> 15
	h *= 0x2c1b3c6d
	h ^= h >> 12
	if uint8(h>>24) < a {
		return 255
	}
	return 0
}

// mix returns s*r + d*(255-r), scaled back to 8 bits.
func mix(s, d, r uint8) uint8 {
	return uint8((uint32(s)*uint32(r) + uint32(d)*uint32(255-r) + 127) / 255)
}

func initialSpan(d, s tile.Span, m *tile.Span, df, sf Format, p *Params) {
	db, sb := df.Bytes(), sf.Bytes()
	for y := 0; y < d.H; y++ {
		drow, srow := d.Row(y), s.Row(y)
		var mrow []byte
		if m != nil {
			mrow = m.Row(y)
		}
		for x := 0; x < d.W; x++ {
			px := sf.load(srow[x*sb:], p.Colormap)
			a := mul(px.a, p.Opacity)
			if mrow != nil {
				a = mul(a, mrow[x])
			}
			if p.Mode == Dissolve {
				a = dissolve(a, d.X+x, d.Y+y)
			}
			px.a = a
			df.store(drow[x*db:], px)
		}
	}
}

func combineSpan(d, s tile.Span, m *tile.Span, df, sf Format, p *Params) {
	db, sb := df.Bytes(), sf.Bytes()
	gray := df.Kind == Gray
	separate := p.Mode.separate()
	for y := 0; y < d.H; y++ {
		drow, srow := d.Row(y), s.Row(y)
		var mrow []byte
		if m != nil {
			mrow = m.Row(y)
		}
		for x := 0; x < d.W; x++ {
			dp := drow[x*db:]
			src := sf.load(srow[x*sb:], p.Colormap)
			dst := df.load(dp, nil)
			if separate {
				src = p.Mode.blend(src, dst, gray)
				src.a = min(src.a, dst.a)
			}
			a := mul(src.a, p.Opacity)
			if mrow != nil {
				a = mul(a, mrow[x])
			}
			if p.Mode == Dissolve {
				a = dissolve(a, d.X+x, d.Y+y)
			}
			if a == 0 {
				continue
			}
			na := dst.a + mul(255-dst.a, a)
			r := uint8((uint32(a)*255 + uint32(na)/2) / uint32(na))
			df.store(dp, pixel{
				r: mix(src.r, dst.r, r),
				g: mix(src.g, dst.g, r),
				b: mix(src.b, dst.b, r),
				a: na,
			})
		}
	}
}

func channelSpan(d, c tile.Span, df Format, p *ChannelParams, initial bool) {
	db := df.Bytes()
	tint := pixel{p.Color[0], p.Color[1], p.Color[2], 0}
	for y := 0; y < d.H; y++ {
		drow, crow := d.Row(y), c.Row(y)
		for x := 0; x < d.W; x++ {
			v := crow[x]
			if p.ShowMasked {
				v = 255 - v
			}
			a := mul(v, p.Opacity)
			dp := drow[x*db:]
			if initial {
				px := tint
				px.a = a
				df.store(dp, px)
				continue
			}
			dst := df.load(dp, nil)
			dst.r = mix(tint.r, dst.r, a)
			dst.g = mix(tint.g, dst.g, a)
			dst.b = mix(tint.b, dst.b, a)
			df.store(dp, dst)
		}
	}
}

func graySpan(d, s tile.Span, df Format) {
	db := df.Bytes()
	for y := 0; y < d.H; y++ {
		drow, srow := d.Row(y), s.Row(y)
		for x := 0; x < d.W; x++ {
			v := srow[x]
			df.store(drow[x*db:], pixel{v, v, v, 255})
		}
	}
}

func checkBytes(r *tile.Region, f Format, what string) {
	if r.Bytes() != f.Bytes() {
		panic(fmt.Sprintf("composite: %s has %d bytes per pixel, format %v needs %d",
			what, r.Bytes(), f, f.Bytes()))
	}
}

func walk(dst, src, mask *tile.Region, fn func(d, s tile.Span, m *tile.Span)) {
	if mask != nil {
		if mask.Bytes() != 1 {
			panic(fmt.Sprintf("composite: mask has %d bytes per pixel", mask.Bytes()))
		}
		for spans := range tile.Portions(dst, src, mask) {
			fn(spans[0], spans[1], &spans[2])
		}
		return
	}
	for spans := range tile.Portions(dst, src) {
		fn(spans[0], spans[1], nil)
	}
}

// InitialRegion writes src into dst, attenuated by the opacity and by mask
// when it is not nil. It is used for the first content drawn at a location.
func InitialRegion(dst, src, mask *tile.Region, df, sf Format, p Params) error {
	if df.Kind == Indexed {
		return ErrIndexedDest
	}
	checkBytes(dst, df, "destination")
	checkBytes(src, sf, "source")
	walk(dst, src, mask, func(d, s tile.Span, m *tile.Span) {
		initialSpan(d, s, m, df, sf, &p)
	})
	return nil
}

// CombineRegion composites src over the content already in dst.
func CombineRegion(dst, src, mask *tile.Region, df, sf Format, p Params) error {
	if df.Kind == Indexed {
		return ErrIndexedDest
	}
	if sf == FormatIndexed {
		return ErrIndexedCombine
	}
	checkBytes(dst, df, "destination")
	checkBytes(src, sf, "source")
	walk(dst, src, mask, func(d, s tile.Span, m *tile.Span) {
		combineSpan(d, s, m, df, sf, &p)
	})
	return nil
}

// ChannelRegion tints dst with the channel color where ch is set (or unset,
// with ShowMasked). On the initial path the tint replaces dst; otherwise it
// is blended onto dst and dst keeps its alpha.
func ChannelRegion(dst, ch *tile.Region, df Format, p ChannelParams, initial bool) error {
	if df.Kind == Indexed {
		return ErrIndexedDest
	}
	checkBytes(dst, df, "destination")
	checkBytes(ch, FormatGray, "channel")
	for spans := range tile.Portions(dst, ch) {
		channelSpan(spans[0], spans[1], df, &p, initial)
	}
	return nil
}

// GrayRegion copies the gray values of src into dst as opaque pixels.
func GrayRegion(dst, src *tile.Region, df Format) error {
	if df.Kind == Indexed {
		return ErrIndexedDest
	}
	checkBytes(dst, df, "destination")
	checkBytes(src, FormatGray, "source")
	for spans := range tile.Portions(dst, src) {
		graySpan(spans[0], spans[1], df)
	}
	return nil
}
