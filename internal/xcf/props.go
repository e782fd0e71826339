package xcf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pspoerri/xcftiles/internal/canvas"
)

// property is one decoded property record. Each kind is its own type; the
// loader applies them with a type switch.
type property interface {
	tag() propTag
	encode(w *payloadWriter)
}

type (
	propColormap          struct{ cmap []byte }
	propActiveLayer       struct{}
	propActiveChannel     struct{}
	propSelection         struct{}
	propFloatingSelection struct{ offset uint32 }
	propOpacity           uint8
	propMode              uint32
	propVisible           bool
	propLinked            bool
	propPreserveTransp    bool
	propApplyMask         bool
	propEditMask          bool
	propShowMask          bool
	propShowMasked        bool
	propOffsets           struct{ x, y int32 }
	propColor             [3]uint8
	propCompression       canvas.Compression
	propGuides            []canvas.Guide
	propResolution        struct{ x, y float32 }
	propTattoo            canvas.Tattoo
	propParasites         []canvas.Parasite
	propUnit              uint32
	propPaths             struct {
		active int
		paths  []*canvas.Path
	}
	// propUnknown carries a record the loader does not interpret.
	propUnknown struct {
		t    propTag
		data []byte
	}
)

func (propColormap) tag() propTag          { return tagColormap }
func (propActiveLayer) tag() propTag       { return tagActiveLayer }
func (propActiveChannel) tag() propTag     { return tagActiveChannel }
func (propSelection) tag() propTag         { return tagSelection }
func (propFloatingSelection) tag() propTag { return tagFloatingSelection }
func (propOpacity) tag() propTag           { return tagOpacity }
func (propMode) tag() propTag              { return tagMode }
func (propVisible) tag() propTag           { return tagVisible }
func (propLinked) tag() propTag            { return tagLinked }
func (propPreserveTransp) tag() propTag    { return tagPreserveTransparency }
func (propApplyMask) tag() propTag         { return tagApplyMask }
func (propEditMask) tag() propTag          { return tagEditMask }
func (propShowMask) tag() propTag          { return tagShowMask }
func (propShowMasked) tag() propTag        { return tagShowMasked }
func (propOffsets) tag() propTag           { return tagOffsets }
func (propColor) tag() propTag             { return tagColor }
func (propCompression) tag() propTag       { return tagCompression }
func (propGuides) tag() propTag            { return tagGuides }
func (propResolution) tag() propTag        { return tagResolution }
func (propTattoo) tag() propTag            { return tagTattoo }
func (propParasites) tag() propTag         { return tagParasites }
func (propUnit) tag() propTag              { return tagUnit }
func (propPaths) tag() propTag             { return tagPaths }
func (p propUnknown) tag() propTag         { return p.t }

func (p propColormap) encode(w *payloadWriter) {
	w.u32(uint32(len(p.cmap) / 3))
	w.bytes(p.cmap)
}

func (propActiveLayer) encode(*payloadWriter)   {}
func (propActiveChannel) encode(*payloadWriter) {}
func (propSelection) encode(*payloadWriter)     {}

func (p propFloatingSelection) encode(w *payloadWriter) { w.u32(p.offset) }
func (p propOpacity) encode(w *payloadWriter)           { w.u32(uint32(p)) }
func (p propMode) encode(w *payloadWriter)              { w.u32(uint32(p)) }
func (p propVisible) encode(w *payloadWriter)           { w.bool(bool(p)) }
func (p propLinked) encode(w *payloadWriter)            { w.bool(bool(p)) }
func (p propPreserveTransp) encode(w *payloadWriter)    { w.bool(bool(p)) }
func (p propApplyMask) encode(w *payloadWriter)         { w.bool(bool(p)) }
func (p propEditMask) encode(w *payloadWriter)          { w.bool(bool(p)) }
func (p propShowMask) encode(w *payloadWriter)          { w.bool(bool(p)) }
func (p propShowMasked) encode(w *payloadWriter)        { w.bool(bool(p)) }
func (p propColor) encode(w *payloadWriter)             { w.bytes(p[:]) }
func (p propCompression) encode(w *payloadWriter)       { w.u8(uint8(p)) }
func (p propTattoo) encode(w *payloadWriter)            { w.u32(uint32(p)) }
func (p propUnit) encode(w *payloadWriter)              { w.u32(p) }
func (p propUnknown) encode(w *payloadWriter)           { w.bytes(p.data) }

func (p propOffsets) encode(w *payloadWriter) {
	w.u32(uint32(p.x))
	w.u32(uint32(p.y))
}

func (p propGuides) encode(w *payloadWriter) {
	for _, g := range p {
		w.u32(uint32(int32(g.Position)))
		w.u8(uint8(g.Orientation))
	}
}

func (p propResolution) encode(w *payloadWriter) {
	w.f32(p.x)
	w.f32(p.y)
}

func (p propParasites) encode(w *payloadWriter) {
	for _, par := range p {
		w.str(par.Name)
		w.u32(uint32(par.Flags))
		w.u32(uint32(len(par.Data)))
		w.bytes(par.Data)
	}
}

// pathVersion is the path record layout written by Save: float points plus
// a path type and tattoo.
const pathVersion = 3

func (p propPaths) encode(w *payloadWriter) {
	w.u32(uint32(p.active))
	w.u32(uint32(len(p.paths)))
	for _, path := range p.paths {
		w.str(path.Name)
		w.bool(path.Locked)
		w.u8(path.State)
		w.bool(path.Closed)
		w.u32(uint32(len(path.Points)))
		w.u32(pathVersion)
		w.u32(path.Type)
		w.u32(uint32(path.Tattoo))
		for _, pt := range path.Points {
			w.u32(pt.Type)
			w.f32(float32(pt.X))
			w.f32(float32(pt.Y))
		}
	}
}

// decodeProperty parses the body of a record with tag t. version is the
// file version; version 0 files did not store colormaps correctly.
func decodeProperty(t propTag, body []byte, version int) (property, error) {
	p := &payload{b: body}
	var prop property
	switch t {
	case tagColormap:
		n := int(p.u32())
		if n > 256 {
			return nil, fmt.Errorf("%w: colormap of %d entries", ErrCorrupt, n)
		}
		cmap := make([]byte, 3*n)
		if version == 0 {
			for i := range n {
				cmap[3*i], cmap[3*i+1], cmap[3*i+2] = byte(i), byte(i), byte(i)
			}
		} else {
			copy(cmap, p.take(3*n))
		}
		prop = propColormap{cmap: cmap}
	case tagActiveLayer:
		prop = propActiveLayer{}
	case tagActiveChannel:
		prop = propActiveChannel{}
	case tagSelection:
		prop = propSelection{}
	case tagFloatingSelection:
		prop = propFloatingSelection{offset: p.u32()}
	case tagOpacity:
		prop = propOpacity(min(p.u32(), 255))
	case tagMode:
		prop = propMode(p.u32())
	case tagVisible:
		prop = propVisible(p.u32() != 0)
	case tagLinked:
		prop = propLinked(p.u32() != 0)
	case tagPreserveTransparency:
		prop = propPreserveTransp(p.u32() != 0)
	case tagApplyMask:
		prop = propApplyMask(p.u32() != 0)
	case tagEditMask:
		prop = propEditMask(p.u32() != 0)
	case tagShowMask:
		prop = propShowMask(p.u32() != 0)
	case tagShowMasked:
		prop = propShowMasked(p.u32() != 0)
	case tagOffsets:
		prop = propOffsets{x: p.i32(), y: p.i32()}
	case tagColor:
		var c propColor
		copy(c[:], p.take(3))
		prop = c
	case tagCompression:
		prop = propCompression(p.u8())
	case tagGuides:
		guides := make(propGuides, 0, len(body)/5)
		for range len(body) / 5 {
			pos := p.i32()
			guides = append(guides, canvas.Guide{Position: int(pos), Orientation: canvas.Orientation(int8(p.u8()))})
		}
		prop = guides
	case tagResolution:
		prop = propResolution{x: p.f32(), y: p.f32()}
	case tagTattoo:
		prop = propTattoo(p.u32())
	case tagParasites:
		var list propParasites
		for len(p.b) > 0 && p.err == nil {
			par := canvas.Parasite{Name: p.str()}
			par.Flags = canvas.ParasiteFlags(p.u32())
			par.Data = bytes.Clone(p.take(int(p.u32())))
			list = append(list, par)
		}
		prop = list
	case tagUnit:
		prop = propUnit(p.u32())
	case tagPaths:
		prop = decodePaths(p)
	default:
		prop = propUnknown{t: t, data: body}
	}
	if p.err != nil {
		return nil, fmt.Errorf("property %v: %w", t, p.err)
	}
	return prop, nil
}

func decodePaths(p *payload) propPaths {
	out := propPaths{active: int(p.u32())}
	n := p.u32()
	for i := uint32(0); i < n && p.err == nil; i++ {
		path := &canvas.Path{Name: p.str()}
		path.Locked = p.u32() != 0
		path.State = p.u8()
		path.Closed = p.u32() != 0
		npoints := p.u32()
		version := p.u32()
		switch version {
		case 1:
		case 2:
			path.Type = p.u32()
		case 3:
			path.Type = p.u32()
			path.Tattoo = canvas.Tattoo(p.u32())
		default:
			p.fail(fmt.Errorf("%w: path version %d", ErrCorrupt, version))
		}
		for j := uint32(0); j < npoints && p.err == nil; j++ {
			pt := canvas.PathPoint{Type: p.u32()}
			if version == 3 {
				pt.X, pt.Y = float64(p.f32()), float64(p.f32())
			} else {
				pt.X, pt.Y = float64(p.i32()), float64(p.i32())
			}
			path.Points = append(path.Points, pt)
		}
		out.paths = append(out.paths, path)
	}
	return out
}

// payload reads big-endian values from a property body. The first
// failure sticks; later reads return zero values.
type payload struct {
	b   []byte
	err error
}

func (p *payload) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *payload) take(n int) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 || n > len(p.b) {
		p.fail(fmt.Errorf("%w: property body truncated", ErrCorrupt))
		return nil
	}
	v := p.b[:n]
	p.b = p.b[n:]
	return v
}

func (p *payload) u32() uint32 {
	if b := p.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (p *payload) u8() uint8 {
	if b := p.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (p *payload) i32() int32   { return int32(p.u32()) }
func (p *payload) f32() float32 { return math.Float32frombits(p.u32()) }

func (p *payload) str() string {
	n := p.u32()
	if n == 0 {
		return ""
	}
	if n > maxString {
		p.fail(fmt.Errorf("%w: string of %d bytes", ErrCorrupt, n))
		return ""
	}
	return string(bytes.TrimSuffix(p.take(int(n)), []byte{0}))
}

// payloadWriter accumulates a property body.
type payloadWriter struct{ b []byte }

func (w *payloadWriter) u32(v uint32)   { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *payloadWriter) u8(v uint8)     { w.b = append(w.b, v) }
func (w *payloadWriter) f32(v float32)  { w.u32(math.Float32bits(v)) }
func (w *payloadWriter) bytes(p []byte) { w.b = append(w.b, p...) }
func (w *payloadWriter) str(s string)   { w.b = appendString(w.b, s) }
func (w *payloadWriter) bool(v bool)    { w.u32(b2u(v)) }

// appendString appends s in file form: a length that counts the trailing
// NUL, then the bytes. The empty string is a bare zero length.
func appendString(b []byte, s string) []byte {
	if s == "" {
		return binary.BigEndian.AppendUint32(b, 0)
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)+1))
	b = append(b, s...)
	return append(b, 0)
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
