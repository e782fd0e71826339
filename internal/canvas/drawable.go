package canvas

import (
	"fmt"
	"image"

	"github.com/pspoerri/xcftiles/internal/composite"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
)

// BaseType is the color model of an image.
type BaseType uint32

const (
	BaseRGB BaseType = iota
	BaseGray
	BaseIndexed
)

func (b BaseType) String() string {
	switch b {
	case BaseRGB:
		return "RGB"
	case BaseGray:
		return "grayscale"
	case BaseIndexed:
		return "indexed"
	}
	return fmt.Sprintf("BaseType(%d)", uint32(b))
}

// ImageType is the pixel layout of a drawable. The numeric values are those
// stored in XCF layer records.
type ImageType uint32

const (
	RGBImage ImageType = iota
	RGBAImage
	GrayImage
	GrayAImage
	IndexedImage
	IndexedAImage
)

// TypeFor returns the drawable type for base with or without alpha.
func TypeFor(base BaseType, alpha bool) ImageType {
	t := ImageType(base) * 2
	if alpha {
		t++
	}
	return t
}

func (t ImageType) Valid() bool { return t <= IndexedAImage }

func (t ImageType) Base() BaseType { return BaseType(t / 2) }

func (t ImageType) HasAlpha() bool { return t%2 == 1 }

// Format returns the compositor pixel format of t.
func (t ImageType) Format() composite.Format {
	var k composite.Kind
	switch t.Base() {
	case BaseRGB:
		k = composite.RGB
	case BaseGray:
		k = composite.Gray
	default:
		k = composite.Indexed
	}
	return composite.Format{Kind: k, Alpha: t.HasAlpha()}
}

// Bytes returns the number of bytes per pixel.
func (t ImageType) Bytes() int { return t.Format().Bytes() }

func (t ImageType) String() string {
	s := t.Base().String()
	if t.HasAlpha() {
		s += " with alpha"
	}
	return s
}

// Tattoo is a drawable identifier that survives save and load.
type Tattoo uint32

// Drawable is anything that owns pixel storage placed in an image: layers,
// channels and layer masks.
type Drawable interface {
	ID() int
	Tattoo() Tattoo
	SetTattoo(Tattoo)
	Name() string
	SetName(string)
	Tiles() *tile.Manager
	SetTiles(*tile.Manager)
	Type() ImageType
	Width() int
	Height() int
	Bytes() int
	HasAlpha() bool
	Offsets() (x, y int)
	SetOffsets(x, y int)
	Bounds() image.Rectangle
	Visible() bool
	SetVisible(bool)
	Parasites() *ParasiteList
	Image() *Image

	common() *drawable
}

// drawable holds the state shared by every Drawable.
type drawable struct {
	id        int
	tattoo    Tattoo
	name      string
	tiles     *tile.Manager
	typ       ImageType
	offX      int
	offY      int
	visible   bool
	parasites *ParasiteList
	img       *Image
}

func (img *Image) newDrawable(name string, width, height int, typ ImageType, self Drawable) drawable {
	if !typ.Valid() {
		panic(fmt.Sprintf("canvas: invalid drawable type %d", typ))
	}
	return drawable{
		id:        img.ctx.registry.add(self),
		tattoo:    img.NextTattoo(),
		name:      name,
		tiles:     img.ctx.newManager(width, height, typ.Bytes()),
		typ:       typ,
		visible:   true,
		parasites: NewParasiteList(),
		img:       img,
	}
}

func (d *drawable) common() *drawable { return d }

func (d *drawable) ID() int                  { return d.id }
func (d *drawable) Tattoo() Tattoo           { return d.tattoo }
func (d *drawable) Name() string             { return d.name }
func (d *drawable) SetName(name string)      { d.name = name }
func (d *drawable) Tiles() *tile.Manager     { return d.tiles }
func (d *drawable) Type() ImageType          { return d.typ }
func (d *drawable) Width() int               { return d.tiles.Width() }
func (d *drawable) Height() int              { return d.tiles.Height() }
func (d *drawable) Bytes() int               { return d.typ.Bytes() }
func (d *drawable) HasAlpha() bool           { return d.typ.HasAlpha() }
func (d *drawable) Offsets() (int, int)      { return d.offX, d.offY }
func (d *drawable) Visible() bool            { return d.visible }
func (d *drawable) SetVisible(v bool)        { d.visible = v }
func (d *drawable) Parasites() *ParasiteList { return d.parasites }
func (d *drawable) Image() *Image            { return d.img }

// SetTattoo sets the tattoo and keeps the image's tattoo counter ahead of it.
func (d *drawable) SetTattoo(t Tattoo) {
	d.tattoo = t
	if d.img != nil && t > d.img.tattoo {
		d.img.tattoo = t
	}
}

// SetTiles replaces the pixel storage. The new manager must have the
// drawable's depth.
func (d *drawable) SetTiles(m *tile.Manager) {
	if m.Bytes() != d.typ.Bytes() {
		panic(fmt.Sprintf("canvas: %d bytes per pixel storage for %v drawable", m.Bytes(), d.typ))
	}
	if c := d.img.ctx.cache; c != nil {
		m.SetCache(c)
	}
	d.tiles = m
}

func (d *drawable) SetOffsets(x, y int) { d.offX, d.offY = x, y }

// Bounds returns the drawable's rectangle in image coordinates.
func (d *drawable) Bounds() image.Rectangle {
	return image.Rect(d.offX, d.offY, d.offX+d.tiles.Width(), d.offY+d.tiles.Height())
}

// Layer is a drawable in the image's layer stack.
type Layer struct {
	drawable

	Opacity              uint8
	Mode                 composite.Mode
	PreserveTransparency bool
	ApplyMask            bool
	EditMask             bool
	ShowMask             bool
	Linked               bool

	mask     *LayerMask
	floating Drawable // target while this layer is the floating selection
}

// NewLayer creates a layer of img. It is not part of the stack until
// AddLayer or AttachFloating is called.
func (img *Image) NewLayer(name string, width, height int, typ ImageType, opacity uint8, mode composite.Mode) *Layer {
	l := &Layer{Opacity: opacity, Mode: mode}
	l.drawable = img.newDrawable(name, width, height, typ, l)
	return l
}

// Mask returns the layer mask, or nil.
func (l *Layer) Mask() *LayerMask { return l.mask }

// SetOffsets moves the layer together with its mask.
func (l *Layer) SetOffsets(x, y int) {
	l.drawable.SetOffsets(x, y)
	if l.mask != nil {
		l.mask.drawable.SetOffsets(x, y)
	}
}

// IsFloating reports whether l is the image's floating selection.
func (l *Layer) IsFloating() bool { return l.floating != nil }

// FloatingTarget returns the drawable the floating selection is attached
// to, or nil.
func (l *Layer) FloatingTarget() Drawable { return l.floating }

// AddMask attaches m to l. The mask must have the layer's size; it takes the
// layer's offsets.
func (l *Layer) AddMask(m *LayerMask) error {
	if l.mask != nil {
		return fmt.Errorf("layer %q already has a mask", l.name)
	}
	if m.Width() != l.Width() || m.Height() != l.Height() {
		return fmt.Errorf("mask %dx%d does not match layer %q %dx%d",
			m.Width(), m.Height(), l.name, l.Width(), l.Height())
	}
	m.layer = l
	m.drawable.SetOffsets(l.offX, l.offY)
	l.mask = m
	l.ApplyMask = true
	if l.img != nil {
		l.img.Update(l, image.Rect(0, 0, l.Width(), l.Height()))
	}
	return nil
}

// RemoveMask detaches and returns the mask.
func (l *Layer) RemoveMask() *LayerMask {
	m := l.mask
	if m == nil {
		return nil
	}
	l.mask = nil
	m.layer = nil
	l.ApplyMask, l.EditMask, l.ShowMask = false, false, false
	if l.img != nil {
		l.img.Update(l, image.Rect(0, 0, l.Width(), l.Height()))
	}
	return m
}

// Channel is a single-byte drawable: a saved selection or the image's
// selection mask.
type Channel struct {
	drawable

	Color      [3]uint8
	Opacity    uint8
	ShowMasked bool
	Linked     bool
}

// NewChannel creates a gray channel of img.
func (img *Image) NewChannel(name string, width, height int, opacity uint8, color [3]uint8) *Channel {
	c := &Channel{Color: color, Opacity: opacity}
	c.drawable = img.newDrawable(name, width, height, GrayImage, c)
	return c
}

// LayerMask is a channel bound to exactly one layer.
type LayerMask struct {
	Channel

	layer *Layer
}

// NewLayerMask creates a mask for l filled with value, without attaching it.
func (img *Image) NewLayerMask(l *Layer, value uint8) *LayerMask {
	m := &LayerMask{}
	m.Channel = Channel{Opacity: 255}
	m.drawable = img.newDrawable(img.ctx.printer.Sprintf(i18n.MsgLayerMask, l.Name()), l.Width(), l.Height(), GrayImage, m)
	if value != 0 {
		tile.Fill(m.tiles, []byte{value})
	}
	return m
}

// Layer returns the layer the mask is attached to, or nil.
func (m *LayerMask) Layer() *Layer { return m.layer }
