// Package canvas models images: a stack of layers and channels, the
// selection mask, an optional floating selection and the metadata that is
// stored with them. It builds the flattened projection of an image and
// implements the offset and duplicate operations.
//
// Everything here is single-threaded; an Image and its drawables must not be
// used from more than one goroutine at a time.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
)

// Compression is the tile compression an image is saved with. The numeric
// values are those stored in XCF files.
type Compression uint8

const (
	CompressNone Compression = iota
	CompressRLE
	CompressZlib
	CompressFractal
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressRLE:
		return "rle"
	case CompressZlib:
		return "zlib"
	case CompressFractal:
		return "fractal"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// Image is a layered image.
type Image struct {
	ctx    *Context
	id     int
	width  int
	height int
	base   BaseType

	layers    []*Layer // index 0 is the top of the stack
	channels  []*Channel
	selection *Channel
	floating  *Layer

	colormap   []byte
	guides     []Guide
	parasites  *ParasiteList
	paths      []*Path
	activePath int
	tattoo     Tattoo

	activeLayer   *Layer
	activeChannel *Channel

	projection *tile.Manager

	region    observers[RegionEvent]
	structure observers[StructureEvent]

	XResolution float64
	YResolution float64
	Unit        uint32
	Compression Compression
	Filename    string
}

// NewImage creates an empty image with a cleared selection mask.
func NewImage(ctx *Context, width, height int, base BaseType) *Image {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("canvas: invalid image size %dx%d", width, height))
	}
	img := &Image{
		ctx:         ctx,
		width:       width,
		height:      height,
		base:        base,
		parasites:   NewParasiteList(),
		XResolution: 72,
		YResolution: 72,
		Compression: CompressRLE,
	}
	img.id = ctx.registry.add(img)
	img.selection = img.NewChannel(ctx.printer.Sprintf(i18n.MsgSelectionMask), width, height, 127, [3]uint8{})
	img.selection.visible = false
	return img
}

func (img *Image) Context() *Context    { return img.ctx }
func (img *Image) ID() int              { return img.id }
func (img *Image) Width() int           { return img.width }
func (img *Image) Height() int          { return img.height }
func (img *Image) Base() BaseType       { return img.base }
func (img *Image) Layers() []*Layer     { return img.layers }
func (img *Image) Channels() []*Channel { return img.channels }
func (img *Image) Selection() *Channel  { return img.selection }
func (img *Image) Floating() *Layer     { return img.floating }
func (img *Image) Colormap() []byte     { return img.colormap }

func (img *Image) Parasites() *ParasiteList { return img.parasites }

func (img *Image) ActiveLayer() *Layer     { return img.activeLayer }
func (img *Image) ActiveChannel() *Channel { return img.activeChannel }

func (img *Image) SetActiveLayer(l *Layer)     { img.activeLayer = l }
func (img *Image) SetActiveChannel(c *Channel) { img.activeChannel = c }

// Bounds returns the image rectangle.
func (img *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.width, img.height)
}

// NextTattoo returns a new tattoo unique within the image.
func (img *Image) NextTattoo() Tattoo {
	img.tattoo++
	return img.tattoo
}

// TattooState returns the highest tattoo handed out so far.
func (img *Image) TattooState() Tattoo { return img.tattoo }

// SetTattooState raises the tattoo counter to t.
func (img *Image) SetTattooState(t Tattoo) {
	if t > img.tattoo {
		img.tattoo = t
	}
}

var (
	errNotOwned     = errors.New("drawable belongs to another image")
	errNotInImage   = errors.New("drawable is not part of the image")
	errInImage      = errors.New("drawable is already part of the image")
	errFloatingMove = errors.New("floating selection cannot be moved in the layer stack")
)

// AddLayer inserts l at stack position at (0 is the top). Positions outside
// the stack are clamped.
func (img *Image) AddLayer(l *Layer, at int) error {
	if l.img != img {
		return errNotOwned
	}
	if slices.Contains(img.layers, l) {
		return errInImage
	}
	at = max(0, min(at, len(img.layers)))
	img.layers = slices.Insert(img.layers, at, l)
	if img.activeLayer == nil {
		img.activeLayer = l
	}
	img.structure.emit(StructureEvent{Image: img, Kind: LayerAdded, Drawable: l})
	img.Update(l, image.Rect(0, 0, l.Width(), l.Height()))
	return nil
}

// RemoveLayer takes l out of the stack. Removing the floating selection
// detaches it.
func (img *Image) RemoveLayer(l *Layer) error {
	if l == img.floating {
		img.DetachFloating()
		return nil
	}
	i := slices.Index(img.layers, l)
	if i < 0 {
		return errNotInImage
	}
	img.Update(l, image.Rect(0, 0, l.Width(), l.Height()))
	img.layers = slices.Delete(img.layers, i, i+1)
	if img.activeLayer == l {
		img.activeLayer = nil
		if len(img.layers) > 0 {
			img.activeLayer = img.layers[min(i, len(img.layers)-1)]
		}
	}
	img.structure.emit(StructureEvent{Image: img, Kind: LayerRemoved, Drawable: l})
	return nil
}

// LayerIndex returns the stack position of l, or -1.
func (img *Image) LayerIndex(l *Layer) int { return slices.Index(img.layers, l) }

// RaiseLayer moves l one position towards the top.
func (img *Image) RaiseLayer(l *Layer) error { return img.moveLayer(l, -1) }

// LowerLayer moves l one position towards the bottom.
func (img *Image) LowerLayer(l *Layer) error { return img.moveLayer(l, 1) }

func (img *Image) moveLayer(l *Layer, step int) error {
	if l == img.floating {
		return errFloatingMove
	}
	i := slices.Index(img.layers, l)
	if i < 0 {
		return errNotInImage
	}
	j := i + step
	if j < 0 || j >= len(img.layers) {
		return nil
	}
	img.layers[i], img.layers[j] = img.layers[j], img.layers[i]
	img.structure.emit(StructureEvent{Image: img, Kind: LayerMoved, Drawable: l})
	img.Update(l, image.Rect(0, 0, l.Width(), l.Height()))
	return nil
}

// AddChannel inserts c at position at of the channel list.
func (img *Image) AddChannel(c *Channel, at int) error {
	if c.img != img {
		return errNotOwned
	}
	if c == img.selection || slices.Contains(img.channels, c) {
		return errInImage
	}
	at = max(0, min(at, len(img.channels)))
	img.channels = slices.Insert(img.channels, at, c)
	img.structure.emit(StructureEvent{Image: img, Kind: ChannelAdded, Drawable: c})
	img.Update(c, image.Rect(0, 0, c.Width(), c.Height()))
	return nil
}

// RemoveChannel takes c out of the channel list.
func (img *Image) RemoveChannel(c *Channel) error {
	i := slices.Index(img.channels, c)
	if i < 0 {
		return errNotInImage
	}
	img.Update(c, image.Rect(0, 0, c.Width(), c.Height()))
	img.channels = slices.Delete(img.channels, i, i+1)
	if img.activeChannel == c {
		img.activeChannel = nil
	}
	img.structure.emit(StructureEvent{Image: img, Kind: ChannelRemoved, Drawable: c})
	return nil
}

// AttachFloating makes fs the floating selection, placed on top of the
// layer stack and attached to target.
func (img *Image) AttachFloating(fs *Layer, target Drawable) error {
	if img.floating != nil {
		return fmt.Errorf("image already has a floating selection %q", img.floating.name)
	}
	if fs.img != img || target.Image() != img {
		return errNotOwned
	}
	if slices.Contains(img.layers, fs) {
		return errInImage
	}
	if fs == target {
		return errors.New("floating selection cannot be attached to itself")
	}
	fs.floating = target
	img.floating = fs
	img.layers = slices.Insert(img.layers, 0, fs)
	img.structure.emit(StructureEvent{Image: img, Kind: FloatingAttached, Drawable: fs})
	img.Update(fs, image.Rect(0, 0, fs.Width(), fs.Height()))
	return nil
}

// DetachFloating removes the floating selection from the image and returns
// it.
func (img *Image) DetachFloating() *Layer {
	fs := img.floating
	if fs == nil {
		return nil
	}
	img.Update(fs, image.Rect(0, 0, fs.Width(), fs.Height()))
	if i := slices.Index(img.layers, fs); i >= 0 {
		img.layers = slices.Delete(img.layers, i, i+1)
	}
	if img.activeLayer == fs {
		img.activeLayer = nil
	}
	fs.floating = nil
	img.floating = nil
	img.structure.emit(StructureEvent{Image: img, Kind: FloatingDetached, Drawable: fs})
	return fs
}

// SetColormap replaces the colormap. cmap holds 3 bytes per entry and at
// most 256 entries.
func (img *Image) SetColormap(cmap []byte) error {
	if len(cmap)%3 != 0 || len(cmap) > 256*3 {
		return fmt.Errorf("invalid colormap of %d bytes", len(cmap))
	}
	img.colormap = slices.Clone(cmap)
	img.structure.emit(StructureEvent{Image: img, Kind: ColormapChanged})
	img.invalidateProjection(img.Bounds())
	return nil
}

// AttachParasite attaches p to the image.
func (img *Image) AttachParasite(p Parasite) {
	img.parasites.Attach(p)
	img.structure.emit(StructureEvent{Image: img, Kind: ParasitesChanged})
}

// DetachParasite removes the image parasite called name.
func (img *Image) DetachParasite(name string) bool {
	ok := img.parasites.Detach(name)
	if ok {
		img.structure.emit(StructureEvent{Image: img, Kind: ParasitesChanged})
	}
	return ok
}

// Parasite returns the image parasite called name.
func (img *Image) Parasite(name string) (Parasite, bool) {
	return img.parasites.Find(name)
}

// LayerByName returns the first layer called name, or nil.
func (img *Image) LayerByName(name string) *Layer {
	for _, l := range img.layers {
		if l.name == name {
			return l
		}
	}
	return nil
}

// LayerByTattoo returns the layer with tattoo t, or nil.
func (img *Image) LayerByTattoo(t Tattoo) *Layer {
	for _, l := range img.layers {
		if l.tattoo == t {
			return l
		}
	}
	return nil
}

// DrawableByTattoo searches layers, masks, channels and the selection.
func (img *Image) DrawableByTattoo(t Tattoo) Drawable {
	for _, d := range img.Drawables() {
		if d.Tattoo() == t {
			return d
		}
	}
	return nil
}

// Drawables returns every drawable of the image: layers (each followed by
// its mask), channels, then the selection mask.
func (img *Image) Drawables() []Drawable {
	var out []Drawable
	for _, l := range img.layers {
		out = append(out, l)
		if l.mask != nil {
			out = append(out, l.mask)
		}
	}
	for _, c := range img.channels {
		out = append(out, c)
	}
	return append(out, img.selection)
}

// Update reports that rect of d (in drawable coordinates) changed. The
// covered projection tiles are invalidated and region observers notified.
func (img *Image) Update(d Drawable, rect image.Rectangle) {
	x, y := d.Offsets()
	r := rect.Add(image.Pt(x, y)).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	img.invalidateProjection(r)
	img.region.emit(RegionEvent{Image: img, Drawable: d, Rect: r})
}

func (img *Image) invalidateProjection(r image.Rectangle) {
	if img.projection != nil {
		img.projection.Invalidate(r)
	}
}

// Resize changes the canvas size. Layers keep their size and offsets; the
// selection mask is reallocated empty and the projection is dropped.
func (img *Image) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("canvas: invalid image size %dx%d", width, height))
	}
	img.width, img.height = width, height
	if img.projection != nil {
		img.projection.Release()
		img.projection = nil
	}
	img.selection.tiles.Release()
	img.selection.tiles = img.ctx.newManager(width, height, 1)
	img.structure.emit(StructureEvent{Image: img, Kind: Resized})
}

// Delete unregisters the image and every drawable created for it,
// including ones never added to a stack, and releases their storage.
func (img *Image) Delete() {
	r := img.ctx.registry
	for id, v := range r.items {
		if d, ok := v.(Drawable); ok && d.Image() == img {
			d.Tiles().Release()
			delete(r.items, id)
		}
	}
	if img.projection != nil {
		img.projection.Release()
		img.projection = nil
	}
	img.ctx.registry.remove(img.id)
}
