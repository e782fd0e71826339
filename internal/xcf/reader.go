package xcf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/pspoerri/xcftiles/internal/applog"
	"github.com/pspoerri/xcftiles/internal/canvas"
	"github.com/pspoerri/xcftiles/internal/composite"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
)

const (
	// maxImageSize bounds image and drawable dimensions read from a file.
	maxImageSize = 262144

	// maxPropSize bounds a single property body.
	maxPropSize = 1 << 28
)

// Load reads the XCF file at path into a new image registered in ctx.
// The file is memory-mapped while it is decoded.
func Load(ctx *canvas.Context, path string) (*canvas.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() < signatureLen {
		return nil, fmt.Errorf("%s: %w", path, ErrBadSignature)
	}

	data, err := mapFile(f, int(fi.Size()))
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer unmapFile(data)

	img, err := Decode(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	img.Filename = path
	return img, nil
}

// Decode reads an XCF image from r into a new image registered in ctx.
// On error no image is left registered.
func Decode(ctx *canvas.Context, r io.ReadSeeker) (*canvas.Image, error) {
	d := &decoder{
		r:       r,
		ctx:     ctx,
		log:     applog.Logger(),
		records: make(map[uint32]canvas.Drawable),
	}
	img, err := d.decode()
	if err != nil {
		if img != nil {
			img.Delete()
		}
		return nil, err
	}
	return img, nil
}

// decoder holds the state of one load. cp mirrors the read position; the
// first read error sticks in err and turns later reads into no-ops.
type decoder struct {
	r   io.ReadSeeker
	cp  uint32
	err error

	ctx         *canvas.Context
	img         *canvas.Image
	log         *slog.Logger
	version     int
	compression canvas.Compression

	// records maps the file offset of every layer, mask and channel
	// record to its drawable, so the floating selection can find its
	// target once everything is loaded.
	records        map[uint32]canvas.Drawable
	floating       *canvas.Layer
	floatingTarget uint32

	activeLayer   *canvas.Layer
	activeChannel *canvas.Channel

	tileBuf []byte
}

func (d *decoder) read(p []byte) {
	if d.err != nil {
		return
	}
	n, err := io.ReadFull(d.r, p)
	d.cp += uint32(n)
	if err != nil {
		d.fail(err)
	}
}

// readN reads up to n bytes. Short reads at the end of the file are not
// an error here; callers check the length.
func (d *decoder) readN(n uint32) []byte {
	if d.err != nil {
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(d.r, int64(n)))
	d.cp += uint32(len(b))
	if err != nil {
		d.fail(err)
	}
	return b
}

func (d *decoder) fail(err error) {
	if d.err != nil {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("%w: unexpected end of file at offset %d", ErrCorrupt, d.cp)
	}
	d.err = err
}

func (d *decoder) u32() uint32 {
	var b [4]byte
	d.read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (d *decoder) str() string {
	n := d.u32()
	if n == 0 {
		return ""
	}
	if n > maxString {
		d.fail(fmt.Errorf("%w: string of %d bytes at offset %d", ErrCorrupt, n, d.cp))
		return ""
	}
	b := d.readN(n)
	if uint32(len(b)) < n {
		d.fail(io.ErrUnexpectedEOF)
	}
	return string(bytes.TrimSuffix(b, []byte{0}))
}

func (d *decoder) seek(off uint32) {
	if d.err != nil {
		return
	}
	if _, err := d.r.Seek(int64(off), io.SeekStart); err != nil {
		d.err = err
		return
	}
	d.cp = off
}

func (d *decoder) header() (w, h uint32, base canvas.BaseType, err error) {
	var sig [signatureLen]byte
	d.read(sig[:])
	if d.err != nil {
		return 0, 0, 0, ErrBadSignature
	}
	switch s := string(sig[:]); {
	case s == signatureV0:
		d.version = 0
	case s[:len(signatureVN)] == signatureVN && s[signatureLen-1] == 0:
		v, err := strconv.Atoi(s[len(signatureVN) : signatureLen-1])
		if err != nil || v < 0 {
			return 0, 0, 0, ErrBadSignature
		}
		if v > maxVersion {
			return 0, 0, 0, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, v)
		}
		d.version = v
	default:
		return 0, 0, 0, ErrBadSignature
	}

	w, h = d.u32(), d.u32()
	base = canvas.BaseType(d.u32())
	if d.err != nil {
		return 0, 0, 0, d.err
	}
	if w == 0 || h == 0 || w > maxImageSize || h > maxImageSize {
		return 0, 0, 0, fmt.Errorf("%w: image size %dx%d", ErrCorrupt, w, h)
	}
	if base > canvas.BaseIndexed {
		return 0, 0, 0, fmt.Errorf("%w: base type %d", ErrCorrupt, base)
	}
	return w, h, base, nil
}

func (d *decoder) decode() (*canvas.Image, error) {
	w, h, base, err := d.header()
	if err != nil {
		return nil, err
	}
	d.img = canvas.NewImage(d.ctx, int(w), int(h), base)
	d.img.Compression = canvas.CompressNone
	d.log.Debug("xcf header", "version", d.version, "width", w, "height", h, "base", base)

	props, err := d.props()
	if err != nil {
		return d.img, err
	}
	if err := d.imageProps(props); err != nil {
		return d.img, err
	}

	if err := d.offsets(d.layer); err != nil {
		return d.img, err
	}
	if err := d.offsets(d.channel); err != nil {
		return d.img, err
	}
	d.finish()
	return d.img, nil
}

// offsets reads a zero-terminated offset table and loads the record at
// each offset.
func (d *decoder) offsets(load func(off uint32) error) error {
	for {
		off := d.u32()
		if d.err != nil {
			return d.err
		}
		if off == 0 {
			return nil
		}
		saved := d.cp
		d.seek(off)
		if err := load(off); err != nil {
			return err
		}
		d.seek(saved)
	}
}

// finish attaches the floating selection and restores the active drawables.
func (d *decoder) finish() {
	img := d.img
	if fs := d.floating; fs != nil {
		target, ok := d.records[d.floatingTarget]
		if ok && target != canvas.Drawable(fs) {
			if err := img.AttachFloating(fs, target); err == nil {
				fs = nil
			}
		}
		if fs != nil {
			d.log.Warn("floating selection target not found; loading it as a layer",
				"layer", fs.Name(), "offset", d.floatingTarget)
			if err := img.AddLayer(fs, 0); err != nil {
				d.log.Warn("dropping floating selection", "layer", fs.Name(), "error", err)
			}
		}
	}
	if d.activeLayer != nil {
		img.SetActiveLayer(d.activeLayer)
	}
	if d.activeChannel != nil {
		img.SetActiveChannel(d.activeChannel)
	}
}

// props reads property records up to the END record.
func (d *decoder) props() ([]property, error) {
	var out []property
	for {
		t := propTag(d.u32())
		n := d.u32()
		if d.err != nil {
			return nil, d.err
		}
		if t == tagEnd {
			return out, nil
		}
		if n > maxPropSize {
			return nil, fmt.Errorf("%w: property %d of %d bytes", ErrCorrupt, t, n)
		}
		body := d.readN(n)
		if d.err == nil && uint32(len(body)) < n {
			d.fail(io.ErrUnexpectedEOF)
		}
		if d.err != nil {
			return nil, d.err
		}
		p, err := decodeProperty(t, body, d.version)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
}

// skip logs a property that has no meaning where it was found.
func (d *decoder) skip(p property) {
	var w payloadWriter
	p.encode(&w)
	d.log.Warn(d.ctx.Printer().Sprintf(i18n.MsgUnknownProperty, uint32(p.tag()), len(w.b)),
		"property", p.tag())
}

func (d *decoder) imageProps(props []property) error {
	img := d.img
	for _, p := range props {
		switch p := p.(type) {
		case propColormap:
			if d.version == 0 {
				d.log.Warn("version 0 files did not save colormaps correctly; substituting a gray ramp")
			}
			if err := img.SetColormap(p.cmap); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
		case propCompression:
			c := canvas.Compression(p)
			if c != canvas.CompressNone && c != canvas.CompressRLE {
				return fmt.Errorf("%w: %v", ErrUnsupportedCompression, c)
			}
			img.Compression = c
			d.compression = c
		case propGuides:
			for _, g := range p {
				if g.Orientation == canvas.Horizontal || g.Orientation == canvas.Vertical {
					img.AddGuide(g.Position, g.Orientation)
				}
			}
		case propResolution:
			if validResolution(p.x) && validResolution(p.y) {
				img.XResolution, img.YResolution = float64(p.x), float64(p.y)
			} else {
				d.log.Warn("invalid image resolution; keeping the default", "x", p.x, "y", p.y)
			}
		case propTattoo:
			img.SetTattooState(canvas.Tattoo(p))
		case propParasites:
			for _, par := range p {
				img.AttachParasite(par)
			}
		case propUnit:
			img.Unit = uint32(p)
		case propPaths:
			img.SetPaths(p.paths, p.active)
		default:
			d.skip(p)
		}
	}
	return nil
}

func validResolution(r float32) bool { return r >= 1e-5 && r <= 1e6 }

// record reads the size, optional type and name at the start of a
// drawable record.
func (d *decoder) record(typed bool) (w, h int, typ canvas.ImageType, name string, err error) {
	uw, uh := d.u32(), d.u32()
	typ = canvas.GrayImage
	if typed {
		typ = canvas.ImageType(d.u32())
	}
	name = d.str()
	if d.err != nil {
		return 0, 0, 0, "", d.err
	}
	if uw == 0 || uh == 0 || uw > maxImageSize || uh > maxImageSize {
		return 0, 0, 0, "", fmt.Errorf("%w: drawable %q is %dx%d", ErrCorrupt, name, uw, uh)
	}
	if !typ.Valid() {
		return 0, 0, 0, "", fmt.Errorf("%w: drawable %q has type %d", ErrCorrupt, name, typ)
	}
	return int(uw), int(uh), typ, name, nil
}

// layer loads the layer record at off, its pixels and its mask.
func (d *decoder) layer(off uint32) error {
	img := d.img
	w, h, typ, name, err := d.record(true)
	if err != nil {
		return err
	}
	props, err := d.props()
	if err != nil {
		return fmt.Errorf("layer %q: %w", name, err)
	}

	l := img.NewLayer(name, w, h, typ, 255, composite.Normal)
	d.records[off] = l
	floating := false
	var apply, edit, show bool
	for _, p := range props {
		switch p := p.(type) {
		case propActiveLayer:
			d.activeLayer = l
		case propFloatingSelection:
			floating = true
			d.floatingTarget = p.offset
		case propOpacity:
			l.Opacity = uint8(p)
		case propMode:
			if m := composite.Mode(p); p <= 255 && m.Valid() {
				l.Mode = m
			} else {
				d.log.Warn("unsupported layer mode; using normal", "layer", name, "mode", uint32(p))
			}
		case propVisible:
			l.SetVisible(bool(p))
		case propLinked:
			l.Linked = bool(p)
		case propPreserveTransp:
			l.PreserveTransparency = bool(p)
		case propApplyMask:
			apply = bool(p)
		case propEditMask:
			edit = bool(p)
		case propShowMask:
			show = bool(p)
		case propOffsets:
			l.SetOffsets(int(p.x), int(p.y))
		case propTattoo:
			l.SetTattoo(canvas.Tattoo(p))
		case propParasites:
			for _, par := range p {
				l.Parasites().Attach(par)
			}
		default:
			d.skip(p)
		}
	}

	hier, maskOff := d.u32(), d.u32()
	if d.err != nil {
		return d.err
	}
	d.seek(hier)
	if err := d.hierarchy(l.Tiles()); err != nil {
		return fmt.Errorf("layer %q: %w", name, err)
	}

	if maskOff != 0 {
		d.seek(maskOff)
		rec, err := d.readChannelRecord()
		if err != nil {
			return fmt.Errorf("mask of layer %q: %w", name, err)
		}
		if rec.w != w || rec.h != h {
			return fmt.Errorf("%w: %dx%d mask on %dx%d layer %q", ErrSizeMismatch, rec.w, rec.h, w, h, name)
		}
		m := img.NewLayerMask(l, 0)
		if err := d.channelBody(&m.Channel, rec); err != nil {
			return fmt.Errorf("mask of layer %q: %w", name, err)
		}
		if err := l.AddMask(m); err != nil {
			return fmt.Errorf("%w: %v", ErrSizeMismatch, err)
		}
		d.records[maskOff] = m
		l.ApplyMask, l.EditMask, l.ShowMask = apply, edit, show
	}

	if floating {
		if d.floating != nil {
			return fmt.Errorf("%w: second floating selection %q", ErrCorrupt, name)
		}
		d.floating = l
		return nil
	}
	d.log.Debug("xcf layer", "name", name, "type", typ, "width", w, "height", h)
	return img.AddLayer(l, len(img.Layers()))
}

// channelRecord is the part of a channel record read before the drawable
// it describes is known.
type channelRecord struct {
	w, h      int
	name      string
	props     []property
	selection bool
	active    bool
}

func (d *decoder) readChannelRecord() (channelRecord, error) {
	w, h, _, name, err := d.record(false)
	if err != nil {
		return channelRecord{}, err
	}
	props, err := d.props()
	if err != nil {
		return channelRecord{}, fmt.Errorf("channel %q: %w", name, err)
	}
	rec := channelRecord{w: w, h: h, name: name, props: props}
	for _, p := range props {
		switch p.(type) {
		case propSelection:
			rec.selection = true
		case propActiveChannel:
			rec.active = true
		}
	}
	return rec, nil
}

// channel loads the channel record at off. A record carrying the
// selection property fills the image's selection mask instead of adding
// a channel.
func (d *decoder) channel(off uint32) error {
	img := d.img
	rec, err := d.readChannelRecord()
	if err != nil {
		return err
	}
	var c *canvas.Channel
	if rec.selection {
		c = img.Selection()
		if rec.w != img.Width() || rec.h != img.Height() {
			return fmt.Errorf("%w: %dx%d selection in %dx%d image", ErrSizeMismatch, rec.w, rec.h, img.Width(), img.Height())
		}
	} else {
		c = img.NewChannel(rec.name, rec.w, rec.h, 255, [3]uint8{})
	}
	if err := d.channelBody(c, rec); err != nil {
		return err
	}
	d.records[off] = c
	if rec.selection {
		return nil
	}
	if rec.active {
		d.activeChannel = c
	}
	d.log.Debug("xcf channel", "name", rec.name, "width", rec.w, "height", rec.h)
	return img.AddChannel(c, len(img.Channels()))
}

// channelBody applies rec's properties to c and reads its pixels.
func (d *decoder) channelBody(c *canvas.Channel, rec channelRecord) error {
	c.SetName(rec.name)
	for _, p := range rec.props {
		switch p := p.(type) {
		case propSelection, propActiveChannel:
		case propOpacity:
			c.Opacity = uint8(p)
		case propVisible:
			c.SetVisible(bool(p))
		case propLinked:
			c.Linked = bool(p)
		case propShowMasked:
			c.ShowMasked = bool(p)
		case propColor:
			c.Color = [3]uint8(p)
		case propTattoo:
			c.SetTattoo(canvas.Tattoo(p))
		case propParasites:
			for _, par := range p {
				c.Parasites().Attach(par)
			}
		default:
			d.skip(p)
		}
	}
	hier := d.u32()
	if d.err != nil {
		return d.err
	}
	d.seek(hier)
	if err := d.hierarchy(c.Tiles()); err != nil {
		return fmt.Errorf("channel %q: %w", rec.name, err)
	}
	return nil
}

// hierarchy reads the tile hierarchy at the cursor into m. Only the first
// level carries pixels; the others are placeholders.
func (d *decoder) hierarchy(m *tile.Manager) error {
	w, h, bpp := d.u32(), d.u32(), d.u32()
	if d.err != nil {
		return d.err
	}
	if int(w) != m.Width() || int(h) != m.Height() || int(bpp) != m.Bytes() {
		return fmt.Errorf("%w: hierarchy %dx%d with %d bytes per pixel, drawable %dx%d with %d",
			ErrSizeMismatch, w, h, bpp, m.Width(), m.Height(), m.Bytes())
	}
	level := d.u32()
	d.seek(level)
	if d.err != nil {
		return d.err
	}
	return d.level(m)
}

// level reads the tiles of a level. A tile identical to the one before it
// is mapped onto it instead of getting its own storage.
func (d *decoder) level(m *tile.Manager) error {
	w, h := d.u32(), d.u32()
	off := d.u32()
	if d.err != nil {
		return d.err
	}
	if int(w) != m.Width() || int(h) != m.Height() {
		return fmt.Errorf("%w: level %dx%d, drawable %dx%d", ErrSizeMismatch, w, h, m.Width(), m.Height())
	}

	bpp := m.Bytes()
	var prev *tile.Tile
	for i := range m.NumTiles() {
		if off == 0 {
			return fmt.Errorf("%w: level has %d of %d tiles", ErrCorrupt, i, m.NumTiles())
		}
		next := d.u32()
		saved := d.cp

		c := tile.Coord{Col: i % m.Cols(), Row: i / m.Cols()}
		t := m.TileAt(c)
		size := t.Size()
		if cap(d.tileBuf) < size {
			d.tileBuf = make([]byte, tile.Width*tile.Height*bpp)
		}
		buf := d.tileBuf[:size]

		d.seek(off)
		switch d.compression {
		case canvas.CompressNone:
			d.read(buf)
		case canvas.CompressRLE:
			limit := uint32(size + size/2)
			if next > off {
				limit = next - off
			}
			packed := d.readN(limit)
			if d.err != nil {
				return d.err
			}
			if _, err := rleDecode(buf, packed, bpp); err != nil {
				return fmt.Errorf("tile %d: %w", i, err)
			}
		default:
			return fmt.Errorf("%w: %v", ErrUnsupportedCompression, d.compression)
		}
		if d.err != nil {
			return d.err
		}

		if prev != nil && prev.EWidth() == t.EWidth() && prev.EHeight() == t.EHeight() && bytes.Equal(prev.Pixels(), buf) {
			m.Map(c, prev)
		} else {
			copy(t.Writable(), buf)
		}
		prev = t
		d.seek(saved)
		off = next
	}
	if off != 0 {
		return fmt.Errorf("%w: extra tile offset %d after level", ErrCorrupt, off)
	}
	return nil
}
