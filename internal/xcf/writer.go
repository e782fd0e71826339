package xcf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/pspoerri/xcftiles/internal/applog"
	"github.com/pspoerri/xcftiles/internal/canvas"
	"github.com/pspoerri/xcftiles/internal/tile"
)

// SaveOptions configures Save.
type SaveOptions struct {
	// TempDir holds the temporary file while saving. Empty means the
	// directory of the target, so the final rename never crosses file
	// systems.
	TempDir string
}

// Save writes img to path. The file is written under a temporary name and
// renamed into place, so a failed save never leaves a partial file behind.
func Save(path string, img *canvas.Image, opts SaveOptions) error {
	tmpDir := opts.TempDir
	if tmpDir == "" {
		tmpDir = filepath.Dir(path)
	}
	f, err := os.CreateTemp(tmpDir, "xcf-save-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	if err := Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("saving %s: %w", path, err)
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	img.Filename = path
	return nil
}

var errTooLarge = errors.New("xcf: file would exceed 4 GiB")

// Encode writes img to w starting at offset 0. Indexed images are written
// as version 1 files, everything else as version 0.
func Encode(w io.WriteSeeker, img *canvas.Image) error {
	if c := img.Compression; c != canvas.CompressNone && c != canvas.CompressRLE {
		return fmt.Errorf("%w: %v", ErrUnsupportedCompression, c)
	}
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	e := &encoder{
		w:           w,
		bw:          bufio.NewWriterSize(w, 256<<10),
		img:         img,
		compression: img.Compression,
		log:         applog.Logger(),
	}
	e.image()
	if e.err == nil {
		e.err = e.bw.Flush()
	}
	return e.err
}

// encoder holds the state of one save. Records are appended at end; each
// offset table is written as zeros first and patched once the record it
// points to is in place. cp mirrors the write position.
type encoder struct {
	w   io.WriteSeeker
	bw  *bufio.Writer
	cp  uint32
	end uint32
	err error

	img         *canvas.Image
	compression canvas.Compression
	log         *slog.Logger

	// floatingSlot is the file offset of the floating selection
	// property's value, patched with the offset of floatingTarget's
	// record when that record is written.
	floatingSlot   uint32
	floatingTarget canvas.Drawable

	tileBuf []byte
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	if uint64(e.cp)+uint64(len(p)) > math.MaxUint32 {
		e.err = errTooLarge
		return
	}
	n, err := e.bw.Write(p)
	e.cp += uint32(n)
	e.end = max(e.end, e.cp)
	if err != nil {
		e.err = err
	}
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.write(b[:])
}

func (e *encoder) str(s string) { e.write(appendString(nil, s)) }

func (e *encoder) seek(off uint32) {
	if e.err != nil || off == e.cp {
		return
	}
	if err := e.bw.Flush(); err != nil {
		e.err = err
		return
	}
	if _, err := e.w.Seek(int64(off), io.SeekStart); err != nil {
		e.err = err
		return
	}
	e.cp = off
}

// patch stores v at off and returns to the end of the file.
func (e *encoder) patch(off, v uint32) {
	e.seek(off)
	e.u32(v)
	e.seek(e.end)
}

// zeros reserves an offset table of n entries and returns its position.
func (e *encoder) zeros(n int) uint32 {
	at := e.cp
	for range n {
		e.u32(0)
	}
	return at
}

func (e *encoder) prop(p property) {
	var w payloadWriter
	p.encode(&w)
	e.u32(uint32(p.tag()))
	e.u32(uint32(len(w.b)))
	if _, ok := p.(propFloatingSelection); ok {
		e.floatingSlot = e.cp
	}
	e.write(w.b)
}

func (e *encoder) props(ps []property) {
	for _, p := range ps {
		e.prop(p)
	}
	e.u32(uint32(tagEnd))
	e.u32(0)
}

// record marks the start of d's record. If d is the floating selection's
// target, the selection's placeholder now gets its offset.
func (e *encoder) record(d canvas.Drawable) {
	if e.floatingTarget != nil && d == e.floatingTarget && e.floatingSlot != 0 {
		e.patch(e.floatingSlot, e.cp)
		e.floatingTarget = nil
	}
}

func (e *encoder) image() {
	img := e.img
	if img.Base() == canvas.BaseIndexed {
		e.write([]byte(signatureVN + "001\x00"))
	} else {
		e.write([]byte(signatureV0))
	}
	e.u32(uint32(img.Width()))
	e.u32(uint32(img.Height()))
	e.u32(uint32(img.Base()))

	var props []property
	if img.Base() == canvas.BaseIndexed {
		props = append(props, propColormap{cmap: img.Colormap()})
	}
	props = append(props, propCompression(img.Compression))
	if g := img.Guides(); len(g) > 0 {
		props = append(props, propGuides(g))
	}
	props = append(props,
		propResolution{x: float32(img.XResolution), y: float32(img.YResolution)},
		propTattoo(img.TattooState()),
	)
	if p := img.Parasites().Persistent(); len(p) > 0 {
		props = append(props, propParasites(p))
	}
	props = append(props, propUnit(img.Unit))
	if paths := img.Paths(); len(paths) > 0 {
		props = append(props, propPaths{active: img.ActivePath(), paths: paths})
	}
	e.props(props)

	layers := img.Layers()
	channels := img.Channels()
	saveSelection := !emptyMask(img.Selection().Tiles())
	if fs := img.Floating(); fs != nil && fs.FloatingTarget() == canvas.Drawable(img.Selection()) {
		saveSelection = true
	}
	nchannels := len(channels)
	if saveSelection {
		nchannels++
	}
	layerTable := e.zeros(len(layers) + 1)
	channelTable := e.zeros(nchannels + 1)

	for i, l := range layers {
		off := e.cp
		e.layer(l)
		e.patch(layerTable+4*uint32(i), off)
	}
	for i, c := range channels {
		off := e.cp
		e.channel(c, c, false)
		e.patch(channelTable+4*uint32(i), off)
	}
	if saveSelection {
		off := e.cp
		sel := img.Selection()
		e.channel(sel, sel, true)
		e.patch(channelTable+4*uint32(len(channels)), off)
	}
	if e.floatingTarget != nil && e.err == nil {
		e.err = fmt.Errorf("floating selection target %q is not part of the image", e.floatingTarget.Name())
	}
}

// emptyMask reports whether every pixel of m is zero.
func emptyMask(m *tile.Manager) bool {
	for i := range m.NumTiles() {
		t := m.TileAt(tile.Coord{Col: i % m.Cols(), Row: i / m.Cols()})
		if v, ok := t.Uniform(); !ok || v[0] != 0 {
			return false
		}
	}
	return true
}

func (e *encoder) layer(l *canvas.Layer) {
	img := e.img
	e.record(l)
	e.u32(uint32(l.Width()))
	e.u32(uint32(l.Height()))
	e.u32(uint32(l.Type()))
	e.str(l.Name())

	var props []property
	if l == img.ActiveLayer() {
		props = append(props, propActiveLayer{})
	}
	if l.IsFloating() {
		props = append(props, propFloatingSelection{})
		e.floatingTarget = l.FloatingTarget()
	}
	x, y := l.Offsets()
	props = append(props,
		propOpacity(l.Opacity),
		propVisible(l.Visible()),
		propLinked(l.Linked),
		propPreserveTransp(l.PreserveTransparency),
		propApplyMask(l.ApplyMask),
		propEditMask(l.EditMask),
		propShowMask(l.ShowMask),
		propOffsets{x: int32(x), y: int32(y)},
		propMode(l.Mode),
		propTattoo(l.Tattoo()),
	)
	if p := l.Parasites().Persistent(); len(p) > 0 {
		props = append(props, propParasites(p))
	}
	e.props(props)

	slots := e.zeros(2)
	off := e.cp
	e.hierarchy(l.Tiles())
	e.patch(slots, off)

	if m := l.Mask(); m != nil {
		off := e.cp
		e.channel(&m.Channel, m, false)
		e.patch(slots+4, off)
	}
	e.log.Debug("xcf layer saved", "name", l.Name(), "offset", off)
}

// channel writes a channel record. self is the drawable c belongs to, which
// differs from c for layer masks.
func (e *encoder) channel(c *canvas.Channel, self canvas.Drawable, selection bool) {
	e.record(self)
	e.u32(uint32(c.Width()))
	e.u32(uint32(c.Height()))
	e.str(c.Name())

	var props []property
	if !selection && c == e.img.ActiveChannel() {
		props = append(props, propActiveChannel{})
	}
	if selection {
		props = append(props, propSelection{})
	}
	props = append(props,
		propOpacity(c.Opacity),
		propVisible(c.Visible()),
		propLinked(c.Linked),
		propShowMasked(c.ShowMasked),
		propColor(c.Color),
		propTattoo(c.Tattoo()),
	)
	if p := c.Parasites().Persistent(); len(p) > 0 {
		props = append(props, propParasites(p))
	}
	e.props(props)

	slot := e.zeros(1)
	off := e.cp
	e.hierarchy(c.Tiles())
	e.patch(slot, off)
}

// hierarchy writes m's pixels as level 0 followed by empty placeholder
// levels of halving size.
func (e *encoder) hierarchy(m *tile.Manager) {
	w, h := m.Width(), m.Height()
	e.u32(uint32(w))
	e.u32(uint32(h))
	e.u32(uint32(m.Bytes()))

	n := tile.NumLevels(w, h)
	table := e.zeros(n + 1)
	for i := range n {
		off := e.cp
		if i == 0 {
			e.level(m)
		} else {
			w, h = tile.LevelSize(m.Width(), m.Height(), i)
			e.u32(uint32(w))
			e.u32(uint32(h))
			e.u32(0)
		}
		e.patch(table+4*uint32(i), off)
	}
}

func (e *encoder) level(m *tile.Manager) {
	e.u32(uint32(m.Width()))
	e.u32(uint32(m.Height()))
	table := e.zeros(m.NumTiles() + 1)
	for i := range m.NumTiles() {
		t := m.TileAt(tile.Coord{Col: i % m.Cols(), Row: i / m.Cols()})
		off := e.cp
		switch e.compression {
		case canvas.CompressRLE:
			e.tileBuf = rleEncode(e.tileBuf[:0], t.Pixels(), m.Bytes())
			e.write(e.tileBuf)
		default:
			e.write(t.Pixels())
		}
		e.patch(table+4*uint32(i), off)
	}
}
