package xcf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pspoerri/xcftiles/internal/applog"
	"github.com/pspoerri/xcftiles/internal/canvas"
	"github.com/pspoerri/xcftiles/internal/composite"
	"github.com/pspoerri/xcftiles/internal/tile"
)

func pattern(m *tile.Manager, seed int) {
	buf := make([]byte, m.Width()*m.Height()*m.Bytes())
	for i := range buf {
		buf[i] = byte(i*seed + i/(m.Width()*3))
	}
	tile.WritePixels(m, m.Bounds(), buf)
}

// sampleImage builds an RGB image that exercises every property the
// format stores.
func sampleImage(t *testing.T, ctx *canvas.Context) *canvas.Image {
	t.Helper()
	img := canvas.NewImage(ctx, 130, 70, canvas.BaseRGB)
	img.XResolution, img.YResolution = 300, 150
	img.Unit = 2
	img.AttachParasite(canvas.Parasite{Name: "gimp-comment", Flags: canvas.Persistent, Data: []byte("hello\x00")})
	img.AttachParasite(canvas.Parasite{Name: "scratch", Flags: canvas.Undoable, Data: []byte{1}})
	img.AddGuide(10, canvas.Horizontal)
	img.AddGuide(64, canvas.Vertical)
	img.SetPaths([]*canvas.Path{{
		Name:   "outline",
		Closed: true,
		State:  2,
		Type:   1,
		Tattoo: 40,
		Points: []canvas.PathPoint{{Type: 1, X: 1.5, Y: 2.25}, {Type: 2, X: -3, Y: 100}},
	}}, 0)

	bottom := img.NewLayer("bottom", 130, 70, canvas.RGBImage, 255, composite.Normal)
	pattern(bottom.Tiles(), 3)
	if err := img.AddLayer(bottom, 0); err != nil {
		t.Fatal(err)
	}

	top := img.NewLayer("top", 40, 30, canvas.RGBAImage, 100, composite.Multiply)
	pattern(top.Tiles(), 5)
	top.SetOffsets(5, -7)
	top.Linked = true
	top.PreserveTransparency = true
	top.Parasites().Attach(canvas.Parasite{Name: "layer-note", Flags: canvas.Persistent, Data: []byte{9, 8}})
	if err := img.AddLayer(top, 0); err != nil {
		t.Fatal(err)
	}
	mask := img.NewLayerMask(top, 0)
	tile.FillRegion(tile.NewRegion(mask.Tiles(), image.Rect(0, 0, 20, 30), true), []byte{255})
	if err := top.AddMask(mask); err != nil {
		t.Fatal(err)
	}
	top.EditMask = true

	ch := img.NewChannel("saved", 130, 70, 60, [3]uint8{10, 20, 30})
	pattern(ch.Tiles(), 11)
	ch.ShowMasked = true
	ch.SetVisible(false)
	if err := img.AddChannel(ch, 0); err != nil {
		t.Fatal(err)
	}
	tile.FillRegion(tile.NewRegion(img.Selection().Tiles(), image.Rect(0, 0, 65, 70), true), []byte{255})
	img.SetActiveLayer(bottom)
	img.SetActiveChannel(ch)
	return img
}

func saveAndLoad(t *testing.T, img *canvas.Image) *canvas.Image {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.xcf")
	if err := Save(path, img, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	got, err := Load(img.Context(), path)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []canvas.Compression{canvas.CompressNone, canvas.CompressRLE} {
		t.Run(c.String(), func(t *testing.T) {
			img := sampleImage(t, canvas.NewContext())
			img.Compression = c
			got := saveAndLoad(t, img)

			if got.Width() != 130 || got.Height() != 70 || got.Base() != canvas.BaseRGB || got.Compression != c {
				t.Fatalf("image %dx%d %v %v", got.Width(), got.Height(), got.Base(), got.Compression)
			}
			if got.XResolution != 300 || got.YResolution != 150 || got.Unit != 2 {
				t.Errorf("resolution %v/%v unit %d", got.XResolution, got.YResolution, got.Unit)
			}
			if diff := cmp.Diff(img.Guides(), got.Guides()); diff != "" {
				t.Errorf("guides (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(img.Paths(), got.Paths()); diff != "" {
				t.Errorf("paths (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(img.Parasites().Persistent(), got.Parasites().List()); diff != "" {
				t.Errorf("image parasites (-want +got):\n%s", diff)
			}

			if len(got.Layers()) != 2 {
				t.Fatalf("loaded %d layers", len(got.Layers()))
			}
			for i, want := range img.Layers() {
				l := got.Layers()[i]
				if l.Name() != want.Name() || l.Type() != want.Type() || l.Tattoo() != want.Tattoo() {
					t.Errorf("layer %d = %q %v tattoo %d", i, l.Name(), l.Type(), l.Tattoo())
				}
				if l.Bounds() != want.Bounds() || l.Opacity != want.Opacity || l.Mode != want.Mode {
					t.Errorf("layer %q: bounds %v opacity %d mode %v", l.Name(), l.Bounds(), l.Opacity, l.Mode)
				}
				if l.Linked != want.Linked || l.PreserveTransparency != want.PreserveTransparency || l.Visible() != want.Visible() {
					t.Errorf("layer %q flags differ", l.Name())
				}
				if !tile.Equal(l.Tiles(), want.Tiles()) {
					t.Errorf("layer %q pixels differ", l.Name())
				}
			}

			top := got.LayerByName("top")
			m := top.Mask()
			if m == nil || m.Layer() != top {
				t.Fatal("mask not loaded")
			}
			if !tile.Equal(m.Tiles(), img.LayerByName("top").Mask().Tiles()) || m.Name() != "top mask" {
				t.Errorf("mask %q pixels differ", m.Name())
			}
			if !top.ApplyMask || !top.EditMask || top.ShowMask {
				t.Errorf("mask flags apply=%v edit=%v show=%v", top.ApplyMask, top.EditMask, top.ShowMask)
			}
			if p, ok := top.Parasites().Find("layer-note"); !ok || !bytes.Equal(p.Data, []byte{9, 8}) {
				t.Error("layer parasite lost")
			}
			if got.ActiveLayer() == nil || got.ActiveLayer().Name() != "bottom" {
				t.Error("active layer not restored")
			}

			if len(got.Channels()) != 1 {
				t.Fatalf("loaded %d channels", len(got.Channels()))
			}
			ch, want := got.Channels()[0], img.Channels()[0]
			if ch.Name() != "saved" || ch.Color != want.Color || ch.Opacity != 60 || !ch.ShowMasked || ch.Visible() {
				t.Errorf("channel = %q %v %d %v %v", ch.Name(), ch.Color, ch.Opacity, ch.ShowMasked, ch.Visible())
			}
			if !tile.Equal(ch.Tiles(), want.Tiles()) {
				t.Error("channel pixels differ")
			}
			if got.ActiveChannel() != ch {
				t.Error("active channel not restored")
			}
			if !tile.Equal(got.Selection().Tiles(), img.Selection().Tiles()) {
				t.Error("selection mask differs")
			}
			if got.Selection().Visible() || got.Selection().Opacity != img.Selection().Opacity {
				t.Error("selection properties differ")
			}

			if !bytes.Equal(canvas.ProjectionGet(img, img.Bounds()), canvas.ProjectionGet(got, got.Bounds())) {
				t.Error("projections differ after round trip")
			}
		})
	}
}

func TestSignatureVersion(t *testing.T) {
	ctx := canvas.NewContext()
	rgb := canvas.NewImage(ctx, 8, 8, canvas.BaseRGB)
	idx := canvas.NewImage(ctx, 8, 8, canvas.BaseIndexed)
	if err := idx.SetColormap([]byte{1, 2, 3, 250, 251, 252}); err != nil {
		t.Fatal(err)
	}
	l := idx.NewLayer("i", 8, 8, canvas.IndexedAImage, 255, composite.Normal)
	tile.Fill(l.Tiles(), []byte{1, 255})
	if err := idx.AddLayer(l, 0); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		img *canvas.Image
		sig string
	}{{rgb, "gimp xcf file\x00"}, {idx, "gimp xcf v001\x00"}} {
		path := filepath.Join(t.TempDir(), "sig.xcf")
		if err := Save(path, tt.img, SaveOptions{}); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if got := string(data[:signatureLen]); got != tt.sig {
			t.Errorf("%v image written with signature %q", tt.img.Base(), got)
		}
	}

	got := saveAndLoad(t, idx)
	if diff := cmp.Diff(idx.Colormap(), got.Colormap()); diff != "" {
		t.Errorf("colormap (-want +got):\n%s", diff)
	}
	if !tile.Equal(got.Layers()[0].Tiles(), l.Tiles()) {
		t.Error("indexed pixels differ")
	}
}

func TestFloatingSelectionReattached(t *testing.T) {
	targets := map[string]func(img *canvas.Image) canvas.Drawable{
		"layer": func(img *canvas.Image) canvas.Drawable { return img.LayerByName("top") },
		"mask":  func(img *canvas.Image) canvas.Drawable { return img.LayerByName("top").Mask() },
		"channel": func(img *canvas.Image) canvas.Drawable {
			return img.Channels()[0]
		},
		"selection": func(img *canvas.Image) canvas.Drawable { return img.Selection() },
	}
	for name, target := range targets {
		t.Run(name, func(t *testing.T) {
			img := sampleImage(t, canvas.NewContext())
			if name == "selection" {
				tile.Fill(img.Selection().Tiles(), []byte{0})
			}
			fs := img.NewLayer("float", 6, 6, canvas.RGBAImage, 255, composite.Normal)
			tile.Fill(fs.Tiles(), []byte{1, 2, 3, 255})
			fs.SetOffsets(2, 3)
			want := target(img)
			if err := img.AttachFloating(fs, want); err != nil {
				t.Fatal(err)
			}

			got := saveAndLoad(t, img)
			gfs := got.Floating()
			if gfs == nil || got.Layers()[0] != gfs {
				t.Fatal("floating selection not restored on top of the stack")
			}
			if gfs.Name() != "float" || gfs.Bounds() != fs.Bounds() || !tile.Equal(gfs.Tiles(), fs.Tiles()) {
				t.Errorf("floating selection %q %v differs", gfs.Name(), gfs.Bounds())
			}
			gt := gfs.FloatingTarget()
			if gt == nil || gt != target(got) {
				t.Errorf("floating selection attached to %v, want the copy of %q", gt, want.Name())
			}
			if len(got.Layers()) != 3 {
				t.Errorf("loaded %d layers", len(got.Layers()))
			}
		})
	}
}

func TestSaveFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	img := sampleImage(t, canvas.NewContext())
	img.Compression = canvas.CompressZlib
	err := Save(filepath.Join(dir, "x.xcf"), img, SaveOptions{})
	if !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("err = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed save left %d files behind", len(entries))
	}
}

func TestSaveReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.xcf")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	img := sampleImage(t, canvas.NewContext())
	if err := Save(path, img, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || img.Filename != path {
		t.Errorf("%d files in directory, filename %q", len(entries), img.Filename)
	}
}

func TestSaveFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.xcf")
	if err := Save(path, sampleImage(t, canvas.NewContext()), SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o644 {
		t.Errorf("mode = %v, want 0644", perm)
	}
}

// rawFile assembles an XCF file by hand: the image header and properties,
// then at most one gray layer with uncompressed tiles.
type rawFile struct {
	sig        string
	w, h       int
	base       canvas.BaseType
	imageProps []byte
	layer      *rawLayer
}

type rawLayer struct {
	w, h         int
	props        []byte
	hierW, hierH int
	tiles        [][]byte
}

func propRecord(t propTag, body []byte) []byte {
	var w payloadWriter
	w.u32(uint32(t))
	w.u32(uint32(len(body)))
	w.bytes(body)
	return w.b
}

func (f rawFile) bytes() []byte {
	var w payloadWriter
	put := func(at, v int) { binary.BigEndian.PutUint32(w.b[at:], uint32(v)) }

	w.bytes([]byte(f.sig))
	w.u32(uint32(f.w))
	w.u32(uint32(f.h))
	w.u32(uint32(f.base))
	w.bytes(f.imageProps)
	w.u32(0)
	w.u32(0)
	layerTable := len(w.b)
	w.u32(0)
	w.u32(0)
	w.u32(0)
	l := f.layer
	if l == nil {
		return w.b
	}

	put(layerTable, len(w.b))
	w.u32(uint32(l.w))
	w.u32(uint32(l.h))
	w.u32(uint32(canvas.GrayImage))
	w.str("raw")
	w.bytes(l.props)
	w.u32(0)
	w.u32(0)
	slots := len(w.b)
	w.u32(0)
	w.u32(0)

	put(slots, len(w.b))
	w.u32(uint32(l.hierW))
	w.u32(uint32(l.hierH))
	w.u32(1)
	levelSlot := len(w.b)
	w.u32(0)
	w.u32(0)

	put(levelSlot, len(w.b))
	w.u32(uint32(l.hierW))
	w.u32(uint32(l.hierH))
	table := len(w.b)
	for range l.tiles {
		w.u32(0)
	}
	w.u32(0)
	for i, px := range l.tiles {
		put(table+4*i, len(w.b))
		w.bytes(px)
	}
	return w.b
}

func grayTile(w, h int, v byte) []byte { return bytes.Repeat([]byte{v}, w*h) }

func TestIdenticalTilesAreMapped(t *testing.T) {
	ctx := canvas.NewContext()
	f := rawFile{sig: signatureV0, w: 192, h: 64, layer: &rawLayer{
		w: 192, h: 64, hierW: 192, hierH: 64,
		tiles: [][]byte{grayTile(64, 64, 1), grayTile(64, 64, 7), grayTile(64, 64, 7)},
	}}
	img, err := Decode(ctx, bytes.NewReader(f.bytes()))
	if err != nil {
		t.Fatal(err)
	}
	m := img.Layers()[0].Tiles()
	if n := m.SharedTiles(); n != 2 {
		t.Errorf("%d shared tiles, want 2", n)
	}
	if m.TileAt(tile.Coord{Col: 0}).Shared() {
		t.Error("distinct first tile was mapped")
	}

	tile.FillRegion(tile.NewRegion(m, image.Rect(64, 0, 128, 64), true), []byte{3})
	if got := tile.ReadPixels(m, image.Rect(128, 0, 129, 1)); got[0] != 7 {
		t.Errorf("writing a mapped tile changed its twin: %v", got)
	}
}

func TestVersion0ColormapIsGrayRamp(t *testing.T) {
	body := append([]byte{0, 0, 0, 3}, 200, 100, 50, 1, 2, 3, 4, 5, 6)
	f := rawFile{sig: signatureV0, w: 4, h: 4, base: canvas.BaseIndexed, imageProps: propRecord(tagColormap, body)}
	img, err := Decode(canvas.NewContext(), bytes.NewReader(f.bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 0, 0, 1, 1, 1, 2, 2, 2}, img.Colormap()); diff != "" {
		t.Errorf("colormap (-want +got):\n%s", diff)
	}

	f.sig = "gimp xcf v001\x00"
	img, err = Decode(canvas.NewContext(), bytes.NewReader(f.bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(body[4:], img.Colormap()); diff != "" {
		t.Errorf("version 1 colormap (-want +got):\n%s", diff)
	}
}

func TestUnknownPropertiesAreSkipped(t *testing.T) {
	var logs bytes.Buffer
	applog.SetLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { applog.SetLogger(nil) })

	f := rawFile{
		sig:        signatureV0,
		w:          64,
		h:          64,
		imageProps: append(propRecord(99, []byte{1, 2, 3}), propRecord(tagCompression, []byte{0})...),
		layer: &rawLayer{
			w: 64, h: 64, hierW: 64, hierH: 64,
			props: append(propRecord(42, make([]byte, 8)), propRecord(tagOpacity, []byte{0, 0, 0, 77})...),
			tiles: [][]byte{grayTile(64, 64, 5)},
		},
	}
	img, err := Decode(canvas.NewContext(), bytes.NewReader(f.bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if l := img.Layers()[0]; l.Opacity != 77 {
		t.Errorf("property after the unknown one lost: opacity %d", l.Opacity)
	}
	for _, want := range []string{"unknown property 99 (3 bytes)", "unknown property 42 (8 bytes)"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log does not mention %q:\n%s", want, logs.String())
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	layer := func() *rawLayer {
		return &rawLayer{w: 64, h: 64, hierW: 64, hierH: 64, tiles: [][]byte{grayTile(64, 64, 5)}}
	}
	valid := rawFile{sig: signatureV0, w: 64, h: 64, layer: layer()}

	tests := []struct {
		name string
		data func() []byte
		want error
	}{
		{"empty", func() []byte { return nil }, ErrBadSignature},
		{"signature", func() []byte { return []byte("GIF89a........................") }, ErrBadSignature},
		{"version", func() []byte {
			f := valid
			f.sig = "gimp xcf v002\x00"
			return f.bytes()
		}, ErrUnsupportedVersion},
		{"compression", func() []byte {
			f := valid
			f.imageProps = propRecord(tagCompression, []byte{byte(canvas.CompressZlib)})
			return f.bytes()
		}, ErrUnsupportedCompression},
		{"hierarchy size", func() []byte {
			f := valid
			f.layer = layer()
			f.layer.hierW = 63
			return f.bytes()
		}, ErrSizeMismatch},
		{"missing tiles", func() []byte {
			f := valid
			f.layer = layer()
			f.layer.w, f.layer.hierW = 65, 65
			return f.bytes()
		}, ErrCorrupt},
		{"truncated", func() []byte {
			b := valid.bytes()
			return b[:len(b)-100]
		}, ErrCorrupt},
		{"bad rle", func() []byte {
			f := valid
			f.imageProps = propRecord(tagCompression, []byte{byte(canvas.CompressRLE)})
			f.layer = layer()
			f.layer.tiles = [][]byte{{200, 1, 2}}
			return f.bytes()
		}, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := canvas.NewContext()
			img, err := Decode(ctx, bytes.NewReader(tt.data()))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if img != nil || ctx.Registry().Len() != 0 {
				t.Errorf("failed load left %d objects registered", ctx.Registry().Len())
			}
		})
	}

	if _, err := Decode(canvas.NewContext(), bytes.NewReader(valid.bytes())); err != nil {
		t.Errorf("valid file: %v", err)
	}
}

func TestLoadMissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(canvas.NewContext(), filepath.Join(dir, "missing.xcf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
	empty := filepath.Join(dir, "empty.xcf")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(canvas.NewContext(), empty); !errors.Is(err, ErrBadSignature) {
		t.Errorf("empty file: %v", err)
	}
}
