package canvas

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"

	"github.com/pspoerri/xcftiles/internal/composite"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
)

func layerNames(img *Image) []string {
	var names []string
	for _, l := range img.Layers() {
		names = append(names, l.Name())
	}
	return names
}

func TestLayerStackOrder(t *testing.T) {
	img := NewImage(NewContext(), 10, 10, BaseRGB)
	a := img.NewLayer("a", 10, 10, RGBImage, 255, composite.Normal)
	b := img.NewLayer("b", 10, 10, RGBImage, 255, composite.Normal)
	c := img.NewLayer("c", 10, 10, RGBImage, 255, composite.Normal)
	for _, l := range []*Layer{a, b} {
		if err := img.AddLayer(l, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := img.AddLayer(c, 99); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, layerNames(img)); diff != "" {
		t.Fatalf("stack (-want +got):\n%s", diff)
	}
	if err := img.AddLayer(a, 0); err == nil {
		t.Error("adding a layer twice succeeded")
	}

	if err := img.RaiseLayer(c); err != nil {
		t.Fatal(err)
	}
	if err := img.LowerLayer(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, layerNames(img)); diff != "" {
		t.Errorf("after raise/lower (-want +got):\n%s", diff)
	}

	if err := img.RemoveLayer(b); err != nil {
		t.Fatal(err)
	}
	if err := img.RemoveLayer(b); err == nil {
		t.Error("removing a missing layer succeeded")
	}
	if img.LayerByName("b") != nil || img.LayerIndex(a) != 1 {
		t.Error("layer b still present")
	}
}

func TestForeignLayerRejected(t *testing.T) {
	ctx := NewContext()
	a := NewImage(ctx, 4, 4, BaseRGB)
	b := NewImage(ctx, 4, 4, BaseRGB)
	l := a.NewLayer("l", 4, 4, RGBImage, 255, composite.Normal)
	if err := b.AddLayer(l, 0); err == nil {
		t.Error("layer of another image was added")
	}
}

func TestRegistryAndTattoos(t *testing.T) {
	ctx := NewContext()
	img := NewImage(ctx, 4, 4, BaseGray)
	l := img.NewLayer("l", 4, 4, GrayImage, 255, composite.Normal)
	c := img.NewChannel("c", 4, 4, 255, [3]uint8{})
	if ctx.Registry().Drawable(l.ID()) != Drawable(l) || ctx.Registry().Image(img.ID()) != img {
		t.Fatal("registry lookup failed")
	}
	if l.ID() == c.ID() || l.Tattoo() == c.Tattoo() {
		t.Error("ids or tattoos not unique")
	}
	if err := img.AddLayer(l, 0); err != nil {
		t.Fatal(err)
	}
	if err := img.AddChannel(c, 0); err != nil {
		t.Fatal(err)
	}
	l.SetTattoo(100)
	if img.LayerByTattoo(100) != l || img.DrawableByTattoo(c.Tattoo()) != Drawable(c) {
		t.Error("tattoo lookup failed")
	}
	if img.NextTattoo() != 101 {
		t.Error("tattoo counter did not follow SetTattoo")
	}

	n := ctx.Registry().Len()
	img.Delete()
	if got := ctx.Registry().Len(); got != n-4 {
		t.Errorf("registry has %d entries after Delete, want %d", got, n-4)
	}
}

func TestObservers(t *testing.T) {
	img := NewImage(NewContext(), 50, 50, BaseRGB)
	var regions []image.Rectangle
	var kinds []StructureKind
	cancelR := img.OnRegionChanged(func(e RegionEvent) { regions = append(regions, e.Rect) })
	cancelS := img.OnStructureChanged(func(e StructureEvent) { kinds = append(kinds, e.Kind) })

	l := img.NewLayer("l", 20, 20, RGBImage, 255, composite.Normal)
	l.SetOffsets(40, 40)
	if err := img.AddLayer(l, 0); err != nil {
		t.Fatal(err)
	}
	img.AddGuide(10, Horizontal)
	img.Update(l, image.Rect(0, 0, 5, 5))
	img.Update(l, image.Rect(15, 15, 20, 20))

	want := []image.Rectangle{image.Rect(40, 40, 50, 50), image.Rect(40, 40, 45, 45)}
	if diff := cmp.Diff(want, regions); diff != "" {
		t.Errorf("region events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]StructureKind{LayerAdded, GuidesChanged}, kinds); diff != "" {
		t.Errorf("structure events (-want +got):\n%s", diff)
	}

	cancelR()
	cancelS()
	img.Update(l, image.Rect(0, 0, 5, 5))
	img.Resize(60, 60)
	if len(regions) != 2 || len(kinds) != 2 {
		t.Error("cancelled observers still called")
	}
}

func TestResizeDropsProjection(t *testing.T) {
	img := NewImage(NewContext(), 30, 30, BaseRGB)
	p := img.Projection()
	img.Resize(70, 10)
	q := img.Projection()
	if p == q || q.Width() != 70 || q.Height() != 10 {
		t.Errorf("projection after resize is %dx%d", q.Width(), q.Height())
	}
	if s := img.Selection(); s.Width() != 70 || s.Height() != 10 {
		t.Errorf("selection after resize is %dx%d", s.Width(), s.Height())
	}
}

func TestParasites(t *testing.T) {
	img := NewImage(NewContext(), 4, 4, BaseRGB)
	data := []byte("gimp-comment")
	img.AttachParasite(Parasite{Name: "z", Flags: Persistent, Data: data})
	img.AttachParasite(Parasite{Name: "a", Flags: Undoable})
	data[0] = 'X'

	p, ok := img.Parasite("z")
	if !ok || string(p.Data) != "gimp-comment" || !p.IsPersistent() {
		t.Errorf("parasite z = %+v", p)
	}
	names := []string{}
	for _, p := range img.Parasites().List() {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"a", "z"}, names); diff != "" {
		t.Errorf("parasite order (-want +got):\n%s", diff)
	}
	if got := img.Parasites().Persistent(); len(got) != 1 || got[0].Name != "z" {
		t.Errorf("persistent parasites = %v", got)
	}
	if !img.DetachParasite("a") || img.DetachParasite("a") {
		t.Error("DetachParasite result wrong")
	}
}

func TestGuides(t *testing.T) {
	img := NewImage(NewContext(), 4, 4, BaseRGB)
	g := img.AddGuide(3, Vertical)
	img.AddGuide(1, Horizontal)
	if !img.RemoveGuide(g) || img.RemoveGuide(g) {
		t.Error("RemoveGuide result wrong")
	}
	if diff := cmp.Diff([]Guide{{Position: 1, Orientation: Horizontal}}, img.Guides()); diff != "" {
		t.Errorf("guides (-want +got):\n%s", diff)
	}
}

func TestTranslatedNames(t *testing.T) {
	ctx := NewContext(WithPrinter(i18n.Printer(language.German)))
	img := NewImage(ctx, 4, 4, BaseRGB)
	if got := img.Selection().Name(); got != "Auswahlmaske" {
		t.Errorf("selection name = %q", got)
	}
	l := img.NewLayer("Ebene", 4, 4, RGBAImage, 255, composite.Normal)
	if got := img.NewLayerMask(l, 255).Name(); got != "Maske von Ebene" {
		t.Errorf("mask name = %q", got)
	}
}

func TestDuplicate(t *testing.T) {
	ctx := NewContext()
	img := NewImage(ctx, 70, 40, BaseIndexed)
	if err := img.SetColormap([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	bottom := addFilledLayer(t, img, "bottom", 70, 40, IndexedImage, []byte{1}, 0, 0)
	top := addFilledLayer(t, img, "top", 10, 10, IndexedAImage, []byte{0, 255}, 3, 4)
	top.Opacity = 77
	top.Linked = true
	mask := img.NewLayerMask(top, 200)
	if err := top.AddMask(mask); err != nil {
		t.Fatal(err)
	}
	top.Parasites().Attach(Parasite{Name: "p", Flags: Persistent, Data: []byte{1}})
	ch := img.NewChannel("ch", 70, 40, 50, [3]uint8{9, 8, 7})
	ch.ShowMasked = true
	if err := img.AddChannel(ch, 0); err != nil {
		t.Fatal(err)
	}
	fs := img.NewLayer("float", 5, 5, IndexedAImage, 255, composite.Normal)
	if err := img.AttachFloating(fs, mask); err != nil {
		t.Fatal(err)
	}
	img.AddGuide(7, Vertical)
	img.SetPaths([]*Path{{Name: "p", Points: []PathPoint{{Type: 1, X: 1.5, Y: 2}}}}, 0)
	img.SetActiveLayer(top)

	dup, err := Duplicate(img)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(layerNames(img), layerNames(dup)); diff != "" {
		t.Fatalf("layer order (-orig +dup):\n%s", diff)
	}
	for i, l := range img.Layers() {
		d := dup.Layers()[i]
		if d == l || d.ID() == l.ID() {
			t.Errorf("layer %s shared with the duplicate", l.Name())
		}
		if d.Tattoo() != l.Tattoo() || d.Opacity != l.Opacity || d.Linked != l.Linked {
			t.Errorf("layer %s properties differ", l.Name())
		}
		if !tile.Equal(d.Tiles(), l.Tiles()) {
			t.Errorf("layer %s pixels differ", l.Name())
		}
		if x, y := d.Offsets(); image.Pt(x, y) != l.Bounds().Min {
			t.Errorf("layer %s offsets differ", l.Name())
		}
	}
	dtop := dup.LayerByName("top")
	if dtop.Mask() == nil || !tile.Equal(dtop.Mask().Tiles(), mask.Tiles()) || dtop.Mask().Layer() != dtop {
		t.Error("mask not duplicated")
	}
	if dup.Floating() == nil || dup.Floating().FloatingTarget() != Drawable(dtop.Mask()) {
		t.Error("floating selection not re-attached to the copied mask")
	}
	if dup.ActiveLayer() != dtop {
		t.Error("active layer not mapped")
	}
	if p, ok := dtop.Parasites().Find("p"); !ok || p.Data[0] != 1 {
		t.Error("drawable parasites not copied")
	}
	if dc := dup.Channels()[0]; dc.Color != ch.Color || !dc.ShowMasked || dc.Opacity != 50 {
		t.Errorf("channel = %+v", dc)
	}
	if diff := cmp.Diff(img.Colormap(), dup.Colormap()); diff != "" {
		t.Errorf("colormap (-orig +dup):\n%s", diff)
	}
	if diff := cmp.Diff(img.Guides(), dup.Guides()); diff != "" {
		t.Errorf("guides (-orig +dup):\n%s", diff)
	}
	if diff := cmp.Diff(img.Paths(), dup.Paths()); diff != "" {
		t.Errorf("paths (-orig +dup):\n%s", diff)
	}

	tile.Fill(dup.LayerByName("bottom").Tiles(), []byte{0})
	if got := tile.ReadPixels(bottom.Tiles(), image.Rect(0, 0, 1, 1)); got[0] != 1 {
		t.Error("writing the duplicate changed the original")
	}
	dup.Paths()[0].Points[0].X = 99
	if img.Paths()[0].Points[0].X != 1.5 {
		t.Error("paths shared with the duplicate")
	}
}

func TestFloatingSelectionStaysOnTop(t *testing.T) {
	img := NewImage(NewContext(), 10, 10, BaseRGB)
	base := img.NewLayer("base", 10, 10, RGBImage, 255, composite.Normal)
	if err := img.AddLayer(base, 0); err != nil {
		t.Fatal(err)
	}
	fs := img.NewLayer("float", 4, 4, RGBAImage, 255, composite.Normal)
	if err := img.AttachFloating(fs, base); err != nil {
		t.Fatal(err)
	}
	if err := img.LowerLayer(fs); err == nil {
		t.Error("lowering the floating selection succeeded")
	}
	if err := img.RaiseLayer(fs); err == nil {
		t.Error("raising the floating selection succeeded")
	}
	if diff := cmp.Diff([]string{"float", "base"}, layerNames(img)); diff != "" {
		t.Errorf("stack (-want +got):\n%s", diff)
	}
}

func TestDuplicateUnderCachePressure(t *testing.T) {
	swap, err := tile.NewSwap(tile.SwapConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer swap.Close()
	cache := tile.NewCache(tile.Width*tile.Height*4, swap)
	img := NewImage(NewContext(WithCache(cache)), 256, 256, BaseRGB)
	l, buf := patternLayer(t, img, 256, 256, RGBAImage)

	dup, err := Duplicate(img)
	if err != nil {
		t.Fatal(err)
	}
	if cache.Evictions() == 0 {
		t.Fatal("cache never evicted")
	}
	d := dup.Layers()[0]
	if !tile.Equal(d.Tiles(), l.Tiles()) {
		t.Fatal("duplicated layer pixels differ from the original")
	}
	if got := tile.ReadPixels(d.Tiles(), d.Tiles().Bounds()); string(got) != string(buf) {
		t.Fatal("duplicated layer lost pixel data")
	}
}
