package canvas

import "image"

// RegionEvent reports that pixels of an image changed. Rect is in image
// coordinates.
type RegionEvent struct {
	Image    *Image
	Drawable Drawable
	Rect     image.Rectangle
}

// StructureKind says what part of an image's structure changed.
type StructureKind int

const (
	LayerAdded StructureKind = iota
	LayerRemoved
	LayerMoved
	ChannelAdded
	ChannelRemoved
	FloatingAttached
	FloatingDetached
	Resized
	ColormapChanged
	GuidesChanged
	ParasitesChanged
)

// StructureEvent reports a change to an image's structure. Drawable is set
// when the change concerns one.
type StructureEvent struct {
	Image    *Image
	Kind     StructureKind
	Drawable Drawable
}

type observers[E any] struct {
	next int
	fns  map[int]func(E)
}

func (o *observers[E]) add(fn func(E)) func() {
	if o.fns == nil {
		o.fns = make(map[int]func(E))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return func() { delete(o.fns, id) }
}

func (o *observers[E]) emit(e E) {
	for _, fn := range o.fns {
		fn(e)
	}
}

// OnRegionChanged registers fn to be called after pixels change. The
// returned function removes the registration.
func (img *Image) OnRegionChanged(fn func(RegionEvent)) (cancel func()) {
	return img.region.add(fn)
}

// OnStructureChanged registers fn to be called after layers, channels,
// guides, parasites or the image size change.
func (img *Image) OnStructureChanged(fn func(StructureEvent)) (cancel func()) {
	return img.structure.add(fn)
}
