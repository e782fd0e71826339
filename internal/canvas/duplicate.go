package canvas

import (
	"fmt"
	"slices"
)

// Duplicate returns a full copy of img registered in the same context.
// Drawables get new ids but keep their names, tattoos and properties; the
// floating selection is re-attached to the copy of its target.
func Duplicate(img *Image) (*Image, error) {
	dup := NewImage(img.ctx, img.width, img.height, img.base)
	dup.colormap = slices.Clone(img.colormap)
	dup.guides = slices.Clone(img.guides)
	dup.parasites = img.parasites.Copy()
	dup.paths = make([]*Path, len(img.paths))
	for i, p := range img.paths {
		dup.paths[i] = p.clone()
	}
	dup.activePath = img.activePath
	dup.XResolution, dup.YResolution = img.XResolution, img.YResolution
	dup.Unit = img.Unit
	dup.Compression = img.Compression
	dup.Filename = img.Filename

	copies := make(map[Drawable]Drawable)

	copyDrawable(dup, &dup.selection.drawable, &img.selection.drawable)
	copyChannelProps(dup.selection, img.selection)
	copies[img.selection] = dup.selection

	for _, l := range img.layers {
		if l == img.floating {
			continue
		}
		nl := duplicateLayer(dup, l)
		dup.layers = append(dup.layers, nl)
		copies[l] = nl
		if l.mask != nil {
			copies[l.mask] = nl.mask
		}
		if l == img.activeLayer {
			dup.activeLayer = nl
		}
	}
	for _, c := range img.channels {
		nc := dup.NewChannel(c.name, c.Width(), c.Height(), c.Opacity, c.Color)
		copyDrawable(dup, &nc.drawable, &c.drawable)
		copyChannelProps(nc, c)
		dup.channels = append(dup.channels, nc)
		copies[c] = nc
		if c == img.activeChannel {
			dup.activeChannel = nc
		}
	}

	if fs := img.floating; fs != nil {
		target, ok := copies[fs.floating]
		if !ok {
			dup.Delete()
			return nil, fmt.Errorf("floating selection %q: target %q not found", fs.name, fs.floating.Name())
		}
		nfs := duplicateLayer(dup, fs)
		if err := dup.AttachFloating(nfs, target); err != nil {
			dup.Delete()
			return nil, err
		}
		if fs == img.activeLayer {
			dup.activeLayer = nfs
		}
	}

	dup.tattoo = max(dup.tattoo, img.tattoo)
	return dup, nil
}

func duplicateLayer(dup *Image, l *Layer) *Layer {
	nl := dup.NewLayer(l.name, l.Width(), l.Height(), l.typ, l.Opacity, l.Mode)
	copyDrawable(dup, &nl.drawable, &l.drawable)
	nl.PreserveTransparency = l.PreserveTransparency
	nl.Linked = l.Linked
	if l.mask != nil {
		m := dup.NewLayerMask(nl, 0)
		copyDrawable(dup, &m.drawable, &l.mask.drawable)
		copyChannelProps(&m.Channel, &l.mask.Channel)
		m.layer = nl
		nl.mask = m
	}
	nl.ApplyMask = l.ApplyMask
	nl.EditMask = l.EditMask
	nl.ShowMask = l.ShowMask
	return nl
}

// copyDrawable copies pixels and the properties common to all drawables.
// The destination keeps its id.
func copyDrawable(dup *Image, dst, src *drawable) {
	dst.tiles.Release()
	dst.tiles = src.tiles.Clone()
	if c := dup.ctx.cache; c != nil {
		dst.tiles.SetCache(c)
	}
	dst.tattoo = src.tattoo
	dst.name = src.name
	dst.offX, dst.offY = src.offX, src.offY
	dst.visible = src.visible
	dst.parasites = src.parasites.Copy()
}

func copyChannelProps(dst, src *Channel) {
	dst.Color = src.Color
	dst.Opacity = src.Opacity
	dst.ShowMasked = src.ShowMasked
	dst.Linked = src.Linked
}
