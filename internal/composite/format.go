// Package composite blends tile-bounded spans of pixels.
//
// Two paths exist. Initial writes a source into a destination that holds no
// content yet for this construction pass; Combine blends a source "over"
// content already present. The projection builder decides which one applies
// per layer.
package composite

import (
	"errors"
	"fmt"
)

// Kind is the color model of a pixel format.
type Kind uint8

const (
	Gray Kind = iota
	RGB
	Indexed
)

func (k Kind) String() string {
	switch k {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	case Indexed:
		return "indexed"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Format is a pixel layout: a color model with or without a trailing alpha
// byte.
type Format struct {
	Kind  Kind
	Alpha bool
}

// Common formats.
var (
	FormatGray     = Format{Kind: Gray}
	FormatGrayA    = Format{Kind: Gray, Alpha: true}
	FormatRGB      = Format{Kind: RGB}
	FormatRGBA     = Format{Kind: RGB, Alpha: true}
	FormatIndexed  = Format{Kind: Indexed}
	FormatIndexedA = Format{Kind: Indexed, Alpha: true}
)

// Bytes returns the number of bytes per pixel.
func (f Format) Bytes() int {
	n := 1
	if f.Kind == RGB {
		n = 3
	}
	if f.Alpha {
		n++
	}
	return n
}

// ColorBytes returns the number of bytes per pixel without alpha.
func (f Format) ColorBytes() int {
	if f.Kind == RGB {
		return 3
	}
	return 1
}

func (f Format) String() string {
	if f.Alpha {
		return f.Kind.String() + "a"
	}
	return f.Kind.String()
}

// ErrIndexedCombine is returned when an indexed source without alpha would
// have to be blended onto existing content. Such a source can only be used
// on the initial path.
var ErrIndexedCombine = errors.New("composite: indexed source cannot be combined")

// ErrIndexedDest is returned when the destination format is indexed.
var ErrIndexedDest = errors.New("composite: indexed destination not supported")

// pixel is an unpacked, non-premultiplied sample. Gray values are stored
// replicated in all three color slots.
type pixel struct {
	r, g, b, a uint8
}

// load unpacks the pixel at p. Indexed pixels are looked up in cmap
// (3 bytes per entry); their alpha is either fully opaque or transparent.
func (f Format) load(p []byte, cmap []byte) pixel {
	var px pixel
	switch f.Kind {
	case Gray:
		px = pixel{p[0], p[0], p[0], 255}
	case RGB:
		px = pixel{p[0], p[1], p[2], 255}
	case Indexed:
		i := int(p[0]) * 3
		if i+2 < len(cmap) {
			px = pixel{cmap[i], cmap[i+1], cmap[i+2], 255}
		} else {
			px = pixel{0, 0, 0, 255}
		}
		if f.Alpha {
			if p[1] > 127 {
				px.a = 255
			} else {
				px.a = 0
			}
			return px
		}
	}
	if f.Alpha {
		px.a = p[f.Bytes()-1]
	}
	return px
}

// store packs px into p. Gray destinations receive the luminance.
func (f Format) store(p []byte, px pixel) {
	switch f.Kind {
	case Gray:
		p[0] = luminance(px.r, px.g, px.b)
	case RGB:
		p[0], p[1], p[2] = px.r, px.g, px.b
	}
	if f.Alpha {
		p[f.Bytes()-1] = px.a
	}
}

func luminance(r, g, b uint8) uint8 {
	if r == g && g == b {
		return r
	}
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}
