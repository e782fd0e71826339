// Package xcf reads and writes images in the XCF 1.x file format.
//
// An XCF file starts with a signature and version, the image size and base
// type, and a list of image properties. Offset tables then point at layer
// and channel records; each record carries its own properties and the
// offset of a tile hierarchy. Tile data is stored raw or run-length encoded
// per byte plane. All integers are big-endian.
package xcf

import (
	"errors"
)

// Fatal format errors. Load and Decode wrap them with context; match them
// with errors.Is.
var (
	ErrBadSignature           = errors.New("xcf: not an XCF file")
	ErrUnsupportedVersion     = errors.New("xcf: unsupported file version")
	ErrUnsupportedCompression = errors.New("xcf: unsupported compression")
	ErrSizeMismatch           = errors.New("xcf: tile hierarchy does not match drawable")
	ErrCorrupt                = errors.New("xcf: corrupt file")
)

const (
	signatureV0  = "gimp xcf file\x00"
	signatureVN  = "gimp xcf v"
	signatureLen = 14

	maxVersion = 1

	// maxString bounds the length of names read from a file.
	maxString = 1 << 20
)

// propTag identifies a property record.
type propTag uint32

const (
	tagEnd propTag = iota
	tagColormap
	tagActiveLayer
	tagActiveChannel
	tagSelection
	tagFloatingSelection
	tagOpacity
	tagMode
	tagVisible
	tagLinked
	tagPreserveTransparency
	tagApplyMask
	tagEditMask
	tagShowMask
	tagShowMasked
	tagOffsets
	tagColor
	tagCompression
	tagGuides
	tagResolution
	tagTattoo
	tagParasites
	tagUnit
	tagPaths
	tagUserUnit
)

var tagNames = [...]string{
	tagEnd:                  "end",
	tagColormap:             "colormap",
	tagActiveLayer:          "active-layer",
	tagActiveChannel:        "active-channel",
	tagSelection:            "selection",
	tagFloatingSelection:    "floating-selection",
	tagOpacity:              "opacity",
	tagMode:                 "mode",
	tagVisible:              "visible",
	tagLinked:               "linked",
	tagPreserveTransparency: "preserve-transparency",
	tagApplyMask:            "apply-mask",
	tagEditMask:             "edit-mask",
	tagShowMask:             "show-mask",
	tagShowMasked:           "show-masked",
	tagOffsets:              "offsets",
	tagColor:                "color",
	tagCompression:          "compression",
	tagGuides:               "guides",
	tagResolution:           "resolution",
	tagTattoo:               "tattoo",
	tagParasites:            "parasites",
	tagUnit:                 "unit",
	tagPaths:                "paths",
	tagUserUnit:             "user-unit",
}

func (t propTag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}
