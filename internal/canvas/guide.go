package canvas

import "slices"

// Orientation of a guide. The numeric values are those stored in XCF files.
type Orientation int8

const (
	Horizontal Orientation = 1
	Vertical   Orientation = 2
)

func (o Orientation) String() string {
	switch o {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	}
	return "unknown"
}

// Guide is an alignment line at a fixed image position.
type Guide struct {
	Position    int
	Orientation Orientation
}

// PathPoint is one anchor or control point of a path.
type PathPoint struct {
	Type uint32
	X, Y float64
}

// Path is a stored vector path. Paths are carried through load, save and
// duplicate but not edited.
type Path struct {
	Name   string
	Locked bool
	State  uint8
	Closed bool
	Type   uint32
	Tattoo Tattoo
	Points []PathPoint
}

func (p *Path) clone() *Path {
	c := *p
	c.Points = slices.Clone(p.Points)
	return &c
}

// Guides returns a copy of the image's guides in insertion order.
func (img *Image) Guides() []Guide { return slices.Clone(img.guides) }

// AddGuide adds a guide and returns it.
func (img *Image) AddGuide(position int, o Orientation) Guide {
	g := Guide{Position: position, Orientation: o}
	img.guides = append(img.guides, g)
	img.structure.emit(StructureEvent{Image: img, Kind: GuidesChanged})
	return g
}

// RemoveGuide removes the first guide equal to g.
func (img *Image) RemoveGuide(g Guide) bool {
	i := slices.Index(img.guides, g)
	if i < 0 {
		return false
	}
	img.guides = slices.Delete(img.guides, i, i+1)
	img.structure.emit(StructureEvent{Image: img, Kind: GuidesChanged})
	return true
}

// Paths returns the image's paths.
func (img *Image) Paths() []*Path { return img.paths }

// ActivePath returns the index of the selected path.
func (img *Image) ActivePath() int { return img.activePath }

// SetPaths replaces the stored paths.
func (img *Image) SetPaths(paths []*Path, active int) {
	img.paths = paths
	img.activePath = active
}
