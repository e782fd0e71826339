package canvas

import (
	"bytes"
	"maps"
	"slices"
)

// ParasiteFlags describe how a parasite is handled.
type ParasiteFlags uint32

const (
	Persistent ParasiteFlags = 1 << iota // saved with the image
	Undoable                             // changes are recorded for undo
)

// Parasite is a named blob of data attached to an image or drawable.
type Parasite struct {
	Name  string
	Flags ParasiteFlags
	Data  []byte
}

func (p Parasite) IsPersistent() bool { return p.Flags&Persistent != 0 }

func (p Parasite) IsUndoable() bool { return p.Flags&Undoable != 0 }

// Equal reports whether p and q have the same name, flags and data.
func (p Parasite) Equal(q Parasite) bool {
	return p.Name == q.Name && p.Flags == q.Flags && bytes.Equal(p.Data, q.Data)
}

// ParasiteList holds parasites keyed by name.
type ParasiteList struct {
	m map[string]Parasite
}

func NewParasiteList() *ParasiteList {
	return &ParasiteList{m: make(map[string]Parasite)}
}

// Attach adds p, replacing any parasite of the same name.
func (l *ParasiteList) Attach(p Parasite) {
	p.Data = bytes.Clone(p.Data)
	l.m[p.Name] = p
}

// Detach removes the parasite called name and reports whether it existed.
func (l *ParasiteList) Detach(name string) bool {
	_, ok := l.m[name]
	delete(l.m, name)
	return ok
}

// Find returns the parasite called name.
func (l *ParasiteList) Find(name string) (Parasite, bool) {
	p, ok := l.m[name]
	return p, ok
}

func (l *ParasiteList) Len() int { return len(l.m) }

// List returns all parasites sorted by name.
func (l *ParasiteList) List() []Parasite {
	out := make([]Parasite, 0, len(l.m))
	for _, name := range slices.Sorted(maps.Keys(l.m)) {
		out = append(out, l.m[name])
	}
	return out
}

// Persistent returns the parasites that are saved with the image, sorted by
// name.
func (l *ParasiteList) Persistent() []Parasite {
	var out []Parasite
	for _, p := range l.List() {
		if p.IsPersistent() {
			out = append(out, p)
		}
	}
	return out
}

// Copy returns an independent copy of l.
func (l *ParasiteList) Copy() *ParasiteList {
	c := NewParasiteList()
	for _, p := range l.m {
		c.Attach(p)
	}
	return c
}
