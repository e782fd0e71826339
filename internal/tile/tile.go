package tile

import "fmt"

// Nominal tile dimensions. Tiles on the right and bottom edge of a Manager
// are smaller; always use EWidth/EHeight for coverage arithmetic.
const (
	Width  = 64
	Height = 64
)

// buffer is the storage behind a Tile. It is one of ownedBuffer,
// *sharedBuffer or swappedBuffer.
type buffer interface {
	isBuffer()
}

// ownedBuffer is private to one tile. A nil ownedBuffer is allocated
// (zeroed) on first access.
type ownedBuffer []byte

// sharedBuffer is referenced by more than one tile and is read-only.
// The first write through any referencing tile makes a private copy.
type sharedBuffer struct {
	pix  []byte
	refs int
}

// swappedBuffer marks pixel data that was moved out to a Swap store.
type swappedBuffer struct {
	swap *Swap
	key  uint64
}

func (ownedBuffer) isBuffer()   {}
func (*sharedBuffer) isBuffer() {}
func (swappedBuffer) isBuffer() {}

// Tile is a block of at most Width×Height pixels.
type Tile struct {
	ewidth  int
	eheight int
	bpp     int
	buf     buffer
	valid   bool
	dirty   bool
	locks   int
	cache   *Cache
}

func newTile(ewidth, eheight, bpp int) *Tile {
	return &Tile{ewidth: ewidth, eheight: eheight, bpp: bpp, buf: ownedBuffer(nil)}
}

// EWidth returns the effective width of the tile.
func (t *Tile) EWidth() int { return t.ewidth }

// EHeight returns the effective height of the tile.
func (t *Tile) EHeight() int { return t.eheight }

// Bytes returns the number of bytes per pixel.
func (t *Tile) Bytes() int { return t.bpp }

// Size returns the number of bytes of pixel data.
func (t *Tile) Size() int { return t.ewidth * t.eheight * t.bpp }

// Valid reports whether the tile's contents are up to date.
func (t *Tile) Valid() bool { return t.valid }

// Dirty reports whether the tile was written since it was created or loaded.
func (t *Tile) Dirty() bool { return t.dirty }

// Shared reports whether the tile's pixel data is mapped from another tile.
func (t *Tile) Shared() bool {
	_, ok := t.buf.(*sharedBuffer)
	return ok
}

// Swapped reports whether the tile's pixel data currently lives in a Swap store.
func (t *Tile) Swapped() bool {
	_, ok := t.buf.(swappedBuffer)
	return ok
}

// Pixels returns the tile's pixel data for reading. The returned slice must
// not be modified; use Writable for that.
func (t *Tile) Pixels() []byte {
	pix := t.load()
	t.touch()
	return pix
}

// Writable returns the tile's pixel data for writing. A shared tile first
// gets a private copy; the tile is marked dirty.
func (t *Tile) Writable() []byte {
	pix := t.load()
	if sb, ok := t.buf.(*sharedBuffer); ok {
		own := make([]byte, len(pix))
		copy(own, pix)
		sb.refs--
		t.buf = ownedBuffer(own)
		pix = own
	}
	t.dirty = true
	t.touch()
	return pix
}

// load returns the current pixel bytes, allocating or swapping in as needed.
func (t *Tile) load() []byte {
	switch b := t.buf.(type) {
	case ownedBuffer:
		if b == nil {
			b = make(ownedBuffer, t.Size())
			t.buf = b
		}
		return b
	case *sharedBuffer:
		return b.pix
	case swappedBuffer:
		pix, err := b.swap.get(b.key, t.Size())
		if err != nil {
			panic(fmt.Sprintf("tile: swapping in tile: %v", err))
		}
		t.buf = ownedBuffer(pix)
		return pix
	}
	panic("tile: unknown buffer type")
}

// share converts the tile's storage into a shared buffer and returns it.
func (t *Tile) share() *sharedBuffer {
	switch b := t.buf.(type) {
	case *sharedBuffer:
		return b
	default:
		pix := t.load()
		if t.cache != nil {
			t.cache.remove(t)
		}
		sb := &sharedBuffer{pix: pix, refs: 1}
		t.buf = sb
		return sb
	}
}

// release drops the tile's storage.
func (t *Tile) release() {
	if t.cache != nil {
		t.cache.remove(t)
	}
	switch b := t.buf.(type) {
	case *sharedBuffer:
		b.refs--
	case swappedBuffer:
		b.swap.drop(b.key)
	}
	t.buf = ownedBuffer(nil)
}

func (t *Tile) lock()   { t.locks++ }
func (t *Tile) unlock() { t.locks-- }

func (t *Tile) touch() {
	if t.cache != nil {
		t.cache.touch(t)
	}
}

// Uniform reports whether every pixel of the tile holds the same bytes and
// returns that pixel.
func (t *Tile) Uniform() ([]byte, bool) {
	return detectUniform(t.Pixels(), t.bpp)
}

// detectUniform scans pix sequentially and stops at the first pixel that
// differs from the first one.
func detectUniform(pix []byte, bpp int) ([]byte, bool) {
	if len(pix) < bpp || bpp == 0 {
		return nil, false
	}
	first := pix[:bpp]
	for i := bpp; i < len(pix); i += bpp {
		for b := 0; b < bpp; b++ {
			if pix[i+b] != first[b] {
				return nil, false
			}
		}
	}
	return first, true
}
