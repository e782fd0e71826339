package tile

import (
	"bytes"
	"image"
	"testing"
)

func TestTileCoverage(t *testing.T) {
	sizes := [][2]int{{1, 1}, {63, 64}, {64, 64}, {65, 65}, {200, 130}, {128, 1}, {257, 511}}
	for _, sz := range sizes {
		w, h := sz[0], sz[1]
		m := NewManager(w, h, 3)
		if m.Cols() != (w+63)/64 || m.Rows() != (h+63)/64 {
			t.Errorf("%dx%d: grid %dx%d", w, h, m.Cols(), m.Rows())
		}
		area := 0
		for row := 0; row < m.Rows(); row++ {
			for col := 0; col < m.Cols(); col++ {
				tl := m.TileAt(Coord{Col: col, Row: row})
				wantW := min(Width, w-col*Width)
				wantH := min(Height, h-row*Height)
				if tl.EWidth() != wantW || tl.EHeight() != wantH {
					t.Errorf("%dx%d tile (%d,%d): effective %dx%d, want %dx%d",
						w, h, col, row, tl.EWidth(), tl.EHeight(), wantW, wantH)
				}
				if len(tl.Pixels()) != wantW*wantH*3 {
					t.Errorf("%dx%d tile (%d,%d): %d bytes", w, h, col, row, len(tl.Pixels()))
				}
				area += tl.EWidth() * tl.EHeight()
			}
		}
		if area != w*h {
			t.Errorf("%dx%d: tile area sum %d, want %d", w, h, area, w*h)
		}
	}
}

func TestGetOutOfBoundsPanics(t *testing.T) {
	m := NewManager(10, 10, 1)
	for _, p := range []image.Point{{-1, 0}, {0, -1}, {10, 0}, {0, 10}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Get(%d,%d) did not panic", p.X, p.Y)
				}
			}()
			m.Get(p.X, p.Y)
		}()
	}
}

func TestNewManagerInvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewManager(0, 10, 1) did not panic")
		}
	}()
	NewManager(0, 10, 1)
}

func TestResizeReallocates(t *testing.T) {
	m := NewManager(100, 100, 4)
	Fill(m, []byte{1, 2, 3, 4})
	m.Resize(70, 10, 2)
	if m.Width() != 70 || m.Height() != 10 || m.Bytes() != 2 {
		t.Fatalf("size after resize: %dx%dx%d", m.Width(), m.Height(), m.Bytes())
	}
	if m.NumTiles() != 2 {
		t.Errorf("NumTiles = %d, want 2", m.NumTiles())
	}
	for _, b := range m.Get(0, 0).Pixels() {
		if b != 0 {
			t.Fatal("resized manager is not zeroed")
		}
	}
}

func TestValidatorRunsOnceAndIsReentrant(t *testing.T) {
	m := NewManager(130, 70, 1)
	calls := map[Coord]int{}
	m.SetValidator(func(vm *Manager, c Coord) {
		calls[c]++
		// Writing the tile being validated must not recurse.
		FillRegion(NewRegion(vm, vm.TileRect(c), true), []byte{byte(10*c.Col + c.Row + 1)})
	})

	buf := ReadPixels(m, m.Bounds())
	if got := buf[0]; got != 1 {
		t.Errorf("pixel (0,0) = %d, want 1", got)
	}
	if got := buf[69*130+129]; got != 22 {
		t.Errorf("pixel (129,69) = %d, want 22", got)
	}
	ReadPixels(m, m.Bounds())
	for c, n := range calls {
		if n != 1 {
			t.Errorf("validator ran %d times for %v", n, c)
		}
	}
	if len(calls) != 6 {
		t.Errorf("validator ran for %d tiles, want 6", len(calls))
	}

	m.Invalidate(image.Rect(64, 0, 65, 1))
	ReadPixels(m, image.Rect(0, 0, 130, 70))
	if calls[Coord{Col: 1, Row: 0}] != 2 {
		t.Errorf("invalidated tile validated %d times, want 2", calls[Coord{Col: 1, Row: 0}])
	}
	if calls[Coord{Col: 0, Row: 0}] != 1 {
		t.Error("untouched tile was validated again")
	}
}

func TestMapCopyOnWrite(t *testing.T) {
	a := NewManager(64, 64, 2)
	b := NewManager(64, 64, 2)
	Fill(a, []byte{7, 9})

	src := a.TileAt(Coord{})
	b.Map(Coord{}, src)
	if !src.Shared() || !b.TileAt(Coord{}).Shared() {
		t.Fatal("mapped tiles should report Shared")
	}
	if !bytes.Equal(b.TileAt(Coord{}).Pixels(), src.Pixels()) {
		t.Fatal("mapped tile data differs")
	}

	Fill(b, []byte{1, 1})
	if b.TileAt(Coord{}).Shared() {
		t.Error("written tile should be private")
	}
	if got := a.Get(5, 5).Pixels()[0]; got != 7 {
		t.Errorf("source changed after write to mapped tile: %d", got)
	}
	if !b.TileAt(Coord{}).Dirty() {
		t.Error("written tile should be dirty")
	}
}

func TestMapSizeMismatchPanics(t *testing.T) {
	a := NewManager(100, 64, 1)
	defer func() {
		if recover() == nil {
			t.Error("mapping an edge tile onto a full tile did not panic")
		}
	}()
	a.Map(Coord{Col: 0}, a.TileAt(Coord{Col: 1}))
}

func TestCloneAndEqual(t *testing.T) {
	m := NewManager(90, 70, 3)
	buf := make([]byte, 90*70*3)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	WritePixels(m, m.Bounds(), buf)
	c := m.Clone()
	if !Equal(m, c) {
		t.Fatal("clone differs from original")
	}
	Fill(c, []byte{0, 0, 0})
	if Equal(m, c) {
		t.Error("clone shares storage with original")
	}
	if !bytes.Equal(ReadPixels(m, m.Bounds()), buf) {
		t.Error("original modified by writes to clone")
	}
}
