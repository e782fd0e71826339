package tile

import (
	"bytes"
	"os"
	"testing"
)

func newTestSwap(t *testing.T) *Swap {
	t.Helper()
	s, err := NewSwap(SwapConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCacheSwapsOutAndBackIn(t *testing.T) {
	swap := newTestSwap(t)
	tileBytes := int64(Width * Height * 3)
	cache := NewCache(2*tileBytes, swap)

	m := NewManager(256, 128, 3) // 8 tiles
	m.SetCache(cache)

	in := make([]byte, 256*128*3)
	for i := range in {
		in[i] = byte((i * 31) ^ (i >> 9))
	}
	WritePixels(m, m.Bounds(), in)

	if cache.Used() > 2*tileBytes {
		t.Errorf("cache holds %d bytes, limit %d", cache.Used(), 2*tileBytes)
	}
	if cache.Evictions() == 0 || swap.Len() == 0 {
		t.Fatal("no tiles were swapped out")
	}

	if out := ReadPixels(m, m.Bounds()); !bytes.Equal(in, out) {
		t.Fatal("pixel data changed across swap out/in")
	}
}

func TestSwapUniformTilesStayInMemory(t *testing.T) {
	swap := newTestSwap(t)
	cache := NewCache(0, swap)
	m := NewManager(128, 64, 4)
	m.SetCache(cache)
	Fill(m, []byte{1, 2, 3, 4})

	for i := 0; i < m.NumTiles(); i++ {
		m.TileAt(Coord{Col: i}).Pixels()
	}
	if swap.file != nil {
		t.Error("uniform tiles should not create a swap file")
	}
	px := m.Get(100, 10).Pixels()
	if !bytes.Equal(px[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("uniform tile swapped back in as %v", px[:4])
	}
}

func TestSwapCloseRemovesFile(t *testing.T) {
	s, err := NewSwap(SwapConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	pix := make([]byte, 64)
	for i := range pix {
		pix[i] = byte(i)
	}
	key, err := s.put(pix, 1)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	name := s.file.Name()
	got, err := s.get(key, len(pix))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, pix) {
		t.Error("swap round trip changed data")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("swap file %s still exists", name)
	}
}

func TestReleaseDropsSwappedTiles(t *testing.T) {
	swap := newTestSwap(t)
	cache := NewCache(0, swap)
	m := NewManager(200, 10, 1)
	m.SetCache(cache)
	buf := make([]byte, 200*10)
	for i := range buf {
		buf[i] = byte(i)
	}
	WritePixels(m, m.Bounds(), buf)
	m.Release()
	if swap.Len() != 0 {
		t.Errorf("swap still holds %d tiles after Release", swap.Len())
	}
	if cache.Len() != 0 {
		t.Errorf("cache still tracks %d tiles after Release", cache.Len())
	}
}

func TestComputeCacheLimit(t *testing.T) {
	if got := ComputeCacheLimit(0); got != 0 {
		t.Errorf("ComputeCacheLimit(0) = %d, want 0 (too small to enforce)", got)
	}
	if got := ComputeCacheLimit(DefaultCacheFraction); got != 0 && got < minCacheLimit {
		t.Errorf("ComputeCacheLimit = %d, below the %d minimum", got, minCacheLimit)
	}
}

func TestCloneUnderCachePressure(t *testing.T) {
	swap := newTestSwap(t)
	cache := NewCache(Width*Height*3, swap)

	m := NewManager(256, 64, 3)
	m.SetCache(cache)
	in := make([]byte, 256*64*3)
	for i := range in {
		in[i] = byte(i*7 + i>>8)
	}
	WritePixels(m, m.Bounds(), in)

	cl := m.Clone()
	if cache.Evictions() == 0 {
		t.Fatal("cache never evicted")
	}
	if !Equal(m, cl) {
		t.Fatal("clone differs from its source")
	}
	if out := ReadPixels(cl, cl.Bounds()); !bytes.Equal(in, out) {
		t.Fatal("clone lost pixel data")
	}
}
