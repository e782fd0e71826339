package tile

import (
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/pspoerri/xcftiles/internal/applog"
)

// swapEntry records where a swapped-out tile lives. Uniform tiles keep
// their single pixel in memory and never touch the file.
type swapEntry struct {
	offset  int64
	length  int32
	uniform []byte
}

// Swap holds tile data that a Cache evicted from memory. Tiles are
// zstd-compressed and appended to a temporary file; a small in-memory index
// maps each swap key to its location. Space of tiles swapped back in is not
// reclaimed until Close.
type Swap struct {
	mu    sync.Mutex
	index map[uint64]swapEntry
	next  uint64

	file    *os.File
	fileOff int64
	dir     string

	enc *zstd.Encoder
	dec *zstd.Decoder

	swappedOut int64
	swappedIn  int64
}

// SwapConfig configures a Swap store.
type SwapConfig struct {
	// Dir is the directory for the swap file. Defaults to the OS temp dir.
	Dir string
	// Level is the zstd compression level. Defaults to zstd.SpeedFastest.
	Level zstd.EncoderLevel
}

// NewSwap creates a swap store. The backing file is created lazily on the
// first non-uniform tile.
func NewSwap(cfg SwapConfig) (*Swap, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	level := cfg.Level
	if level == 0 {
		level = zstd.SpeedFastest
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Swap{
		index: make(map[uint64]swapEntry),
		dir:   dir,
		enc:   enc,
		dec:   dec,
	}, nil
}

// put stores pix and returns its swap key.
func (s *Swap) put(pix []byte, bpp int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.next
	s.next++

	if px, ok := detectUniform(pix, bpp); ok {
		s.index[key] = swapEntry{uniform: append([]byte(nil), px...)}
		s.swappedOut++
		return key, nil
	}

	if s.file == nil {
		f, err := os.CreateTemp(s.dir, "xcftiles-swap-*.tmp")
		if err != nil {
			return 0, fmt.Errorf("creating swap file: %w", err)
		}
		s.file = f
	}

	data := s.enc.EncodeAll(pix, nil)
	n, err := s.file.WriteAt(data, s.fileOff)
	if err != nil {
		return 0, fmt.Errorf("writing swap file: %w", err)
	}
	s.index[key] = swapEntry{offset: s.fileOff, length: int32(n)}
	s.fileOff += int64(n)
	s.swappedOut++
	return key, nil
}

// get returns the data stored under key and forgets the entry.
func (s *Swap) get(key uint64, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("swap key %d not found", key)
	}
	delete(s.index, key)
	s.swappedIn++

	if e.uniform != nil {
		bpp := len(e.uniform)
		pix := make([]byte, size)
		for i := 0; i+bpp <= size; i += bpp {
			copy(pix[i:], e.uniform)
		}
		return pix, nil
	}

	buf := make([]byte, e.length)
	if _, err := s.file.ReadAt(buf, e.offset); err != nil {
		return nil, fmt.Errorf("reading swap file at offset %d: %w", e.offset, err)
	}
	pix, err := s.dec.DecodeAll(buf, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("decompressing swapped tile: %w", err)
	}
	if len(pix) != size {
		return nil, fmt.Errorf("swapped tile has %d bytes, want %d", len(pix), size)
	}
	return pix, nil
}

// drop forgets the entry for key without reading it.
func (s *Swap) drop(key uint64) {
	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()
}

// Len returns the number of tiles currently swapped out.
func (s *Swap) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Stats returns a human-readable summary of the store's usage.
func (s *Swap) Stats() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("swapped: %d tiles (%.1f MB file), out: %d, in: %d",
		len(s.index), float64(s.fileOff)/(1024*1024), s.swappedOut, s.swappedIn)
}

// Close removes the swap file. Tiles still swapped out are lost.
func (s *Swap) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc.Close()
	s.dec.Close()
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	s.file = nil
	applog.Logger().Debug("tile swap closed", "file", name, "tiles_lost", len(s.index))
	return err
}
