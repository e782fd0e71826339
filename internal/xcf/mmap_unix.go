//go:build unix

package xcf

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile memory-maps f read-only. The file can be closed once mapped.
func mapFile(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
}

// unmapFile releases a mapping created by mapFile.
func unmapFile(data []byte) error {
	return unix.Munmap(data)
}
