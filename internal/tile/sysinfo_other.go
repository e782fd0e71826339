//go:build !darwin && !linux

package tile

import "errors"

// totalSystemRAM reports that RAM detection is not available here.
func totalSystemRAM() (uint64, error) {
	return 0, errors.ErrUnsupported
}
