package tile

import (
	"runtime"

	"github.com/pspoerri/xcftiles/internal/applog"
)

// DefaultCacheFraction is the share of total RAM that tile data may occupy
// before the cache starts swapping tiles out.
const DefaultCacheFraction = 0.50

// minCacheLimit is the smallest automatic limit worth enforcing.
const minCacheLimit = 64 << 20

// ComputeCacheLimit returns a byte limit for a tile Cache: fraction of the
// total system RAM minus what the Go runtime already holds. It returns 0,
// meaning no limit, if RAM detection fails or the result is too small to
// be useful.
func ComputeCacheLimit(fraction float64) int64 {
	log := applog.Logger()
	totalRAM, err := totalSystemRAM()
	if err != nil {
		log.Debug("cannot detect system RAM, tile cache unlimited", "error", err)
		return 0
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	limit := int64(float64(totalRAM)*fraction) - int64(m.Sys)
	if limit < minCacheLimit {
		log.Debug("computed tile cache limit too small, cache unlimited", "limit", limit)
		return 0
	}
	log.Debug("tile cache limit", "bytes", limit, "ram", totalRAM, "fraction", fraction)
	return limit
}
