package block

import "sync/atomic"

type stats struct {
	reads  atomic.Uint64
	writes atomic.Uint64
	grows  atomic.Uint64
}

// Stats is a snapshot of the I/O counters of a Device.
type Stats struct {
	Reads  uint64
	Writes uint64
	Grows  uint64
}

// Stats returns a snapshot of the I/O counters.
func (dev *Device[F]) Stats() Stats {
	return Stats{
		Reads:  dev.stats.reads.Load(),
		Writes: dev.stats.writes.Load(),
		Grows:  dev.stats.grows.Load(),
	}
}

// ResetStats zeroes the I/O counters.
func (dev *Device[F]) ResetStats() {
	dev.stats.reads.Store(0)
	dev.stats.writes.Store(0)
	dev.stats.grows.Store(0)
}
