package master

import (
	"go.uber.org/atomic"
)

// Stats is a snapshot of a controller's activity counters.
type Stats struct {
	Transactions uint64 // Transactions that passed validation
	Packets      uint64 // Packets completed, including partial counts
	Chunks       uint64 // Chunks started
	Timeouts     uint64 // Chunks that timed out
	Faults       uint64 // Chunks that ended in a FIFO fault
}

type counters struct {
	transactions atomic.Uint64
	packets      atomic.Uint64
	chunks       atomic.Uint64
	timeouts     atomic.Uint64
	faults       atomic.Uint64
}

// Stats returns a snapshot of the controller's counters. It does not wait for
// a transaction in progress.
func (c *Controller) Stats() Stats {
	return Stats{
		Transactions: c.stats.transactions.Load(),
		Packets:      c.stats.packets.Load(),
		Chunks:       c.stats.chunks.Load(),
		Timeouts:     c.stats.timeouts.Load(),
		Faults:       c.stats.faults.Load(),
	}
}
