package master

import (
	"github.com/ardnew/softspi/master/hal"
)

// session is the state of one transaction shared by the chunked driver and
// the completion poller. Packet counts are per chunk unless noted.
type session struct {
	layout    Layout
	flow      hal.Direction // Directions requested by the transaction
	direction hal.Direction // Directions enabled for the chunk; none after teardown

	totalPackets   int // Packets requested by the transaction
	totalRemaining int // Packets not yet assigned to a chunk
	transferred    int // Packets completed across finished chunks

	chunkPackets int // Packets in the current chunk
	activation   int // Packets shifted by the current hardware activation
	txRemaining  int // Chunk packets not yet pushed to the transmit FIFO
	rxRemaining  int // Chunk packets not yet drained from the receive FIFO
	rxDrained    int // Chunk packets drained into receive scratch
	chunkDone    int // Chunk packets known complete

	txCursor int // Next transmit scratch word to push
	rxCursor int // Next receive scratch word to fill
}

// begin resets the session for a transaction of packets.
func (s *session) begin(layout Layout, dir hal.Direction, packets int) {
	*s = session{
		layout:         layout,
		flow:           dir,
		totalPackets:   packets,
		totalRemaining: packets,
	}
}

// beginChunk resets the per-chunk counters for a chunk of packets.
func (s *session) beginChunk(packets int) {
	s.chunkPackets = packets
	s.direction = s.flow
	s.activation = 0
	s.txRemaining = 0
	s.rxRemaining = 0
	s.rxDrained = 0
	s.chunkDone = 0
	s.txCursor = 0
	s.rxCursor = 0
	if s.flow.Has(hal.DirectionRx) {
		s.rxRemaining = packets
	}
}

// pending reports whether the chunk has work left in any active direction.
func (s *session) pending() bool {
	return s.txRemaining > 0 || s.rxRemaining > 0
}

// endChunk folds the chunk's completed packets into the transaction total.
func (s *session) endChunk() {
	s.transferred += min(s.chunkDone, s.chunkPackets)
}
