package master

import (
	"context"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

// sizeChunk returns the packets and words of the next chunk. Under the
// unpacked residual policy a packed transfer with fewer packets left than
// fill one word switches to one packet per word for the rest of the
// transfer.
func (c *Controller) sizeChunk() (packets, words int) {
	s := &c.session
	l := s.layout
	packets = min(s.totalRemaining, MaxChunkWords*l.PacketsPerWord)

	if c.cfg.Residual != ResidualUnpacked || !l.Packed() {
		return packets, l.WordsFor(packets)
	}
	if words = packets / l.PacketsPerWord; words > 0 {
		return words * l.PacketsPerWord, words
	}

	s.layout = l.Unpacked()
	c.hal.SetPacketLength(l.BitLength, false)
	pkg.LogDebug(pkg.ComponentTransfer, "residual packets unpacked",
		"instance", c.instance, "packets", packets)
	return packets, packets
}

// runTransfer moves packets in chunks through the FIFOs. rx and tx hold
// exactly packets worth of bytes when non-nil. It returns the packets
// completed, including a partial count on failure.
func (c *Controller) runTransfer(ctx context.Context, rx, tx []byte, packets int, layout Layout) (int, pkg.TransferStatus) {
	s := &c.session
	dir := hal.DirectionNone
	if rx != nil {
		dir |= hal.DirectionRx
	}
	if tx != nil {
		dir |= hal.DirectionTx
	}
	s.begin(layout, dir, packets)

	offset := 0
	for s.totalRemaining > 0 {
		chunk, words := c.sizeChunk()
		s.beginChunk(chunk)
		bpp := s.layout.BytesPerPacket
		size := chunk * bpp

		if tx != nil {
			if _, err := s.layout.Pack(c.txBuf[:words], tx[offset:offset+size]); err != nil {
				return s.transferred, pkg.TransferStatusBadParameter
			}
			n := c.hal.WriteTxFIFO(c.txBuf[:words])
			first := min(n*s.layout.PacketsPerWord, chunk)
			if first == 0 {
				return s.transferred, pkg.TransferStatusTransmitError
			}
			s.txCursor = n
			s.txRemaining = chunk - first
			s.activation = first
		} else {
			s.activation = min(chunk, c.fifoDepth*s.layout.PacketsPerWord)
		}

		pkg.LogDebug(pkg.ComponentTransfer, "chunk",
			"instance", c.instance, "packets", chunk, "words", words,
			"activation", s.activation, "mode", s.layout.Mode)

		c.configureChipSelect(s.totalPackets, s.layout.PacketsPerWord)
		c.activate(s.activation)
		status := c.waitForChunk(ctx)
		c.stats.chunks.Inc()

		if rx != nil && s.rxDrained > 0 {
			n := s.rxDrained * bpp
			if _, err := s.layout.Unpack(rx[offset:offset+n], c.rxBuf[:s.layout.WordsFor(s.rxDrained)]); err != nil {
				return s.transferred, pkg.TransferStatusBadParameter
			}
		}
		s.endChunk()
		if status != pkg.TransferStatusSuccess {
			return s.transferred, status
		}
		offset += size
		s.totalRemaining -= chunk
	}
	return s.transferred, pkg.TransferStatusSuccess
}
