package master

import (
	"context"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

// Millisecond clock limits.
const (
	MaxTimeMS   uint32 = 0xFFFFFFFF // Largest millisecond clock value before wrap
	WaitForever uint32 = 0          // Chunk timeout meaning no limit
)

// elapsedMS returns the milliseconds from start to now on a wrapping
// millisecond clock.
func elapsedMS(start, now uint32) uint32 {
	if now >= start {
		return now - start
	}
	return (MaxTimeMS - start) + now + 1
}

// millis samples the millisecond clock.
func (c *Controller) millis() uint32 {
	return uint32(c.clk.Now().UnixMilli())
}

// waitForChunk polls the controller until the current chunk has no work left
// in any direction, the chunk timeout elapses or ctx is done. Each ready
// activation is serviced and refilled in place.
func (c *Controller) waitForChunk(ctx context.Context) pkg.TransferStatus {
	start := c.millis()
	for {
		if c.hal.IsTransferComplete() {
			if done, status := c.service(); done {
				return status
			}
		}
		if c.timeoutMS != WaitForever && elapsedMS(start, c.millis()) > c.timeoutMS {
			break
		}
		if ctx.Err() != nil {
			pkg.LogDebug(pkg.ComponentPoller, "wait canceled", "err", ctx.Err())
			break
		}
	}
	return c.expire()
}

// service handles a ready controller. It reports whether the chunk is
// finished, either because no work is left or because of a fault.
func (c *Controller) service() (bool, pkg.TransferStatus) {
	s := &c.session
	dir := s.direction

	if st := c.takeStatus(dir); st.Faulted(dir) {
		return true, c.fault(dir, st)
	}

	c.finishActivation()

	layout := s.layout
	if dir.Has(hal.DirectionTx) && s.txRemaining > 0 {
		words := layout.WordsFor(s.txRemaining)
		n := c.hal.WriteTxFIFO(c.txBuf[s.txCursor : s.txCursor+words])
		next := min(n*layout.PacketsPerWord, s.txRemaining)
		if next == 0 {
			c.recordStatus(dir, pkg.TransferStatusTransmitError)
			return true, pkg.TransferStatusTransmitError
		}
		s.txCursor += n
		s.txRemaining -= next
		c.activate(next)
		return false, pkg.TransferStatusSuccess
	}
	if dir.Has(hal.DirectionRx) && s.rxRemaining > 0 {
		c.activate(min(s.rxRemaining, c.fifoDepth*layout.PacketsPerWord))
		return false, pkg.TransferStatusSuccess
	}

	c.recordStatus(dir, pkg.TransferStatusSuccess)
	return true, pkg.TransferStatusSuccess
}

// finishActivation drains the receive FIFO for the completed activation and
// accounts its packets to the chunk.
func (c *Controller) finishActivation() {
	s := &c.session
	done := s.activation
	if s.rxRemaining > 0 && done > 0 {
		words := s.layout.WordsFor(done)
		n := c.hal.ReadRxFIFO(c.rxBuf[s.rxCursor : s.rxCursor+words])
		s.rxCursor += n
		drained := min(n*s.layout.PacketsPerWord, done)
		s.rxRemaining -= drained
		s.rxDrained += drained
	}
	s.chunkDone += done
	s.activation = 0
}

// activate starts the next activation of packets on the enabled directions.
func (c *Controller) activate(packets int) {
	s := &c.session
	s.activation = packets
	c.hal.SetDataFlow(s.direction, true)
	c.hal.SetDMATransferSize(packets)
	c.hal.StartTransfer(true)
}

// expire tears the chunk down after the timeout or a canceled context. A
// controller that turns out to be ready completes the activation normally.
func (c *Controller) expire() pkg.TransferStatus {
	s := &c.session
	dir := s.direction
	c.hal.SetDataFlow(dir, false)

	if c.hal.IsTransferComplete() {
		if st := c.takeStatus(dir); st.Faulted(dir) {
			return c.fault(dir, st)
		}
		c.finishActivation()
		if !s.pending() {
			s.direction = hal.DirectionNone
			c.recordStatus(dir, pkg.TransferStatusSuccess)
			return pkg.TransferStatusSuccess
		}
	} else {
		s.chunkDone += c.partialPackets()
		s.activation = 0
	}

	s.direction = hal.DirectionNone
	c.hal.FlushFIFOs()
	c.recordStatus(dir, pkg.TransferStatusTimeout)
	c.stats.timeouts.Inc()
	pkg.LogWarn(pkg.ComponentPoller, "chunk timeout",
		"instance", c.instance, "timeout_ms", c.timeoutMS, "packets", s.chunkDone)
	return pkg.TransferStatusTimeout
}

// takeStatus reads and clears the latched fault bits of dir.
func (c *Controller) takeStatus(dir hal.Direction) hal.Status {
	var st hal.Status
	if dir.Has(hal.DirectionTx) {
		st |= c.hal.TransferStatus(hal.DirectionTx)
	}
	if dir.Has(hal.DirectionRx) {
		st |= c.hal.TransferStatus(hal.DirectionRx)
	}
	c.hal.ClearTransferStatus(dir)
	return st
}

// fault tears the chunk down after a hardware fault. Receive faults take
// precedence over transmit faults.
func (c *Controller) fault(dir hal.Direction, st hal.Status) pkg.TransferStatus {
	s := &c.session
	c.hal.SetDataFlow(dir, false)
	c.hal.FlushFIFOs()
	s.chunkDone += c.partialPackets()
	s.activation = 0
	s.direction = hal.DirectionNone

	status := pkg.TransferStatusTransmitError
	if st.Faulted(hal.DirectionRx) {
		status = pkg.TransferStatusReceiveError
	}
	c.recordStatus(dir, status)
	c.stats.faults.Inc()
	pkg.LogError(pkg.ComponentPoller, "transfer fault",
		"instance", c.instance, "status", st, "packets", s.chunkDone)
	return status
}

// partialPackets returns the packets of the current activation the hardware
// reports as shifted.
func (c *Controller) partialPackets() int {
	s := &c.session
	return min(c.hal.TransferredWords()*s.layout.PacketsPerWord, s.activation)
}

// recordStatus latches the last status of each direction in dir.
func (c *Controller) recordStatus(dir hal.Direction, status pkg.TransferStatus) {
	if dir.Has(hal.DirectionRx) {
		c.rxStatus = status
	}
	if dir.Has(hal.DirectionTx) {
		c.txStatus = status
	}
}
