// Package master implements a pure-Go SPI master transfer engine for
// SLINK-style controllers with 32-bit FIFOs.
//
// It is platform-agnostic and drives hardware via the [hal.Controller]
// interface defined in the github.com/ardnew/softspi/master/hal package. The
// engine owns every policy decision; the HAL only performs register access.
//
// # Architecture
//
// The engine is organized into several layers:
//
//   - Registry owns the controller instances and their reference counts
//   - Controller validates transactions and manages chip select and clock
//   - The chunked driver stages client buffers through scratch words
//   - The completion poller services FIFO refills, faults and timeouts
//   - Layout packs packets of 1 to 32 bits into FIFO words
//
// # Packing
//
// Packets of 8 or 16 bits are packed four or two to a word unless
// [Config].DisablePacked is set. A chunk holds at most [MaxChunkWords]
// words. [Config].Residual selects how a packed chunk smaller than one word
// is shifted:
//
//   - ResidualPadded: one packed word with zero-filled unused lanes
//   - ResidualUnpacked: one packet per word for the rest of the transfer
//
// # Timeouts
//
// Each chunk waits at most [Config].ChunkTimeout, measured on a wrapping
// millisecond clock; zero waits forever. Canceling the transaction context is
// handled like an expired timeout. Either way the error is a
// [pkg.TransferError] carrying the packets known complete.
//
// # Example
//
//	reg := master.NewRegistry(provider)
//	ctl, err := reg.Open(ctx, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctl.Close()
//
//	rx := make([]byte, 4)
//	n, err := ctl.Transaction(ctx, 0, 1000, rx, []byte{1, 2, 3, 4}, 4, 8)
//
// Controllers are also available as periph.io SPI ports through
// [Registry.OpenPort].
package master
