// Package hal defines the register-level Hardware Abstraction Layer consumed
// by the SPI master transfer engine.
//
// The HAL provides a platform-agnostic interface between the engine in
// [github.com/ardnew/softspi/master] and a memory-mapped SPI/SLINK-style
// controller. Platform vendors implement [Controller] for their register
// map; the engine owns every policy decision.
//
// # Design Principles
//
// The HAL is designed to be:
//
//   - Minimal: one method per register operation the engine needs
//   - Non-blocking: status queries poll and return immediately
//   - Infallible on the hot path: register writes have no error return
//
// # Interface Overview
//
// The [Controller] interface groups its methods into:
//
//   - Lifecycle: clock enable, module reset and master-mode setup
//   - Configuration: clock speed, signal mode, chip select, packet length,
//     per-activation transfer size and data-flow direction
//   - Status: busy polling, fault bits and the transferred-word counter
//   - FIFO access: bounded writes to the transmit FIFO and reads from the
//     receive FIFO
//
// # Implementing a HAL
//
// To implement a HAL for a new controller:
//
//  1. Map Init/Close onto the clock and reset controller
//  2. Translate each configuration method into its register field writes
//  3. Return the FIFO empty/full counts from WriteTxFIFO and ReadRxFIFO so
//     the engine never blocks on a FIFO
//  4. Report the busy bit from IsTransferComplete without waiting
//
// [ClockDivisor] computes the divisor field for controllers whose source
// clock runs at four times the interface clock.
//
// An in-memory controller model for testing is available in
// [github.com/ardnew/softspi/master/hal/sim].
package hal
