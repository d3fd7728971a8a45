// Package sim provides an in-memory SLINK-style controller for exercising
// the SPI master engine without hardware.
//
// The simulated [Controller] implements [hal.Controller] with FIFOs of
// configurable depth, the same packed lane layout as the engine's codec and
// a [Peripheral] that answers every packet shifted onto the bus.
//
// # Timing Model
//
// Setting the activation trigger shifts the programmed block at once. The
// busy bit then stays set for [Options].BusyPolls calls to
// IsTransferComplete, so tests control exactly how long the engine polls.
// [Options].PollHook runs on every poll and is typically used to advance a
// mock clock.
//
// # Fault Injection
//
//   - [Controller.InjectFault] latches status bits on the next activation
//   - [Controller.StallNext] keeps the next activation busy until flushed
//   - Underflow and overflow are raised naturally when the engine starves the
//     transmit FIFO or overfills the receive FIFO
//
// # Usage
//
//	ctl := sim.New(sim.Options{Peripheral: sim.Loopback()})
//	reg := master.NewRegistry(master.ProviderFunc(
//	    func(int) (hal.Controller, master.Config, error) {
//	        return ctl, master.DefaultConfig(), nil
//	    }))
package sim
