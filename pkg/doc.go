// Package pkg provides shared utilities for the softspi transfer engine.
//
// This package contains common functionality used by the controller engine,
// its hardware abstraction layers and the example programs, including:
//
//   - Structured logging backed by [go.uber.org/zap]
//   - Sentinel errors and the [TransferStatus] result codes
//   - [TransferError], which carries a partial packet count
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging helpers wrap a zap SugaredLogger with engine-specific context:
//
//	pkg.SetLogLevel(zapcore.DebugLevel)
//	pkg.LogInfo(pkg.ComponentController, "controller opened", "instance", 1)
//
// # Errors
//
// Errors are defined as sentinel values and may be wrapped:
//
//	if errors.Is(err, pkg.ErrTimeout) {
//	    n, _ := pkg.PartialPackets(err)
//	    // n packets moved before the hardware stalled
//	}
package pkg
