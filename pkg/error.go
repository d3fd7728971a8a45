package pkg

import (
	"fmt"

	"github.com/pkg/errors"
)

// SPI engine errors.
var (
	// ErrTimeout indicates the hardware did not signal completion in time.
	ErrTimeout = errors.New("transfer timeout")

	// ErrTransfer indicates the controller status register reported a fault.
	ErrTransfer = errors.New("transfer error")

	// ErrReceive indicates a receive FIFO overrun or underrun.
	ErrReceive = errors.WithMessage(ErrTransfer, "receive")

	// ErrTransmit indicates a transmit FIFO overrun or underrun.
	ErrTransmit = errors.WithMessage(ErrTransfer, "transmit")

	// ErrBadParameter indicates an invalid packet length, byte count, clock
	// speed or buffer.
	ErrBadParameter = errors.New("bad parameter")

	// ErrInvalidInstance indicates a controller instance outside the registry.
	ErrInvalidInstance = errors.New("invalid controller instance")

	// ErrUnsupportedChipSelect indicates a chip select with no device behind it.
	ErrUnsupportedChipSelect = errors.New("unsupported chip select")

	// ErrClosed indicates use of a controller handle after its last close.
	ErrClosed = errors.New("controller closed")

	// ErrBusy indicates another chip select is still held active.
	ErrBusy = errors.New("chip select busy")

	// ErrInitFailed indicates the controller hardware failed to initialize.
	ErrInitFailed = errors.New("controller init failed")
)

// TransferStatus represents the terminal result of a transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess       TransferStatus = iota // Transfer completed
	TransferStatusTimeout                             // Hardware did not complete in time
	TransferStatusReceiveError                        // Receive FIFO fault
	TransferStatusTransmitError                       // Transmit FIFO fault
	TransferStatusBadParameter                        // Request rejected before touching hardware
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusReceiveError:
		return "receive-error"
	case TransferStatusTransmitError:
		return "transmit-error"
	case TransferStatusBadParameter:
		return "bad-parameter"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusReceiveError:
		return ErrReceive
	case TransferStatusTransmitError:
		return ErrTransmit
	case TransferStatusBadParameter:
		return ErrBadParameter
	default:
		return ErrTransfer
	}
}

// TransferError reports a failed or timed out transfer together with the
// number of packets known to have moved before it stopped.
type TransferError struct {
	Status  TransferStatus
	Packets int
	Err     error
}

// NewTransferError returns a TransferError for status with the given
// partial packet count.
func NewTransferError(status TransferStatus, packets int) *TransferError {
	return &TransferError{Status: status, Packets: packets, Err: status.Error()}
}

// Error implements error.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%v after %d packets", e.Err, e.Packets)
}

// Unwrap returns the underlying sentinel.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// PartialPackets returns the packet count carried by err, if it is (or wraps)
// a TransferError.
func PartialPackets(err error) (int, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Packets, true
	}
	return 0, false
}
