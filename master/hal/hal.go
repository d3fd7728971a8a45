package hal

import (
	"context"
)

// Direction is a set of active data-flow directions.
type Direction uint8

// Data-flow directions.
const (
	DirectionNone Direction = 0x0
	DirectionRx   Direction = 0x1 // Receive (MISO into the receive FIFO)
	DirectionTx   Direction = 0x2 // Transmit (transmit FIFO onto MOSI)
	DirectionBoth           = DirectionRx | DirectionTx
)

// Has reports whether all directions in d are set in dir.
func (dir Direction) Has(d Direction) bool {
	return d != DirectionNone && dir&d == d
}

// String returns a short direction name.
func (dir Direction) String() string {
	switch dir {
	case DirectionNone:
		return "none"
	case DirectionRx:
		return "rx"
	case DirectionTx:
		return "tx"
	case DirectionBoth:
		return "rx+tx"
	default:
		return "invalid"
	}
}

// SignalMode is the SPI clock polarity/phase combination.
type SignalMode uint8

// Signal modes (CPOL<<1 | CPHA).
const (
	SignalMode0 SignalMode = iota // Clock idle low, sample on first edge
	SignalMode1                   // Clock idle low, sample on second edge
	SignalMode2                   // Clock idle high, sample on first edge
	SignalMode3                   // Clock idle high, sample on second edge
)

// IdleHigh reports whether the clock idles high in this mode.
func (m SignalMode) IdleHigh() bool {
	return m&0x2 != 0
}

// SecondEdge reports whether data is sampled on the second clock edge.
func (m SignalMode) SecondEdge() bool {
	return m&0x1 != 0
}

// Valid reports whether m is one of the four SPI modes.
func (m SignalMode) Valid() bool {
	return m <= SignalMode3
}

// String returns the mode name.
func (m SignalMode) String() string {
	switch m {
	case SignalMode0:
		return "mode0"
	case SignalMode1:
		return "mode1"
	case SignalMode2:
		return "mode2"
	case SignalMode3:
		return "mode3"
	default:
		return "invalid"
	}
}

// Status is the set of fault bits latched in the controller status register.
type Status uint32

// Status fault bits.
const (
	StatusRxUnderflow Status = 1 << iota
	StatusRxOverflow
	StatusTxUnderflow
	StatusTxOverflow
)

// Fault masks per direction.
const (
	StatusRxFault = StatusRxUnderflow | StatusRxOverflow
	StatusTxFault = StatusTxUnderflow | StatusTxOverflow
)

// Faulted reports whether any fault bit relevant to dir is set.
func (s Status) Faulted(dir Direction) bool {
	var mask Status
	if dir.Has(DirectionRx) {
		mask |= StatusRxFault
	}
	if dir.Has(DirectionTx) {
		mask |= StatusTxFault
	}
	return s&mask != 0
}

// InitConfig holds the idle-state settings applied when a controller is
// initialized.
type InitConfig struct {
	IdleDataOutHigh bool // MOSI level while no packet is shifted
	IdleTristate    bool // Tristate the data pins while idle
}

// Controller defines the register-level Hardware Abstraction Layer for one
// SPI/SLINK controller instance.
//
// The transfer engine implements all packetization, chunking, polling and
// chip-select policy; the HAL only performs register accesses. Register
// accessors do not fail: memory-mapped writes have no error path. Only the
// lifecycle methods return errors.
//
// Methods are called with the engine's per-instance lock held and need not be
// safe for concurrent use.
type Controller interface {
	// Lifecycle

	// Init enables the controller clock, pulses the module reset and places
	// the controller in master mode with the given idle state.
	Init(ctx context.Context, cfg InitConfig) error

	// Close disables the controller clock.
	Close() error

	// FIFODepth returns the depth of each FIFO, in 32-bit words.
	FIFODepth() int

	// Configuration

	// SetClockSpeed programs the interface clock, in kHz.
	SetClockSpeed(kHz uint32)

	// SetSignalMode programs clock polarity and phase.
	SetSignalMode(mode SignalMode)

	// SetChipSelectLevel drives chip select id to the given level under
	// software control.
	SetChipSelectLevel(id int, high bool)

	// SetChipSelectHardware hands chip select id to the controller, which
	// asserts it for each activation. refills is the number of FIFO refills
	// the line stays active across; setupCycles is the inactive setup time.
	SetChipSelectHardware(id int, refills, setupCycles int)

	// SetPacketLength programs the packet width (1-32 bits) and whether
	// multiple packets share one FIFO word.
	SetPacketLength(bits int, packed bool)

	// SetDMATransferSize programs the number of packets shifted by the next
	// activation. The register is used by the CPU path as well.
	SetDMATransferSize(packets int)

	// SetDataFlow enables or disables the given directions.
	SetDataFlow(dir Direction, enable bool)

	// StartTransfer sets or clears the activation trigger.
	StartTransfer(enable bool)

	// Status

	// IsTransferComplete polls the busy bit. It must not block.
	IsTransferComplete() bool

	// TransferStatus returns the latched fault bits relevant to dir.
	TransferStatus(dir Direction) Status

	// ClearTransferStatus clears the ready bit and the fault bits of dir.
	ClearTransferStatus(dir Direction)

	// TransferredWords returns the hardware's transferred-word counter for
	// the current activation.
	TransferredWords() int

	// FIFO access

	// FlushFIFOs empties both FIFOs and waits for the flush to settle.
	FlushFIFOs()

	// WriteTxFIFO pushes as many words as fit and returns the count written.
	WriteTxFIFO(words []uint32) int

	// ReadRxFIFO pops up to len(words) available words and returns the count.
	ReadRxFIFO(words []uint32) int
}

// ClockDivisor returns the clock-source divisor field for an interface clock
// of kHz fed from a source of sourceKHz. The controller source clock runs at
// four times the interface clock and the divisor field holds 2*(ratio)-1.
// It returns 0 when kHz is zero or too fast for the source.
func ClockDivisor(sourceKHz, kHz uint32) uint32 {
	if kHz == 0 {
		return 0
	}
	ratio := sourceKHz / (kHz << 2)
	if ratio == 0 {
		return 0
	}
	return (ratio << 1) - 1
}
