package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

// DefaultFIFODepth is the FIFO depth, in words, of the modeled controller.
const DefaultFIFODepth = 32

// Peripheral is the device wired to the data lines of the simulated bus.
type Peripheral interface {
	// Exchange receives one packet shifted out on MOSI and returns the packet
	// shifted back on MISO. Both values are right aligned to bits.
	Exchange(mosi uint32, bits int) uint32
}

// PeripheralFunc adapts a function to Peripheral.
type PeripheralFunc func(mosi uint32, bits int) uint32

// Exchange calls f.
func (f PeripheralFunc) Exchange(mosi uint32, bits int) uint32 {
	return f(mosi, bits)
}

// Loopback returns a peripheral with MISO wired to MOSI.
func Loopback() Peripheral {
	return PeripheralFunc(func(mosi uint32, _ int) uint32 { return mosi })
}

// Options configures a simulated controller.
type Options struct {
	// FIFODepth is the depth of each FIFO in words. Zero selects
	// DefaultFIFODepth.
	FIFODepth int

	// BusyPolls is the number of IsTransferComplete polls that report busy
	// after each activation.
	BusyPolls int

	// Peripheral answers shifted packets. Nil selects Loopback.
	Peripheral Peripheral

	// PollHook runs on every IsTransferComplete poll before the busy bit is
	// evaluated. Tests use it to advance a mock clock.
	PollHook func()

	// InitErr is returned by Init when set.
	InitErr error
}

// Controller is an in-memory model of a SLINK-style SPI controller. It
// implements [hal.Controller].
//
// Each activation shifts its packets at once through the Peripheral; the busy
// bit then stays set for Options.BusyPolls polls. Register writes are
// recorded in a call history for inspection.
type Controller struct {
	opts Options

	mu sync.Mutex

	clockEnabled bool
	initCfg      hal.InitConfig
	clockKHz     uint32
	mode         hal.SignalMode
	csHigh       map[int]bool
	csHardware   map[int]bool
	bits         int
	packed       bool
	blockSize    int
	flow         hal.Direction
	trigger      bool

	busy        int
	stalled     bool
	status      hal.Status
	transferred int
	activations int

	txFIFO []uint32
	rxFIFO []uint32

	txWords []uint32
	mosi    []uint32
	history []string

	faultNext  hal.Status
	faultWords int
	stallNext  bool
	stallWords int
}

var _ hal.Controller = (*Controller)(nil)

// New returns a simulated controller configured by opts.
func New(opts Options) *Controller {
	if opts.FIFODepth <= 0 {
		opts.FIFODepth = DefaultFIFODepth
	}
	if opts.Peripheral == nil {
		opts.Peripheral = Loopback()
	}
	return &Controller{
		opts:       opts,
		csHigh:     make(map[int]bool),
		csHardware: make(map[int]bool),
		bits:       8,
	}
}

func (c *Controller) record(format string, args ...any) {
	c.history = append(c.history, fmt.Sprintf(format, args...))
}

// Init implements [hal.Controller].
func (c *Controller) Init(_ context.Context, cfg hal.InitConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Init(%+v)", cfg)
	if c.opts.InitErr != nil {
		return c.opts.InitErr
	}
	c.clockEnabled = true
	c.initCfg = cfg
	c.flow = hal.DirectionNone
	c.trigger = false
	c.status = 0
	c.txFIFO = c.txFIFO[:0]
	c.rxFIFO = c.rxFIFO[:0]
	pkg.LogDebug(pkg.ComponentSim, "controller initialized", "depth", c.opts.FIFODepth)
	return nil
}

// Close implements [hal.Controller].
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Close()")
	c.clockEnabled = false
	return nil
}

// FIFODepth implements [hal.Controller].
func (c *Controller) FIFODepth() int {
	return c.opts.FIFODepth
}

// SetClockSpeed implements [hal.Controller].
func (c *Controller) SetClockSpeed(kHz uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetClockSpeed(%d)", kHz)
	c.clockKHz = kHz
}

// SetSignalMode implements [hal.Controller].
func (c *Controller) SetSignalMode(mode hal.SignalMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetSignalMode(%v)", mode)
	c.mode = mode
}

// SetChipSelectLevel implements [hal.Controller].
func (c *Controller) SetChipSelectLevel(id int, high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetChipSelectLevel(%d, %t)", id, high)
	c.csHigh[id] = high
	c.csHardware[id] = false
}

// SetChipSelectHardware implements [hal.Controller].
func (c *Controller) SetChipSelectHardware(id int, refills, setupCycles int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetChipSelectHardware(%d, %d, %d)", id, refills, setupCycles)
	c.csHardware[id] = true
}

// SetPacketLength implements [hal.Controller].
func (c *Controller) SetPacketLength(bits int, packed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetPacketLength(%d, %t)", bits, packed)
	c.bits = bits
	c.packed = packed
}

// SetDMATransferSize implements [hal.Controller].
func (c *Controller) SetDMATransferSize(packets int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetDMATransferSize(%d)", packets)
	c.blockSize = packets
}

// SetDataFlow implements [hal.Controller].
func (c *Controller) SetDataFlow(dir hal.Direction, enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetDataFlow(%v, %t)", dir, enable)
	if enable {
		c.flow |= dir
	} else {
		c.flow &^= dir
	}
}

// StartTransfer implements [hal.Controller]. Setting the trigger shifts
// the programmed block immediately.
func (c *Controller) StartTransfer(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("StartTransfer(%t)", enable)
	c.trigger = enable
	if enable {
		c.activate()
	}
}

// lanes returns the packets per word and lane width in effect.
func (c *Controller) lanes() (ppw int, laneBits uint) {
	if c.packed && (c.bits == 8 || c.bits == 16) {
		return 32 / c.bits, uint(c.bits)
	}
	return 1, 32
}

func (c *Controller) activate() {
	c.activations++
	c.transferred = 0
	c.stalled = false
	c.busy = c.opts.BusyPolls

	if c.stallNext {
		c.stallNext = false
		c.stalled = true
		c.transferred = c.stallWords
		pkg.LogDebug(pkg.ComponentSim, "activation stalled", "words", c.stallWords)
		return
	}
	if c.faultNext != 0 {
		c.status |= c.faultNext
		c.transferred = c.faultWords
		c.faultNext = 0
		pkg.LogDebug(pkg.ComponentSim, "activation faulted", "status", c.status)
		return
	}

	ppw, laneBits := c.lanes()
	mask := uint32(0xFFFFFFFF)
	if c.bits < 32 {
		mask = 1<<uint(c.bits) - 1
	}
	packets := c.blockSize
	words := (packets + ppw - 1) / ppw

	var out []uint32
	if c.flow.Has(hal.DirectionTx) {
		if len(c.txFIFO) < words {
			c.status |= hal.StatusTxUnderflow
			words = len(c.txFIFO)
			packets = min(packets, words*ppw)
		}
		out = append(out, c.txFIFO[:words]...)
		c.txFIFO = append(c.txFIFO[:0], c.txFIFO[words:]...)
	}

	idle := uint32(0)
	if c.initCfg.IdleDataOutHigh {
		idle = mask
	}
	in := make([]uint32, words)
	for i := range packets {
		shift := uint(i%ppw) * laneBits
		mosi := idle
		if out != nil {
			mosi = out[i/ppw] >> shift & mask
		}
		c.mosi = append(c.mosi, mosi)
		miso := c.opts.Peripheral.Exchange(mosi, c.bits) & mask
		in[i/ppw] |= miso << shift
	}

	if c.flow.Has(hal.DirectionRx) {
		if free := c.opts.FIFODepth - len(c.rxFIFO); free < len(in) {
			c.status |= hal.StatusRxOverflow
			in = in[:free]
		}
		c.rxFIFO = append(c.rxFIFO, in...)
	}
	c.transferred = words
}

// IsTransferComplete implements [hal.Controller].
func (c *Controller) IsTransferComplete() bool {
	if c.opts.PollHook != nil {
		c.opts.PollHook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stalled {
		return false
	}
	if c.busy > 0 {
		c.busy--
		return false
	}
	return true
}

// TransferStatus implements [hal.Controller].
func (c *Controller) TransferStatus(dir hal.Direction) hal.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status & statusMask(dir)
}

// ClearTransferStatus implements [hal.Controller].
func (c *Controller) ClearTransferStatus(dir hal.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("ClearTransferStatus(%v)", dir)
	c.status &^= statusMask(dir)
}

func statusMask(dir hal.Direction) hal.Status {
	var mask hal.Status
	if dir.Has(hal.DirectionRx) {
		mask |= hal.StatusRxFault
	}
	if dir.Has(hal.DirectionTx) {
		mask |= hal.StatusTxFault
	}
	return mask
}

// TransferredWords implements [hal.Controller].
func (c *Controller) TransferredWords() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.transferred
}

// FlushFIFOs implements [hal.Controller]. A stalled activation is abandoned.
func (c *Controller) FlushFIFOs() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("FlushFIFOs()")
	c.txFIFO = c.txFIFO[:0]
	c.rxFIFO = c.rxFIFO[:0]
	c.stalled = false
	c.busy = 0
}

// WriteTxFIFO implements [hal.Controller].
func (c *Controller) WriteTxFIFO(words []uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := min(len(words), c.opts.FIFODepth-len(c.txFIFO))
	c.txFIFO = append(c.txFIFO, words[:n]...)
	c.txWords = append(c.txWords, words[:n]...)
	return n
}

// ReadRxFIFO implements [hal.Controller].
func (c *Controller) ReadRxFIFO(words []uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(words, c.rxFIFO)
	c.rxFIFO = append(c.rxFIFO[:0], c.rxFIFO[n:]...)
	return n
}

// Fault injection

// InjectFault latches status on the next activation instead of shifting
// packets. words is the transferred-word count reported for it.
func (c *Controller) InjectFault(status hal.Status, words int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.faultNext = status
	c.faultWords = words
}

// StallNext keeps the next activation busy until the FIFOs are flushed.
// words is the transferred-word count reported while stalled.
func (c *Controller) StallNext(words int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stallNext = true
	c.stallWords = words
}

// SetBusyPolls changes the number of busy polls after each activation.
func (c *Controller) SetBusyPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opts.BusyPolls = n
}

// Inspection

// ClockEnabled reports whether the controller clock is enabled.
func (c *Controller) ClockEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.clockEnabled
}

// ClockKHz returns the programmed interface clock.
func (c *Controller) ClockKHz() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.clockKHz
}

// SignalMode returns the programmed signal mode.
func (c *Controller) SignalMode() hal.SignalMode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mode
}

// ChipSelectHigh returns the last software level driven on chip select id.
func (c *Controller) ChipSelectHigh(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.csHigh[id]
}

// ChipSelectHardware reports whether chip select id is under hardware control.
func (c *Controller) ChipSelectHardware(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.csHardware[id]
}

// Flow returns the enabled data-flow directions.
func (c *Controller) Flow() hal.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.flow
}

// PacketLength returns the programmed packet width and packing flag.
func (c *Controller) PacketLength() (bits int, packed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.bits, c.packed
}

// TxWords returns every word accepted into the transmit FIFO.
func (c *Controller) TxWords() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]uint32(nil), c.txWords...)
}

// MOSI returns every packet shifted out, right aligned.
func (c *Controller) MOSI() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]uint32(nil), c.mosi...)
}

// Activations returns the number of times the trigger was set.
func (c *Controller) Activations() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.activations
}

// History returns the recorded register operations.
func (c *Controller) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.history...)
}

// ResetHistory discards the recorded register operations and shifted data.
func (c *Controller) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = nil
	c.txWords = nil
	c.mosi = nil
}
