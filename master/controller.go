package master

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

// Controller is an open handle to one SPI controller instance. It is obtained
// from [Registry.Open] and is safe for concurrent use; transactions are
// serialized per instance.
type Controller struct {
	registry *Registry
	instance int
	hal      hal.Controller
	clk      clock.Clock
	cfg      Config

	devices   [MaxChipSelects]DeviceConfig
	supported [MaxChipSelects]bool
	timeoutMS uint32
	fifoDepth int

	refs int // Guarded by registry.mu

	mu           sync.Mutex
	closed       bool
	cs           int
	clockKHz     uint32
	mode         hal.SignalMode
	csConfigured bool
	csTiming     csTiming
	csHeld       int
	rxStatus     pkg.TransferStatus
	txStatus     pkg.TransferStatus
	rxBuf        []uint32
	txBuf        []uint32
	session      session

	stats counters
}

// request is one transaction as seen by the engine.
type request struct {
	cs       int
	clockKHz uint32
	rx, tx   []byte
	n        int
	bits     int
	keepCS   bool
}

func newController(r *Registry, instance int, h hal.Controller, cfg Config) *Controller {
	c := &Controller{
		registry: r,
		instance: instance,
		hal:      h,
		clk:      r.clk,
		cfg:      cfg,
		csHeld:   noChipSelect,
	}
	for _, d := range cfg.Devices {
		c.devices[d.ChipSelect] = d
		c.supported[d.ChipSelect] = true
	}
	if cfg.ChunkTimeout > 0 {
		c.timeoutMS = uint32(max(cfg.ChunkTimeout/time.Millisecond, 1))
	}
	return c
}

// init brings up the hardware and drives the bus to its idle state.
func (c *Controller) init(ctx context.Context) error {
	err := c.hal.Init(ctx, hal.InitConfig{
		IdleDataOutHigh: c.cfg.Idle.DataOutHigh,
		IdleTristate:    c.cfg.Idle.Tristate,
	})
	if err != nil {
		return err
	}
	if c.fifoDepth = c.hal.FIFODepth(); c.fifoDepth <= 0 {
		return errors.Errorf("fifo depth %d", c.fifoDepth)
	}
	pkg.LogDebug(pkg.ComponentHAL, "hal initialized",
		"instance", c.instance, "fifo_depth", c.fifoDepth, "tristate", c.cfg.Idle.Tristate)
	c.rxBuf = make([]uint32, MaxChunkWords)
	c.txBuf = make([]uint32, MaxChunkWords)

	c.hal.SetSignalMode(c.cfg.Idle.SignalMode)
	c.mode = c.cfg.Idle.SignalMode
	for cs, ok := range c.supported {
		if ok {
			c.hal.SetChipSelectLevel(cs, !c.devices[cs].activeLevel())
		}
	}
	c.clockKHz = 0
	if c.cfg.DefaultClockKHz > 0 {
		c.setClock(c.cfg.DefaultClockKHz)
	}
	return nil
}

// Instance returns the controller instance number.
func (c *Controller) Instance() int {
	return c.instance
}

// Close releases this handle. The hardware is shut down when the last handle
// of the instance is closed.
func (c *Controller) Close() error {
	return c.registry.Close(c)
}

// Transaction shifts n bytes of packets of bits width on chip select cs at
// clockKHz. rx receives data when non-nil and tx supplies it when non-nil; at
// least one is required and each must hold n bytes. n must be a multiple of
// the packet size in bytes.
//
// It returns the bytes transferred. On a timeout or fault the count covers the
// packets known complete and the error is a [pkg.TransferError]. Parameter
// errors are returned before the hardware is touched.
func (c *Controller) Transaction(ctx context.Context, cs int, clockKHz uint32, rx, tx []byte, n, bits int) (int, error) {
	return c.transact(ctx, request{cs: cs, clockKHz: clockKHz, rx: rx, tx: tx, n: n, bits: bits})
}

// TransactionKeepCS is Transaction that leaves a software chip select
// asserted on success. The next transaction on cs continues the selection;
// a transaction on any other chip select fails with [pkg.ErrBusy] until then.
func (c *Controller) TransactionKeepCS(ctx context.Context, cs int, clockKHz uint32, rx, tx []byte, n, bits int) (int, error) {
	return c.transact(ctx, request{cs: cs, clockKHz: clockKHz, rx: rx, tx: tx, n: n, bits: bits, keepCS: true})
}

func (c *Controller) validate(req request) (Layout, int, error) {
	if req.rx == nil && req.tx == nil {
		return Layout{}, 0, errors.Wrap(pkg.ErrBadParameter, "no buffers")
	}
	if req.clockKHz == 0 {
		return Layout{}, 0, errors.Wrap(pkg.ErrBadParameter, "zero clock speed")
	}
	layout, err := NewLayout(req.bits, !c.cfg.DisablePacked)
	if err != nil {
		return Layout{}, 0, err
	}
	if req.n <= 0 {
		return Layout{}, 0, errors.Wrapf(pkg.ErrBadParameter, "byte count %d", req.n)
	}
	packets, err := layout.Packets(req.n)
	if err != nil {
		return Layout{}, 0, err
	}
	if req.rx != nil && len(req.rx) < req.n {
		return Layout{}, 0, errors.Wrapf(pkg.ErrBadParameter, "receive buffer %d < %d bytes", len(req.rx), req.n)
	}
	if req.tx != nil && len(req.tx) < req.n {
		return Layout{}, 0, errors.Wrapf(pkg.ErrBadParameter, "transmit buffer %d < %d bytes", len(req.tx), req.n)
	}
	if req.cs < 0 || req.cs >= MaxChipSelects || !c.supported[req.cs] {
		return Layout{}, 0, errors.Wrapf(pkg.ErrUnsupportedChipSelect, "chip select %d", req.cs)
	}
	return layout, packets, nil
}

func (c *Controller) transact(ctx context.Context, req request) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, pkg.ErrClosed
	}
	layout, packets, err := c.validate(req)
	if err != nil {
		c.recordStatus(hal.DirectionBoth, pkg.TransferStatusBadParameter)
		return 0, err
	}
	if c.csHeld != noChipSelect && c.csHeld != req.cs {
		return 0, errors.Wrapf(pkg.ErrBusy, "chip select %d held", c.csHeld)
	}
	if req.rx != nil {
		req.rx = req.rx[:req.n]
	}
	if req.tx != nil {
		req.tx = req.tx[:req.n]
	}

	c.stats.transactions.Inc()
	pkg.LogDebug(pkg.ComponentController, "transaction",
		"instance", c.instance, "cs", req.cs, "khz", req.clockKHz,
		"bytes", req.n, "bits", req.bits, "mode", layout.Mode)

	c.setClock(req.clockKHz)
	c.cs = req.cs
	c.assertChipSelect()

	dir := hal.DirectionNone
	if req.rx != nil {
		dir |= hal.DirectionRx
	}
	if req.tx != nil {
		dir |= hal.DirectionTx
	}
	c.hal.SetDataFlow(dir, true)
	c.hal.SetPacketLength(req.bits, layout.Packed())

	done, status := c.runTransfer(ctx, req.rx, req.tx, packets, layout)

	c.hal.SetDataFlow(dir, false)
	c.stats.packets.Add(uint64(done))
	if status == pkg.TransferStatusSuccess && req.keepCS && !c.devices[req.cs].HardwareChipSelect {
		c.csHeld = req.cs
	} else {
		c.releaseChipSelect()
	}

	bytes := done * layout.BytesPerPacket
	if status != pkg.TransferStatusSuccess {
		return bytes, pkg.NewTransferError(status, done)
	}
	return bytes, nil
}

// setClock programs the interface clock when it differs from the last value.
func (c *Controller) setClock(kHz uint32) {
	if kHz == c.clockKHz {
		return
	}
	c.hal.SetClockSpeed(kHz)
	c.clockKHz = kHz
}

// SetSignalMode changes the signal mode used for the device on cs. It takes
// effect the next time cs is asserted.
func (c *Controller) SetSignalMode(cs int, mode hal.SignalMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return pkg.ErrClosed
	}
	if cs < 0 || cs >= MaxChipSelects || !c.supported[cs] {
		return errors.Wrapf(pkg.ErrUnsupportedChipSelect, "chip select %d", cs)
	}
	if !mode.Valid() {
		return errors.Wrapf(pkg.ErrBadParameter, "signal mode %d", mode)
	}
	c.devices[cs].SignalMode = mode
	return nil
}

// ReleaseChipSelect deasserts a chip select left held by TransactionKeepCS.
func (c *Controller) ReleaseChipSelect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return pkg.ErrClosed
	}
	if c.csHeld != noChipSelect {
		c.cs = c.csHeld
		c.releaseChipSelect()
	}
	return nil
}

// LastStatus returns the last status recorded for each direction.
func (c *Controller) LastStatus() (rx, tx pkg.TransferStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rxStatus, c.txStatus
}

// shutdown releases the hardware. The caller holds registry.mu.
func (c *Controller) shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.csHeld != noChipSelect {
		c.cs = c.csHeld
		c.releaseChipSelect()
	}
	err := c.hal.Close()
	c.rxBuf = nil
	c.txBuf = nil
	c.closed = true
	return err
}
