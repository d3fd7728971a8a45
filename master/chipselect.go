package master

import (
	"github.com/ardnew/softspi/pkg"
)

// noChipSelect marks that no chip select is held between transactions.
const noChipSelect = -1

// csTiming identifies a hardware chip-select programming.
type csTiming struct {
	packets        int
	packetsPerWord int
}

// assertChipSelect selects the device on c.cs. A chip select still held from
// the previous transaction is left as is. Devices using hardware chip select
// are programmed per transfer by configureChipSelect.
func (c *Controller) assertChipSelect() {
	dev := c.devices[c.cs]
	if c.csHeld == c.cs {
		return
	}
	if dev.SignalMode != c.mode {
		c.hal.SetSignalMode(dev.SignalMode)
		c.mode = dev.SignalMode
	}
	if dev.HardwareChipSelect {
		c.csConfigured = false
		return
	}
	c.hal.SetChipSelectLevel(c.cs, dev.activeLevel())
	c.csConfigured = true
	pkg.LogDebug(pkg.ComponentChipSelect, "chip select asserted",
		"instance", c.instance, "cs", c.cs, "high", dev.activeLevel())
}

// configureChipSelect programs hardware chip select for a transfer of packets
// at packetsPerWord. Transfers longer than one chunk fall back to software
// control so the line stays active between activations. The programming is
// cached until the packet count or packing changes.
func (c *Controller) configureChipSelect(packets, packetsPerWord int) {
	dev := c.devices[c.cs]
	if !dev.HardwareChipSelect {
		return
	}
	timing := csTiming{packets: packets, packetsPerWord: packetsPerWord}
	if c.csConfigured && c.csTiming == timing {
		return
	}

	words := (packets + packetsPerWord - 1) / packetsPerWord
	if words > MaxChunkWords {
		c.hal.SetChipSelectLevel(c.cs, dev.activeLevel())
		pkg.LogDebug(pkg.ComponentChipSelect, "software chip select for long transfer",
			"instance", c.instance, "cs", c.cs, "words", words)
	} else {
		c.hal.SetChipSelectHardware(c.cs, words/c.fifoDepth, dev.setupCycles())
	}
	c.csConfigured = true
	c.csTiming = timing
}

// releaseChipSelect drives c.cs inactive and restores the idle signal mode.
func (c *Controller) releaseChipSelect() {
	dev := c.devices[c.cs]
	c.hal.SetChipSelectLevel(c.cs, !dev.activeLevel())
	if c.mode != c.cfg.Idle.SignalMode {
		c.hal.SetSignalMode(c.cfg.Idle.SignalMode)
		c.mode = c.cfg.Idle.SignalMode
	}
	c.csConfigured = false
	c.csHeld = noChipSelect
	pkg.LogDebug(pkg.ComponentChipSelect, "chip select released",
		"instance", c.instance, "cs", c.cs)
}
