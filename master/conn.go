package master

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

// Port exposes one chip select of a controller instance as a periph.io SPI
// port. It holds a reference to the controller until closed.
type Port struct {
	ctrl *Controller
	cs   int

	mu     sync.Mutex
	limit  physic.Frequency
	closed bool
}

var (
	_ spi.PortCloser = (*Port)(nil)
	_ spi.Conn       = (*Conn)(nil)
)

// OpenPort opens instance and returns a port for the device on cs.
func (r *Registry) OpenPort(ctx context.Context, instance, cs int) (*Port, error) {
	c, err := r.Open(ctx, instance)
	if err != nil {
		return nil, err
	}
	if cs < 0 || cs >= MaxChipSelects || !c.supported[cs] {
		err := errors.Wrapf(pkg.ErrUnsupportedChipSelect, "chip select %d", cs)
		return nil, multierr.Append(err, r.Close(c))
	}
	return &Port{ctrl: c, cs: cs}, nil
}

// String implements spi.Port.
func (p *Port) String() string {
	return fmt.Sprintf("SPI%d.%d", p.ctrl.instance, p.cs)
}

// LimitSpeed implements spi.PortCloser.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f < physic.KiloHertz {
		return errors.Wrapf(pkg.ErrBadParameter, "speed limit %s", f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return pkg.ErrClosed
	}
	p.limit = f
	return nil
}

// Connect implements spi.Port. Only the four clock modes are supported; the
// port always drives its own chip select in full duplex, MSB first.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, pkg.ErrClosed
	}
	if p.limit != 0 && f > p.limit {
		f = p.limit
	}
	if f < physic.KiloHertz {
		return nil, errors.Wrapf(pkg.ErrBadParameter, "speed %s", f)
	}
	if mode&^spi.Mode3 != 0 {
		return nil, errors.Wrapf(pkg.ErrBadParameter, "mode %#x", int(mode))
	}
	if bits < MinPacketBits || bits > MaxPacketBits {
		return nil, errors.Wrapf(pkg.ErrBadParameter, "bits %d", bits)
	}
	if err := p.ctrl.SetSignalMode(p.cs, hal.SignalMode(mode&spi.Mode3)); err != nil {
		return nil, err
	}
	return &Conn{
		port: p,
		freq: f,
		kHz:  uint32(f / physic.KiloHertz),
		bits: bits,
	}, nil
}

// Close implements spi.PortCloser. It releases the port's controller
// reference.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return pkg.ErrClosed
	}
	p.closed = true
	return p.ctrl.Close()
}

// Conn is a connection to the device behind a Port.
type Conn struct {
	port *Port
	freq physic.Frequency
	kHz  uint32
	bits int
}

// String implements conn.Conn.
func (c *Conn) String() string {
	return fmt.Sprintf("%s@%s", c.port, c.freq)
}

// Duplex implements conn.Conn.
func (c *Conn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx implements conn.Conn. w and r must have the same length when both are
// given.
func (c *Conn) Tx(w, r []byte) error {
	return c.TxPackets([]spi.Packet{{W: w, R: r}})
}

// TxPackets implements spi.Conn. Each packet is one transaction; KeepCS holds
// the chip select asserted into the next packet. Closing the port waits for
// TxPackets to return and fails every later call with [pkg.ErrClosed].
func (c *Conn) TxPackets(pkts []spi.Packet) error {
	c.port.mu.Lock()
	defer c.port.mu.Unlock()

	if c.port.closed {
		return pkg.ErrClosed
	}
	ctrl := c.port.ctrl
	for i, pkt := range pkts {
		bits := c.bits
		if pkt.BitsPerWord != 0 {
			bits = int(pkt.BitsPerWord)
		}
		if len(pkt.W) != 0 && len(pkt.R) != 0 && len(pkt.W) != len(pkt.R) {
			return errors.Wrapf(pkg.ErrBadParameter,
				"packet %d: write %d and read %d bytes differ", i, len(pkt.W), len(pkt.R))
		}
		req := request{
			cs:       c.port.cs,
			clockKHz: c.kHz,
			n:        max(len(pkt.W), len(pkt.R)),
			bits:     bits,
			keepCS:   pkt.KeepCS,
		}
		if req.n == 0 {
			continue
		}
		if len(pkt.W) != 0 {
			req.tx = pkt.W
		}
		if len(pkt.R) != 0 {
			req.rx = pkt.R
		}
		if _, err := ctrl.transact(context.Background(), req); err != nil {
			return errors.Wrapf(err, "packet %d", i)
		}
	}
	return nil
}
