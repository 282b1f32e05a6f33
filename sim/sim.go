// package sim models an AXI Quad SPI controller in standard master mode wired
// to a slave device exposing a small register file. It implements
// reg.Registers so the driver can run without hardware.
package sim

import (
	"sync"

	"github.com/spimod/axispi/reg"
)

// Config configures the simulated controller.
type Config struct {
	// StuckTxEmpty keeps the transmit FIFO full forever: bytes written to DTR
	// are never shifted out and SR never reports transmit-empty.
	StuckTxEmpty bool
	// StuckRxEmpty shifts bytes out but never latches a reply into DRR.
	StuckRxEmpty bool
	// OnInterrupt is called on every rising edge of the controller interrupt
	// line, that is, when GIER is enabled and IER&ISR becomes non-zero.
	// It is called without internal locks held.
	OnInterrupt func()
}

// Access is one register access as seen by the controller.
type Access struct {
	Write bool
	Reg   reg.Reg
	Value uint32
	// Byte is set for 8 bit accesses.
	Byte bool
}

func (a Access) String() string {
	op := "rd"
	if a.Write {
		op = "wr"
	}
	if a.Byte {
		return op + "8  " + a.Reg.String() + " " + reg.Hex(uint8(a.Value))
	}
	return op + "32 " + a.Reg.String() + " " + reg.Hex(a.Value)
}

// Controller is a simulated controller. The zero value is not usable; call New.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	slave *Slave

	cr, ssr, gier, ier, isr uint32

	dtr       uint8
	txPending bool
	drr       uint8
	rxFull    bool
	irqLine   bool

	srReads int
	shifted int
	trace   []Access
	tracing bool
}

// New returns a controller in its reset state wired to slave. If slave is
// nil a new empty Slave is attached.
func New(slave *Slave, cfg Config) *Controller {
	if slave == nil {
		slave = NewSlave()
	}
	return &Controller{
		cfg:   cfg,
		slave: slave,
		cr:    reg.CRInhibit,
		ssr:   reg.SSRNone,
	}
}

// Slave returns the attached slave device.
func (c *Controller) Slave() *Slave { return c.slave }

// Trace enables or disables access recording and clears the recorded trace.
func (c *Controller) Trace(enable bool) {
	c.mu.Lock()
	c.tracing = enable
	c.trace = c.trace[:0]
	c.mu.Unlock()
}

// Accesses returns a copy of the recorded register accesses.
func (c *Controller) Accesses() []Access {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Access(nil), c.trace...)
}

// StatusReads returns how many times SR has been read.
func (c *Controller) StatusReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.srReads
}

// Shifted returns the number of bytes clocked out on the bus.
func (c *Controller) Shifted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shifted
}

// Peek returns the current value of r without side effects and without
// recording an access.
func (c *Controller) Peek(r reg.Reg) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value(r)
}

// Inject latches b into the receive register as if it arrived outside a
// driver transaction, raising the receive-ready interrupt when enabled.
func (c *Controller) Inject(b uint8) {
	c.mu.Lock()
	c.drr = b
	c.rxFull = true
	c.isr |= reg.IntRxFull
	fire := c.updateIRQ()
	c.mu.Unlock()
	c.notify(fire)
}

func (c *Controller) Read32(r reg.Reg) uint32 {
	c.mu.Lock()
	v := c.read(r)
	c.record(Access{Reg: r, Value: v})
	c.mu.Unlock()
	return v
}

func (c *Controller) Read8(r reg.Reg) uint8 {
	c.mu.Lock()
	v := uint8(c.read(r))
	c.record(Access{Reg: r, Value: uint32(v), Byte: true})
	c.mu.Unlock()
	return v
}

func (c *Controller) Write32(r reg.Reg, v uint32) {
	c.mu.Lock()
	c.record(Access{Write: true, Reg: r, Value: v})
	fire := c.write(r, v)
	c.mu.Unlock()
	c.notify(fire)
}

func (c *Controller) Write8(r reg.Reg, v uint8) {
	c.mu.Lock()
	c.record(Access{Write: true, Reg: r, Value: uint32(v), Byte: true})
	fire := c.write(r, uint32(v))
	c.mu.Unlock()
	c.notify(fire)
}

func (c *Controller) record(a Access) {
	if c.tracing {
		c.trace = append(c.trace, a)
	}
}

func (c *Controller) notify(fire bool) {
	if fire && c.cfg.OnInterrupt != nil {
		c.cfg.OnInterrupt()
	}
}

func (c *Controller) status() uint32 {
	var sr uint32
	if !c.rxFull {
		sr |= reg.SRRxEmpty
	}
	if !c.txPending {
		sr |= reg.SRTxEmpty
	} else {
		sr |= reg.SRTxFull
	}
	return sr
}

func (c *Controller) value(r reg.Reg) uint32 {
	switch r {
	case reg.CR:
		return c.cr
	case reg.SR:
		return c.status()
	case reg.DTR:
		return 0 // Write only.
	case reg.DRR:
		return uint32(c.drr)
	case reg.SSR:
		return c.ssr
	case reg.GIER:
		return c.gier
	case reg.IER:
		return c.ier
	case reg.ISR:
		return c.isr
	}
	panic("sim: bad register " + r.String())
}

func (c *Controller) read(r reg.Reg) uint32 {
	v := c.value(r)
	switch r {
	case reg.SR:
		c.srReads++
	case reg.DRR:
		c.rxFull = false
	}
	return v
}

func (c *Controller) write(r reg.Reg, v uint32) (fire bool) {
	switch r {
	case reg.CR:
		c.cr = v
		c.shift()
	case reg.SR, reg.DRR:
		// Read only.
	case reg.DTR:
		c.dtr = uint8(v)
		c.txPending = true
		c.shift()
	case reg.SSR:
		was := c.ssr&1 == 0
		c.ssr = v
		now := c.ssr&1 == 0
		switch {
		case !was && now:
			c.slave.selectChip()
		case was && !now:
			c.slave.deselect()
		}
	case reg.GIER:
		c.gier = v & reg.GIEREnable
	case reg.IER:
		c.ier = v
	case reg.ISR:
		c.isr ^= v // Toggle on write.
	default:
		panic("sim: bad register " + r.String())
	}
	return c.updateIRQ()
}

// shift clocks the pending transmit byte out when the controller is enabled
// as master with the transaction inhibit released.
func (c *Controller) shift() {
	const mustSet = reg.CREnable | reg.CRMaster
	if !c.txPending || c.cfg.StuckTxEmpty || !reg.HasBits(c.cr, mustSet) || c.cr&reg.CRInhibit != 0 {
		return
	}
	c.txPending = false
	c.shifted++
	var miso uint8 = 0xff // Bus floats high with no slave selected.
	if c.ssr&1 == 0 {
		miso = c.slave.exchange(c.dtr)
	}
	c.isr |= reg.IntTxEmpty
	if c.cfg.StuckRxEmpty {
		return
	}
	c.drr = miso
	c.rxFull = true
	c.isr |= reg.IntRxFull
}

func (c *Controller) updateIRQ() (rising bool) {
	line := c.gier&reg.GIEREnable != 0 && c.ier&c.isr != 0
	rising = line && !c.irqLine
	c.irqLine = line
	return rising
}
