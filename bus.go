package axispi

import (
	"context"
	"errors"
	"strconv"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"
)

var (
	_ drivers.SPI    = (*Bus)(nil)
	_ spi.Conn       = (*Bus)(nil)
	_ spi.PortCloser = (*Port)(nil)
	_ conn.Resource  = (*Port)(nil)
)

// Bus exposes the engine's chip-select 0 as a generic SPI connection. Every
// Tx is one chip-select frame. It satisfies both the tinygo drivers and
// periph.io SPI interfaces so existing device drivers can run on top of the
// controller.
type Bus struct {
	e    *Engine
	mode Mode
	ctx  context.Context
}

// Bus returns a connection running frames in mode. Calls on the returned Bus
// use ctx for submission.
func (e *Engine) Bus(ctx context.Context, mode Mode) *Bus {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Bus{e: e, mode: mode, ctx: ctx}
}

// Tx clocks out w and reads into r in a single frame. Either slice may be
// nil or shorter than the other.
func (b *Bus) Tx(w, r []byte) error {
	return b.e.Tx(b.ctx, b.mode, w, r)
}

// Transfer exchanges a single byte in its own frame.
func (b *Bus) Transfer(w byte) (byte, error) {
	var r [1]byte
	err := b.e.Tx(b.ctx, b.mode, []byte{w}, r[:])
	return r[0], err
}

// Duplex implements conn.Conn.
func (b *Bus) Duplex() conn.Duplex { return conn.Full }

func (b *Bus) String() string { return "axispi/cs0 mode" + strconv.Itoa(int(b.mode&3)) }

// TxPackets runs packets in order. Consecutive packets with KeepCS set are
// merged with the packet that follows them into a single frame.
func (b *Bus) TxPackets(pkts []spi.Packet) error {
	var w, r []byte
	start := 0
	for i, p := range pkts {
		if p.BitsPerWord != 0 && p.BitsPerWord != 8 {
			return errors.New("axispi: unsupported bits per word " + strconv.Itoa(int(p.BitsPerWord)))
		}
		if p.KeepCS && i != len(pkts)-1 {
			continue
		}
		group := pkts[start : i+1]
		start = i + 1
		w, r = w[:0], r[:0]
		for _, g := range group {
			n := max(len(g.W), len(g.R))
			w = append(w, g.W...)
			w = append(w, make([]byte, n-len(g.W))...)
			r = append(r, make([]byte, n)...)
		}
		if err := b.Tx(w, r); err != nil {
			return err
		}
		off := 0
		for _, g := range group {
			copy(g.R, r[off:])
			off += max(len(g.W), len(g.R))
		}
	}
	return nil
}

// Port is a periph.io SPI port backed by an engine. The controller clock is
// fixed by the FPGA design so requested frequencies are recorded only.
type Port struct {
	e     *Engine
	ctx   context.Context
	limit physic.Frequency
	conn  *Bus
}

// Port returns a periph.io port over the engine.
func (e *Engine) Port(ctx context.Context) *Port {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Port{e: e, ctx: ctx}
}

func (p *Port) String() string { return "axispi" }

// Connect returns the connection for the single chip-select line. Only 8 bit
// words are supported; spi.NoCS and spi.HalfDuplex are rejected.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if p.conn != nil {
		return nil, errors.New("axispi: port already connected")
	}
	if bits != 8 {
		return nil, errors.New("axispi: unsupported bits per word " + strconv.Itoa(bits))
	}
	if mode&(spi.NoCS|spi.HalfDuplex) != 0 {
		return nil, errors.New("axispi: unsupported mode " + mode.String())
	}
	m := Mode(mode & 3)
	if mode&spi.LSBFirst != 0 {
		m |= LSBFirst
	}
	if f > 0 {
		p.limit = f
	}
	p.conn = p.e.Bus(p.ctx, m)
	return p.conn, nil
}

// LimitSpeed records the maximum clock the caller allows.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return errors.New("axispi: invalid frequency " + f.String())
	}
	p.limit = f
	return nil
}

// Halt implements conn.Resource. Frames are never left open between calls.
func (p *Port) Halt() error { return nil }

// Close releases the connection. The engine keeps running.
func (p *Port) Close() error {
	p.conn = nil
	return nil
}
