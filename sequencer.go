package axispi

import (
	"encoding/hex"
	"log/slog"

	"github.com/spimod/axispi/reg"
)

// State is the transaction sequencer state.
type State uint8

const (
	StateIdle State = iota
	StateConfiguringBus
	StateAddressPhase
	StateDataPhase
)

func (s State) String() (str string) {
	switch s {
	case StateIdle:
		str = "idle"
	case StateConfiguringBus:
		str = "configuring-bus"
	case StateAddressPhase:
		str = "address-phase"
	case StateDataPhase:
		str = "data-phase"
	default:
		str = "unknown-state"
	}
	return str
}

// Reads clock data on the second edge, writes on the first. Both sides of
// the slave protocol depend on this asymmetry.
const (
	modeRead  = Mode1
	modeWrite = Mode0
)

// runTransaction executes cmd on the register file. It must only be called
// from the owner goroutine.
func (e *Engine) runTransaction(cmd Command) (res Result, err error) {
	res.Cmd = cmd
	switch cmd.Op {
	case OpEnableInterrupt:
		e.regs.Write32(reg.IER, reg.IntRxReady)
		e.debug("irq:enabled")
		return res, nil
	case OpDisableInterrupt:
		e.regs.Write32(reg.IER, 0)
		e.debug("irq:disabled")
		return res, nil
	case OpRead, OpWrite:
	default:
		e.stats.faults.Add(1)
		return res, fault(ErrProtocol, "unknown command "+cmd.Op.String())
	}
	e.stats.transactions.Add(1)
	e.debug("transaction:start", slog.String("cmd", cmd.String()))

	mode, addr := modeRead, cmd.Addr
	if cmd.Op == OpWrite {
		mode, addr = modeWrite, cmd.Addr|writeMarker
	}
	cr := e.configureBus(mode)
	defer e.restoreIdle()

	if _, err = e.addressPhase(cr, addr); err != nil {
		e.logerr("transaction:address", slog.Any("err", err))
		return res, err
	}

	e.setState(StateDataPhase)
	// Payload bytes travel highest index first in both directions so a read
	// returns bytes in the order they were written.
	for i := len(res.Data) - 1; i >= 0; i-- {
		idx := len(res.Data) - i
		if cmd.Op == OpRead {
			res.Data[i], err = e.exchangeByte(cr, 0x00, idx)
		} else {
			_, err = e.exchangeByte(cr, cmd.Data[i], idx)
		}
		if err != nil {
			e.logerr("transaction:data", slog.Any("err", err))
			return res, err
		}
	}
	e.debug("transaction:done", slog.String("data", hex.EncodeToString(res.Data[:])))
	return res, nil
}

// configureBus masks controller interrupts, deselects every slave and loads
// the control register for a frame in mode with transactions inhibited.
// It returns the control value read back from the controller.
func (e *Engine) configureBus(mode Mode) (cr uint32) {
	e.setState(StateConfiguringBus)
	e.regs.Write32(reg.IER, 0)
	e.regs.Write32(reg.SSR, reg.SSRNone)
	e.regs.Write32(reg.CR, mode.control()|reg.CRInhibit)
	cr = e.regs.Read32(reg.CR)
	if e._traceenabled {
		// Extra SR read only when tracing.
		e.trace("configureBus", slog.String("cr", reg.Control(cr).String()),
			slog.String("sr", reg.Status(e.regs.Read32(reg.SR)).String()))
	}
	return cr
}

// addressPhase loads the first byte of the frame, selects the slave and
// pulses the byte out.
func (e *Engine) addressPhase(cr uint32, first uint8) (uint8, error) {
	e.setState(StateAddressPhase)
	e.regs.Write8(reg.DTR, first)
	e.regs.Write32(reg.SSR, reg.SSRSelect0)
	return e.pulse(cr, 0)
}

// restoreIdle inhibits transactions, deselects the slave and re-arms the
// receive interrupt. It runs on every exit path of a frame.
func (e *Engine) restoreIdle() {
	cr := e.regs.Read32(reg.CR)
	e.regs.Write32(reg.CR, cr|reg.CRInhibit)
	e.regs.Write32(reg.SSR, reg.SSRNone)
	e.regs.Write32(reg.IER, reg.IntRxReady)
	e.setState(StateIdle)
}

// frame runs a generic chip-select framed exchange of n bytes: w is clocked
// out (zero padded) and the reply stored in r (truncated).
func (e *Engine) frame(mode Mode, w, r []byte, n int) error {
	e.stats.transactions.Add(1)
	cr := e.configureBus(mode)
	defer e.restoreIdle()
	b, err := e.addressPhase(cr, byteAt(w, 0))
	if err != nil {
		return err
	}
	if len(r) > 0 {
		r[0] = b
	}
	e.setState(StateDataPhase)
	for i := 1; i < n; i++ {
		b, err = e.exchangeByte(cr, byteAt(w, i), i)
		if err != nil {
			return err
		}
		if i < len(r) {
			r[i] = b
		}
	}
	return nil
}

func byteAt(b []byte, i int) uint8 {
	if i < len(b) {
		return b[i]
	}
	return 0
}
