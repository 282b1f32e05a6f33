// package axispi drives a memory-mapped Xilinx AXI Quad SPI master to read
// and write 4 byte words of a slave register file over chip-select 0.
//
// All register access is owned by a single goroutine started with
// [Engine.Run]. Transactions and controller interrupts are both delivered to
// that goroutine so the receive-interrupt handler never interleaves with a
// transaction in flight.
package axispi

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/spimod/axispi/reg"
)

// Default status poll bounds, counted in SR reads.
const (
	DefaultTxEmptyPolls = 1000
	DefaultRxReadyPolls = 10000
)

type Config struct {
	// TxEmptyPolls bounds the wait for the transmit register to drain.
	TxEmptyPolls int
	// RxReadyPolls bounds the wait for the reply byte to arrive.
	RxReadyPolls int
	Logger       *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		TxEmptyPolls: DefaultTxEmptyPolls,
		RxReadyPolls: DefaultRxReadyPolls,
	}
}

// Engine sequences SPI transactions over a controller register file.
type Engine struct {
	regs reg.Registers
	cfg  Config

	// slot is held by the one transaction allowed in flight.
	slot chan struct{}
	reqs chan request
	irqs chan struct{}
	done chan struct{}

	running atomic.Bool
	state   atomic.Uint32
	stats   stats

	logger        *slog.Logger
	_traceenabled bool
}

type request struct {
	run   func() error
	reply chan error
}

// New returns an Engine over regs. Zero poll bounds in cfg take their default
// values. The Engine does nothing until Run is called.
func New(regs reg.Registers, cfg Config) *Engine {
	if regs == nil {
		panic("axispi: nil registers")
	}
	if cfg.TxEmptyPolls <= 0 {
		cfg.TxEmptyPolls = DefaultTxEmptyPolls
	}
	if cfg.RxReadyPolls <= 0 {
		cfg.RxReadyPolls = DefaultRxReadyPolls
	}
	e := &Engine{
		regs:   regs,
		cfg:    cfg,
		slot:   make(chan struct{}, 1),
		reqs:   make(chan request),
		irqs:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: cfg.Logger,
	}
	e._traceenabled = e.logger != nil && e.logger.Handler().Enabled(context.Background(), levelTrace)
	return e
}

// Run owns the register file until ctx is done, executing transactions and
// servicing interrupts one at a time. Run may only be called once; after it
// returns every pending and future call fails with ErrClosed.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("axispi: engine already running")
	}
	defer close(e.done)
	e.debug("Run:start")
	for {
		select {
		case <-ctx.Done():
			e.debug("Run:stop", slog.Any("reason", context.Cause(ctx)))
			return ctx.Err()
		case req := <-e.reqs:
			req.reply <- req.run()
		case <-e.irqs:
			e.handleIRQ()
		}
	}
}

// Interrupt notifies the engine that the controller raised its interrupt
// line. It never blocks; notifications arriving while one is pending are
// coalesced. Platform glue calls it from its interrupt delivery path.
func (e *Engine) Interrupt() {
	select {
	case e.irqs <- struct{}{}:
	default:
	}
}

// Init brings the controller to its idle configuration: all slaves
// deselected, master enabled with transactions inhibited and controller
// interrupts enabled.
func (e *Engine) Init(ctx context.Context) error {
	return e.submit(ctx, func() error {
		e.regs.Write32(reg.SSR, reg.SSRNone)
		e.regs.Write32(reg.CR, modeRead.control()|reg.CRInhibit)
		e.regs.Write32(reg.GIER, reg.GIEREnable)
		e.regs.Write32(reg.IER, reg.IntDefault)
		e.info("Init:done",
			slog.String("cr", reg.Control(e.regs.Read32(reg.CR)).String()),
			slog.String("sr", reg.Status(e.regs.Read32(reg.SR)).String()),
		)
		return nil
	})
}

// Do runs cmd as one transaction. Malformed commands fail with ErrProtocol
// before any register is touched. A second Do while one is in flight fails
// with ErrBusy.
func (e *Engine) Do(ctx context.Context, cmd Command) (Result, error) {
	if err := cmd.validate(); err != nil {
		e.stats.faults.Add(1)
		e.warn("Do:bad-command", slog.String("op", cmd.Op.String()))
		return Result{}, err
	}
	var res Result
	err := e.submit(ctx, func() (err error) {
		res, err = e.runTransaction(cmd)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// DoBytes parses and runs a raw command as received from a caller.
func (e *Engine) DoBytes(ctx context.Context, b []byte) (Result, error) {
	cmd, err := ParseCommand(b)
	if err != nil {
		e.stats.faults.Add(1)
		return Result{}, err
	}
	return e.Do(ctx, cmd)
}

// ReadWord reads the word at addr as a little endian value of the
// caller-order result bytes.
func (e *Engine) ReadWord(ctx context.Context, addr uint8) (uint32, error) {
	res, err := e.Do(ctx, ReadCommand(addr))
	if err != nil {
		return 0, err
	}
	return res.Word(), nil
}

// WriteWord writes v to addr. The bytes reach the slave such that ReadWord
// returns v.
func (e *Engine) WriteWord(ctx context.Context, addr uint8, v uint32) error {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], v)
	_, err := e.Do(ctx, WriteCommand(addr, data))
	return err
}

// Tx runs one chip-select frame in mode, clocking out w and storing the
// reply in r. The frame is max(len(w), len(r)) bytes long; w is padded with
// zeros. The first byte goes out in the address phase, as with Do.
func (e *Engine) Tx(ctx context.Context, mode Mode, w, r []byte) error {
	n := max(len(w), len(r))
	if n == 0 {
		return nil
	}
	return e.submit(ctx, func() error {
		err := e.frame(mode, w, r, n)
		if err != nil {
			e.logerr("Tx", slog.Int("n", n), slog.Any("err", err))
		}
		return err
	})
}

// EnableInterrupt arms the receive-data-ready interrupt.
func (e *Engine) EnableInterrupt(ctx context.Context) error {
	_, err := e.Do(ctx, Command{Op: OpEnableInterrupt})
	return err
}

// DisableInterrupt disarms every controller interrupt source.
func (e *Engine) DisableInterrupt(ctx context.Context) error {
	_, err := e.Do(ctx, Command{Op: OpDisableInterrupt})
	return err
}

// State returns the current sequencer state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	e.state.Store(uint32(s))
}

// submit hands run to the owner goroutine and waits for it to finish.
// Once the owner accepts the request it runs to completion regardless of ctx.
func (e *Engine) submit(ctx context.Context, run func() error) error {
	select {
	case e.slot <- struct{}{}:
	default:
		e.stats.busy.Add(1)
		return ErrBusy
	}
	defer func() { <-e.slot }()

	req := request{run: run, reply: make(chan error, 1)}
	select {
	case e.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
	return <-req.reply
}
