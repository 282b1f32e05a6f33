package mmio

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"github.com/spimod/axispi/reg"
	"golang.org/x/exp/constraints"
	"golang.org/x/sys/unix"
)

// irqPollMillis bounds how long ServeIRQ blocks before rechecking its context.
const irqPollMillis = 100

// Window is a mapped controller register window. Every access is a single
// aligned 32 bit load or store in program order.
type Window struct {
	fd     int
	mem    []byte // Page aligned mapping.
	regs   []byte // Register window inside mem.
	uio    bool
	closed atomic.Bool
	logger *slog.Logger
}

var _ reg.Registers = (*Window)(nil)

// Open maps the window described by cfg.
func Open(cfg Config) (*Window, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Join(errors.New("mmio: open "+cfg.Device), err)
	}
	page := unix.Getpagesize()
	off := alignDown(cfg.Base, uint64(page))
	delta := int(cfg.Base - off)
	length := alignUp(delta+cfg.Size, page)
	uio := cfg.IsUIO()
	if uio {
		// UIO selects the map by page index; map 0 starts at offset 0 and
		// Base is relative to it.
		off, delta = 0, int(cfg.Base)
		length = alignUp(delta+cfg.Size, page)
	}
	mem, err := unix.Mmap(fd, int64(off), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Join(errors.New("mmio: mmap "+cfg.Device), err, unix.Close(fd))
	}
	w := &Window{
		fd:     fd,
		mem:    mem,
		regs:   mem[delta : delta+cfg.Size],
		uio:    uio,
		logger: cfg.Logger,
	}
	if w.logger != nil {
		w.logger.Debug("mmio:open", slog.String("dev", cfg.Device),
			slog.String("base", reg.Hex(cfg.Base)), slog.Int("len", length), slog.Bool("uio", uio))
	}
	return w, nil
}

// alignUp rounds val up to a multiple of align, a power of two.
func alignUp[T constraints.Integer](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}

func alignDown[T constraints.Integer](val, align T) T {
	return val &^ (align - 1)
}

func (w *Window) addr(r reg.Reg) *uint32 {
	return (*uint32)(unsafe.Pointer(&w.regs[r.Offset()]))
}

func (w *Window) Read32(r reg.Reg) uint32 { return atomic.LoadUint32(w.addr(r)) }

func (w *Window) Write32(r reg.Reg, v uint32) { atomic.StoreUint32(w.addr(r), v) }

// Read8 reads the low byte of r. The AXI-Lite slave interface only decodes
// full word accesses so the register is read whole.
func (w *Window) Read8(r reg.Reg) uint8 { return uint8(w.Read32(r)) }

// Write8 writes v zero extended to r.
func (w *Window) Write8(r reg.Reg, v uint8) { w.Write32(r, uint32(v)) }

// Close unmaps the window and closes the device.
func (w *Window) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return errClosed
	}
	return errors.Join(unix.Munmap(w.mem), unix.Close(w.fd))
}

// AckIRQ re-enables the interrupt line of a UIO device.
func (w *Window) AckIRQ() error {
	if !w.uio {
		return errUnsupported
	}
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 1)
	_, err := unix.Write(w.fd, buf[:])
	return err
}

// WaitIRQ blocks until the UIO device reports an interrupt or timeoutMillis
// elapses, returning the device's total interrupt count. ok is false on
// timeout. A negative timeout waits forever.
func (w *Window) WaitIRQ(timeoutMillis int) (count uint32, ok bool, err error) {
	if !w.uio {
		return 0, false, errUnsupported
	}
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMillis)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	var buf [4]byte
	if _, err = unix.Read(w.fd, buf[:]); err != nil {
		return 0, false, err
	}
	return binary.NativeEndian.Uint32(buf[:]), true, nil
}

// ServeIRQ forwards UIO interrupts to notify until ctx is done. The line is
// re-armed before every wait.
func (w *Window) ServeIRQ(ctx context.Context, notify func()) error {
	for ctx.Err() == nil {
		if err := w.AckIRQ(); err != nil {
			return err
		}
		count, ok, err := w.WaitIRQ(irqPollMillis)
		if err != nil {
			return err
		}
		if ok {
			if w.logger != nil {
				w.logger.Log(ctx, slog.LevelDebug-1, "mmio:irq", slog.Uint64("count", uint64(count)))
			}
			notify()
		}
	}
	return ctx.Err()
}
