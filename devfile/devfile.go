// package devfile is the device-file boundary of the driver: a single-open
// device whose handles accept command writes and return the result of the
// last command on read.
package devfile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/spimod/axispi"
)

var errFileClosed = errors.New("devfile: file closed")

// Device guards an engine so only one handle is open at a time.
type Device struct {
	e      *axispi.Engine
	logger *slog.Logger

	mu   sync.Mutex
	open bool
}

// New returns a device over e. logger may be nil.
func New(e *axispi.Engine, logger *slog.Logger) *Device {
	return &Device{e: e, logger: logger}
}

// Open returns the device handle. It fails with axispi.ErrBusy while another
// handle is open. ctx bounds every command submitted through the handle.
func (d *Device) Open(ctx context.Context) (*File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		d.log(slog.LevelWarn, "open:busy")
		return nil, axispi.ErrBusy
	}
	d.open = true
	d.log(slog.LevelDebug, "open")
	return &File{d: d, ctx: ctx}, nil
}

func (d *Device) release() {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	d.log(slog.LevelDebug, "close")
}

func (d *Device) log(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger != nil {
		d.logger.LogAttrs(context.Background(), level, "devfile:"+msg, attrs...)
	}
}

// File is an open device handle. It is not safe for concurrent use.
type File struct {
	d      *Device
	ctx    context.Context
	result []byte
	off    int
	closed bool
}

var _ io.ReadWriteCloser = (*File)(nil)

// Write runs p as one command. Commands longer than axispi.MaxCommandLen
// fail with axispi.ErrBuffer.
func (f *File) Write(p []byte) (int, error) {
	if _, err := f.Exec(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Exec runs cmd and stores its result for Read.
func (f *File) Exec(cmd []byte) (axispi.Result, error) {
	if f.closed {
		return axispi.Result{}, errFileClosed
	}
	res, err := f.d.e.DoBytes(f.ctx, cmd)
	if err != nil {
		f.d.log(slog.LevelError, "write", slog.Any("err", err))
		return res, err
	}
	f.result = append(f.result[:0], res.Bytes()...)
	f.off = 0
	return res, nil
}

// Read returns the result of the last command: the 4 data bytes after a
// read, the command bytes otherwise. Once consumed Read returns io.EOF until
// the next Write.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errFileClosed
	}
	if f.off >= len(f.result) {
		return 0, io.EOF
	}
	n := copy(p, f.result[f.off:])
	f.off += n
	return n, nil
}

// Close releases the device for the next Open.
func (f *File) Close() error {
	if f.closed {
		return errFileClosed
	}
	f.closed = true
	f.d.release()
	return nil
}
