//go:build !linux

package mmio

import (
	"context"

	"github.com/spimod/axispi/reg"
)

// Window is unavailable outside Linux.
type Window struct{}

var _ reg.Registers = (*Window)(nil)

func Open(cfg Config) (*Window, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, errUnsupported
}

func (w *Window) Read32(r reg.Reg) uint32 { panic(errUnsupported) }
func (w *Window) Write32(r reg.Reg, v uint32) { panic(errUnsupported) }
func (w *Window) Read8(r reg.Reg) uint8 { panic(errUnsupported) }
func (w *Window) Write8(r reg.Reg, v uint8) { panic(errUnsupported) }
func (w *Window) Close() error { return errClosed }
func (w *Window) AckIRQ() error { return errUnsupported }
func (w *Window) ServeIRQ(ctx context.Context, notify func()) error { return errUnsupported }
func (w *Window) WaitIRQ(timeoutMillis int) (uint32, bool, error) {
	return 0, false, errUnsupported
}
