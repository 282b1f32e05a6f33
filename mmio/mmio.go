// package mmio maps the controller register window into the process through
// /dev/mem or a UIO device and exposes it as reg.Registers.
package mmio

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/spimod/axispi/reg"
)

var (
	errClosed      = errors.New("mmio: window closed")
	errUnsupported = errors.New("mmio: memory mapped I/O not supported on this platform")
)

// Config selects the register window to map.
type Config struct {
	// Device is /dev/mem for a physical mapping or /dev/uioN for a UIO
	// device. UIO devices also deliver the controller interrupt.
	Device string
	// Base is the physical address of the controller for /dev/mem. For UIO
	// it is the offset of the registers inside map 0, usually zero.
	Base uint64
	// Size of the window in bytes. Must cover every register offset.
	Size   int
	Logger *slog.Logger
}

// DefaultConfig maps the controller at its default physical address.
func DefaultConfig() Config {
	return Config{
		Device: "/dev/mem",
		Base:   reg.DefaultBase,
		Size:   reg.WindowSize,
	}
}

// IsUIO reports whether the configured device is a UIO device.
func (cfg Config) IsUIO() bool {
	return len(cfg.Device) > len("/dev/uio") && cfg.Device[:len("/dev/uio")] == "/dev/uio"
}

func (cfg Config) validate() error {
	if cfg.Device == "" {
		return errors.New("mmio: no device")
	}
	if cfg.Size < reg.WindowSize {
		return errors.New("mmio: window size " + strconv.Itoa(cfg.Size) + " does not cover register map")
	}
	return nil
}
