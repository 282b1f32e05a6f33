// package reg defines the register map of the Xilinx AXI Quad SPI controller
// in standard (non-XIP) mode and the accessor contract every register backend
// implements.
package reg

import (
	"strconv"

	"golang.org/x/exp/constraints"
)

// Reg identifies one of the controller registers used by the driver.
type Reg uint8

const (
	CR   Reg = iota // SPI control register.
	SR              // SPI status register.
	DTR             // SPI data transmit register, FIFO head.
	DRR             // SPI data receive register, FIFO head.
	SSR             // SPI slave select register.
	GIER            // Device global interrupt enable register.
	IER             // IP interrupt enable register.
	ISR             // IP interrupt status register.
	NumRegs
)

// Byte offsets from the controller base address.
const (
	OffsetGIER = 0x1c
	OffsetIER  = 0x20
	OffsetISR  = 0x28
	OffsetCR   = 0x60
	OffsetSR   = 0x64
	OffsetDTR  = 0x68
	OffsetDRR  = 0x6c
	OffsetSSR  = 0x70

	// WindowSize spans every register above, rounded to the controller's
	// 128 byte register block.
	WindowSize = 0x80
	// DefaultBase is the physical base address of the controller on the
	// reference Zynq design.
	DefaultBase = 0x41e0_0000
)

var offsets = [NumRegs]uintptr{
	CR:   OffsetCR,
	SR:   OffsetSR,
	DTR:  OffsetDTR,
	DRR:  OffsetDRR,
	SSR:  OffsetSSR,
	GIER: OffsetGIER,
	IER:  OffsetIER,
	ISR:  OffsetISR,
}

var names = [NumRegs]string{
	CR:   "CR",
	SR:   "SR",
	DTR:  "DTR",
	DRR:  "DRR",
	SSR:  "SSR",
	GIER: "GIER",
	IER:  "IER",
	ISR:  "ISR",
}

// Offset returns the byte offset of r from the controller base.
// It panics if r is not a known register.
func (r Reg) Offset() uintptr {
	if r >= NumRegs {
		panic("reg: bad register id " + strconv.Itoa(int(r)))
	}
	return offsets[r]
}

func (r Reg) String() string {
	if r >= NumRegs {
		return "Reg(" + strconv.Itoa(int(r)) + ")"
	}
	return names[r]
}

// Control register (CR) bits.
const (
	CRLoop      = 1 << 0
	CREnable    = 1 << 1 // SPI system enable.
	CRMaster    = 1 << 2 // Master mode.
	CRCPOL      = 1 << 3
	CRCPHA      = 1 << 4 // Clock phase select.
	CRTxReset   = 1 << 5
	CRRxReset   = 1 << 6
	CRManualSS  = 1 << 7 // Manual slave select assertion enable.
	CRInhibit   = 1 << 8 // Master transaction inhibit. Set holds the bus idle.
	CRLSBFirst  = 1 << 9
	crKnownBits = 1<<10 - 1
)

// Status register (SR) bits.
const (
	SRRxEmpty = 1 << 0 // Receive FIFO empty.
	SRRxFull  = 1 << 1
	SRTxEmpty = 1 << 2 // Transmit FIFO empty.
	SRTxFull  = 1 << 3
	SRModeErr = 1 << 4
)

// Slave select register (SSR) values. Active low.
const (
	SSRSelect0 uint32 = 0xffff_fffe
	SSRNone    uint32 = 0xffff_ffff
)

// Interrupt enable/status (IER, ISR) bits.
const (
	IntModeFault      = 1 << 0
	IntSlaveModeFault = 1 << 1
	IntTxEmpty        = 1 << 2
	IntRxFull         = 1 << 4 // DRR not empty: receive data ready.
	IntRxReady        = IntRxFull

	// IntDefault is the interrupt set enabled at controller bring-up.
	IntDefault = IntModeFault | IntSlaveModeFault
)

// GIEREnable is the global interrupt enable bit of GIER.
const GIEREnable uint32 = 1 << 31

// Registers is the accessor contract over the controller register file.
// Implementations must perform every access, in program order, without
// caching: status is re-read after every command.
type Registers interface {
	Read32(r Reg) uint32
	Write32(r Reg, v uint32)
	Read8(r Reg) uint8
	Write8(r Reg, v uint8)
}

// Status is the value of the SR register.
type Status uint32

// RxEmpty returns true if the receive FIFO holds no data.
func (s Status) RxEmpty() bool { return s&SRRxEmpty != 0 }

// TxEmpty returns true if the transmit FIFO has been shifted out.
func (s Status) TxEmpty() bool { return s&SRTxEmpty != 0 }

// ModeError returns true if the controller flagged a mode fault.
func (s Status) ModeError() bool { return s&SRModeErr != 0 }

func (s Status) String() (str string) {
	if s.RxEmpty() {
		str += "rxempty "
	} else {
		str += "rxready "
	}
	if s&SRRxFull != 0 {
		str += "rxfull "
	}
	if s.TxEmpty() {
		str += "txempty "
	}
	if s&SRTxFull != 0 {
		str += "txfull "
	}
	if s.ModeError() {
		str += "modeerr "
	}
	return str[:len(str)-1]
}

// Control is the value of the CR register.
type Control uint32

// Inhibited returns true if the master transaction inhibit bit is set.
func (c Control) Inhibited() bool { return c&CRInhibit != 0 }

func (c Control) String() string {
	if c == 0 {
		return "disabled"
	}
	var str string
	flag := func(bit uint32, name string) {
		if uint32(c)&bit != 0 {
			str += name + " "
		}
	}
	flag(CRLoop, "loop")
	flag(CREnable, "enable")
	flag(CRMaster, "master")
	flag(CRCPOL, "cpol")
	flag(CRCPHA, "cpha")
	flag(CRTxReset, "txrst")
	flag(CRRxReset, "rxrst")
	flag(CRManualSS, "manualss")
	flag(CRInhibit, "inhibit")
	flag(CRLSBFirst, "lsbfirst")
	if extra := uint32(c) &^ crKnownBits; extra != 0 {
		str += "unknown=" + Hex(extra) + " "
	}
	return str[:len(str)-1]
}

// Hex formats v as a zero padded hexadecimal string sized to T.
func Hex[T constraints.Unsigned](v T) string {
	const hextable = "0123456789abcdef"
	var size int
	switch any(v).(type) {
	case uint8:
		size = 1
	case uint16:
		size = 2
	case uint32:
		size = 4
	default:
		size = 8
	}
	buf := make([]byte, 2+2*size)
	buf[0], buf[1] = '0', 'x'
	u := uint64(v)
	for i := len(buf) - 1; i >= 2; i-- {
		buf[i] = hextable[u&0xf]
		u >>= 4
	}
	return string(buf)
}

// HasBits returns true if every bit of mask is set in v.
func HasBits[T constraints.Unsigned](v, mask T) bool {
	return v&mask == mask
}
