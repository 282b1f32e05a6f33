package axispi

import (
	"log/slog"

	"github.com/spimod/axispi/reg"
)

// Mode selects SPI clock polarity and phase for a frame.
type Mode uint8

const (
	Mode0 Mode = iota // CPOL=0 CPHA=0
	Mode1             // CPOL=0 CPHA=1
	Mode2             // CPOL=1 CPHA=0
	Mode3             // CPOL=1 CPHA=1

	// LSBFirst shifts bytes out least significant bit first.
	LSBFirst Mode = 1 << 4
)

// control returns the control register value for a manually selected master
// frame in mode m, with the transaction inhibit released.
func (m Mode) control() uint32 {
	cr := uint32(reg.CREnable | reg.CRMaster | reg.CRManualSS)
	if m&0b01 != 0 {
		cr |= reg.CRCPHA
	}
	if m&0b10 != 0 {
		cr |= reg.CRCPOL
	}
	if m&LSBFirst != 0 {
		cr |= reg.CRLSBFirst
	}
	return cr
}

// exchangeByte clocks tx out and returns the byte clocked in.
// Chip-select must be asserted and cr must hold the frame configuration.
func (e *Engine) exchangeByte(cr uint32, tx uint8, idx int) (uint8, error) {
	e.regs.Write8(reg.DTR, tx)
	return e.pulse(cr, idx)
}

// pulse releases the transaction inhibit so the byte loaded in DTR is
// shifted out, then waits for the transmit register to drain and the reply
// to arrive.
func (e *Engine) pulse(cr uint32, idx int) (uint8, error) {
	e.regs.Write32(reg.CR, cr&^reg.CRInhibit)
	if err := e.await(reg.SRTxEmpty, reg.SRTxEmpty, e.cfg.TxEmptyPolls, "tx-empty", idx); err != nil {
		return 0, err
	}
	if err := e.await(reg.SRRxEmpty, 0, e.cfg.RxReadyPolls, "rx-ready", idx); err != nil {
		return 0, err
	}
	rx := e.regs.Read8(reg.DRR)
	e.trace("pulse", slog.Int("idx", idx), slog.String("rx", reg.Hex(rx)))
	return rx, nil
}

// await polls SR until sr&mask == want, reading SR at most polls times.
func (e *Engine) await(mask, want uint32, polls int, flag string, idx int) error {
	for i := 0; i < polls; i++ {
		if e.regs.Read32(reg.SR)&mask == want {
			return nil
		}
	}
	e.stats.timeouts.Add(1)
	return &TimeoutError{State: e.State(), Flag: flag, Byte: idx, Polls: polls}
}
