package axispi

import "github.com/spimod/axispi/reg"

// handleIRQ services the controller interrupt line. A byte that arrives
// outside a transaction is drained and discarded so the receive condition
// clears, then the receive interrupt is re-armed and the status acknowledged.
// Runs on the owner goroutine only, so it never interleaves with a frame.
func (e *Engine) handleIRQ() {
	ier := e.regs.Read32(reg.IER)
	isr := e.regs.Read32(reg.ISR)
	pending := isr & ier
	switch {
	case pending == 0:
		// Disarmed by 'd', or a notification that raced a transaction which
		// already masked the line.
		e.stats.spurious.Add(1)
		e.trace("irq:nothing-pending", regattr("ier", ier), regattr("isr", isr))
		return
	case pending&reg.IntRxReady == 0:
		// Mode faults. Nothing to drain but the line stays high until the
		// pending bits are acknowledged.
		e.regs.Write32(reg.ISR, pending)
		e.stats.modeFaults.Add(1)
		e.warn("irq:fault", regattr("isr", isr))
		return
	}
	e.regs.Write32(reg.IER, 0)
	rx := e.regs.Read32(reg.DRR)
	e.regs.Write32(reg.IER, reg.IntRxReady)
	// ISR bits toggle on write: writing back what was read clears them.
	e.regs.Write32(reg.ISR, isr)
	e.stats.interrupts.Add(1)
	e.debug("irq:drained", regattr("drr", rx), regattr("isr", isr))
}
