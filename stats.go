package axispi

import "sync/atomic"

type stats struct {
	transactions atomic.Uint64
	timeouts     atomic.Uint64
	faults       atomic.Uint64
	busy         atomic.Uint64
	interrupts   atomic.Uint64
	spurious     atomic.Uint64
	modeFaults   atomic.Uint64
}

// Stats is a snapshot of engine counters.
type Stats struct {
	// Transactions counts frames started on the bus.
	Transactions uint64
	// Timeouts counts status polls that ran out.
	Timeouts uint64
	// Faults counts commands rejected before reaching the bus.
	Faults uint64
	// Busy counts requests rejected with ErrBusy.
	Busy uint64
	// Interrupts counts serviced receive interrupts.
	Interrupts uint64
	// Spurious counts interrupt notifications ignored because the receive
	// interrupt was disarmed or nothing enabled was pending.
	Spurious uint64
	// ModeFaults counts acknowledged mode fault interrupts.
	ModeFaults uint64
}

// Stats returns the current counters. It is safe to call concurrently.
func (e *Engine) Stats() Stats {
	return Stats{
		Transactions: e.stats.transactions.Load(),
		Timeouts:     e.stats.timeouts.Load(),
		Faults:       e.stats.faults.Load(),
		Busy:         e.stats.busy.Load(),
		Interrupts:   e.stats.interrupts.Load(),
		Spurious:     e.stats.spurious.Load(),
		ModeFaults:   e.stats.modeFaults.Load(),
	}
}
