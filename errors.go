package axispi

import (
	"errors"
	"strconv"
)

var (
	// ErrProtocol is returned for commands the driver does not recognize or
	// that are malformed, including read and write addresses above MaxAddr:
	// bit 7 of the address byte is the write marker. No register is touched.
	ErrProtocol = errors.New("axispi: protocol fault")
	// ErrBuffer is returned when a command or result does not fit the
	// caller or driver buffers.
	ErrBuffer = errors.New("axispi: buffer fault")
	// ErrTimeout is returned when a status poll exhausts its bound.
	ErrTimeout = errors.New("axispi: transfer timeout")
	// ErrBusy is returned when a transaction is submitted while another is
	// in flight, or when opening an already open device.
	ErrBusy = errors.New("axispi: busy")
	// ErrClosed is returned once the engine has stopped running.
	ErrClosed = errors.New("axispi: engine closed")
)

// TimeoutError describes which status poll of a transaction ran out.
type TimeoutError struct {
	State State
	// Flag is the status condition being waited on.
	Flag string
	// Byte is the index of the byte within the chip-select frame.
	Byte  int
	Polls int
}

func (e *TimeoutError) Error() string {
	return "axispi: timeout waiting for " + e.Flag + " in " + e.State.String() +
		" byte " + strconv.Itoa(e.Byte) + " after " + strconv.Itoa(e.Polls) + " polls"
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
