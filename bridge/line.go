// package bridge serves a device over line oriented remote transports: a
// serial console and MQTT topics. Both speak the same text protocol:
//
//	e                 enable receive interrupt
//	d                 disable receive interrupt
//	r <addr>          read the word at hex addr
//	w <addr> <data>   write 4 hex bytes, in order, to addr
//
// Every request is answered by "ok" followed by the hex result bytes, or by
// "err" followed by the error text.
package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/spimod/axispi"
	"github.com/spimod/axispi/devfile"
)

var errSyntax = errors.New("bridge: syntax")

// ParseLine converts one text request into device command bytes.
func ParseLine(line string) ([]byte, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil, errors.Join(errSyntax, errors.New("empty line"))
	}
	if len(f[0]) != 1 {
		return nil, errors.Join(errSyntax, errors.New("unknown command "+strconv.Quote(f[0])))
	}
	op := axispi.Op(f[0][0])
	want := fieldsFor(op)
	if want == 0 {
		// Unknown ops are passed through so the device reports the fault.
		return []byte(f[0]), nil
	}
	if len(f) != want {
		return nil, errors.Join(errSyntax, errors.New(op.String()+" takes "+strconv.Itoa(want-1)+" arguments"))
	}
	cmd := axispi.Command{Op: op}
	if want >= 2 {
		addr, err := strconv.ParseUint(f[1], 16, 8)
		if err != nil {
			return nil, errors.Join(errSyntax, err)
		}
		cmd.Addr = uint8(addr)
	}
	if want == 3 {
		data, err := hex.DecodeString(f[2])
		if err != nil {
			return nil, errors.Join(errSyntax, err)
		}
		if len(data) != len(cmd.Data) {
			return nil, errors.Join(errSyntax, errors.New("write data must be 4 bytes"))
		}
		copy(cmd.Data[:], data)
	}
	return cmd.AppendTo(nil), nil
}

// fieldsFor returns the number of fields, op included, of a request line.
func fieldsFor(op axispi.Op) int {
	switch op {
	case axispi.OpEnableInterrupt, axispi.OpDisableInterrupt:
		return 1
	case axispi.OpRead:
		return 2
	case axispi.OpWrite:
		return 3
	}
	return 0
}

// FormatResult renders the reply line for a request.
func FormatResult(res []byte, err error) string {
	if err != nil {
		return "err " + err.Error()
	}
	return "ok " + hex.EncodeToString(res)
}

// Exec runs one text request on dev and returns the reply line. The device
// is held open only for the duration of the request so several bridges can
// share it; a request that finds it open is answered with a busy error.
func Exec(ctx context.Context, dev *devfile.Device, line string) string {
	cmd, err := ParseLine(line)
	if err != nil {
		return FormatResult(nil, err)
	}
	f, err := dev.Open(ctx)
	if err != nil {
		return FormatResult(nil, err)
	}
	defer f.Close()
	res, err := f.Exec(cmd)
	if err != nil {
		return FormatResult(nil, err)
	}
	return FormatResult(res.Bytes(), nil)
}
