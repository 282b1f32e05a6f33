package axispi

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// Op is the leading byte of a command.
type Op byte

const (
	OpEnableInterrupt  Op = 'e'
	OpDisableInterrupt Op = 'd'
	OpRead             Op = 'r'
	OpWrite            Op = 'w'
)

// MaxCommandLen is the largest command accepted from a caller.
const MaxCommandLen = 128

// Command frame layout.
const (
	readCmdLen  = 2 // 'r' addr
	writeCmdLen = 6 // 'w' addr b0 b1 b2 b3
	dataOffset  = 2
	// writeMarker is set in the address byte of a write frame.
	writeMarker = 0x80
	// MaxAddr is the largest slave register address.
	MaxAddr = 0x7f
)

func (op Op) String() (s string) {
	switch op {
	case OpEnableInterrupt:
		s = "enable-irq"
	case OpDisableInterrupt:
		s = "disable-irq"
	case OpRead:
		s = "read"
	case OpWrite:
		s = "write"
	default:
		s = "Op(" + strconv.Quote(string(rune(op))) + ")"
	}
	return s
}

// Command is one parsed transaction request.
type Command struct {
	Op   Op
	Addr uint8
	// Data holds the 4 payload bytes of a write in caller order.
	Data [4]byte
}

// ReadCommand returns a command reading the word at addr.
func ReadCommand(addr uint8) Command { return Command{Op: OpRead, Addr: addr} }

// WriteCommand returns a command writing data to the word at addr.
func WriteCommand(addr uint8, data [4]byte) Command {
	return Command{Op: OpWrite, Addr: addr, Data: data}
}

// ParseCommand parses the command bytes received from a caller.
// Trailing bytes past a complete command are ignored.
func ParseCommand(b []byte) (cmd Command, err error) {
	if len(b) > MaxCommandLen {
		return cmd, fault(ErrBuffer, "command length "+strconv.Itoa(len(b))+" exceeds "+strconv.Itoa(MaxCommandLen))
	}
	if len(b) == 0 {
		return cmd, fault(ErrProtocol, "empty command")
	}
	cmd.Op = Op(b[0])
	switch cmd.Op {
	case OpEnableInterrupt, OpDisableInterrupt:
		return cmd, nil
	case OpRead:
		if len(b) < readCmdLen {
			return Command{}, fault(ErrProtocol, "read command missing address")
		}
	case OpWrite:
		if len(b) < writeCmdLen {
			return Command{}, fault(ErrProtocol, "write command needs address and 4 data bytes")
		}
		copy(cmd.Data[:], b[dataOffset:writeCmdLen])
	default:
		return Command{}, fault(ErrProtocol, "unknown command "+strconv.QuoteRune(rune(b[0])))
	}
	cmd.Addr = b[1]
	if err = cmd.validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func (c Command) validate() error {
	switch c.Op {
	case OpEnableInterrupt, OpDisableInterrupt:
		return nil
	case OpRead, OpWrite:
		if c.Addr > MaxAddr {
			// The top bit is the write marker on the wire.
			return fault(ErrProtocol, "address "+strconv.Itoa(int(c.Addr))+" out of range")
		}
		return nil
	}
	return fault(ErrProtocol, "unknown command "+c.Op.String())
}

// AppendTo appends the command bytes of c to dst.
func (c Command) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(c.Op))
	switch c.Op {
	case OpRead:
		dst = append(dst, c.Addr)
	case OpWrite:
		dst = append(dst, c.Addr)
		dst = append(dst, c.Data[:]...)
	}
	return dst
}

func (c Command) String() string {
	switch c.Op {
	case OpRead:
		return "read addr=" + strconv.Itoa(int(c.Addr))
	case OpWrite:
		return "write addr=" + strconv.Itoa(int(c.Addr)) + " data=" + hex.EncodeToString(c.Data[:])
	}
	return c.Op.String()
}

// Result is the outcome of a successful transaction.
type Result struct {
	Cmd Command
	// Data holds the reassembled word after a read, in caller order.
	Data [4]byte
}

// Bytes returns the caller visible result: the 4 read bytes for a read,
// the command bytes otherwise.
func (r Result) Bytes() []byte {
	if r.Cmd.Op == OpRead {
		return append([]byte(nil), r.Data[:]...)
	}
	return r.Cmd.AppendTo(nil)
}

// Word returns the read data interpreted as a little endian word.
func (r Result) Word() uint32 {
	return binary.LittleEndian.Uint32(r.Data[:])
}

type faultError struct {
	kind error
	msg  string
}

func (e *faultError) Error() string { return e.kind.Error() + ": " + e.msg }
func (e *faultError) Unwrap() error { return e.kind }

func fault(kind error, msg string) error {
	return &faultError{kind: kind, msg: msg}
}
