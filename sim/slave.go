package sim

import (
	"encoding/binary"
	"sync"
)

// Slave address space: 7 bit addresses, the top bit of the address byte is
// the write marker.
const (
	NumAddrs   = 128
	WordSize   = 4
	writeFlag  = 0x80
	addrMask   = 0x7f
	idleFiller = 0x00
)

// Slave is a register file of 4 byte words addressed by the first byte of
// every chip-select frame. Bytes are kept in the order they travel on the
// wire: a write frame stores them as received and a read frame returns them
// in the same order.
type Slave struct {
	mu    sync.Mutex
	words [NumAddrs][WordSize]byte

	selected  bool
	addressed bool
	write     bool
	addr      uint8
	idx       int
	frames    int
}

// NewSlave returns a slave with every register cleared.
func NewSlave() *Slave { return &Slave{} }

// Word returns the register at addr as the driver sees it in caller byte
// order interpreted little endian.
func (s *Slave) Word(addr uint8) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return binary.BigEndian.Uint32(s.words[addr&addrMask][:])
}

// SetWord stores v at addr so that a driver read returns v.
func (s *Slave) SetWord(addr uint8, v uint32) {
	s.mu.Lock()
	binary.BigEndian.PutUint32(s.words[addr&addrMask][:], v)
	s.mu.Unlock()
}

// Wire returns the bytes at addr in wire order.
func (s *Slave) Wire(addr uint8) [WordSize]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words[addr&addrMask]
}

// Frames returns the number of completed chip-select frames.
func (s *Slave) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Slave) selectChip() {
	s.mu.Lock()
	s.selected = true
	s.addressed = false
	s.idx = 0
	s.mu.Unlock()
}

func (s *Slave) deselect() {
	s.mu.Lock()
	if s.selected {
		s.frames++
	}
	s.selected = false
	s.mu.Unlock()
}

func (s *Slave) exchange(mosi uint8) (miso uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selected {
		return 0xff
	}
	if !s.addressed {
		s.addressed = true
		s.write = mosi&writeFlag != 0
		s.addr = mosi & addrMask
		s.idx = 0
		return idleFiller
	}
	if s.idx >= WordSize {
		return idleFiller // Clocking past the word is ignored.
	}
	word := &s.words[s.addr]
	if s.write {
		word[s.idx] = mosi
		miso = idleFiller
	} else {
		miso = word[s.idx]
	}
	s.idx++
	return miso
}
