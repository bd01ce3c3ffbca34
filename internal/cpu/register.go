// Package cpu implements the register file, instruction decoder, and
// executor: the three tightly-coupled pieces of spec.md §4.1, §4.3, §4.4.
package cpu

import (
	"fmt"
	"math"
)

// Handle addresses one register window. The low nibble selects one of 16
// registers; the high nibble selects the sub-register window (spec.md §3).
type Handle byte

// Hard-wired register indices (spec.md §3).
const (
	IndexZero byte = 0
	IndexPC   byte = 1
	IndexSP   byte = 2
	IndexFP   byte = 3
)

// Full-width (window 0) handles for the three special registers.
const (
	RegZero Handle = Handle(IndexZero)
	RegPC   Handle = Handle(IndexPC)
	RegSP   Handle = Handle(IndexSP)
	RegFP   Handle = Handle(IndexFP)
)

const NumRegisters = 16

// Index returns the register cell this handle addresses (0-15).
func (h Handle) Index() byte { return byte(h) & 0x0F }

// Window returns the sub-register window code (0-15; only 0-14 name a
// window, and code 15 reads as 0 and ignores writes).
func (h Handle) Window() byte { return byte(h) >> 4 }

// windowSpec returns the byte offset and length within the 64-bit cell that
// a window code selects, per spec.md §3's table.
func windowSpec(window byte) (offset, length int, ok bool) {
	switch {
	case window == 0:
		return 0, 8, true
	case window >= 1 && window <= 8:
		return int(window - 1), 1, true
	case window >= 9 && window <= 12:
		return int(window-9) * 2, 2, true
	case window == 13:
		return 0, 4, true
	case window == 14:
		return 4, 4, true
	default:
		return 0, 0, false
	}
}

func lowMask(length int) uint64 {
	if length >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(length*8)) - 1
}

// File is the CPU's 16 named 64-bit registers.
type File struct {
	cells [NumRegisters]uint64
}

// Read isolates the window h selects and zero-extends it to 64 bits. The
// zero register always reads as 0.
func (f *File) Read(h Handle) uint64 {
	idx := h.Index()
	if idx == IndexZero {
		return 0
	}

	offset, length, ok := windowSpec(h.Window())
	if !ok {
		return 0
	}
	if length == 8 {
		return f.cells[idx]
	}
	return (f.cells[idx] >> uint(offset*8)) & lowMask(length)
}

// Write splices value into the window h selects, leaving the unrelated
// bytes of the underlying cell untouched. Writes to the zero register are
// silently dropped.
func (f *File) Write(h Handle, value uint64) {
	idx := h.Index()
	if idx == IndexZero {
		return
	}

	offset, length, ok := windowSpec(h.Window())
	if !ok {
		return
	}
	if length == 8 {
		f.cells[idx] = value
		return
	}

	mask := lowMask(length) << uint(offset*8)
	f.cells[idx] = (f.cells[idx] &^ mask) | ((value << uint(offset*8)) & mask)
}

// ByteLength reports the width in bytes of the window h selects: one of
// {1,2,4,8}, or 0 for the undefined window code 15.
func (h Handle) ByteLength() int {
	_, length, ok := windowSpec(h.Window())
	if !ok {
		return 0
	}
	return length
}

// Print renders the register's current value for disassembly, sized to its
// window width.
func (f *File) Print(h Handle) string {
	v := f.Read(h)
	switch h.ByteLength() {
	case 1:
		return fmt.Sprintf("0x%02x", v)
	case 2:
		return fmt.Sprintf("0x%04x", v)
	case 4:
		return fmt.Sprintf("0x%08x", v)
	default:
		return fmt.Sprintf("0x%016x", v)
	}
}

// PrintFloat reinterprets the register's full 64-bit cell as an IEEE-754
// double, independent of the handle's window (a double always needs all 64
// bits).
func (f *File) PrintFloat(h Handle) string {
	bits := f.cells[h.Index()]
	return fmt.Sprintf("%g", math.Float64frombits(bits))
}

// PC, SP, FP read the three special registers at full width.
func (f *File) PC() uint64 { return f.Read(RegPC) }
func (f *File) SP() uint64 { return f.Read(RegSP) }
func (f *File) FP() uint64 { return f.Read(RegFP) }

// SetPC, SetSP, SetFP write the three special registers at full width.
func (f *File) SetPC(v uint64) { f.Write(RegPC, v) }
func (f *File) SetSP(v uint64) { f.Write(RegSP, v) }
func (f *File) SetFP(v uint64) { f.Write(RegFP, v) }
