package cpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"nisvc/internal/memory"
)

// Execute applies one decoded operation to f and mem. The caller must have
// already advanced f's PC past the instruction (invariant (b) of spec.md
// §3); Execute only overrides PC for control-flow operations. It returns
// a non-nil pendingInterrupt when the instruction was Int, for the main
// loop to dispatch after the instruction completes.
func Execute(op Operation, f *File, mem *memory.Memory) (pendingInterrupt *byte, err error) {
	switch op.Op {
	case OpNop:
		// no-op

	case OpCpy:
		f.Write(op.Regs[0], f.Read(op.Regs[1]))

	case OpLdi:
		f.Write(op.Regs[0], op.Imm)

	case OpLoad:
		dest, nReg, srcPtrReg := op.Regs[0], op.Regs[1], op.Regs[2]
		n := f.Read(nReg)
		if n > 8 {
			return nil, newError(ErrLoadTooWide, fmt.Sprintf("load of %d bytes exceeds 8-byte register width", n))
		}
		bytes, rerr := mem.Read(f.Read(srcPtrReg), n)
		if rerr != nil {
			return nil, rerr
		}
		var buf [8]byte
		copy(buf[:], bytes)
		f.Write(dest, binary.LittleEndian.Uint64(buf[:]))

	case OpStore:
		destPtrReg, nReg, srcReg := op.Regs[0], op.Regs[1], op.Regs[2]
		n := f.Read(nReg)
		if n > uint64(srcReg.ByteLength()) {
			return nil, newError(ErrStoreTooWide, fmt.Sprintf("store of %d bytes exceeds source register width %d", n, srcReg.ByteLength()))
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], f.Read(srcReg))
		if werr := mem.Write(f.Read(destPtrReg), buf[:n]); werr != nil {
			return nil, werr
		}

	case OpAdd:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, f.Read(a)+f.Read(b))
	case OpSub:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, f.Read(a)-f.Read(b))
	case OpMult:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, f.Read(a)*f.Read(b))
	case OpDiv:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		divisor := f.Read(b)
		if divisor == 0 {
			return nil, newError(ErrDivisionByZero, fmt.Sprintf("div at dest register 0x%02x", byte(dest)))
		}
		f.Write(dest, f.Read(a)/divisor)
	case OpMod:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		divisor := f.Read(b)
		if divisor == 0 {
			return nil, newError(ErrDivisionByZero, fmt.Sprintf("mod at dest register 0x%02x", byte(dest)))
		}
		f.Write(dest, f.Read(a)%divisor)

	case OpOr:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, f.Read(a)|f.Read(b))
	case OpXor:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, f.Read(a)^f.Read(b))
	case OpAnd:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, f.Read(a)&f.Read(b))
	case OpNot:
		dest, src := op.Regs[0], op.Regs[1]
		f.Write(dest, ^f.Read(src))

	case OpShl:
		dest, nReg, src := op.Regs[0], op.Regs[1], op.Regs[2]
		n := f.Read(nReg) & 0x3F
		f.Write(dest, f.Read(src)<<n)
	case OpShr:
		dest, nReg, src := op.Regs[0], op.Regs[1], op.Regs[2]
		n := f.Read(nReg) & 0x3F
		f.Write(dest, f.Read(src)>>n)
	case OpRotl:
		dest, nReg, src := op.Regs[0], op.Regs[1], op.Regs[2]
		n := f.Read(nReg) & 0x3F
		f.Write(dest, bits.RotateLeft64(f.Read(src), int(n)))
	case OpRotr:
		dest, nReg, src := op.Regs[0], op.Regs[1], op.Regs[2]
		n := f.Read(nReg) & 0x3F
		f.Write(dest, bits.RotateLeft64(f.Read(src), -int(n)))

	case OpNeg:
		dest, src := op.Regs[0], op.Regs[1]
		f.Write(dest, f.Read(src)^0x8000000000000000)

	case OpJmp:
		f.SetPC(op.Imm)
	case OpJifz:
		cond, addr := op.Regs[0], op.Imm
		if f.Read(cond) == 0 {
			f.SetPC(addr)
		}
	case OpJifnz:
		cond, addr := op.Regs[0], op.Imm
		if f.Read(cond) != 0 {
			f.SetPC(addr)
		}

	case OpInc:
		f.Write(op.Regs[0], f.Read(op.Regs[0])+1)
	case OpDec:
		f.Write(op.Regs[0], f.Read(op.Regs[0])-1)

	case OpPush:
		if perr := pushValue(f, mem, f.Read(op.Regs[0])); perr != nil {
			return nil, perr
		}
	case OpPop:
		v, perr := popValue(f, mem)
		if perr != nil {
			return nil, perr
		}
		f.Write(op.Regs[0], v)
	case OpPushi:
		if perr := pushValue(f, mem, op.Imm); perr != nil {
			return nil, perr
		}

	case OpCall:
		if perr := pushValue(f, mem, f.FP()); perr != nil {
			return nil, perr
		}
		f.SetFP(f.SP())
		if perr := pushValue(f, mem, f.PC()); perr != nil {
			return nil, perr
		}
		f.SetPC(op.Imm)
	case OpRet:
		retAddr, perr := popValue(f, mem)
		if perr != nil {
			return nil, perr
		}
		savedFP, perr := popValue(f, mem)
		if perr != nil {
			return nil, perr
		}
		f.SetPC(retAddr)
		f.SetFP(savedFP)

	case OpItof:
		dest, src := op.Regs[0], op.Regs[1]
		iv := int64(f.Read(src))
		f.Write(dest, math.Float64bits(float64(iv)))
	case OpFtoi:
		dest, src := op.Regs[0], op.Regs[1]
		fv := math.Float64frombits(f.Read(src))
		f.Write(dest, uint64(int64(fv)))

	case OpFadd:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, math.Float64bits(readFloat(f, a)+readFloat(f, b)))
	case OpFsub:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, math.Float64bits(readFloat(f, a)-readFloat(f, b)))
	case OpFmult:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, math.Float64bits(readFloat(f, a)*readFloat(f, b)))
	case OpFdiv:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, math.Float64bits(readFloat(f, a)/readFloat(f, b)))
	case OpFmod:
		dest, a, b := op.Regs[0], op.Regs[1], op.Regs[2]
		f.Write(dest, math.Float64bits(math.Mod(readFloat(f, a), readFloat(f, b))))

	case OpInt:
		code := byte(op.Imm)
		pendingInterrupt = &code

	default:
		return nil, newError(ErrUnknownOpcode, fmt.Sprintf("0x%02x", byte(op.Op)))
	}

	return pendingInterrupt, nil
}

func readFloat(f *File, h Handle) float64 {
	return math.Float64frombits(f.Read(h))
}

// PushValue and PopValue expose the Push/Pop opcodes' stack discipline
// (bounds against stack base/ceiling, StackOverflow/Underflow) to the
// kernel, which pops syscall arguments and pushes results across the same
// guest stack.
func PushValue(f *File, mem *memory.Memory, value uint64) error {
	return pushValue(f, mem, value)
}

func PopValue(f *File, mem *memory.Memory) (uint64, error) {
	return popValue(f, mem)
}

func pushValue(f *File, mem *memory.Memory, value uint64) error {
	sp := f.SP()
	if sp+8 < sp || sp+8 > mem.StackCeiling() {
		return newError(ErrStackOverflow, fmt.Sprintf("sp 0x%x would exceed stack ceiling 0x%x", sp, mem.StackCeiling()))
	}
	newSP, err := mem.Push(sp, value)
	if err != nil {
		return err
	}
	f.SetSP(newSP)
	return nil
}

func popValue(f *File, mem *memory.Memory) (uint64, error) {
	sp := f.SP()
	if sp < mem.StackStart()+8 {
		return 0, newError(ErrStackUnderflow, fmt.Sprintf("sp 0x%x would drop below stack base 0x%x", sp, mem.StackStart()))
	}
	newSP, value, err := mem.Pop(sp)
	if err != nil {
		return 0, err
	}
	f.SetSP(newSP)
	return value, nil
}
