package cpu

import (
	"encoding/binary"
	"fmt"

	"nisvc/internal/memory"
)

type operandKind int

const (
	operandReg operandKind = iota
	operandImm
)

var layouts = map[Op][]operandKind{
	OpNop:   {},
	OpCpy:   {operandReg, operandReg},
	OpLdi:   {operandReg, operandImm},
	OpLoad:  {operandReg, operandReg, operandReg},
	OpStore: {operandReg, operandReg, operandReg},
	OpAdd:   {operandReg, operandReg, operandReg},
	OpSub:   {operandReg, operandReg, operandReg},
	OpMult:  {operandReg, operandReg, operandReg},
	OpDiv:   {operandReg, operandReg, operandReg},
	OpOr:    {operandReg, operandReg, operandReg},
	OpXor:   {operandReg, operandReg, operandReg},
	OpAnd:   {operandReg, operandReg, operandReg},
	OpNot:   {operandReg, operandReg},
	OpShl:   {operandReg, operandReg, operandReg},
	OpShr:   {operandReg, operandReg, operandReg},
	OpRotl:  {operandReg, operandReg, operandReg},
	OpRotr:  {operandReg, operandReg, operandReg},
	OpNeg:   {operandReg, operandReg},
	OpJmp:   {operandImm},
	OpJifz:  {operandReg, operandImm},
	OpJifnz: {operandReg, operandImm},
	OpInc:   {operandReg},
	OpDec:   {operandReg},
	OpPush:  {operandReg},
	OpPop:   {operandReg},
	OpCall:  {operandImm},
	OpRet:   {},
	OpItof:  {operandReg, operandReg},
	OpFtoi:  {operandReg, operandReg},
	OpFadd:  {operandReg, operandReg, operandReg},
	OpFsub:  {operandReg, operandReg, operandReg},
	OpFmult: {operandReg, operandReg, operandReg},
	OpFdiv:  {operandReg, operandReg, operandReg},
	OpFmod:  {operandReg, operandReg, operandReg},
	OpMod:   {operandReg, operandReg, operandReg},
	OpInt:   {operandImm},
	OpPushi: {operandImm},
}

// Operation is the typed, decoded form of one instruction: an opcode plus
// up to three register operands and/or one immediate, per spec.md §4.3.
type Operation struct {
	Op   Op
	Regs [3]Handle
	Imm  uint64
	// Len is the number of bytes consumed, including the opcode byte.
	Len int
}

// Decode consumes one instruction at pc from mem and returns its typed
// form. The caller advances PC by the returned operation's Len.
func Decode(mem *memory.Memory, pc uint64) (Operation, error) {
	opByte, err := mem.ReadByte(pc)
	if err != nil {
		return Operation{}, newError(ErrUnexpectedEOF, fmt.Sprintf("reading opcode at 0x%x: %s", pc, err))
	}

	if Op(opByte) == opUninitialized {
		return Operation{}, newError(ErrUninitializedMemory, fmt.Sprintf("read sentinel byte 0xFD as opcode at 0x%x", pc))
	}

	layout, ok := layouts[Op(opByte)]
	if !ok {
		return Operation{}, newError(ErrUnknownOpcode, fmt.Sprintf("0x%02x at 0x%x", opByte, pc))
	}

	op := Operation{Op: Op(opByte), Len: 1}
	regIdx := 0
	for _, kind := range layout {
		switch kind {
		case operandReg:
			b, err := mem.ReadByte(pc + uint64(op.Len))
			if err != nil {
				return Operation{}, newError(ErrUnexpectedEOF, fmt.Sprintf("reading register operand at 0x%x: %s", pc+uint64(op.Len), err))
			}
			op.Regs[regIdx] = Handle(b)
			regIdx++
			op.Len++
		case operandImm:
			bytes, err := mem.Read(pc+uint64(op.Len), 8)
			if err != nil {
				return Operation{}, newError(ErrUnexpectedEOF, fmt.Sprintf("reading immediate operand at 0x%x: %s", pc+uint64(op.Len), err))
			}
			op.Imm = binary.LittleEndian.Uint64(bytes)
			op.Len += 8
		}
	}

	return op, nil
}

// Disassemble renders a decoded operation the way spec.md §6's
// disassembly mode does, one line per executed instruction.
func Disassemble(op Operation, f *File) string {
	layout := layouts[op.Op]
	s := op.Op.String()
	regIdx := 0
	for _, kind := range layout {
		switch kind {
		case operandReg:
			s += " " + f.Print(op.Regs[regIdx])
			regIdx++
		case operandImm:
			s += fmt.Sprintf(" 0x%x", op.Imm)
		}
	}
	return s
}
