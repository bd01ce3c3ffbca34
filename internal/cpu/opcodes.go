package cpu

// Op is one opcode byte from spec.md §4.3's instruction table.
type Op byte

const (
	OpNop Op = 0x00

	OpCpy Op = 0x01
	OpLdi Op = 0x02

	OpLoad  Op = 0x03
	OpStore Op = 0x04

	OpAdd  Op = 0x05
	OpSub  Op = 0x06
	OpMult Op = 0x07
	OpDiv  Op = 0x08

	OpOr  Op = 0x09
	OpXor Op = 0x0A
	OpAnd Op = 0x0B
	OpNot Op = 0x0C

	OpShl  Op = 0x0D
	OpShr  Op = 0x0E
	OpRotl Op = 0x0F
	OpRotr Op = 0x10

	OpNeg Op = 0x11

	OpJmp   Op = 0x12
	OpJifz  Op = 0x13
	OpJifnz Op = 0x14

	OpInc Op = 0x16
	OpDec Op = 0x17

	OpPush Op = 0x18
	OpPop  Op = 0x19

	OpCall Op = 0x1A
	OpRet  Op = 0x1B

	OpItof Op = 0x1C
	OpFtoi Op = 0x1D

	OpFadd  Op = 0x1E
	OpFsub  Op = 0x1F
	OpFmult Op = 0x20
	OpFdiv  Op = 0x21
	OpFmod  Op = 0x22

	OpMod Op = 0x23

	OpInt Op = 0x24

	OpPushi Op = 0x25

	// opUninitialized is the uninitialized-ROM sentinel byte; decoding it
	// as an opcode is reported as ErrUninitializedMemory. Memory itself is
	// zero-filled, so execution that runs past the image decodes 0x00 (nop),
	// not this byte.
	opUninitialized Op = 0xFD
)

var mnemonics = map[Op]string{
	OpNop:   "nop",
	OpCpy:   "cpy",
	OpLdi:   "ldi",
	OpLoad:  "load",
	OpStore: "store",
	OpAdd:   "add",
	OpSub:   "sub",
	OpMult:  "mult",
	OpDiv:   "div",
	OpOr:    "or",
	OpXor:   "xor",
	OpAnd:   "and",
	OpNot:   "not",
	OpShl:   "shl",
	OpShr:   "shr",
	OpRotl:  "rotl",
	OpRotr:  "rotr",
	OpNeg:   "neg",
	OpJmp:   "jmp",
	OpJifz:  "jifz",
	OpJifnz: "jifnz",
	OpInc:   "inc",
	OpDec:   "dec",
	OpPush:  "push",
	OpPop:   "pop",
	OpCall:  "call",
	OpRet:   "ret",
	OpItof:  "itof",
	OpFtoi:  "ftoi",
	OpFadd:  "fadd",
	OpFsub:  "fsub",
	OpFmult: "fmult",
	OpFdiv:  "fdiv",
	OpFmod:  "fmod",
	OpMod:   "mod",
	OpInt:   "int",
	OpPushi: "pushi",
}

func (op Op) String() string {
	if s, ok := mnemonics[op]; ok {
		return s
	}
	return "?unknown?"
}
