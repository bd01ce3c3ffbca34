package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nisvc/internal/memory"
)

func windowMask(h Handle) uint64 {
	switch h.ByteLength() {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	case 4:
		return 0xFFFFFFFF
	default:
		return ^uint64(0)
	}
}

func TestRegisterReadWriteAllWindows(t *testing.T) {
	values := []uint64{0, 1, 0xFF, 0xFFFF, 0xDEADBEEF, ^uint64(0)}
	windows := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}

	for idx := byte(4); idx < NumRegisters; idx++ {
		for _, w := range windows {
			h := Handle(idx | w<<4)
			f := &File{}
			for _, v := range values {
				f.Write(h, v)
				got := f.Read(h)
				assert.Equal(t, v&windowMask(h), got, "handle=0x%02x value=0x%x", byte(h), v)
			}
		}
	}
}

func TestZeroRegisterIgnoresWrites(t *testing.T) {
	f := &File{}
	f.Write(RegZero, 0xDEADBEEF)
	assert.Equal(t, uint64(0), f.Read(RegZero))
}

func TestSubregisterWriteDoesNotDisturbNeighbors(t *testing.T) {
	f := &File{}
	full := Handle(4)
	f.Write(full, 0x1122334455667788)

	// Byte window 1 (position 0) overwrite should only touch the low byte.
	byte1 := Handle(4 | 1<<4)
	f.Write(byte1, 0xAB)
	assert.Equal(t, uint64(0x11223344556677AB), f.Read(full))
}

func newTestMachine(t *testing.T, imageSize, stackSize uint64) (*File, *memory.Memory) {
	t.Helper()
	mem := memory.New(imageSize+stackSize, stackSize)
	require.NoError(t, mem.Load(make([]byte, imageSize)))
	f := &File{}
	f.SetSP(mem.StackStart())
	return f, mem
}

func TestWrappingAdd(t *testing.T) {
	f, mem := newTestMachine(t, 64, 64)
	f.Write(Handle(4), ^uint64(0))
	f.Write(Handle(5), 2)
	op := Operation{Op: OpAdd, Regs: [3]Handle{6, 4, 5}}
	_, err := Execute(op, f, mem)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Read(Handle(6)))
}

func TestDivisionByZeroDoesNotMutateDest(t *testing.T) {
	f, mem := newTestMachine(t, 64, 64)
	f.Write(Handle(6), 0xFEFEFEFE)
	f.Write(Handle(4), 10)
	f.Write(Handle(5), 0)
	op := Operation{Op: OpDiv, Regs: [3]Handle{6, 4, 5}}
	_, err := Execute(op, f, mem)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.Equal(t, uint64(0xFEFEFEFE), f.Read(Handle(6)))
}

func TestPushPopViaOpcodes(t *testing.T) {
	f, mem := newTestMachine(t, 64, 64)
	stackStart := f.SP()

	f.Write(Handle(4), 0x1111)
	_, err := Execute(Operation{Op: OpPush, Regs: [3]Handle{4}}, f, mem)
	require.NoError(t, err)

	_, err = Execute(Operation{Op: OpPop, Regs: [3]Handle{5}}, f, mem)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1111), f.Read(Handle(5)))
	assert.Equal(t, stackStart, f.SP())
}

func TestCallRetPreservesFrame(t *testing.T) {
	f, mem := newTestMachine(t, 64, 64)
	startPC := uint64(0x10)
	startSP := f.SP()
	startFP := uint64(0)
	f.SetPC(startPC)
	f.SetFP(startFP)

	// Simulate the main loop advancing PC past the Call instruction (9
	// bytes: opcode + 8-byte immediate) before Execute runs.
	const callLen = 9
	f.SetPC(startPC + callLen)

	_, err := Execute(Operation{Op: OpCall, Imm: 0x40}, f, mem)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x40), f.PC())
	assert.Equal(t, startSP+8, f.FP()) // FP set to SP after the saved-FP push

	_, err = Execute(Operation{Op: OpRet}, f, mem)
	require.NoError(t, err)
	assert.Equal(t, startPC+callLen, f.PC())
	assert.Equal(t, startFP, f.FP())
	assert.Equal(t, startSP, f.SP())
}

func TestNegFlipsSignBit(t *testing.T) {
	f, mem := newTestMachine(t, 64, 64)
	f.Write(Handle(4), 0x0000000000000001)
	_, err := Execute(Operation{Op: OpNeg, Regs: [3]Handle{5, 4}}, f, mem)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x8000000000000001), f.Read(Handle(5)))
}

func TestStoreTooWideRejected(t *testing.T) {
	f, mem := newTestMachine(t, 64, 64)
	destPtr := Handle(4)
	n := Handle(5)
	src := Handle(6 | 1<<4) // byte window: width 1

	f.Write(destPtr, 0)
	f.Write(n, 4) // wider than src's 1-byte window
	f.Write(src, 0xFF)

	_, err := Execute(Operation{Op: OpStore, Regs: [3]Handle{destPtr, n, src}}, f, mem)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreTooWide)
}
