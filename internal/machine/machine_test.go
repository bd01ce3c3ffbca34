package machine

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nisvc/internal/cpu"
	"nisvc/internal/image"
	"nisvc/internal/kernel"
	"nisvc/internal/logging"
)

// asm is a tiny inline byte-emitter standing in for the external assembler
// that produces NISVC-EF binaries (out of scope here; this package only
// consumes the format). Each scenario below builds its program the way a
// hand-written test fixture would: opcode byte, then register/immediate
// operands per spec.md §4.3's encoding table.
type asm struct {
	buf []byte
}

func (a *asm) op(o cpu.Op) *asm {
	a.buf = append(a.buf, byte(o))
	return a
}

func (a *asm) reg(h byte) *asm {
	a.buf = append(a.buf, h)
	return a
}

func (a *asm) imm(v uint64) *asm {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	a.buf = append(a.buf, b[:]...)
	return a
}

func (a *asm) pad(toLen int) *asm {
	for len(a.buf) < toLen {
		a.buf = append(a.buf, byte(cpu.OpNop))
	}
	return a
}

func newMachine(t *testing.T, program []byte, entry uint64) *Machine {
	t.Helper()
	raw := image.Serialize(nil, program, entry)
	img, err := image.Parse(raw, 1<<20)
	require.NoError(t, err)

	coreDir := t.TempDir()
	logger := logging.New(&bytes.Buffer{}, &bytes.Buffer{}, logging.LevelQuiet, false)
	k := kernel.New(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, nil, coreDir)
	m, err := New(img, Config{StackSize: 256, MemorySize: 4096, CoreDumpDir: coreDir}, logger, k)
	require.NoError(t, err)
	return m
}

func TestMinimalHalt(t *testing.T) {
	program := (&asm{}).op(cpu.OpInt).imm(uint64(kernel.IntHalt)).buf
	m := newMachine(t, program, 0)
	require.NoError(t, m.Run())
	assert.Equal(t, StateHalted, m.State())
}

func TestLdiAndCpy(t *testing.T) {
	a := &asm{}
	a.op(cpu.OpLdi).reg(4).imm(0x2A)
	a.op(cpu.OpCpy).reg(5).reg(4)
	a.op(cpu.OpInt).imm(uint64(kernel.IntHalt))

	m := newMachine(t, a.buf, 0)
	require.NoError(t, m.Run())
	assert.Equal(t, StateHalted, m.State())
	assert.Equal(t, uint64(0x2A), m.Regs.Read(cpu.Handle(5)))
}

func TestStackSymmetry(t *testing.T) {
	a := &asm{}
	a.op(cpu.OpPushi).imm(0x1111)
	a.op(cpu.OpPushi).imm(0x2222)
	a.op(cpu.OpPop).reg(4)
	a.op(cpu.OpPop).reg(5)
	a.op(cpu.OpInt).imm(uint64(kernel.IntHalt))

	m := newMachine(t, a.buf, 0)
	stackStart := m.Mem.StackStart()
	require.NoError(t, m.Run())
	assert.Equal(t, uint64(0x2222), m.Regs.Read(cpu.Handle(4)))
	assert.Equal(t, uint64(0x1111), m.Regs.Read(cpu.Handle(5)))
	assert.Equal(t, stackStart, m.Regs.SP())
}

func TestCallRet(t *testing.T) {
	a := &asm{}
	a.op(cpu.OpCall).imm(0x20)
	a.op(cpu.OpInt).imm(uint64(kernel.IntHalt))
	a.pad(0x20)
	a.op(cpu.OpLdi).reg(4).imm(7)
	a.op(cpu.OpRet)

	m := newMachine(t, a.buf, 0)
	require.NoError(t, m.Run())
	assert.Equal(t, StateHalted, m.State())
	assert.Equal(t, uint64(7), m.Regs.Read(cpu.Handle(4)))
}

func TestDivisionByZeroIsFatal(t *testing.T) {
	a := &asm{}
	a.op(cpu.OpLdi).reg(4).imm(10)
	a.op(cpu.OpLdi).reg(5).imm(0)
	a.op(cpu.OpDiv).reg(6).reg(4).reg(5)

	m := newMachine(t, a.buf, 0)
	err := m.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, cpu.ErrDivisionByZero)
	assert.Equal(t, StateFaulted, m.State())
}

// TestHeapRoundTripViaInterrupts verifies a full 8-byte word of the
// memset-filled region, respecting Load's 8-byte width cap.
func TestHeapRoundTripViaInterrupts(t *testing.T) {
	a := &asm{}
	a.op(cpu.OpPushi).imm(16)
	a.op(cpu.OpInt).imm(uint64(kernel.IntMalloc))
	a.op(cpu.OpPop).reg(4)

	a.op(cpu.OpPush).reg(4)
	a.op(cpu.OpPushi).imm(0xAB)
	a.op(cpu.OpPushi).imm(16)
	a.op(cpu.OpInt).imm(uint64(kernel.IntMemset))

	a.op(cpu.OpLdi).reg(7).imm(8)
	a.op(cpu.OpLoad).reg(6).reg(7).reg(4)

	a.op(cpu.OpPush).reg(4)
	a.op(cpu.OpInt).imm(uint64(kernel.IntFree))
	a.op(cpu.OpInt).imm(uint64(kernel.IntHalt))

	m := newMachine(t, a.buf, 0)
	require.NoError(t, m.Run())
	assert.Equal(t, StateHalted, m.State())
	assert.Equal(t, uint64(0xABABABABABABABAB), m.Regs.Read(cpu.Handle(6)))
}
