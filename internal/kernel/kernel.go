// Package kernel implements the interrupt dispatch table spec.md §4.5
// describes: the fd table, heap syscalls, framebuffer lifecycle, and
// process-termination interrupts a guest program reaches with the Int
// opcode. Dispatch pops its arguments off the guest stack and pushes its
// results back onto it, reusing the same push/pop discipline cpu.Execute
// uses for Push/Pop/Call/Ret.
package kernel

import (
	"fmt"
	"io"

	"nisvc/internal/coredump"
	"nisvc/internal/cpu"
	"nisvc/internal/memory"
	"nisvc/internal/video"
)

// Interrupt codes, per spec.md §4.5's table.
const (
	IntOpen      byte = 0x01
	IntWrite     byte = 0x02
	IntRead      byte = 0x03
	IntSeek      byte = 0x04
	IntClose     byte = 0x05
	IntSilence   byte = 0x06
	IntMalloc    byte = 0x0A
	IntRealloc   byte = 0x0B
	IntFree      byte = 0x0C
	IntMemcpy    byte = 0x0D
	IntMemset    byte = 0x0E
	IntInitFB    byte = 0x0F
	IntDrawFB    byte = 0x10
	IntGetFBPtr  byte = 0x11
	IntFileLen   byte = 0x12
	IntDump      byte = 0x13
	IntHalt      byte = 0x14
	IntArgc      byte = 0x15
	IntGetArgv   byte = 0x16
	IntMemquery  byte = 0x17
	IntHardStop  byte = 0xFF

	firstUserVector byte = 0x31
	lastUserVector  byte = 0xFE
)

// Outcome tells the machine loop what effect a dispatched interrupt had on
// control flow beyond its register/memory side effects.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeHalt
	OutcomeHardStop
)

// Table holds everything kernel dispatch needs beyond the CPU/memory state
// already threaded through Dispatch: the fd table, the optional video sink,
// the program's argv, and the core-dump directory.
type Table struct {
	fds      *fdTable
	sink     video.Sink
	fbCfg    video.Config
	argv     []string
	coreDir  string
	headless bool

	vectors map[byte]uint64
}

// New builds a kernel dispatch table seeded with the standard streams and
// the program's own argument vector (spec.md §4.5's argc/get_argv).
func New(stdin io.Reader, stdout, stderr io.Writer, argv []string, coreDir string) *Table {
	return &Table{
		fds:     newFDTable(stdin, stdout, stderr),
		argv:    argv,
		coreDir: coreDir,
		vectors: make(map[byte]uint64),
	}
}

// SetHeadless switches init_fb to a video.Headless sink instead of opening
// a real window, for batch runs and CI where no display is available.
func (t *Table) SetHeadless(headless bool) {
	t.headless = headless
}

// SetVector registers a user interrupt handler address for code, which must
// fall in spec.md §4.5's user range [0x31, 0xFE].
func (t *Table) SetVector(code byte, addr uint64) error {
	if code < firstUserVector || code > lastUserVector {
		return newError(ErrInvalidInterrupt, fmt.Sprintf("0x%02x is outside the user vector range", code))
	}
	t.vectors[code] = addr
	return nil
}

// Sink returns the currently installed framebuffer sink, or nil if init_fb
// has not been serviced yet.
func (t *Table) Sink() video.Sink { return t.sink }

// Dispatch services interrupt code, popping its arguments from the guest
// stack via f/mem and pushing any results back. code values outside the
// kernel's reserved set and without a registered vector are protocol
// violations (per spec.md §4.5, unhandled codes are not pushed/dispatched
// silently). A user vector is entered with Call's own frame-linking
// convention so the handler can return with a plain Ret.
func (t *Table) Dispatch(code byte, f *cpu.File, mem *memory.Memory) (Outcome, error) {
	switch code {
	case IntOpen:
		return OutcomeContinue, t.open(f, mem)
	case IntWrite:
		return OutcomeContinue, t.write(f, mem)
	case IntRead:
		return OutcomeContinue, t.read(f, mem)
	case IntSeek:
		return OutcomeContinue, t.seek(f, mem)
	case IntClose:
		return OutcomeContinue, t.close(f, mem)
	case IntSilence:
		return OutcomeContinue, nil

	case IntMalloc:
		return OutcomeContinue, t.malloc(f, mem)
	case IntRealloc:
		return OutcomeContinue, t.realloc(f, mem)
	case IntFree:
		return OutcomeContinue, t.free(f, mem)
	case IntMemcpy:
		return OutcomeContinue, t.memcpy(f, mem)
	case IntMemset:
		return OutcomeContinue, t.memset(f, mem)

	case IntInitFB:
		return OutcomeContinue, t.initFB(f, mem)
	case IntDrawFB:
		return OutcomeContinue, t.drawFB(f, mem)
	case IntGetFBPtr:
		return OutcomeContinue, t.getFBPtr(f, mem)

	case IntFileLen:
		return OutcomeContinue, t.fileLength(f, mem)
	case IntDump:
		return OutcomeContinue, t.dump(mem)

	case IntHalt:
		return OutcomeHalt, nil
	case IntHardStop:
		return OutcomeHardStop, nil

	case IntArgc:
		return OutcomeContinue, t.argc(f, mem)
	case IntGetArgv:
		return OutcomeContinue, t.getArgv(f, mem)
	case IntMemquery:
		return OutcomeContinue, t.memquery(f, mem)

	default:
		if addr, ok := t.vectors[code]; ok {
			return OutcomeContinue, t.dispatchUserVector(addr, f, mem)
		}
		return OutcomeContinue, newError(ErrInvalidInterrupt, fmt.Sprintf("0x%02x has no registered handler", code))
	}
}

// dispatchUserVector enters a user-defined interrupt handler the same way
// Call does: push the caller's FP, set FP to the post-push SP, push the
// return address, then jump. The handler returns with a normal Ret.
func (t *Table) dispatchUserVector(addr uint64, f *cpu.File, mem *memory.Memory) error {
	if err := cpu.PushValue(f, mem, f.FP()); err != nil {
		return err
	}
	f.SetFP(f.SP())
	if err := cpu.PushValue(f, mem, f.PC()); err != nil {
		return err
	}
	f.SetPC(addr)
	return nil
}

// Close releases every resource the kernel acquired on behalf of the
// guest: open files and the video sink, if any, per spec.md §5's
// termination contract.
func (t *Table) Close() {
	t.fds.closeAll()
	if t.sink != nil {
		t.sink.Close()
		t.sink = nil
	}
}

func (t *Table) open(f *cpu.File, mem *memory.Memory) error {
	pathLen, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	pathPtr, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	raw, err := mem.Read(pathPtr, pathLen)
	if err != nil {
		return err
	}
	fd, err := t.fds.open(string(raw))
	if err != nil {
		return err
	}
	return cpu.PushValue(f, mem, fd)
}

func (t *Table) write(f *cpu.File, mem *memory.Memory) error {
	n, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	ptr, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	fd, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return err
	}
	return t.fds.write(fd, data)
}

func (t *Table) read(f *cpu.File, mem *memory.Memory) error {
	n, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	ptr, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	fd, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	nread, err := t.fds.read(fd, buf)
	if err != nil {
		return err
	}
	if werr := mem.Write(ptr, buf[:nread]); werr != nil {
		return werr
	}
	return cpu.PushValue(f, mem, uint64(nread))
}

// seek pops fd, whence, offset (in that push order, so offset is popped
// first) and pushes the resulting position, per the Open Question decision
// recorded in the grounding ledger: whence follows io.Seek* numbering.
func (t *Table) seek(f *cpu.File, mem *memory.Memory) error {
	offset, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	whence, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	fd, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	pos, err := t.fds.seek(fd, int64(offset), int(whence))
	if err != nil {
		return err
	}
	return cpu.PushValue(f, mem, uint64(pos))
}

func (t *Table) close(f *cpu.File, mem *memory.Memory) error {
	fd, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	return t.fds.close(fd)
}

func (t *Table) malloc(f *cpu.File, mem *memory.Memory) error {
	n, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	addr, err := mem.Malloc(n)
	if err != nil {
		return err
	}
	return cpu.PushValue(f, mem, addr)
}

func (t *Table) realloc(f *cpu.File, mem *memory.Memory) error {
	n, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	addr, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	newAddr, err := mem.Realloc(addr, n)
	if err != nil {
		return err
	}
	return cpu.PushValue(f, mem, newAddr)
}

func (t *Table) free(f *cpu.File, mem *memory.Memory) error {
	addr, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	return mem.Free(addr)
}

func (t *Table) memcpy(f *cpu.File, mem *memory.Memory) error {
	n, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	src, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	dst, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	return mem.Memcpy(dst, src, n)
}

func (t *Table) memset(f *cpu.File, mem *memory.Memory) error {
	n, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	value, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	dst, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	return mem.Memset(dst, byte(value), n)
}

// initFB pops mode, height, width, fb_ptr (so mode is popped first and
// fb_ptr last) and replaces any previously allocated framebuffer resources,
// per spec.md §4.5/§4.9.
func (t *Table) initFB(f *cpu.File, mem *memory.Memory) error {
	mode, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	height, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	width, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	fbPtr, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}

	if t.sink != nil {
		t.sink.Close()
		t.sink = nil
	}

	cfg := video.Config{
		Mode:   video.Mode(mode),
		Width:  uint32(width),
		Height: uint32(height),
		FBPtr:  fbPtr,
	}

	var sink video.Sink
	if t.headless {
		sink = video.NewHeadless()
	} else {
		ebitenSink, err := video.NewEbitenSink(cfg)
		if err != nil {
			return newError(ErrIOFailure, err.Error())
		}
		sink = ebitenSink
	}
	t.sink = sink
	t.fbCfg = cfg
	return nil
}

func (t *Table) drawFB(f *cpu.File, mem *memory.Memory) error {
	if t.sink == nil {
		return newError(ErrInvalidInterrupt, "draw_fb without a prior init_fb")
	}
	pixels, err := mem.Read(t.fbCfg.FBPtr, t.fbCfg.ByteSize())
	if err != nil {
		return err
	}
	if perr := t.sink.Present(pixels); perr != nil {
		return newError(ErrIOFailure, perr.Error())
	}
	return nil
}

func (t *Table) getFBPtr(f *cpu.File, mem *memory.Memory) error {
	if t.sink == nil {
		return newError(ErrInvalidInterrupt, "get_fb_ptr without a prior init_fb")
	}
	return cpu.PushValue(f, mem, t.fbCfg.FBPtr)
}

func (t *Table) fileLength(f *cpu.File, mem *memory.Memory) error {
	fd, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	length, err := t.fds.length(fd)
	if err != nil {
		return err
	}
	return cpu.PushValue(f, mem, uint64(length))
}

func (t *Table) dump(mem *memory.Memory) error {
	dir := t.coreDir
	if dir == "" {
		dir = "."
	}
	if _, err := coredump.Write(dir, mem.Bytes()); err != nil {
		return newError(ErrIOFailure, err.Error())
	}
	return nil
}

func (t *Table) argc(f *cpu.File, mem *memory.Memory) error {
	return cpu.PushValue(f, mem, uint64(len(t.argv)))
}

// getArgv pops an index, allocates space on the guest heap for that
// argument's bytes, copies them in, and pushes pointer then length, per the
// Open Question decision recorded in the grounding ledger.
func (t *Table) getArgv(f *cpu.File, mem *memory.Memory) error {
	idx, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	if idx >= uint64(len(t.argv)) {
		return newError(ErrInvalidInterrupt, fmt.Sprintf("argv index %d out of range", idx))
	}
	arg := t.argv[idx]

	ptr, err := mem.Malloc(uint64(len(arg)))
	if err != nil {
		return err
	}
	if werr := mem.Write(ptr, []byte(arg)); werr != nil {
		return werr
	}
	if perr := cpu.PushValue(f, mem, ptr); perr != nil {
		return perr
	}
	return cpu.PushValue(f, mem, uint64(len(arg)))
}

func (t *Table) memquery(f *cpu.File, mem *memory.Memory) error {
	addr, err := cpu.PopValue(f, mem)
	if err != nil {
		return err
	}
	return cpu.PushValue(f, mem, uint64(mem.MemQuery(addr)))
}
