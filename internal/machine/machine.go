// Package machine drives the fetch-decode-execute loop over a cpu.File,
// memory.Memory, and kernel.Table, implementing the state machine spec.md
// §5 describes: RUNNING steps until a fault, HALT, or HARD_STOP.
package machine

import (
	"fmt"
	"runtime/debug"
	"time"

	"nisvc/internal/coredump"
	"nisvc/internal/cpu"
	"nisvc/internal/image"
	"nisvc/internal/kernel"
	"nisvc/internal/logging"
	"nisvc/internal/memory"
	"nisvc/internal/video"
)

// State names the machine's position in spec.md §5's state machine.
type State int

const (
	StateRunning State = iota
	StateHalted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateHalted:
		return "HALTED"
	case StateFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

// Config bundles the knobs cmd/nisvc exposes as flags.
type Config struct {
	StackSize   uint64
	MemorySize  uint64
	ClockHz     uint64 // 0 = unthrottled.
	CoreDumpDir string
}

// Machine owns the register file, physical memory, and kernel dispatch
// table for one running program.
type Machine struct {
	Regs   *cpu.File
	Mem    *memory.Memory
	Kernel *kernel.Table
	Logger *logging.Logger

	cfg   Config
	state State
}

// New constructs a Machine from a parsed image, ready to Run.
func New(img *image.Image, cfg Config, logger *logging.Logger, k *kernel.Table) (*Machine, error) {
	if cfg.MemorySize == 0 {
		return nil, fmt.Errorf("machine: memory size must be non-zero")
	}
	mem := memory.New(cfg.MemorySize, cfg.StackSize)
	if err := mem.Load(img.Bytes); err != nil {
		return nil, fmt.Errorf("machine: loading image: %w", err)
	}

	regs := &cpu.File{}
	regs.SetPC(img.EntryPoint)
	regs.SetSP(mem.StackStart())
	regs.SetFP(mem.StackStart())

	return &Machine{
		Regs:   regs,
		Mem:    mem,
		Kernel: k,
		Logger: logger,
		cfg:    cfg,
		state:  StateRunning,
	}, nil
}

// State reports the machine's current position in the state machine.
func (m *Machine) State() State { return m.state }

// Step decodes and executes exactly one instruction, dispatching a pending
// interrupt (if any) before returning. It is exported so the debug shell
// can single-step.
func (m *Machine) Step() error {
	pc := m.Regs.PC()
	op, err := cpu.Decode(m.Mem, pc)
	if err != nil {
		return err
	}
	m.Regs.SetPC(pc + uint64(op.Len))

	if m.Logger.DisassemblyEnabled() {
		m.Logger.Disasmf("%04x: %s", pc, cpu.Disassemble(op, m.Regs))
	}

	pendingInterrupt, err := cpu.Execute(op, m.Regs, m.Mem)
	if err != nil {
		return err
	}
	if pendingInterrupt == nil {
		return nil
	}

	outcome, err := m.Kernel.Dispatch(*pendingInterrupt, m.Regs, m.Mem)
	if err != nil {
		return err
	}
	switch outcome {
	case kernel.OutcomeHalt, kernel.OutcomeHardStop:
		m.state = StateHalted
	}
	return nil
}

// Run drives the machine to a terminal state, sleeping between steps per
// the configured clock frequency (0 Hz runs unthrottled, the default for
// batch/test runs). It returns the fatal error, if any; a clean HALT/
// HARD_STOP returns nil.
func (m *Machine) Run() error {
	// Memory for the program image and heap is allocated up front; the tight
	// fetch-decode-execute loop below only grows the guest stack region
	// within the pre-sized buffer, so the collector has nothing useful to do
	// until the run ends.
	prevGC := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevGC)

	var cyclePeriod time.Duration
	if m.cfg.ClockHz > 0 {
		cyclePeriod = time.Second / time.Duration(m.cfg.ClockHz)
	}

	dir := m.cfg.CoreDumpDir
	if dir == "" {
		dir = "."
	}
	if _, derr := coredump.Write(dir, m.Mem.Bytes()); derr != nil {
		m.Logger.Warnf("startup core dump failed: %s", derr)
	}

	for m.state == StateRunning {
		if cyclePeriod > 0 {
			time.Sleep(cyclePeriod)
		}

		if err := m.Step(); err != nil {
			m.state = StateFaulted
			if path, derr := coredump.Write(dir, m.Mem.Bytes()); derr != nil {
				m.Logger.Warnf("core dump failed: %s", derr)
			} else {
				m.Logger.Warnf("core dumped to %s", path)
			}
			return err
		}

		if m.state == StateHalted {
			m.pollWindowUntilClosed()
		}
	}
	return nil
}

// pollWindowUntilClosed blocks after HALT while a framebuffer window is
// still open, per spec.md §5: the guest program exits but the presented
// frame stays on screen until the user closes the window.
func (m *Machine) pollWindowUntilClosed() {
	sink := m.Kernel.Sink()
	if sink == nil {
		return
	}
	if _, headless := sink.(*video.Headless); headless {
		return
	}
	for !sink.WindowClosed() {
		time.Sleep(16 * time.Millisecond)
	}
}

// Close releases resources owned by the kernel (open files, the video
// sink), per spec.md §5's termination contract. It is idempotent.
func (m *Machine) Close() {
	if m.Kernel != nil {
		m.Kernel.Close()
	}
}
