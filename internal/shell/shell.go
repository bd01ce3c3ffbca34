// Package shell implements an interactive debug shell reachable via
// -s/--shell: single-step, register dump, breakpoints, and a memory
// hex-dump page view over a running machine.Machine.
package shell

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"nisvc/internal/cpu"
	"nisvc/internal/machine"
)

const bytesPerPage = 16
const pageRows = 8

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	pcStyle     = lipgloss.NewStyle().Reverse(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

type model struct {
	m *machine.Machine

	breakpoints map[uint64]struct{}
	page        uint64 // address the hex-dump view starts rendering from
	input       string // accumulates a typed "b <addr>"/"d" command line
	lastErr     error
	halted      bool
	status      string
}

func newModel(m *machine.Machine) model {
	return model{
		m:           m,
		breakpoints: make(map[uint64]struct{}),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.Type {
	case tea.KeyEnter:
		m.runCommand()
		m.input = ""
		return m, nil
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil
	case tea.KeySpace:
		if m.input != "" {
			m.input += " "
			return m, nil
		}
		m.step()
		return m, nil
	}

	switch keyMsg.String() {
	case "q":
		return m, tea.Quit
	case "p":
		m.page += bytesPerPage * pageRows
	case "o":
		if m.page >= bytesPerPage*pageRows {
			m.page -= bytesPerPage * pageRows
		}
	default:
		m.input += keyMsg.String()
	}

	return m, nil
}

// step advances the machine by one instruction, updating status for a
// fault, HALT, or a hit breakpoint.
func (m *model) step() {
	if m.halted {
		m.status = "machine already halted"
		return
	}
	if err := m.m.Step(); err != nil {
		m.lastErr = err
		m.halted = true
		m.status = "fault: " + err.Error()
		return
	}
	if m.m.State() == machine.StateHalted {
		m.halted = true
		m.status = "halted"
		return
	}
	if _, hit := m.breakpoints[m.m.Regs.PC()]; hit {
		m.status = fmt.Sprintf("breakpoint hit at 0x%x", m.m.Regs.PC())
	}
}

// runCommand interprets the accumulated input line: "n" single-steps,
// "b <addr>" toggles a breakpoint, "d" dumps the full register file.
func (m *model) runCommand() {
	line := strings.TrimSpace(m.input)
	switch {
	case line == "n":
		m.step()
	case line == "d":
		m.status = dump(m.m.Regs)
	default:
		if addr, ok := parseBreakpointCommand(line); ok {
			m.toggleBreakpoint(addr)
			m.status = fmt.Sprintf("toggled breakpoint at 0x%x", addr)
		}
	}
}

// toggleBreakpoint adds or removes a breakpoint at addr.
func (m *model) toggleBreakpoint(addr uint64) {
	if _, ok := m.breakpoints[addr]; ok {
		delete(m.breakpoints, addr)
		return
	}
	m.breakpoints[addr] = struct{}{}
}

func (m model) View() string {
	var b strings.Builder
	fmt.Fprintln(&b, headerStyle.Render("nisvc debug shell"))
	fmt.Fprintln(&b, "space: step   type \"b <addr>\"/\"d\" + enter   p/o: page forward/back   q: quit")
	fmt.Fprintf(&b, "> %s\n", m.input)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, m.registerView())
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, m.memoryView())
	if m.status != "" {
		fmt.Fprintln(&b)
		if m.lastErr != nil {
			fmt.Fprintln(&b, errStyle.Render(m.status))
		} else {
			fmt.Fprintln(&b, m.status)
		}
	}
	return b.String()
}

func (m model) registerView() string {
	f := m.m.Regs
	lines := []string{
		fmt.Sprintf("PC=0x%016x SP=0x%016x FP=0x%016x", f.PC(), f.SP(), f.FP()),
	}
	for i := 4; i < cpu.NumRegisters; i++ {
		lines = append(lines, fmt.Sprintf("R%-2d = %s", i, f.Print(cpu.Handle(byte(i)))))
	}
	return strings.Join(lines, "\n")
}

func (m model) memoryView() string {
	var rows []string
	for row := 0; row < pageRows; row++ {
		start := m.page + uint64(row*bytesPerPage)
		data, err := m.m.Mem.Read(start, bytesPerPage)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%08x | ", start)
		for i, bt := range data {
			cell := fmt.Sprintf("%02x ", bt)
			if start+uint64(i) == m.m.Regs.PC() {
				cell = pcStyle.Render(cell)
			}
			line += cell
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

// dump renders the full register file for the "d" debug command.
func dump(f *cpu.File) string {
	return spew.Sdump(f)
}

// Run starts the interactive shell over m. It blocks until the user quits
// with "q"; after a halt or fault the shell stays open on the final state,
// and a fault is returned as Run's error once the user quits.
func Run(m *machine.Machine) error {
	initial := newModel(m)
	p := tea.NewProgram(initial)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("shell: %w", err)
	}
	if fm, ok := final.(model); ok && fm.lastErr != nil {
		return fm.lastErr
	}
	return nil
}

// parseBreakpointCommand parses a "b <hex-addr>" line typed into a
// line-oriented front end, for toggling breakpoints outside bubbletea's raw
// key events.
func parseBreakpointCommand(line string) (uint64, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "b" {
		return 0, false
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
	if err != nil {
		return 0, false
	}
	return addr, true
}
