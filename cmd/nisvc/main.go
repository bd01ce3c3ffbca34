// Command nisvc runs NISVC-EF binaries: a register-based virtual machine
// with a flat byte-addressed memory and a small kernel interrupt surface.
package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"nisvc/internal/image"
	"nisvc/internal/kernel"
	"nisvc/internal/logging"
	"nisvc/internal/machine"
	"nisvc/internal/shell"
)

const (
	defaultMemorySize = 16 * 1024 * 1024
	defaultStackSize  = 1 * 1024 * 1024
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		verbosity   int
		veryVerbose bool
		trace       bool
		disassemble bool
		useShell    bool
		clockHz     uint64
		memorySize  uint64
		stackSize   uint64
		coreDumpDir string
		headless    bool
	)

	cmd := &cobra.Command{
		Use:   "nisvc <image>",
		Short: "Run a NISVC-EF binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelQuiet
			switch {
			case trace || verbosity >= 3:
				level = logging.LevelTrace
			case veryVerbose || verbosity == 2:
				level = logging.LevelVeryVerbose
			case verbosity == 1:
				level = logging.LevelVerbose
			}
			logger := logging.New(os.Stdout, os.Stderr, level, disassemble)

			path := args[0]
			raw, err := os.ReadFile(path)
			if err != nil {
				logger.Errorf("nisvc: reading %s: %s", path, err)
				return err
			}

			img, err := image.Parse(raw, memorySize)
			if err != nil {
				logger.Errorf("nisvc: loading %s: %s", path, err)
				return err
			}

			dir := coreDumpDir
			if dir == "" {
				dir = filepath.Dir(path)
			}
			k := kernel.New(os.Stdin, os.Stdout, os.Stderr, args, dir)
			k.SetHeadless(headless)

			m, err := machine.New(img, machine.Config{
				StackSize:   stackSize,
				MemorySize:  memorySize,
				ClockHz:     clockHz,
				CoreDumpDir: dir,
			}, logger, k)
			if err != nil {
				logger.Errorf("nisvc: %s", err)
				return err
			}
			defer m.Close()

			logger.Infof(logging.LevelVerbose, "loaded %s: entry=0x%x static=%d program=%d", path, img.EntryPoint, img.StaticLen, img.ProgramLen)

			if useShell {
				return shell.Run(m)
			}

			if err := m.Run(); err != nil {
				logger.Errorf("nisvc: %s", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().CountVarP(&verbosity, "verbose", "v", "enable verbose logging (repeat as -vv or -vvv for more)")
	cmd.Flags().BoolVar(&veryVerbose, "very-verbose", false, "enable very verbose logging (same as -vv)")
	cmd.Flags().BoolVar(&trace, "vvv", false, "enable trace-level logging")
	cmd.Flags().BoolVarP(&disassemble, "disassemble", "d", false, "print each executed instruction")
	cmd.Flags().BoolVarP(&useShell, "shell", "s", false, "enter the interactive debug shell instead of free-running")
	cmd.Flags().Uint64Var(&clockHz, "clock-hz", 0, "throttle execution to this clock frequency (0 = unthrottled)")
	cmd.Flags().Uint64Var(&memorySize, "memory", defaultMemorySize, "total physical memory size in bytes")
	cmd.Flags().Uint64Var(&stackSize, "stack", defaultStackSize, "stack region size in bytes, reserved at the top of memory")
	cmd.Flags().StringVar(&coreDumpDir, "core-dir", "", "directory core dumps are written to (defaults to the image's directory)")
	cmd.Flags().BoolVar(&headless, "headless", false, "use a no-op framebuffer sink instead of opening a window")

	return cmd
}
