// Package logging threads a small logger object through the machine rather
// than relying on package-level mutable verbosity flags.
package logging

import (
	"io"
	"log"
)

// Level mirrors the CLI's stacked -v/-vv/-vvv flags (spec.md §6): each
// level implies everything below it.
type Level int

const (
	LevelQuiet Level = iota
	LevelVerbose
	LevelVeryVerbose
	LevelTrace
)

// Logger is constructed once in cmd/nisvc and passed down into
// machine.Machine; nothing in this module reaches for a package-level
// global.
type Logger struct {
	level      Level
	disasm     bool
	info       *log.Logger
	warn       *log.Logger
	errLog     *log.Logger
	disasmLog  *log.Logger
}

// New builds a Logger writing info/disasm lines to out and warnings/errors
// to errOut, gated by level and the -d/--disassemble flag.
func New(out, errOut io.Writer, level Level, disassemble bool) *Logger {
	flags := 0
	return &Logger{
		level:     level,
		disasm:    disassemble,
		info:      log.New(out, "", flags),
		warn:      log.New(errOut, "warn: ", flags),
		errLog:    log.New(errOut, "", flags),
		disasmLog: log.New(out, "", flags),
	}
}

func (l *Logger) Infof(minLevel Level, format string, args ...any) {
	if l.level >= minLevel {
		l.info.Printf(format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...any) {
	l.warn.Printf(format, args...)
}

// Errorf always writes: it's used for the single fatal diagnostic line
// spec.md §7 requires, regardless of verbosity.
func (l *Logger) Errorf(format string, args ...any) {
	l.errLog.Printf(format, args...)
}

func (l *Logger) Disasmf(format string, args ...any) {
	if l.disasm {
		l.disasmLog.Printf(format, args...)
	}
}

func (l *Logger) DisassemblyEnabled() bool {
	return l.disasm
}
