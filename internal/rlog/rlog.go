// Package rlog provides rung's structured console logger: single coloured
// lines for errors/warnings/info/success (spec §7's user-visible-behaviour
// rules), gated by a quiet flag, NO_COLOR, and TTY detection, plus an
// optional rotating debug log, enabled by Options.DebugLogPath.
package rlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
)

// Logger is rung's console + debug-file logger. It is safe for concurrent
// use, though rung itself is single-threaded.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
	color bool
	debug io.Writer // non-nil only when Options.DebugLogPath is set
}

// Options configures a new Logger.
type Options struct {
	Quiet bool
	// DebugLogPath, if set, enables a rotating debug log written in
	// addition to (not instead of) the normal console output.
	DebugLogPath string
}

// New builds a Logger writing to stdout, honouring NO_COLOR and whether
// stdout is a terminal.
func New(opts Options) *Logger {
	color := os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	l := &Logger{
		out:   os.Stdout,
		quiet: opts.Quiet,
		color: color,
	}
	if opts.DebugLogPath != "" {
		l.debug = &lumberjack.Logger{
			Filename:   opts.DebugLogPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return l
}

func (l *Logger) style(s lipgloss.Style, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if !l.color {
		return msg
	}
	return s.Render(msg)
}

func (l *Logger) println(s lipgloss.Style, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debug != nil {
		fmt.Fprintf(l.debug, format+"\n", args...)
	}
	if l.quiet {
		return
	}
	fmt.Fprintln(l.out, l.style(s, format, args...))
}

// Error prints a red line. Errors are never suppressed by --quiet.
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	quiet := l.quiet
	l.quiet = false
	l.mu.Unlock()
	l.println(errorStyle, format, args...)
	l.mu.Lock()
	l.quiet = quiet
	l.mu.Unlock()
}

// Warn prints a yellow line.
func (l *Logger) Warn(format string, args ...any) { l.println(warningStyle, format, args...) }

// Info prints a blue line.
func (l *Logger) Info(format string, args ...any) { l.println(infoStyle, format, args...) }

// Success prints a green line.
func (l *Logger) Success(format string, args ...any) { l.println(successStyle, format, args...) }

// Debug writes only to the debug log (if enabled); never to the console.
func (l *Logger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debug != nil {
		fmt.Fprintf(l.debug, format+"\n", args...)
	}
}

// Raw writes unstyled, unconditional output (for --json and piping).
func (l *Logger) Raw(format string, args ...any) {
	fmt.Fprintf(l.out, format+"\n", args...)
}
