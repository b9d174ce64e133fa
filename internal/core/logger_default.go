package core

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pterm/pterm"
)

// DefaultLogger prints human readable lines with pterm and, when a
// structured sink is attached, mirrors every record to it through slog.
type DefaultLogger struct {
	level   LogLevel
	handler *slog.Logger
	output  io.Writer
	attrs   []any
}

func NewDefaultLogger(output io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		level:   level,
		handler: slog.New(slog.NewTextHandler(io.Discard, nil)),
		output:  output,
	}
}

// WithStructuredOutput attaches a slog text sink (e.g. the log file from
// settings). Records are written regardless of the console level.
func (l *DefaultLogger) WithStructuredOutput(w io.Writer) *DefaultLogger {
	l.handler = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})).With(l.attrs...)
	return l
}

func (l *DefaultLogger) Trace(msg string, args ...any) {
	if l.level <= LevelTrace {
		pterm.Debug.WithWriter(l.output).Println("TRACE: " + l.line(msg, args))
	}
	l.handler.Debug(msg, args...)
}

func (l *DefaultLogger) Debug(msg string, args ...any) {
	if l.level <= LevelDebug {
		pterm.Debug.WithWriter(l.output).Println(l.line(msg, args))
	}
	l.handler.Debug(msg, args...)
}

func (l *DefaultLogger) Info(msg string, args ...any) {
	if l.level <= LevelInfo {
		pterm.Info.WithWriter(l.output).Println(l.line(msg, args))
	}
	l.handler.Info(msg, args...)
}

func (l *DefaultLogger) Warn(msg string, args ...any) {
	if l.level <= LevelWarn {
		pterm.Warning.WithWriter(l.output).Println(l.line(msg, args))
	}
	l.handler.Warn(msg, args...)
}

func (l *DefaultLogger) Error(msg string, args ...any) {
	if l.level <= LevelError {
		pterm.Error.WithWriter(l.output).Println(l.line(msg, args))
	}
	l.handler.Error(msg, args...)
}

func (l *DefaultLogger) With(args ...any) Logger {
	attrs := append(append([]any{}, l.attrs...), args...)
	return &DefaultLogger{
		level:   l.level,
		handler: l.handler.With(args...),
		output:  l.output,
		attrs:   attrs,
	}
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level = level
}

// line appends key=value pairs to msg for console output.
func (l *DefaultLogger) line(msg string, args []any) string {
	all := append(append([]any{}, l.attrs...), args...)
	if len(all) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(all); i += 2 {
		if i+1 >= len(all) {
			fmt.Fprintf(&sb, " %v", all[i])
			break
		}
		fmt.Fprintf(&sb, " %v=%v", all[i], all[i+1])
	}
	return sb.String()
}
