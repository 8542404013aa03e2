// Package trace is the leveled trace log consulted by the binding engine.
// It sits on top of log/slog; categories become a "category" attribute.
package trace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Level orders trace output from quiet to chatty.
type Level int

const (
	Off Level = iota
	Error
	Warning
	Message
	Verbose
	Debug
)

func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Message:
		return "message"
	case Verbose:
		return "verbose"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return Off, nil
	case "error", "errors":
		return Error, nil
	case "warning", "warn", "":
		return Warning, nil
	case "message", "info":
		return Message, nil
	case "verbose":
		return Verbose, nil
	case "debug":
		return Debug, nil
	}
	return Off, fmt.Errorf("unknown trace level %q", s)
}

func (l Level) slog() slog.Level {
	switch l {
	case Error:
		return slog.LevelError
	case Warning:
		return slog.LevelWarn
	case Message:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

type span struct {
	level    Level
	category string
	message  string
	start    time.Time
}

// Log writes trace entries at or below its configured level.
// A nil *Log discards everything.
type Log struct {
	logger *slog.Logger
	level  Level

	mu    sync.Mutex
	spans []span
}

// New returns a Log writing to logger. A nil logger discards output.
func New(logger *slog.Logger, level Level) *Log {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{logger: logger, level: level}
}

// Discard returns a Log that records nothing.
func Discard() *Log {
	return New(nil, Off)
}

// Level reports the configured level.
func (l *Log) Level() Level {
	if l == nil {
		return Off
	}
	return l.level
}

// ShouldLog gates expensive message construction.
func (l *Log) ShouldLog(level Level) bool {
	return l != nil && level != Off && level <= l.level
}

// Add records one entry.
func (l *Log) Add(level Level, category, message string) {
	if !l.ShouldLog(level) {
		return
	}
	l.logger.Log(context.Background(), level.slog(), message, "category", category)
}

// Addf is Add with formatting, skipped entirely when the level is off.
func (l *Log) Addf(level Level, category, format string, args ...any) {
	if !l.ShouldLog(level) {
		return
	}
	l.Add(level, category, fmt.Sprintf(format, args...))
}

// Begin opens a bracketed entry closed by the matching End.
func (l *Log) Begin(level Level, category, message string) {
	if !l.ShouldLog(level) {
		return
	}
	l.mu.Lock()
	l.spans = append(l.spans, span{level: level, category: category, message: message, start: time.Now()})
	depth := len(l.spans)
	l.mu.Unlock()
	l.logger.Log(context.Background(), level.slog(), "begin "+message, "category", category, "depth", depth)
}

// End closes the innermost open entry and logs the elapsed time.
func (l *Log) End(level Level, category, message string) {
	if !l.ShouldLog(level) {
		return
	}
	l.mu.Lock()
	var elapsed time.Duration
	depth := len(l.spans)
	if depth > 0 {
		s := l.spans[depth-1]
		l.spans = l.spans[:depth-1]
		elapsed = time.Since(s.start)
	}
	l.mu.Unlock()
	l.logger.Log(context.Background(), level.slog(), "end "+message, "category", category, "depth", depth, "elapsed", elapsed)
}
