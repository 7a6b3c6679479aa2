// Package logging provides the leveled, categorized log sink shared by every frameline component.
//
// Components accept a *slog.Logger and never reach for a global. The process bootstrap opens a Sink
// before anything else is constructed, hands Sink.Logger() down the ownership tree, and closes the Sink
// after everything else has been destroyed.
package logging

import (
	"context"

	"golang.org/x/exp/slog"
)

// Level is the severity of a log message
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

var levelNames = map[Level]string{
	LevelTrace:   "TRACE",
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelFatal:   "FATAL",
}

func (l Level) String() string {
	name, ok := levelNames[l]
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// SlogLevel converts the Level to the slog.Level used when emitting records
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelTrace:
		return slog.LevelDebug - 4
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}

// FromSlogLevel maps an slog.Level onto the nearest Level at or below it
func FromSlogLevel(level slog.Level) Level {
	switch {
	case level >= LevelFatal.SlogLevel():
		return LevelFatal
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarning
	case level >= slog.LevelInfo:
		return LevelInfo
	case level >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}

// Category identifies the subsystem a message originates from
type Category int

const (
	CategoryEngine Category = iota
	CategoryRenderer
	CategoryDevice
	CategoryWindow
	CategoryInput
	CategoryResource
	CategoryShader
	CategoryMemory
	CategoryCore
)

var categoryNames = map[Category]string{
	CategoryEngine:   "Engine",
	CategoryRenderer: "Renderer",
	CategoryDevice:   "Device",
	CategoryWindow:   "Window",
	CategoryInput:    "Input",
	CategoryResource: "Resource",
	CategoryShader:   "Shader",
	CategoryMemory:   "Memory",
	CategoryCore:     "Core",
}

func (c Category) String() string {
	name, ok := categoryNames[c]
	if !ok {
		return "Unknown"
	}
	return name
}

// CategoryKey is the attribute key the sink reads a message's Category from
const CategoryKey = "category"

// For returns a child of logger whose records are tagged with category. A nil logger yields a logger
// that discards everything.
func For(logger *slog.Logger, category Category) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger.With(slog.String(CategoryKey, category.String()))
}

// Trace emits msg at LevelTrace
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace.SlogLevel(), msg, args...)
}

// Fatal emits msg at LevelFatal. It does not terminate the process; escalation is up to the caller.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFatal.SlogLevel(), msg, args...)
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Discard returns a logger that silently drops all output
func Discard() *slog.Logger {
	return slog.New(nopHandler{})
}

// OrDiscard returns logger, or a discarding logger if logger is nil
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}
