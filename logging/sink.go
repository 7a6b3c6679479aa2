package logging

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/frameline/internal/utils"
	"golang.org/x/exp/slog"
)

const (
	defaultLogFilePath = "frameline.log"
	defaultTimeFormat  = "2006-01-02 15:04:05.000"
)

// Options configures a Sink
type Options struct {
	// MinLevel is the lowest level that will be written
	MinLevel Level
	// Console receives every written line. If nil, os.Stderr is used.
	Console io.Writer
	// LogToFile additionally appends every written line to FilePath
	LogToFile bool
	// FilePath is the log file used when LogToFile is set. Defaults to frameline.log
	FilePath string
	// TimeFormat is the layout used for the timestamp prefix
	TimeFormat string
}

// Sink owns the shared output streams of the process's logging. All writes go through a single mutex.
type Sink struct {
	mutex      utils.OptionalMutex
	console    io.Writer
	file       *os.File
	timeFormat string
	minLevel   slog.LevelVar
	closed     bool

	logger *slog.Logger
}

// Open creates a Sink. It fails only if a log file was requested and could not be opened.
func Open(o Options) (*Sink, error) {
	s := &Sink{
		mutex:      utils.OptionalMutex{UseMutex: true},
		console:    o.Console,
		timeFormat: o.TimeFormat,
	}
	if s.console == nil {
		s.console = os.Stderr
	}
	if s.timeFormat == "" {
		s.timeFormat = defaultTimeFormat
	}
	s.minLevel.Set(o.MinLevel.SlogLevel())

	if o.LogToFile {
		path := o.FilePath
		if path == "" {
			path = defaultLogFilePath
		}

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", path)
		}
		s.file = file
	}

	s.logger = slog.New(&sinkHandler{sink: s})
	s.logger.Info("Logger initialized", slog.String(CategoryKey, CategoryCore.String()), slog.String("minLevel", o.MinLevel.String()))
	return s, nil
}

// Logger returns the root logger writing to this sink
func (s *Sink) Logger() *slog.Logger {
	return s.logger
}

// SetMinLevel changes the lowest level that will be written
func (s *Sink) SetMinLevel(level Level) {
	s.minLevel.Set(level.SlogLevel())
}

// MinLevel returns the lowest level that will be written
func (s *Sink) MinLevel() Level {
	return FromSlogLevel(s.minLevel.Level())
}

// Close flushes and releases the log file, if any. Records emitted after Close are dropped.
func (s *Sink) Close() error {
	s.logger.Info("Logger shutting down", slog.String(CategoryKey, CategoryCore.String()))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

func (s *Sink) write(line []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}

	_, err := s.console.Write(line)
	if err != nil {
		return err
	}

	if s.file != nil {
		_, err = s.file.Write(line)
	}
	return err
}

type sinkHandler struct {
	sink     *Sink
	category string
	prefix   string
	attrs    []slog.Attr
}

func (h *sinkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.sink.minLevel.Level()
}

func (h *sinkHandler) Handle(_ context.Context, r slog.Record) error {
	category := h.category
	var attrText strings.Builder

	for _, attr := range h.attrs {
		appendAttr(&attrText, "", attr)
	}

	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == CategoryKey && h.prefix == "" {
			category = attr.Value.String()
			return true
		}
		appendAttr(&attrText, h.prefix, attr)
		return true
	})

	if category == "" {
		category = CategoryCore.String()
	}

	timestamp := r.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var line strings.Builder
	line.WriteByte('[')
	line.WriteString(timestamp.Format(h.sink.timeFormat))
	line.WriteString("] [")
	line.WriteString(FromSlogLevel(r.Level).String())
	line.WriteString("] [")
	line.WriteString(category)
	line.WriteString("] ")
	line.WriteString(r.Message)
	line.WriteString(attrText.String())
	line.WriteByte('\n')

	return h.sink.write([]byte(line.String()))
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, attr := range attrs {
		if attr.Key == CategoryKey && h.prefix == "" {
			clone.category = attr.Value.String()
			continue
		}
		if h.prefix != "" {
			attr.Key = h.prefix + attr.Key
		}
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

func (h *sinkHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func appendAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = prefix + attr.Key + "."
		}
		for _, child := range attr.Value.Group() {
			appendAttr(b, groupPrefix, child)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(attr.Key)
	b.WriteByte('=')

	value := attr.Value.String()
	if strings.ContainsAny(value, " \t\n\"=") {
		value = strconv.Quote(value)
	}
	b.WriteString(value)
}
