package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// Logger writes through a Service (following its live config) or a fixed
// zerolog logger. The zero value discards everything and reports IsZero.
type Logger struct {
	svc    *Service
	fixed  *zerolog.Logger
	fields []Field
}

var nop = zerolog.Nop()

// Nop returns a logger that never writes.
func Nop() Logger { return Logger{fixed: &nop} }

// NewWriter returns a standalone JSON logger on w, for CLI output and tests.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return Logger{fixed: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.fixed == nil && len(l.fields) == 0 }

func (l Logger) target() *zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.fixed != nil:
		return l.fixed
	}
	return &nop
}

// Enabled reports whether level would be written.
func (l Logger) Enabled(level Level) bool { return level >= l.target().GetLevel() }

// With returns a child logger that adds fields to every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	l.fields = append(append([]Field(nil), l.fields...), fields...)
	return l
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	e := l.target().WithLevel(level)
	if e == nil {
		return
	}
	// 0 is emit, 1 the level method, 2 its caller.
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}
