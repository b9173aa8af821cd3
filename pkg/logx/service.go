package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile    = "./estatecron.log"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the log sinks. Loggers derived from it pick up Apply changes
// without being recreated.
type Service struct {
	mu   sync.Mutex
	file *os.File
	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service and its root logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.TimeFieldFormat = consoleTimeFormat
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() *zerolog.Logger { return s.root.Load() }

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply swaps level and sinks. A file that cannot be opened is reported on
// stderr and skipped; console output is used when nothing else is left.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	var file *os.File
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	s.root.Store(&zl)

	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = file
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   consoleTimeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}

// parseLevel accepts zerolog level names plus "warning"; anything else is info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
