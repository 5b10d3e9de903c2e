package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs the process root logger.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the root installed by SetGlobal, or a stderr text logger at
// info level before setup has run.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			handler:  newTextHandler(os.Stderr, slog.LevelInfo, time.Local),
			fallback: slog.LevelInfo,
		}
	}
	return global
}

// CentralLogger owns the output handlers and hands out module scopes.
type CentralLogger struct {
	mu        sync.RWMutex
	handler   slog.Handler
	fallback  slog.Level
	overrides map[string]slog.Level
	file      *FileSink
}

// NewCentralLogger builds the console and file outputs described by cfg.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadZone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		fallback:  ParseLevel(cfg.DefaultLevel),
		overrides: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, name := range cfg.ModuleLevels {
		cl.overrides[module] = ParseLevel(name)
	}

	var outputs []slog.Handler
	if c := cfg.Console; c != nil && c.Enabled {
		outputs = append(outputs, consoleHandler(c, tz))
	}
	if f := cfg.FileOutput; f != nil && f.Enabled {
		sink, err := OpenFileSink(f.Path)
		if err != nil {
			return nil, err
		}
		cl.file = sink
		outputs = append(outputs, newJSONHandler(sink, ParseLevel(f.Level), tz))
	}

	switch len(outputs) {
	case 0:
		cl.handler = newTextHandler(os.Stderr, cl.fallback, tz)
	case 1:
		cl.handler = outputs[0]
	default:
		cl.handler = newMultiWriterHandler(outputs...)
	}
	return cl, nil
}

func loadZone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func consoleHandler(c *ConsoleOutput, tz *time.Location) slog.Handler {
	var w io.Writer = os.Stderr
	if c.Stream == "stdout" {
		w = os.Stdout
	}
	if c.Format == "json" {
		return newJSONHandler(w, ParseLevel(c.Level), tz)
	}
	return newTextHandler(w, ParseLevel(c.Level), tz)
}

// Module returns a logger for one package. A module level override applies
// to the module and every nested scope below it.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	floor, ok := cl.overrides[name]
	if !ok {
		floor = cl.fallback
	}
	return &scoped{out: slog.New(cl.handler), module: name, floor: floor}
}

// Flush pushes buffered file output to disk.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file. Console output keeps working.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	sink := cl.file
	cl.file = nil
	cl.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}

// NewSlogLogger logs text to w without a root; used by tests and tools.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if tz == nil {
		tz = time.UTC
	}
	floor := ParseLevel(string(level))
	return &scoped{out: slog.New(newTextHandler(w, floor, tz)), floor: floor}
}

// scoped is the Logger handed to packages. Fields are kept as attrs so
// nested module names can replace the module attr instead of repeating it.
type scoped struct {
	out    *slog.Logger
	module string
	floor  slog.Level
	attrs  []slog.Attr
}

func (s *scoped) derive(module string, extra []Field) *scoped {
	return &scoped{
		out:    s.out,
		module: module,
		floor:  s.floor,
		attrs:  slices.Concat(s.attrs, extra),
	}
}

func (s *scoped) Module(name string) Logger {
	if s == nil {
		return nil
	}
	if s.module != "" {
		name = s.module + "." + name
	}
	return s.derive(name, nil)
}

func (s *scoped) With(fields ...Field) Logger {
	if s == nil {
		return nil
	}
	return s.derive(s.module, fields)
}

// WithContext adds the trace id carried by ctx, if there is one.
func (s *scoped) WithContext(ctx context.Context) Logger {
	if s == nil {
		return nil
	}
	if id := traceIDFrom(ctx); id != "" {
		return s.With(String(traceIDKey, id))
	}
	return s
}

func (s *scoped) Trace(msg string, fields ...Field) { s.emit(LevelTrace, msg, fields) }
func (s *scoped) Debug(msg string, fields ...Field) { s.emit(slog.LevelDebug, msg, fields) }
func (s *scoped) Info(msg string, fields ...Field)  { s.emit(slog.LevelInfo, msg, fields) }
func (s *scoped) Warn(msg string, fields ...Field)  { s.emit(slog.LevelWarn, msg, fields) }
func (s *scoped) Error(msg string, fields ...Field) { s.emit(slog.LevelError, msg, fields) }

func (s *scoped) Log(level LogLevel, msg string, fields ...Field) {
	s.emit(ParseLevel(string(level)), msg, fields)
}

// Flush is a no-op; the root owns the file.
func (s *scoped) Flush() error { return nil }

func (s *scoped) emit(level slog.Level, msg string, fields []Field) {
	if s == nil || level < s.floor {
		return
	}
	all := make([]slog.Attr, 0, 1+len(s.attrs)+len(fields))
	if s.module != "" {
		all = append(all, slog.String(moduleKey, s.module))
	}
	all = append(all, s.attrs...)
	all = append(all, fields...)
	s.out.LogAttrs(context.Background(), level, msg, all...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == path {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return nil
}
