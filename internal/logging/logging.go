// Package logging provides structured logging for the merge engine and
// its CLI/HTTP edges, and bridges the merge-trace event stream (§9's
// "per-row logging as a debugging crutch" redesign, internal/mergetrace)
// into it: TraceSink gives a component a default place for its Inserted/
// Duplicate/Remapped/Orphan events to land (at Debug level) without any
// merger ever importing this package directly — only the orchestrator
// wires a Sink into the pipeline, and that Sink can be this one.
//
// Usage:
//
//	import "github.com/backupmerge/backupmerge/internal/logging"
//
//	// Initialize once at startup
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stderr",
//	})
//
//	// Get a logger for a component
//	log := logging.GetLogger("rowmerge")
//	log.Info("merge started", "sources", len(sources))
//	log.Error("insert verification failed", "error", err, "table", table, "orig_id", origID)
//
//	// Or give the orchestrator a Sink that logs every merge-trace event
//	cfg := merge.Config{Trace: logging.TraceSink("rowmerge")}
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/backupmerge/backupmerge/internal/mergetrace"
)

// Config holds logging configuration
type Config struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string
	// Format is the output format: console, json
	Format string
	// Output is the output destination: stderr, stdout, or a file path
	Output string
}

var (
	defaultLogger *slog.Logger
	loggerMu      sync.RWMutex
)

func init() {
	// Initialize with default console logger
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Init initializes the global logger with the given configuration.
// This should be called once at application startup.
func Init(cfg Config) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "", "stderr":
		output = os.Stderr
	default:
		// Try to open as file, fall back to stderr
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			output = os.Stderr
		} else {
			output = f
		}
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for debug level
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
}

// parseLevel converts a string level to slog.Level
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns a logger for the specified component.
// The component name is added as an attribute to all log entries.
func GetLogger(component string) *Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return &Logger{
		slog:      defaultLogger.With("component", component),
		component: component,
	}
}

// Logger wraps slog.Logger with the handful of methods the merge engine
// and its edges actually call: With for per-run context (the
// orchestrator's run_id), and the four level methods.
type Logger struct {
	slog      *slog.Logger
	component string
}

// With returns a new Logger with the given attributes added
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:      l.slog.With(args...),
		component: l.component,
	}
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs at info level
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs at error level
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// TraceSink returns a mergetrace.Sink that logs every event at Debug
// level through a component logger, fielded the same way the mergers'
// own Warn/Error calls are (table, orig_id, new_id, ...) rather than as
// a single formatted string — so a merge run with no caller-supplied
// Trace still leaves a structured record of every Inserted/Duplicate/
// Remapped/Orphan decision, consistent with §9's redesign away from
// per-row logging toward a consumable event stream, while the mergers
// themselves still never import this package.
func TraceSink(component string) mergetrace.Sink {
	log := GetLogger(component)
	return func(e mergetrace.Event) {
		switch e.Kind {
		case mergetrace.Inserted:
			log.Debug("inserted", "table", e.Table, "orig_id", e.OrigID, "new_id", e.NewID)
		case mergetrace.Duplicate:
			log.Debug("duplicate", "table", e.Table, "orig_id", e.OrigID, "survivor_id", e.NewID)
		case mergetrace.Remapped:
			log.Debug("remapped", "table", e.Table, "fk_column", e.FKColumn, "orig_id", e.OrigID, "new_id", e.NewID)
		case mergetrace.Orphan:
			log.Debug("orphan", "table", e.Table, "fk_column", e.FKColumn, "pk", e.OrigID, "missing_fk", e.MissingValue)
		default:
			log.Debug(e.String())
		}
	}
}
