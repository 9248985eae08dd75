// Package logger provides a configurable logger that can write to multiple outputs.
// Init must be called early in the application lifecycle before using other logger functions.
// Functions like AddOutput and SetEnabled will return errors if called before Init.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a configurable logger that can write to multiple outputs. The
// actual encoding and level plumbing is zap's; Logger just owns the set of
// destinations and the on/off switch a caller can flip at runtime.
type Logger struct {
	mu      sync.Mutex
	sink    *fanoutSyncer
	zl      *zap.Logger
	prefix  string
	enabled bool
}

// fanoutSyncer is a zapcore.WriteSyncer over a mutable set of io.Writer, so
// AddOutput/RemoveOutput can attach or detach a destination (the TUI's log
// buffer, most notably) after the zap core has already been built.
type fanoutSyncer struct {
	mu      sync.Mutex
	writers []io.Writer
}

func (f *fanoutSyncer) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.writers {
		w.Write(p)
	}
	return len(p), nil
}

func (f *fanoutSyncer) Sync() error { return nil }

func (f *fanoutSyncer) add(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writers = append(f.writers, w)
}

func (f *fanoutSyncer) remove(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.writers[:0]
	for _, o := range f.writers {
		if o != w {
			kept = append(kept, o)
		}
	}
	f.writers = kept
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000) // Keep last 1000 log entries
	})
	return globalBuffer
}

// messageOnlyEncoder renders just the message text, one line per record, so
// output keeps the "[prefix] message" shape LogBufferWriter's regex parses.
var messageOnlyEncoder = zapcore.EncoderConfig{
	MessageKey: "M",
	LineEnding: zapcore.DefaultLineEnding,
}

// Init initializes the global logger
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		sink := &fanoutSyncer{}
		if writeToStdout {
			sink.add(os.Stdout)
		}
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(messageOnlyEncoder), sink, zapcore.DebugLevel)
		globalLogger = &Logger{
			sink:    sink,
			zl:      zap.New(core),
			prefix:  prefix,
			enabled: true,
		}
	})
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.sink.add(w)
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.sink.remove(w)
	return nil
}

// SetEnabled enables or disables logging.
// Returns an error if called before Init.
func SetEnabled(enabled bool) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.enabled = enabled
	return nil
}

// Printf logs a formatted message
func Printf(format string, v ...interface{}) {
	if globalLogger == nil {
		// Fallback to standard log if not initialized
		log.Printf(format, v...)
		return
	}

	globalLogger.mu.Lock()
	enabled := globalLogger.enabled
	prefix := globalLogger.prefix
	zl := globalLogger.zl
	globalLogger.mu.Unlock()

	if !enabled {
		return
	}

	msg := fmt.Sprintf(format, v...)
	msg = strings.TrimSuffix(msg, "\n")
	if prefix != "" {
		msg = fmt.Sprintf("[%s] %s", prefix, msg)
	}
	zl.Info(msg)
}

// Print logs a message
func Print(v ...interface{}) {
	Printf("%s", fmt.Sprint(v...))
}

// Println logs a message with newline
func Println(v ...interface{}) {
	Printf("%s", fmt.Sprintln(v...))
}

// Infof logs an info-level formatted message
func Infof(format string, v ...interface{}) {
	Printf("[INFO] "+format, v...)
}

// Info logs an info-level message
func Info(v ...interface{}) {
	Printf("[INFO] %s", fmt.Sprint(v...))
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	Printf("[ERROR] "+format, v...)
}

// Error logs an error-level message
func Error(v ...interface{}) {
	Printf("[ERROR] %s", fmt.Sprint(v...))
}

// GetGlobalLogger returns the global logger instance (for testing/debugging)
func GetGlobalLogger() *Logger {
	return globalLogger
}
