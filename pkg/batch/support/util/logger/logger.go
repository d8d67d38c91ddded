// Package logger is the level-filtered logger shared by every chunkbatch package.
// It writes through the standard `log` package so that output can be redirected
// with SetOutput, and filters messages below the configured level.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel orders log messages by severity. Smaller values are more verbose.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

// String returns the upper-case name of the level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// ParseLevel converts a level name ("debug", "INFO", ...) to a LogLevel.
// TRACE is accepted as an alias of DEBUG.
func ParseLevel(level string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE", "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	}
	return LevelInfo, false
}

// SetLogLevel sets the global level. Unknown names fall back to INFO with a warning.
func SetLogLevel(level string) {
	parsed, ok := ParseLevel(level)
	if !ok {
		log.Printf("[WARN] Unknown log level '%s' specified. Defaulting to INFO level.", level)
	}
	current.Store(int32(parsed))
}

// GetLogLevel returns the active level.
func GetLogLevel() LogLevel {
	return LogLevel(current.Load())
}

// IsDebugEnabled reports whether DEBUG messages are emitted.
func IsDebugEnabled() bool {
	return GetLogLevel() <= LevelDebug
}

// SetOutput redirects all log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func logf(level LogLevel, format string, v ...interface{}) {
	if GetLogLevel() > level {
		return
	}
	log.Printf("["+level.String()+"] "+format, v...)
}

// Debugf logs at DEBUG level.
func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }

// Infof logs at INFO level.
func Infof(format string, v ...interface{}) { logf(LevelInfo, format, v...) }

// Warnf logs at WARN level.
func Warnf(format string, v ...interface{}) { logf(LevelWarn, format, v...) }

// Errorf logs at ERROR level.
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

// Fatalf logs the message and terminates the process with exit code 1.
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
