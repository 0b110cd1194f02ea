package klog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level controls which messages reach the sink.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

var (
	mu     sync.RWMutex
	level  = LevelInfo
	logger = log.New(os.Stderr, "", log.LstdFlags)
)

// SetLevel sets the minimum level that is emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log output, e.g. to a capture buffer in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", log.LstdFlags)
}

func emit(l Level, format string, args ...interface{}) {
	mu.RLock()
	min, sink := level, logger
	mu.RUnlock()
	if l < min {
		return
	}
	sink.Printf("[%s] %s", l, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) { emit(LevelDebug, format, args...) }

// Infof logs an informational message.
func Infof(format string, args ...interface{}) { emit(LevelInfo, format, args...) }

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) { emit(LevelWarn, format, args...) }

// Errorf logs an error condition.
func Errorf(format string, args ...interface{}) { emit(LevelError, format, args...) }

// Fatalf logs an unrecoverable condition. It does not terminate the
// program; halting is the dispatcher's decision, not the logger's.
func Fatalf(format string, args ...interface{}) { emit(LevelFatal, format, args...) }

// Printf writes directly to the sink regardless of level, mirroring the
// raw console print the leveled helpers are layered over.
func Printf(format string, args ...interface{}) {
	mu.RLock()
	sink := logger
	mu.RUnlock()
	sink.Printf("%s", fmt.Sprintf(format, args...))
}
