package logger

import (
	"io"
	"os"
	"sync"
)

var (
	defMu     sync.RWMutex
	defLogger = NewSlog(os.Stderr, InfoLevel, true)
)

func Debug(msg string, keysAndValues ...any) {
	Default().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	Default().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	Default().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	Default().Error(msg, keysAndValues...)
}

func SetLevel(level Level) {
	Default().SetLevel(level)
}

// Default returns the package level logger.
func Default() Logger {
	defMu.RLock()
	defer defMu.RUnlock()
	return defLogger
}

// SetDefault replaces the package level logger.
func SetDefault(l Logger) {
	defMu.Lock()
	defer defMu.Unlock()
	defLogger = l
}

// Or returns l, or the default logger when l is nil.
func Or(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}

// Discard returns a logger that drops everything, used by tests.
func Discard() Logger {
	return NewSlog(io.Discard, ErrorLevel, false)
}
