// Package wlog is the scheduler's structured logging facade. It wraps
// logiface, configured with the stumpy JSON writer, behind the same
// package-level global-logger idiom the teacher's own eventloop package
// uses for its (hand-rolled) Logger interface: a settable global instance,
// a safe getter, and a no-op default so callers never need a nil check.
package wlog

import (
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is a structured logger bound to stumpy's compact JSON event type.
type Logger = logiface.Logger[*stumpy.Event]

var global struct {
	sync.RWMutex
	logger *Logger
}

func init() {
	global.logger = New(os.Stderr)
}

// New builds a Logger writing newline-delimited JSON events to w.
func New(w *os.File) *Logger {
	return stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(w)))
}

// SetDefault replaces the package-level default logger used by the
// package-level Info/Warn/Err/Debug helpers.
func SetDefault(l *Logger) {
	global.Lock()
	defer global.Unlock()
	global.logger = l
}

// Default returns the current package-level default logger.
func Default() *Logger {
	global.RLock()
	defer global.RUnlock()
	return global.logger
}

// Debug logs msg at debug level with the default logger.
func Debug(msg string) { Default().Debug().Log(msg) }

// Info logs msg at informational level with the default logger.
func Info(msg string) { Default().Info().Log(msg) }

// Warn logs msg at warning level with the default logger.
func Warn(msg string) { Default().Warning().Log(msg) }

// Err logs msg at error level, attaching err as a field, with the default
// logger. A nil err still logs msg without the field.
func Err(msg string, err error) {
	b := Default().Err()
	if err != nil {
		b = b.Err(err)
	}
	b.Log(msg)
}
