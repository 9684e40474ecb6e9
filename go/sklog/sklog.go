// Package sklog is the structured logging facade used throughout the
// transfers engine. It writes leveled, prefixed lines (the same D/I/W/E/F
// severity prefixes used across the rest of the stack) to an injectable
// writer, defaulting to stderr.
package sklog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Severity identifies the level a line was logged at.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	FatalSev
)

func (s Severity) prefix() byte {
	switch s {
	case Debug:
		return 'D'
	case Info:
		return 'I'
	case Warning:
		return 'W'
	case Error:
		return 'E'
	case FatalSev:
		return 'F'
	default:
		return '?'
	}
}

var (
	mtx    sync.Mutex
	out    io.Writer = os.Stderr
	stdlog           = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
)

// SetOutput redirects all future log lines to w. Used by tests.
func SetOutput(w io.Writer) {
	mtx.Lock()
	defer mtx.Unlock()
	out = w
	stdlog.SetOutput(w)
}

func logAt(depth int, sev Severity, format string, args ...interface{}) {
	mtx.Lock()
	defer mtx.Unlock()
	msg := fmt.Sprintf(format, args...)
	stdlog.SetPrefix(string(sev.prefix()) + " ")
	_ = stdlog.Output(depth+2, msg)
}

func Debugf(format string, args ...interface{})   { logAt(1, Debug, format, args...) }
func Infof(format string, args ...interface{})    { logAt(1, Info, format, args...) }
func Warningf(format string, args ...interface{}) { logAt(1, Warning, format, args...) }
func Errorf(format string, args ...interface{})   { logAt(1, Error, format, args...) }

// Fatalf logs at Fatal severity and terminates the process, matching the
// rest of the stack's convention that Fatal errors (missing inputs,
// exhausted store capacity) are unrecoverable.
func Fatalf(format string, args ...interface{}) {
	logAt(1, FatalSev, format, args...)
	os.Exit(1)
}

// Fatal logs args at Fatal severity and terminates the process.
func Fatal(args ...interface{}) {
	logAt(1, FatalSev, fmt.Sprint(args...))
	os.Exit(1)
}
