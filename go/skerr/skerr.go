// Package skerr provides annotated errors that carry their call site so
// that failures surfaced from deep inside the transfer pipeline can be
// traced back to the stage that produced them without a debugger.
package skerr

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// withStack wraps an error with the source location it was created or
// passed through, forming a lightweight poor-man's stack trace as the
// error bubbles up call frames.
type withStack struct {
	cause error
	frame string
}

func (e *withStack) Error() string {
	return fmt.Sprintf("%s. At %s", e.cause.Error(), e.frame)
}

func (e *withStack) Unwrap() error { return e.cause }

func callerFrame(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown:0"
	}
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return file + ":" + strconv.Itoa(line)
}

// Wrap annotates err with the caller's file and line. Returns nil if err
// is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{cause: err, frame: callerFrame(1)}
}

// Wrapf annotates err with a message and the caller's file and line.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &withStack{cause: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err), frame: callerFrame(1)}
}

// Fmt creates a new error from the format string, annotated with the
// caller's file and line, the same way Wrap annotates an existing error.
func Fmt(format string, args ...interface{}) error {
	return &withStack{cause: fmt.Errorf(format, args...), frame: callerFrame(1)}
}

// Unwrap returns the innermost error of err's wrap chain, stripping all
// skerr annotations, including the message layer Wrapf adds.
func Unwrap(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
