// Package xerrors provides the error-wrapping idiom used across winter:
// a lightweight chain that keeps a human message at each layer while
// preserving the underlying cause for errors.Is/errors.As.
package xerrors

import (
	"errors"
	"fmt"
)

var _ error = (*wrapped)(nil)

// New creates a plain error, same as the standard library.
func New(text string) error {
	return errors.New(text)
}

// Newf creates a plain formatted error.
func Newf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Wrap attaches a message to err while keeping err reachable via Unwrap.
// Wrap(nil, ...) returns nil so call sites can wrap unconditionally.
func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}
	if len(text) == 0 {
		return err
	}
	return &wrapped{err: err, msg: text}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

type wrapped struct {
	err error
	msg string
}

const sep = ", err: "

func (w *wrapped) Error() string {
	if w.err == nil {
		return w.msg
	}
	return w.msg + sep + w.err.Error()
}

func (w *wrapped) Unwrap() error {
	if w.err == nil {
		return errors.New(w.msg)
	}
	return w.err
}
