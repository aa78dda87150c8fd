package pmc

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrorKind classifies engine and session failures.
type ErrorKind uint8

const (
	// ConfigurationError: counter resolution or selection failed.
	ConfigurationError ErrorKind = iota + 1
	// SessionError: the host tracing facility refused an operation.
	SessionError
	// ProtocolError: the event stream violated an engine assumption.
	ProtocolError
	// ResourceError: per-core state or workers could not be created.
	ResourceError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration"
	case SessionError:
		return "session"
	case ProtocolError:
		return "protocol"
	case ResourceError:
		return "resource"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSession       = errors.New("session error")
	ErrProtocol      = errors.New("protocol error")
	ErrResource      = errors.New("resource error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ConfigurationError:
		return ErrConfiguration
	case SessionError:
		return ErrSession
	case ProtocolError:
		return ErrProtocol
	case ResourceError:
		return ErrResource
	default:
		return nil
	}
}

// Error is a classified failure. CPU is -1 when the error is not tied to an
// event.
type Error struct {
	Kind      ErrorKind
	Message   string
	CPU       int
	Timestamp uint64
	Err       error
}

// NewError creates an error not tied to any event.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, CPU: -1, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String() + " error: " + e.Message
	if e.CPU >= 0 {
		s += fmt.Sprintf(" (cpu %d, ts %d)", e.CPU, e.Timestamp)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Latch holds the first error reported to it. Later reports are dropped and
// the latch is never cleared.
type Latch struct {
	err atomic.Pointer[Error]
}

// Set records err if no error has been recorded yet and reports whether it
// won.
func (l *Latch) Set(err *Error) bool {
	return l.err.CompareAndSwap(nil, err)
}

// Err returns the latched error or nil.
func (l *Latch) Err() error {
	if e := l.err.Load(); e != nil {
		return e
	}
	return nil
}

// Tripped reports whether an error has been latched.
func (l *Latch) Tripped() bool {
	return l.err.Load() != nil
}

// Message returns the latched error's message, or "" if none.
func (l *Latch) Message() string {
	if e := l.err.Load(); e != nil {
		return e.Message
	}
	return ""
}
