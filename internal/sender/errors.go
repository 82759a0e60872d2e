package sender

import (
	"errors"
	"fmt"
)

// Kind classifies why a run stopped or did not fully succeed.
type Kind int

const (
	KindUsage Kind = iota
	KindFileNotFound
	KindInvalidMessage
	KindOverride
	KindTransport
	KindMalformedResponse
	KindAckRejected
	KindAckError
	KindAckFailures
	KindNotSent
)

// Sentinel errors, one per Kind, for errors.Is.
var (
	ErrUsage                    = errors.New("usage error")
	ErrFileNotFound             = errors.New("file not found")
	ErrInvalidMessage           = errors.New("invalid message")
	ErrOverride                 = errors.New("override resolution failure")
	ErrTransport                = errors.New("transport failure")
	ErrMalformedResponse        = errors.New("malformed response: no acknowledgment segment")
	ErrAckRejected              = errors.New("acknowledgment rejected")
	ErrAckError                 = errors.New("acknowledgment error")
	ErrCompletedWithAckFailures = errors.New("completed with negative acknowledgments")
	ErrNotSent                  = errors.New("messages rendered but not sent")
)

var sentinels = map[Kind]error{
	KindUsage:             ErrUsage,
	KindFileNotFound:      ErrFileNotFound,
	KindInvalidMessage:    ErrInvalidMessage,
	KindOverride:          ErrOverride,
	KindTransport:         ErrTransport,
	KindMalformedResponse: ErrMalformedResponse,
	KindAckRejected:       ErrAckRejected,
	KindAckError:          ErrAckError,
	KindAckFailures:       ErrCompletedWithAckFailures,
	KindNotSent:           ErrNotSent,
}

// Exit codes.
const (
	ExitOK          = 0
	ExitFatal       = 1
	ExitUsage       = 2
	ExitAckFailures = 3
	ExitNotSent     = 4
)

// Error carries the Kind of a failure and the source it happened on.
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *Error) Error() string {
	msg := sentinels[e.Kind].Error()
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the Kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{sentinels[e.Kind]}
	}
	return []error{sentinels[e.Kind], e.Err}
}

func newError(kind Kind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

// Usagef builds a KindUsage error.
func Usagef(format string, args ...any) error {
	return newError(KindUsage, "", fmt.Errorf(format, args...))
}

// ExitCode maps a Run error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if !errors.As(err, &e) {
		return ExitFatal
	}
	switch e.Kind {
	case KindUsage:
		return ExitUsage
	case KindAckFailures:
		return ExitAckFailures
	case KindNotSent:
		return ExitNotSent
	default:
		return ExitFatal
	}
}
