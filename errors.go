package capsize

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinels for errors.Is against a *CompressionError.
var (
	ErrInvalidInput      = errors.New("capsize: invalid input")
	ErrDecode            = errors.New("capsize: decode failed")
	ErrBudgetExceeded    = errors.New("capsize: budget exceeded")
	ErrWriteVerification = errors.New("capsize: write verification failed")
	ErrIO                = errors.New("capsize: storage failure")
)

// ErrorKind classifies a per-image failure.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota
	KindDecode
	KindBudgetExceeded
	KindWriteVerification
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindDecode:
		return "decode"
	case KindBudgetExceeded:
		return "budget exceeded"
	case KindWriteVerification:
		return "write verification"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindDecode:
		return ErrDecode
	case KindBudgetExceeded:
		return ErrBudgetExceeded
	case KindWriteVerification:
		return ErrWriteVerification
	case KindIO:
		return ErrIO
	default:
		return ErrInvalidInput
	}
}

// CompressionError is returned for every per-image failure. Errors are local
// to one image; nothing here affects other calls.
type CompressionError struct {
	Kind ErrorKind

	// Path is the file involved, if any. For KindBudgetExceeded it is the
	// best-effort file that was still written.
	Path string

	// Budget and AchievedSize are set for KindBudgetExceeded.
	Budget       int64
	AchievedSize int64

	// Quality is the last lossy quality tried, 0 if none.
	Quality int

	Err error
}

func (e *CompressionError) Error() string {
	msg := "capsize: " + e.Kind.String()
	if e.Path != "" {
		msg += fmt.Sprintf(" %q", e.Path)
	}
	if e.Kind == KindBudgetExceeded {
		msg += fmt.Sprintf(": achieved %d bytes, budget %d", e.AchievedSize, e.Budget)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CompressionError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *CompressionError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func newError(kind ErrorKind, path string, err error) *CompressionError {
	return &CompressionError{Kind: kind, Path: path, Err: err}
}

func decodeError(err error, format string, args ...interface{}) *CompressionError {
	return newError(KindDecode, "", errors.Wrapf(err, format, args...))
}

func ioError(path string, err error, op string) *CompressionError {
	return newError(KindIO, path, errors.Wrap(err, op))
}
