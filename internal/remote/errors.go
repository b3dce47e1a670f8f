package remote

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind int

const (
	// KindNetwork: the request could not be sent or the response not received.
	KindNetwork ErrorKind = iota + 1
	// KindServer: non-2xx status, or a 2xx envelope reporting success=false.
	KindServer
	// KindMalformed: the body was not the JSON shape the operation expects.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

var (
	ErrNetwork   = errors.New("network failure")
	ErrServer    = errors.New("server error")
	ErrMalformed = errors.New("malformed response")
)

// Error is the single failure type returned by Client. Message is meant for
// humans: the backend's "error" field when it sent one.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrServer:
		return e.Kind == KindServer
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// Retryable reports failures where repeating an idempotent request can help.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindServer:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsRetryable unwraps err looking for a retryable *Error.
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}

// Message returns the human readable part of a remote failure, or err.Error()
// for anything else.
func Message(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
