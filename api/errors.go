package api

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrNoExpectedValue is returned when an expected value is required but not provided
	ErrNoExpectedValue = errors.New("expected value is required for this scorer")
	// ErrLLMGenerationFailed is returned when LLM generation fails
	ErrLLMGenerationFailed = errors.New("LLM generation failed")
)

// ConfigError reports invalid or missing run parameters. It is fatal,
// surfaced to the caller immediately and never retried.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// NewConfigError builds a ConfigError from a format string.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// BackendErrorKind is the closed set of transient backend failure kinds.
// Backends classify their raw transport errors into one of these at the
// boundary; the retry executor matches on kind, not on message text.
type BackendErrorKind string

const (
	KindConnection          BackendErrorKind = "connection"
	KindTimeout             BackendErrorKind = "timeout"
	KindServiceUnavailable  BackendErrorKind = "service-unavailable"
	KindInternalServerError BackendErrorKind = "internal-server-error"
)

// BackendError is a transient failure from a network-bound backend call.
type BackendError struct {
	Kind BackendErrorKind
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// SubprocessError is a failure from a subprocess-backed generation call.
// The captured stderr text is the only classification signal such a backend
// can provide; the retry executor applies a legacy text classification to it.
type SubprocessError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("subprocess %s: %v: %s", e.Cmd, e.Err, e.Stderr)
}

func (e *SubprocessError) Unwrap() error { return e.Err }

// ClassifyHTTP maps an HTTP status from a backend response to a transient
// BackendError where the status belongs to the retriable set, and returns
// err unchanged otherwise.
func ClassifyHTTP(op string, status int, err error) error {
	switch status {
	case 500:
		return &BackendError{Kind: KindInternalServerError, Op: op, Err: err}
	case 502, 503, 529:
		return &BackendError{Kind: KindServiceUnavailable, Op: op, Err: err}
	case 408, 504:
		return &BackendError{Kind: KindTimeout, Op: op, Err: err}
	}
	return err
}

// ClassifyNet maps transport-level failures (connection refused/reset,
// dial errors, timeouts) to transient BackendErrors and returns everything
// else unchanged.
func ClassifyNet(op string, err error) error {
	if err == nil {
		return nil
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &BackendError{Kind: KindTimeout, Op: op, Err: err}
	}
	if os.IsTimeout(err) {
		return &BackendError{Kind: KindTimeout, Op: op, Err: err}
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return &BackendError{Kind: KindConnection, Op: op, Err: err}
	}
	return err
}
