package domain

import (
	"fmt"
	"time"
)

// ErrorKind is the failure taxonomy every engine error is reduced to.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindTimeout
	KindHTTP
	KindTooManyRequests
	KindAccessDenied
	KindCaptcha
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "http"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindAccessDenied:
		return "access_denied"
	case KindCaptcha:
		return "captcha"
	default:
		return "unexpected"
	}
}

// Suspends reports whether a failure of this kind counts against the
// engine's suspension state. Timeouts and unexpected errors never do.
func (k ErrorKind) Suspends() bool {
	switch k {
	case KindHTTP, KindTooManyRequests, KindAccessDenied, KindCaptcha:
		return true
	default:
		return false
	}
}

// UnresponsiveReason is the label shown next to an engine that failed with this kind.
func (k ErrorKind) UnresponsiveReason() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "HTTP error"
	case KindTooManyRequests:
		return "too many requests"
	case KindAccessDenied:
		return "blocked"
	case KindCaptcha:
		return "CAPTCHA required"
	default:
		return "unexpected crash"
	}
}

// EngineError is a classified engine failure.
type EngineError struct {
	Kind ErrorKind
	// Message names the condition, e.g. "Cloudflare CAPTCHA".
	Message string
	// SuspendFor overrides the kind's default suspension when > 0.
	SuspendFor time.Duration
	StatusCode int
	Err        error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.UnresponsiveReason()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Reason returns the text recorded as the suspension reason.
func (e *EngineError) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.UnresponsiveReason()
}

// NewTimeoutError wraps err as a Timeout failure.
func NewTimeoutError(err error) *EngineError {
	return &EngineError{Kind: KindTimeout, Message: "HTTP timeout", Err: err}
}

// NewHTTPError reports a transport failure or an unexpected HTTP status.
func NewHTTPError(message string, status int, err error) *EngineError {
	return &EngineError{Kind: KindHTTP, Message: message, StatusCode: status, Err: err}
}

// NewTooManyRequestsError reports upstream rate limiting.
func NewTooManyRequestsError(message string, suspendFor time.Duration) *EngineError {
	return &EngineError{Kind: KindTooManyRequests, Message: message, SuspendFor: suspendFor, StatusCode: 429}
}

// NewAccessDeniedError reports a blocked request.
func NewAccessDeniedError(message string, status int, suspendFor time.Duration) *EngineError {
	return &EngineError{Kind: KindAccessDenied, Message: message, SuspendFor: suspendFor, StatusCode: status}
}

// NewCaptchaError reports a CAPTCHA challenge.
func NewCaptchaError(message string, status int, suspendFor time.Duration) *EngineError {
	return &EngineError{Kind: KindCaptcha, Message: message, SuspendFor: suspendFor, StatusCode: status}
}

// NewUnexpectedError wraps a parsing or adapter failure.
func NewUnexpectedError(err error) *EngineError {
	return &EngineError{Kind: KindUnexpected, Err: err}
}
